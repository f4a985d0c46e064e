// Package postback turns completed payments and chargebacks into queued,
// signed app notices.
package postback

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	apperrors "github.com/louisbranch/webpay/internal/platform/errors"
	"github.com/louisbranch/webpay/internal/platform/id"
	"github.com/louisbranch/webpay/internal/services/pay/integration/solitude"
	"github.com/louisbranch/webpay/internal/services/pay/issuer"
	"github.com/louisbranch/webpay/internal/services/pay/notice"
	"github.com/louisbranch/webpay/internal/services/pay/urls"
)

// SecretLookup resolves the secret an app shares with webpay.
type SecretLookup interface {
	Lookup(ctx context.Context, issuer string) (string, *solitude.Product, error)
}

// Enqueuer hands a notice to the delivery queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, n notice.Notice) (int64, error)
}

// Config controls notice signing and URL policy.
type Config struct {
	// NotifyIssuer is the iss claim of notices sent to apps.
	NotifyIssuer string
	// AllowedSchemes lists callback URL schemes accepted for real payments.
	AllowedSchemes []string
}

// Request describes one notice to schedule.
type Request struct {
	Type notice.Type
	// AppIssuer is the iss of the original pay request; notices are signed
	// with its secret and addressed to it.
	AppIssuer string
	URL       string
	// PayRequest is the original request claim, echoed back to the app.
	PayRequest map[string]any
	// Response carries type-specific fields such as price or reason.
	Response  map[string]any
	TransID   string
	Simulated notice.Simulation
}

// Scheduled identifies a queued notice.
type Scheduled struct {
	TransID string
	TaskID  int64
}

// Service schedules app notices.
type Service struct {
	cfg     Config
	secrets SecretLookup
	queue   Enqueuer
	now     func() time.Time
}

// NewService creates a postback scheduling service.
func NewService(cfg Config, secrets SecretLookup, queue Enqueuer, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{cfg: cfg, secrets: secrets, queue: queue, now: now}
}

// Schedule validates the callback URL, signs the notice with the app's
// secret and enqueues it for delivery.
func (s *Service) Schedule(ctx context.Context, req Request) (Scheduled, error) {
	if s == nil || s.secrets == nil || s.queue == nil {
		return Scheduled{}, fmt.Errorf("postback service is not configured")
	}
	typ, err := jwtType(req.Type)
	if err != nil {
		return Scheduled{}, err
	}
	if err := urls.Verify(urls.Options{
		AllowedSchemes: s.cfg.AllowedSchemes,
		IsSimulation:   req.Simulated.IsSimulated(),
	}, req.URL); err != nil {
		return Scheduled{}, err
	}

	appIssuer := strings.TrimSpace(req.AppIssuer)
	secret, _, err := s.secrets.Lookup(ctx, appIssuer)
	if err != nil {
		return Scheduled{}, err
	}

	transID := strings.TrimSpace(req.TransID)
	switch {
	case transID == "":
		transID = id.NewTransID()
	case !id.IsTransID(transID):
		return Scheduled{}, apperrors.WithMetadata(apperrors.CodeInvalidRequest,
			"transaction id was not issued by webpay", map[string]string{"trans_id": transID})
	}
	response := make(map[string]any, len(req.Response)+1)
	maps.Copy(response, req.Response)
	response["transactionID"] = transID

	signed, err := issuer.SignNotice(secret, issuer.NoticeClaims{
		Issuer:   s.cfg.NotifyIssuer,
		Audience: appIssuer,
		Type:     typ,
		Request:  req.PayRequest,
		Response: response,
		IssuedAt: s.now(),
	})
	if err != nil {
		return Scheduled{}, err
	}

	taskID, err := s.queue.Enqueue(ctx, notice.Notice{
		URL:       req.URL,
		Type:      req.Type,
		Signed:    signed,
		TransID:   transID,
		Simulated: req.Simulated,
	})
	if err != nil {
		return Scheduled{}, fmt.Errorf("enqueue notice: %w", err)
	}
	return Scheduled{TransID: transID, TaskID: taskID}, nil
}

func jwtType(t notice.Type) (string, error) {
	switch t {
	case notice.TypePayment:
		return issuer.TypePostback, nil
	case notice.TypeChargeback:
		return issuer.TypeChargeback, nil
	default:
		return "", fmt.Errorf("unknown notice type %q", t)
	}
}
