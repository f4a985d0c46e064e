package issuer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/louisbranch/webpay/internal/platform/errors"
	"github.com/louisbranch/webpay/internal/services/pay/integration/solitude"
)

// JWT type identifiers exchanged with apps.
const (
	TypePayRequest = "mozilla/payments/pay/v1"
	TypePostback   = "mozilla/payments/pay/postback/v1"
	TypeChargeback = "mozilla/payments/pay/chargeback/v1"
)

// PayRequest is the verified content of an app's pay request JWT.
type PayRequest struct {
	Issuer   string
	Audience []string
	Type     string
	Request  map[string]any
}

type payRequestClaims struct {
	jwt.RegisteredClaims
	Type    string         `json:"typ"`
	Request map[string]any `json:"request"`
}

type noticeClaims struct {
	jwt.RegisteredClaims
	Type     string         `json:"typ"`
	Request  map[string]any `json:"request"`
	Response map[string]any `json:"response"`
}

// VerifyRequest verifies a pay request JWT signed with the issuer's secret.
func (r *Resolver) VerifyRequest(ctx context.Context, token string) (*PayRequest, *solitude.Product, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil, apperrors.New(apperrors.CodeInvalidRequest, "pay request is required")
	}

	var product *solitude.Product
	var claims payRequestClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(parsed *jwt.Token) (any, error) {
		issuer, err := parsed.Claims.GetIssuer()
		if err != nil || issuer == "" {
			return nil, apperrors.New(apperrors.CodeInvalidRequest, "pay request iss is required")
		}
		secret, found, err := r.Lookup(ctx, issuer)
		if err != nil {
			return nil, err
		}
		product = found
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, nil, mapJWTError(err)
	}
	if claims.Request == nil {
		return nil, nil, apperrors.New(apperrors.CodeInvalidRequest, "pay request is missing request")
	}
	return &PayRequest{
		Issuer:   claims.Issuer,
		Audience: []string(claims.Audience),
		Type:     claims.Type,
		Request:  claims.Request,
	}, product, nil
}

// NoticeClaims describes one signed postback or chargeback notice.
type NoticeClaims struct {
	Issuer   string
	Audience string
	Type     string
	Request  map[string]any
	Response map[string]any
	IssuedAt time.Time
	TTL      time.Duration
}

// SignNotice signs a notice JWT with the app's secret.
func SignNotice(secret string, claims NoticeClaims) (string, error) {
	if secret == "" {
		return "", errors.New("notice secret is required")
	}
	if claims.IssuedAt.IsZero() {
		claims.IssuedAt = time.Now()
	}
	if claims.TTL <= 0 {
		claims.TTL = time.Hour
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, noticeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    claims.Issuer,
			Audience:  jwt.ClaimStrings{claims.Audience},
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.IssuedAt.Add(claims.TTL)),
		},
		Type:     claims.Type,
		Request:  claims.Request,
		Response: claims.Response,
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign notice: %w", err)
	}
	return signed, nil
}

// mapJWTError keeps unknown issuers distinguishable and folds every other
// jwt failure into an invalid request error.
func mapJWTError(err error) error {
	var unknown *UnknownIssuerError
	if errors.As(err, &unknown) {
		return unknown
	}
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		return domainErr
	}
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperrors.Wrap(apperrors.CodeInvalidRequest, "pay request signature is invalid", err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.Wrap(apperrors.CodeInvalidRequest, "pay request is expired", err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return apperrors.Wrap(apperrors.CodeInvalidRequest, "pay request could not be verified", err)
	default:
		return apperrors.Wrap(apperrors.CodeInvalidRequest, "pay request is invalid", err)
	}
}
