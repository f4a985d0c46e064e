package notice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/louisbranch/webpay/internal/platform/metrics"
	"github.com/louisbranch/webpay/internal/platform/timeouts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Metric keys recorded by Sender.
const (
	MetricSend    = "purchase.send_pay_notice"
	MetricRetry   = "purchase.send_pay_notice.retry"
	MetricFailure = "purchase.send_pay_notice.failure"
)

// maxResponseBytes bounds how much of an app response is read; a valid
// response is only a transaction ID.
const maxResponseBytes = 4096

var tracer = otel.Tracer("github.com/louisbranch/webpay/internal/services/pay/notice")

// FailureReporter records a notice that exhausted its retries.
type FailureReporter interface {
	NotifyFailure(ctx context.Context, url, transID string) error
}

// Config controls retry scheduling for notices.
type Config struct {
	// PostbackDelay is the wait before a failed notice is retried.
	PostbackDelay time.Duration
	// PostbackAttempts is the retry budget handed to the task queue.
	PostbackAttempts int
}

// Sender posts notices to apps.
type Sender struct {
	cfg        Config
	httpClient *http.Client
	metrics    *metrics.Client
	failures   FailureReporter
}

// NewSender creates a notice sender. A nil httpClient uses the default
// notice timeout.
func NewSender(cfg Config, httpClient *http.Client, metricsClient *metrics.Client, failures FailureReporter) *Sender {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeouts.NoticePost}
	}
	if cfg.PostbackAttempts < 0 {
		cfg.PostbackAttempts = 0
	}
	return &Sender{
		cfg:        cfg,
		httpClient: httpClient,
		metrics:    metricsClient,
		failures:   failures,
	}
}

// Send delivers n once. On failure it asks task for a retry; when the retry
// was scheduled the returned error is ErrRetryScheduled and the Result is
// empty. Otherwise the failure is reported (unless simulated) and Send
// returns an unsuccessful Result with a nil error.
func (s *Sender) Send(ctx context.Context, n Notice, task Task) (Result, error) {
	if task == nil {
		return Result{}, fmt.Errorf("notice task is required")
	}
	log.Printf("about to notify %s of notice type %s", n.URL, n.Type)

	ctx, span := tracer.Start(ctx, "notice.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("webpay.trans_id", n.TransID),
		attribute.String("webpay.notice_type", string(n.Type)),
	)

	sendErr := s.post(ctx, n)
	if sendErr == nil {
		log.Printf("URL %s responded OK for transaction %s notification", n.URL, n.TransID)
		return Result{Success: true}, nil
	}

	span.RecordError(sendErr)
	log.Printf("notice for transaction %s raised exception in URL %s: %s", n.TransID, n.URL, FormatError(sendErr))

	retryErr := task.Retry(ctx, s.cfg.PostbackDelay, s.cfg.PostbackAttempts, sendErr)
	if errors.Is(retryErr, ErrRetryScheduled) {
		s.metrics.Incr(MetricRetry)
		span.SetStatus(codes.Error, "retry scheduled")
		return Result{}, retryErr
	}
	if errors.Is(retryErr, ErrTaskLost) {
		span.SetStatus(codes.Error, "task lost")
		return Result{}, retryErr
	}
	if retryErr == nil {
		// A queue that neither scheduled nor refused still ends the delivery.
		retryErr = sendErr
	}

	span.SetStatus(codes.Error, "retries exhausted")
	if n.Simulated.IsSimulated() {
		log.Printf("not notifying anyone about simulated failure for %q", n.TransID)
	} else if s.failures != nil {
		if err := s.failures.NotifyFailure(ctx, n.URL, n.TransID); err != nil {
			log.Printf("report notice failure for %s: %v", n.TransID, err)
		}
	}
	return Result{Success: false, LastError: FormatError(retryErr)}, nil
}

func (s *Sender) post(ctx context.Context, n Notice) error {
	form := url.Values{}
	form.Set("notice", n.Signed)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return &RequestError{URL: n.URL, Cause: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	stop := s.metrics.Timer(MetricSend)
	resp, err := s.httpClient.Do(req)
	stop()
	if err != nil {
		return &RequestError{URL: n.URL, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return &HTTPError{URL: n.URL, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &RequestError{URL: n.URL, Cause: err}
	}
	if string(body) != n.TransID {
		log.Printf("URL %s did not respond with transaction %s for notification", n.URL, n.TransID)
		return &ResponseMismatchError{URL: n.URL, TransID: n.TransID}
	}
	return nil
}
