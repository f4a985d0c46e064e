package notice

import (
	"context"
	"fmt"
	"log"

	"github.com/louisbranch/webpay/internal/platform/metrics"
	"github.com/louisbranch/webpay/internal/services/pay/integration/marketplace"
)

// FailureAPI is the marketplace endpoint that records failed notices.
type FailureAPI interface {
	ReportFailure(ctx context.Context, transID string, failure marketplace.Failure) error
}

// MarketplaceFailures reports exhausted notices to the marketplace.
type MarketplaceFailures struct {
	api      FailureAPI
	metrics  *metrics.Client
	attempts int
}

// NewMarketplaceFailures creates a FailureReporter that tells the
// marketplace how many attempts were made.
func NewMarketplaceFailures(api FailureAPI, metricsClient *metrics.Client, attempts int) *MarketplaceFailures {
	return &MarketplaceFailures{api: api, metrics: metricsClient, attempts: attempts}
}

// NotifyFailure counts the failure and patches the marketplace failure record.
func (m *MarketplaceFailures) NotifyFailure(ctx context.Context, url, transID string) error {
	m.metrics.Incr(MetricFailure)
	if m.api == nil {
		return fmt.Errorf("failure api is not configured")
	}
	err := m.api.ReportFailure(ctx, transID, marketplace.Failure{
		Attempts: m.attempts,
		URL:      url,
	})
	if err != nil {
		return fmt.Errorf("notify failure: %w", err)
	}
	log.Printf("retries failed to %s: %s", url, transID)
	return nil
}

var _ FailureReporter = (*MarketplaceFailures)(nil)
