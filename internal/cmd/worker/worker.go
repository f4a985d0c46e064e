// Package worker parses worker command flags and launches the notice worker.
package worker

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/webpay/internal/platform/cmd"
	workerserver "github.com/louisbranch/webpay/internal/services/worker/app"
)

// Config holds worker command configuration.
type Config struct {
	Port             int           `env:"WEBPAY_WORKER_PORT" envDefault:"8089"`
	DBPath           string        `env:"WEBPAY_DB_PATH" envDefault:"data/webpay.db"`
	MarketplaceURL   string        `env:"WEBPAY_MARKETPLACE_URL" envDefault:"http://localhost:8000"`
	Consumer         string        `env:"WEBPAY_WORKER_CONSUMER" envDefault:""`
	PollInterval     time.Duration `env:"WEBPAY_WORKER_POLL_INTERVAL" envDefault:"2s"`
	LeaseTTL         time.Duration `env:"WEBPAY_WORKER_LEASE_TTL" envDefault:"2m"`
	BatchSize        int           `env:"WEBPAY_WORKER_BATCH_SIZE" envDefault:"20"`
	PostbackDelay    time.Duration `env:"WEBPAY_POSTBACK_DELAY" envDefault:"300s"`
	PostbackAttempts int           `env:"WEBPAY_POSTBACK_ATTEMPTS" envDefault:"5"`
	MetricsInterval  time.Duration `env:"WEBPAY_WORKER_METRICS_INTERVAL" envDefault:"1m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The worker health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The notice queue SQLite database path")
	fs.StringVar(&cfg.MarketplaceURL, "marketplace-url", cfg.MarketplaceURL, "Marketplace API base URL for failure reports")
	fs.StringVar(&cfg.Consumer, "consumer", cfg.Consumer, "Notice queue consumer name (default: unique per process)")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Notice queue poll interval")
	fs.DurationVar(&cfg.LeaseTTL, "lease-ttl", cfg.LeaseTTL, "Notice task lease duration (at least 1m)")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Notice tasks claimed per poll")
	fs.DurationVar(&cfg.PostbackDelay, "postback-delay", cfg.PostbackDelay, "Delay between notice retries")
	fs.IntVar(&cfg.PostbackAttempts, "postback-attempts", cfg.PostbackAttempts, "Notice retries before reporting failure")
	fs.DurationVar(&cfg.MetricsInterval, "metrics-interval", cfg.MetricsInterval, "Interval between metrics log reports")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the worker runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWorker, func(ctx context.Context) error {
		return workerserver.Run(ctx, workerserver.RuntimeConfig{
			Port:             cfg.Port,
			DBPath:           cfg.DBPath,
			MarketplaceURL:   cfg.MarketplaceURL,
			Consumer:         cfg.Consumer,
			PollInterval:     cfg.PollInterval,
			LeaseTTL:         cfg.LeaseTTL,
			BatchSize:        cfg.BatchSize,
			PostbackDelay:    cfg.PostbackDelay,
			PostbackAttempts: cfg.PostbackAttempts,
			MetricsInterval:  cfg.MetricsInterval,
		})
	})
}
