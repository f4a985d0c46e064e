package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/webpay/internal/platform/metrics"
	"github.com/louisbranch/webpay/internal/services/pay/integration/marketplace"
	"github.com/louisbranch/webpay/internal/services/pay/notice"
	workersqlite "github.com/louisbranch/webpay/internal/services/worker/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC health service name reported by the worker.
const HealthService = "worker.runtime"

// RuntimeConfig controls worker startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	Port             int
	DBPath           string
	MarketplaceURL   string
	Consumer         string
	PollInterval     time.Duration
	LeaseTTL         time.Duration
	BatchSize        int
	PostbackDelay    time.Duration
	PostbackAttempts int
	MetricsInterval  time.Duration
}

const (
	defaultWorkerPort      = 8089
	defaultWorkerDB        = "data/webpay.db"
	defaultMetricsInterval = time.Minute
)

// Run starts worker runtime dependencies and the background processing loop.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.MarketplaceURL) == "" {
		return fmt.Errorf("marketplace url is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultWorkerPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultWorkerDB
	}
	if cfg.MetricsInterval <= 0 {
		cfg.MetricsInterval = defaultMetricsInterval
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create worker storage dir: %w", err)
		}
	}

	store, err := workersqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open worker sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close worker sqlite store: %v", closeErr)
		}
	}()

	metricsClient := metrics.New()
	failures := notice.NewMarketplaceFailures(
		marketplace.NewClient(cfg.MarketplaceURL, nil),
		metricsClient,
		cfg.PostbackAttempts,
	)
	sender := notice.NewSender(notice.Config{
		PostbackDelay:    cfg.PostbackDelay,
		PostbackAttempts: cfg.PostbackAttempts,
	}, nil, metricsClient, failures)

	workerLoop := New(store, store, sender, Config{
		Consumer:     cfg.Consumer,
		PollInterval: cfg.PollInterval,
		LeaseTTL:     cfg.LeaseTTL,
		BatchSize:    cfg.BatchSize,
	}, nil)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on worker port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	reportCtx, stopReport := context.WithCancel(ctx)
	reported := make(chan struct{})
	go func() {
		defer close(reported)
		metricsClient.Report(reportCtx, cfg.MetricsInterval, log.Printf)
	}()
	defer func() {
		stopReport()
		<-reported
	}()

	log.Printf("worker %s health server listening at %v", workerLoop.Consumer(), listener.Addr())
	return workerLoop.Run(ctx)
}
