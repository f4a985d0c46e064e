package web

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/louisbranch/webpay/internal/services/pay/integration/solitude"
	"github.com/louisbranch/webpay/internal/services/pay/issuer"
	"github.com/louisbranch/webpay/internal/services/pay/postback"
	workerapp "github.com/louisbranch/webpay/internal/services/worker/app"
	workersqlite "github.com/louisbranch/webpay/internal/services/worker/storage/sqlite"
)

// RuntimeConfig wires the web server to its dependencies.
type RuntimeConfig struct {
	HTTPAddr       string
	MaxConns       int
	Key            string
	Secret         string
	NotifyIssuer   string
	SolitudeURL    string
	AllowedSchemes []string
	JSSettings     map[string]any
	// DBPath is the notice queue shared with the worker. Notice scheduling
	// is disabled when empty.
	DBPath string
}

// Run builds the web server and serves until ctx ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if strings.TrimSpace(cfg.SolitudeURL) == "" {
		return fmt.Errorf("solitude url is required")
	}
	resolver := issuer.NewResolver(issuer.Config{Key: cfg.Key, Secret: cfg.Secret}, solitude.NewClient(cfg.SolitudeURL, nil))

	serverConfig := Config{
		HTTPAddr:      cfg.HTTPAddr,
		MaxConns:      cfg.MaxConns,
		JSSettings:    cfg.JSSettings,
		Verifier:      resolver,
		Authenticator: resolver,
	}

	if dbPath := strings.TrimSpace(cfg.DBPath); dbPath != "" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create notice queue dir: %w", err)
			}
		}
		store, err := workersqlite.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open notice queue: %w", err)
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				log.Printf("close notice queue: %v", closeErr)
			}
		}()
		serverConfig.Scheduler = postback.NewService(postback.Config{
			NotifyIssuer:   cfg.NotifyIssuer,
			AllowedSchemes: cfg.AllowedSchemes,
		}, resolver, workerapp.NewQueue(store, nil), nil)
	}

	server, err := NewServer(serverConfig)
	if err != nil {
		return fmt.Errorf("init web server: %w", err)
	}
	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve web: %w", err)
	}
	return nil
}
