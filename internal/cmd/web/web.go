// Package web parses web command flags and launches the webpay web server.
package web

import (
	"context"
	"flag"
	"fmt"
	"strings"

	entrypoint "github.com/louisbranch/webpay/internal/platform/cmd"
	"github.com/louisbranch/webpay/internal/platform/config"
	webserver "github.com/louisbranch/webpay/internal/services/web"
)

// Config holds the web command configuration.
type Config struct {
	HTTPAddr       string   `env:"WEBPAY_WEB_HTTP_ADDR" envDefault:"localhost:8086"`
	MaxConns       int      `env:"WEBPAY_WEB_MAX_CONNS" envDefault:"256"`
	Key            string   `env:"WEBPAY_KEY"`
	Secret         string   `env:"WEBPAY_SECRET"`
	NotifyIssuer   string   `env:"WEBPAY_NOTIFY_ISSUER" envDefault:"marketplace.firefox.com"`
	SolitudeURL    string   `env:"WEBPAY_SOLITUDE_URL" envDefault:"http://localhost:2602"`
	AllowedSchemes []string `env:"WEBPAY_ALLOWED_CALLBACK_SCHEMES" envDefault:"https" envSeparator:","`
	JSSettings     string   `env:"WEBPAY_JS_SETTINGS" envDefault:"{}"`
	DBPath         string   `env:"WEBPAY_DB_PATH" envDefault:"data/webpay.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.IntVar(&cfg.MaxConns, "max-conns", cfg.MaxConns, "Maximum concurrent HTTP connections; 0 disables the limit")
	fs.StringVar(&cfg.SolitudeURL, "solitude-url", cfg.SolitudeURL, "Solitude API base URL")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "Notice queue SQLite path; empty disables scheduling")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(cfg.Key) == "" || strings.TrimSpace(cfg.Secret) == "" {
		return Config{}, fmt.Errorf("WEBPAY_KEY and WEBPAY_SECRET are required")
	}
	if _, err := config.ParseJSONObject("WEBPAY_JS_SETTINGS", cfg.JSSettings); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the web server.
func Run(ctx context.Context, cfg Config) error {
	jsSettings, err := config.ParseJSONObject("WEBPAY_JS_SETTINGS", cfg.JSSettings)
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWeb, func(ctx context.Context) error {
		return webserver.Run(ctx, webserver.RuntimeConfig{
			HTTPAddr:       cfg.HTTPAddr,
			MaxConns:       cfg.MaxConns,
			Key:            cfg.Key,
			Secret:         cfg.Secret,
			NotifyIssuer:   cfg.NotifyIssuer,
			SolitudeURL:    cfg.SolitudeURL,
			AllowedSchemes: cfg.AllowedSchemes,
			JSSettings:     jsSettings,
			DBPath:         cfg.DBPath,
		})
	})
}
