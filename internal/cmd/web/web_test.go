package web

import (
	"flag"
	"reflect"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("WEBPAY_KEY", "marketplace-key")
	t.Setenv("WEBPAY_SECRET", "marketplace-secret")
}

func TestParseConfig_ParsesDefaultsAndFlags(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WEBPAY_ALLOWED_CALLBACK_SCHEMES", "https,http")
	t.Setenv("WEBPAY_JS_SETTINGS", `{"foo":"bar"}`)
	fs := flag.NewFlagSet("web", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, []string{"-http-addr", "0.0.0.0:9000", "-max-conns", "64"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.MaxConns != 64 {
		t.Fatalf("max conns = %d, want 64", cfg.MaxConns)
	}
	if cfg.HTTPAddr != "0.0.0.0:9000" {
		t.Fatalf("http addr = %q, want %q", cfg.HTTPAddr, "0.0.0.0:9000")
	}
	if cfg.DBPath != "data/webpay.db" {
		t.Fatalf("db path = %q, want %q", cfg.DBPath, "data/webpay.db")
	}
	if !reflect.DeepEqual(cfg.AllowedSchemes, []string{"https", "http"}) {
		t.Fatalf("allowed schemes = %v", cfg.AllowedSchemes)
	}
	if cfg.JSSettings != `{"foo":"bar"}` {
		t.Fatalf("js settings = %q", cfg.JSSettings)
	}
}

func TestParseConfig_RequiresMarketplaceCredentials(t *testing.T) {
	t.Setenv("WEBPAY_KEY", "")
	t.Setenv("WEBPAY_SECRET", "")
	fs := flag.NewFlagSet("web", flag.ContinueOnError)
	if _, err := ParseConfig(fs, nil); err == nil {
		t.Fatal("expected error for missing key and secret")
	}
}

func TestParseConfig_RejectsInvalidJSSettings(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WEBPAY_JS_SETTINGS", `["not","an","object"]`)
	fs := flag.NewFlagSet("web", flag.ContinueOnError)
	if _, err := ParseConfig(fs, nil); err == nil {
		t.Fatal("expected error for non-object js settings")
	}
}
