package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ParseJSONObject decodes a raw JSON object setting such as WEBPAY_JS_SETTINGS.
// An empty value decodes to an empty, non-nil map.
func ParseJSONObject(name, raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	values := map[string]any{}
	if raw == "" {
		return values, nil
	}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return values, nil
}
