// Package secretkey generates marketplace issuer credentials for webpay.
package secretkey

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// minSecretBytes keeps generated secrets at least as long as an HS256 key.
const minSecretBytes = 32

// Config holds configuration for credential generation.
type Config struct {
	Bytes int
	// SecretOnly skips the WEBPAY_KEY line when rotating an existing secret.
	SecretOnly bool
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Bytes: minSecretBytes}
	fs.IntVar(&cfg.Bytes, "bytes", cfg.Bytes, "number of random secret bytes")
	fs.BoolVar(&cfg.SecretOnly, "secret-only", cfg.SecretOnly, "only print WEBPAY_SECRET")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run generates credentials and writes them to out as env assignments.
func Run(cfg Config, out io.Writer, reader io.Reader) error {
	if cfg.Bytes < minSecretBytes {
		return fmt.Errorf("bytes must be at least %d", minSecretBytes)
	}
	if out == nil {
		return errors.New("output is required")
	}
	if reader == nil {
		reader = rand.Reader
	}

	if !cfg.SecretOnly {
		key, err := uuid.NewRandomFromReader(reader)
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		if _, err := fmt.Fprintf(out, "WEBPAY_KEY=%s\n", key); err != nil {
			return err
		}
	}

	secret := make([]byte, cfg.Bytes)
	if _, err := io.ReadFull(reader, secret); err != nil {
		return fmt.Errorf("generate secret: %w", err)
	}
	_, err := fmt.Fprintf(out, "WEBPAY_SECRET=%s\n", hex.EncodeToString(secret))
	return err
}
