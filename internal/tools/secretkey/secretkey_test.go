package secretkey

import (
	"bytes"
	"flag"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("secretkey", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Bytes != 32 || cfg.SecretOnly {
		t.Fatalf("cfg = %+v, want 32 bytes with key", cfg)
	}
}

func TestParseConfigBadArgs(t *testing.T) {
	fs := flag.NewFlagSet("secretkey", flag.ContinueOnError)
	fs.SetOutput(&bytes.Buffer{})
	if _, err := ParseConfig(fs, []string{"-invalid"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestRunRejectsShortSecrets(t *testing.T) {
	if err := Run(Config{Bytes: 16}, &bytes.Buffer{}, nil); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestRunNilOutput(t *testing.T) {
	if err := Run(Config{Bytes: 32}, nil, nil); err == nil {
		t.Fatal("expected error for nil output")
	}
}

func TestRunWritesKeyAndSecret(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := Run(Config{Bytes: 32}, buf, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q, want key and secret", lines)
	}
	key, ok := strings.CutPrefix(lines[0], "WEBPAY_KEY=")
	if !ok {
		t.Fatalf("first line = %q", lines[0])
	}
	if _, err := uuid.Parse(key); err != nil {
		t.Fatalf("key %q is not a uuid: %v", key, err)
	}
	secret, ok := strings.CutPrefix(lines[1], "WEBPAY_SECRET=")
	if !ok || len(secret) != 64 {
		t.Fatalf("second line = %q, want 64 hex chars", lines[1])
	}
}

func TestRunSecretOnlyUsesReader(t *testing.T) {
	buf := &bytes.Buffer{}
	reader := bytes.NewReader(bytes.Repeat([]byte{0xab}, 32))
	if err := Run(Config{Bytes: 32, SecretOnly: true}, buf, reader); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "WEBPAY_SECRET=" + strings.Repeat("ab", 32)
	if got := strings.TrimSpace(buf.String()); got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, fmt.Errorf("read error") }

func TestRunReaderError(t *testing.T) {
	if err := Run(Config{Bytes: 32, SecretOnly: true}, &bytes.Buffer{}, errReader{}); err == nil {
		t.Fatal("expected error from failing reader")
	}
}
