package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsAndEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("WA_FLOWS_CONFIG", "")
	t.Setenv("WA_FLOWS_ADDR", ":9999")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != ":9999" {
		t.Errorf("addr = %q, want :9999 (env override)", cfg.Server.Addr)
	}
	if cfg.Queue.Stream != "WA_FLOWS" {
		t.Errorf("stream = %q, want default WA_FLOWS", cfg.Queue.Stream)
	}
	if cfg.Security.Mode != "open" {
		t.Errorf("security mode = %q, want default open", cfg.Security.Mode)
	}
}

func TestLoadTOMLFileThenEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[server]
addr = ":1111"
verify_token = "from-file"

[whatsapp]
api_key = "file-key"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("WA_FLOWS_CONFIG", path)
	t.Setenv("WA_FLOWS_ADDR", ":2222")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != ":2222" {
		t.Errorf("addr = %q, env must win over file", cfg.Server.Addr)
	}
	if cfg.Server.VerifyToken != "from-file" {
		t.Errorf("verify_token = %q, want from-file", cfg.Server.VerifyToken)
	}
	if cfg.WhatsApp.APIKey != "file-key" {
		t.Errorf("api_key = %q, want file-key", cfg.WhatsApp.APIKey)
	}
}

func TestValidateRequiresVerifyTokenAndKey(t *testing.T) {
	cfg := defaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing verify token")
	}

	cfg.Server.VerifyToken = "tok"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing private key path")
	}

	cfg.Flows.PrivateKeyPath = "/etc/wa-flows/key.pem"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateNormalizesModes(t *testing.T) {
	cfg := defaults()
	cfg.Server.VerifyToken = "tok"
	cfg.Flows.PrivateKeyPath = "/k.pem"
	cfg.Server.Mode = "Bogus"
	cfg.Security.Mode = "whatever"
	cfg.Security.RatePerMinute = 0

	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Mode != "direct" {
		t.Errorf("server mode = %q, want direct", cfg.Server.Mode)
	}
	if cfg.Security.Mode != "open" {
		t.Errorf("security mode = %q, want open", cfg.Security.Mode)
	}
	if cfg.Security.RatePerMinute != 30 {
		t.Errorf("rate = %d, want 30", cfg.Security.RatePerMinute)
	}
}
