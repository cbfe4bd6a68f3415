package security

import (
	"testing"

	"github.com/danacepat/wa-flows/internal/config"
)

func testCfg() config.SecurityConfig {
	return config.SecurityConfig{
		Mode:          "allowlist",
		Allowlist:     []string{"+628111111111", "+62 812-2222-2222"},
		DenyMessage:   "Maaf, nomor Anda belum terdaftar.",
		RatePerMinute: 60,
		Burst:         3,
	}
}

func TestAllowlistAllow(t *testing.T) {
	g := New(testCfg())
	if v := g.Check("+628111111111"); v != Allow {
		t.Fatalf("expected Allow, got %d", v)
	}
}

func TestAllowlistNormalizesFormatting(t *testing.T) {
	g := New(testCfg())
	if v := g.Check("+6281222222222"); v != Allow {
		t.Fatalf("expected Allow for normalized match, got %d", v)
	}
}

func TestAllowlistDeny(t *testing.T) {
	g := New(testCfg())
	if v := g.Check("+629999999999"); v != Deny {
		t.Fatalf("expected Deny, got %d", v)
	}
}

func TestOpenModeAllowsAnyone(t *testing.T) {
	cfg := testCfg()
	cfg.Mode = "open"
	g := New(cfg)
	if v := g.Check("+629999999999"); v != Allow {
		t.Fatalf("expected Allow in open mode, got %d", v)
	}
}

func TestRateLimitBurst(t *testing.T) {
	cfg := testCfg()
	cfg.RatePerMinute = 1 // refill far slower than the test runs
	cfg.Burst = 2
	g := New(cfg)

	if v := g.Check("+628111111111"); v != Allow {
		t.Fatalf("first check: expected Allow, got %d", v)
	}
	if v := g.Check("+628111111111"); v != Allow {
		t.Fatalf("second check: expected Allow, got %d", v)
	}
	if v := g.Check("+628111111111"); v != RateLimited {
		t.Fatalf("third check: expected RateLimited, got %d", v)
	}
}

func TestRateLimitPerSender(t *testing.T) {
	cfg := testCfg()
	cfg.Mode = "open"
	cfg.RatePerMinute = 1
	cfg.Burst = 1
	g := New(cfg)

	if v := g.Check("+628111111111"); v != Allow {
		t.Fatalf("sender A: expected Allow, got %d", v)
	}
	if v := g.Check("+628111111111"); v != RateLimited {
		t.Fatalf("sender A again: expected RateLimited, got %d", v)
	}
	// A different sender has its own bucket.
	if v := g.Check("+629999999999"); v != Allow {
		t.Fatalf("sender B: expected Allow, got %d", v)
	}
}

func TestResetDropsBuckets(t *testing.T) {
	cfg := testCfg()
	cfg.RatePerMinute = 1
	cfg.Burst = 1
	g := New(cfg)

	g.Check("+628111111111")
	if v := g.Check("+628111111111"); v != RateLimited {
		t.Fatalf("expected RateLimited, got %d", v)
	}

	g.Reset()
	if v := g.Check("+628111111111"); v != Allow {
		t.Fatalf("expected Allow after reset, got %d", v)
	}
}

func TestDenyMessage(t *testing.T) {
	g := New(testCfg())
	if g.DenyMessage() == "" {
		t.Fatal("expected configured deny message")
	}
}
