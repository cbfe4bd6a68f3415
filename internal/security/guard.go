// Package security gates the regular-message path: sender allowlist and
// per-sender rate limiting. Flow exchanges are not gated here — they are
// authenticated by the hybrid encryption itself.
package security

import (
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/danacepat/wa-flows/internal/config"
)

// Verdict is the outcome of a guard check.
type Verdict int

const (
	Allow Verdict = iota
	Deny
	RateLimited
)

// Guard enforces the allowlist and a token-bucket rate limit per sender.
type Guard struct {
	mode        string
	allowed     map[string]struct{}
	denyMessage string
	limit       rate.Limit
	burst       int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New builds a Guard from the security config.
func New(cfg config.SecurityConfig) *Guard {
	allowed := make(map[string]struct{}, len(cfg.Allowlist))
	for _, phone := range cfg.Allowlist {
		allowed[normalize(phone)] = struct{}{}
	}

	return &Guard{
		mode:        cfg.Mode,
		allowed:     allowed,
		denyMessage: cfg.DenyMessage,
		limit:       rate.Limit(float64(cfg.RatePerMinute) / 60.0),
		burst:       cfg.Burst,
		limiters:    make(map[string]*rate.Limiter),
	}
}

// Check returns Allow, Deny, or RateLimited for the given sender.
func (g *Guard) Check(from string) Verdict {
	n := normalize(from)

	if g.mode == "allowlist" {
		if _, ok := g.allowed[n]; !ok {
			return Deny
		}
	}

	if !g.limiter(n).Allow() {
		return RateLimited
	}
	return Allow
}

// DenyMessage is the configured reply for denied senders.
func (g *Guard) DenyMessage() string {
	return g.denyMessage
}

func (g *Guard) limiter(sender string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.limiters[sender]
	if !ok {
		l = rate.NewLimiter(g.limit, g.burst)
		g.limiters[sender] = l
	}
	return l
}

// Reset drops all per-sender limiter state. Call periodically to bound
// memory usage; the worst case is one refilled bucket per sender.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limiters = make(map[string]*rate.Limiter)
}

// normalize strips all characters except digits and a leading +.
func normalize(phone string) string {
	if phone == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(phone))

	for i, r := range phone {
		if r == '+' && i == 0 {
			b.WriteRune(r)
		} else if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	return b.String()
}
