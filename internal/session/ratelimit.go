package session

import (
	"golang.org/x/time/rate"
)

// RateLimitConfig describes a token-bucket shape: capacity = burst,
// refill rate = per_minute / 60 tokens/sec, per §4.6.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// DefaultRateLimit is applied when neither a credential override nor a
// per-method override is configured.
var DefaultRateLimit = RateLimitConfig{PerMinute: 100, Burst: 20}

func (c RateLimitConfig) limiter() *rate.Limiter {
	burst := c.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(c.PerMinute)/60.0), burst)
}

// RateLimiter wraps golang.org/x/time/rate with the per-method override
// table §4.6 describes: a session-level default plus optional per-method
// limiters, each independently lazy-refilled.
type RateLimiter struct {
	global    *rate.Limiter
	byMethod  map[string]*rate.Limiter
	overrides map[string]RateLimitConfig
}

// NewRateLimiter builds a limiter for a session using cfg as the global
// bucket and methodOverrides as per-method buckets (checked in addition
// to, not instead of, the global bucket).
func NewRateLimiter(cfg RateLimitConfig, methodOverrides map[string]RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		global:    cfg.limiter(),
		byMethod:  make(map[string]*rate.Limiter),
		overrides: methodOverrides,
	}
	return rl
}

// Allow consumes one token from the global bucket and, if method has a
// configured override, from that method's bucket too. Both must have a
// token available for the request to proceed. When neither bucket is
// configured to allow immediately, the request is rejected with no side
// effects other than the bucket's own accounting — there is no blocking
// wait, per §5's "implementations may choose immediate-refusal
// semantics".
func (rl *RateLimiter) Allow(method string) bool {
	if !rl.global.Allow() {
		return false
	}
	if cfg, ok := rl.overrides[method]; ok {
		lim, exists := rl.byMethod[method]
		if !exists {
			lim = cfg.limiter()
			rl.byMethod[method] = lim
		}
		return lim.Allow()
	}
	return true
}

// Reset restores the global bucket to full capacity, used when a session
// reconnects with a clean slate.
func (rl *RateLimiter) Reset(cfg RateLimitConfig) {
	rl.global = cfg.limiter()
}
