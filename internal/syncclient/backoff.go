package syncclient

import (
	"time"

	"github.com/staylink/verification-service/internal/config"
)

// Backoff computes reconnect delays: retry n waits min(Cap, Base*2^(n-1)).
type Backoff struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

// DefaultBackoff is 1s doubling up to 5s, five attempts.
var DefaultBackoff = Backoff{Base: time.Second, Cap: 5 * time.Second, MaxAttempts: 5}

// BackoffFromConfig reads the client section, falling back to DefaultBackoff
// for unset values.
func BackoffFromConfig(cfg config.ClientConfig) Backoff {
	b := DefaultBackoff
	if cfg.BackoffBaseMS > 0 {
		b.Base = time.Duration(cfg.BackoffBaseMS) * time.Millisecond
	}
	if cfg.BackoffCapMS > 0 {
		b.Cap = time.Duration(cfg.BackoffCapMS) * time.Millisecond
	}
	if cfg.MaxAttempts > 0 {
		b.MaxAttempts = cfg.MaxAttempts
	}
	return b
}

// Delay returns the wait before retry n (1-based).
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := b.Base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= b.Cap {
			return b.Cap
		}
	}
	if d > b.Cap {
		return b.Cap
	}
	return d
}
