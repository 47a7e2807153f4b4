// Package retry provides a bounded backoff policy for transient failures.
package retry

import (
	"context"
	"time"

	"git.home.luguber.info/inful/pmeyes/internal/config"
)

// Policy encapsulates retry/backoff settings. The zero Policy makes a single
// attempt.
type Policy struct {
	Mode       config.BackoffMode
	Initial    time.Duration // base delay
	Max        time.Duration // cap for growth
	MaxRetries int           // retries after the first failure
}

// DefaultPolicy is linear, 1s initial, 30s cap, 2 retries.
func DefaultPolicy() Policy {
	return Policy{Mode: config.BackoffLinear, Initial: time.Second, Max: 30 * time.Second, MaxRetries: 2}
}

// FromConfig builds a policy; zero or unknown durations and modes fall back to
// the defaults, and Initial is clamped to Max.
func FromConfig(c config.RetryConfig) Policy {
	p := DefaultPolicy()
	if c.MaxRetries >= 0 {
		p.MaxRetries = c.MaxRetries
	}
	if c.Initial > 0 {
		p.Initial = c.Initial
	}
	if c.Max > 0 {
		p.Max = c.Max
	}
	switch c.Backoff {
	case config.BackoffFixed, config.BackoffLinear, config.BackoffExponential:
		p.Mode = c.Backoff
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// Delay returns the wait before retry n (first retry is 1).
func (p Policy) Delay(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	var d time.Duration
	switch p.Mode {
	case config.BackoffFixed:
		return p.Initial
	case config.BackoffExponential:
		if n > 32 {
			n = 32
		}
		d = p.Initial * (1 << (n - 1))
	default:
		d = time.Duration(n) * p.Initial
	}
	if p.Max > 0 && (d > p.Max || d < 0) {
		return p.Max
	}
	return d
}

// Do calls fn until it succeeds, the retries are used up or ctx is done.
// It returns the last error from fn, or ctx.Err() if ctx ended a wait.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= p.MaxRetries {
			return err
		}
		t := time.NewTimer(p.Delay(attempt + 1))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
