package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pmeyes/internal/config"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, config.BackoffLinear, p.Mode)
	assert.Equal(t, time.Second, p.Initial)
	assert.Equal(t, 30*time.Second, p.Max)
	assert.Equal(t, 2, p.MaxRetries)
}

func TestFromConfig_OverridesAndClamps(t *testing.T) {
	p := FromConfig(config.RetryConfig{Backoff: config.BackoffFixed, Initial: 5 * time.Second, Max: 2 * time.Second, MaxRetries: 5})
	assert.Equal(t, 2*time.Second, p.Initial)
	assert.Equal(t, 2*time.Second, p.Max)
	assert.Equal(t, config.BackoffFixed, p.Mode)
	assert.Equal(t, 5, p.MaxRetries)

	p = FromConfig(config.RetryConfig{Backoff: "bogus", MaxRetries: -1})
	assert.Equal(t, DefaultPolicy(), p)
}

func TestDelay(t *testing.T) {
	ms := time.Millisecond
	cases := []struct {
		name string
		p    Policy
		want []time.Duration // retries 1..n
	}{
		{"fixed", Policy{Mode: config.BackoffFixed, Initial: 100 * ms, Max: 500 * ms}, []time.Duration{100 * ms, 100 * ms, 100 * ms}},
		{"linear", Policy{Mode: config.BackoffLinear, Initial: 100 * ms, Max: 250 * ms}, []time.Duration{100 * ms, 200 * ms, 250 * ms, 250 * ms}},
		{"exponential", Policy{Mode: config.BackoffExponential, Initial: 50 * ms, Max: 160 * ms}, []time.Duration{50 * ms, 100 * ms, 160 * ms, 160 * ms}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for i, want := range tc.want {
				assert.Equal(t, want, tc.p.Delay(i+1), "retry %d", i+1)
			}
			assert.Zero(t, tc.p.Delay(0))
			assert.Zero(t, tc.p.Delay(-3))
		})
	}

	huge := Policy{Mode: config.BackoffExponential, Initial: time.Second, Max: time.Minute}
	assert.Equal(t, time.Minute, huge.Delay(200))
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	p := Policy{Mode: config.BackoffFixed, Initial: time.Millisecond, Max: time.Millisecond, MaxRetries: 3}
	calls := 0
	err := p.Do(t.Context(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ReturnsLastError(t *testing.T) {
	p := Policy{Mode: config.BackoffFixed, Initial: time.Millisecond, Max: time.Millisecond, MaxRetries: 2}
	calls := 0
	err := p.Do(t.Context(), func() error {
		calls++
		return errors.New("down")
	})
	require.EqualError(t, err, "down")
	assert.Equal(t, 3, calls)

	calls = 0
	_ = Policy{}.Do(t.Context(), func() error { calls++; return errors.New("x") })
	assert.Equal(t, 1, calls)
}

func TestDo_StopsOnContextCancel(t *testing.T) {
	p := Policy{Mode: config.BackoffFixed, Initial: time.Hour, Max: time.Hour, MaxRetries: 5}
	ctx, cancel := context.WithCancel(t.Context())
	calls := 0
	err := p.Do(ctx, func() error {
		calls++
		cancel()
		return errors.New("down")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
