package client

import (
	"math"
	"math/rand"
	"time"
)

// Retryer decides whether and when the viewer redials after a connection
// failure.
type Retryer interface {
	// NextDelay returns the delay before the next attempt. attempt is
	// 0-based. The second return value is false when the retry budget is
	// exhausted.
	NextDelay(attempt int, lastErr error) (time.Duration, bool)

	// Reset clears retry state after a successful connection.
	Reset()
}

// DefaultMaxRetries is the retry budget of the default viewer retryer. The
// budget must be finite so an unreachable server eventually surfaces a
// terminal connection-lost state instead of retrying silently forever.
const DefaultMaxRetries = 10

// ExponentialBackoffRetryer implements exponential backoff with jitter.
type ExponentialBackoffRetryer struct {
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay growth.
	MaxDelay time.Duration

	// Multiplier is the exponential growth factor.
	Multiplier float64

	// MaxRetries bounds the number of attempts; 0 retries forever.
	MaxRetries int

	// Jitter randomizes the delay to avoid thundering herds.
	Jitter bool

	// JitterFactor is the maximum jitter as a fraction of the delay.
	JitterFactor float64
}

// NewExponentialBackoffRetryer returns a retryer with sensible defaults:
// 1s initial delay doubling up to 30s, jittered, giving up after
// [DefaultMaxRetries] attempts. Retrying forever is opt-in: construct the
// struct directly with MaxRetries 0.
func NewExponentialBackoffRetryer() *ExponentialBackoffRetryer {
	return &ExponentialBackoffRetryer{
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxRetries:   DefaultMaxRetries,
		Jitter:       true,
		JitterFactor: 0.3,
	}
}

// NextDelay implements Retryer.
func (r *ExponentialBackoffRetryer) NextDelay(attempt int, lastErr error) (time.Duration, bool) {
	if r.MaxRetries > 0 && attempt >= r.MaxRetries {
		return 0, false
	}

	delay := float64(r.InitialDelay) * math.Pow(r.Multiplier, float64(attempt))
	if delay > float64(r.MaxDelay) {
		delay = float64(r.MaxDelay)
	}

	if r.Jitter && r.JitterFactor > 0 {
		// math/rand is fine here, jitter is not security-critical.
		jitter := delay * r.JitterFactor * (2*rand.Float64() - 1)
		delay += jitter
		if delay < 0 {
			delay = float64(r.InitialDelay)
		}
	}

	return time.Duration(delay), true
}

// Reset implements Retryer.
func (r *ExponentialBackoffRetryer) Reset() {}

// FixedDelayRetryer retries with a constant delay.
type FixedDelayRetryer struct {
	// Delay is the fixed delay between retries.
	Delay time.Duration

	// MaxRetries bounds the number of attempts; 0 retries forever.
	MaxRetries int
}

// NewFixedDelayRetryer creates a fixed delay retryer.
func NewFixedDelayRetryer(delay time.Duration, maxRetries int) *FixedDelayRetryer {
	return &FixedDelayRetryer{Delay: delay, MaxRetries: maxRetries}
}

// NextDelay implements Retryer.
func (r *FixedDelayRetryer) NextDelay(attempt int, lastErr error) (time.Duration, bool) {
	if r.MaxRetries > 0 && attempt >= r.MaxRetries {
		return 0, false
	}
	return r.Delay, true
}

// Reset implements Retryer.
func (r *FixedDelayRetryer) Reset() {}
