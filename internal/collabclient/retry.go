package collabclient

import (
	"math"
	"math/rand/v2"
	"time"
)

// Retryer decides how long to wait before the next dial after a failure.
type Retryer interface {
	// NextDelay returns the wait before retry number attempt (0-based) and
	// whether to retry at all.
	NextDelay(attempt int, lastErr error) (time.Duration, bool)
	// Reset is called after a successful dial.
	Reset()
}

// BackoffRetryer doubles the delay after every failure up to MaxDelay. Jitter
// spreads reconnects out so a server restart is not followed by every client
// dialing in the same millisecond.
type BackoffRetryer struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxRetries   int     // 0 retries forever
	JitterFactor float64 // 0 disables jitter; 0.3 means ±30%
}

func NewBackoffRetryer() *BackoffRetryer {
	return &BackoffRetryer{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		JitterFactor: 0.3,
	}
}

func (r *BackoffRetryer) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if r.MaxRetries > 0 && attempt >= r.MaxRetries {
		return 0, false
	}

	delay := float64(r.InitialDelay) * math.Pow(r.Multiplier, float64(attempt))
	delay = min(delay, float64(r.MaxDelay))

	if r.JitterFactor > 0 {
		delay += delay * r.JitterFactor * (2*rand.Float64() - 1) //nolint:gosec // jitter
		if delay < 0 {
			delay = float64(r.InitialDelay)
		}
	}
	return time.Duration(delay), true
}

func (r *BackoffRetryer) Reset() {}

// FixedRetryer waits the same delay between attempts.
type FixedRetryer struct {
	Delay      time.Duration
	MaxRetries int // 0 retries forever
}

func NewFixedRetryer(delay time.Duration, maxRetries int) *FixedRetryer {
	return &FixedRetryer{Delay: delay, MaxRetries: maxRetries}
}

func (r *FixedRetryer) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if r.MaxRetries > 0 && attempt >= r.MaxRetries {
		return 0, false
	}
	return r.Delay, true
}

func (r *FixedRetryer) Reset() {}
