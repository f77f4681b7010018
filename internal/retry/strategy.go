package retry

import "time"

// Strategy defines the interface for retry backoff strategies
type Strategy interface {
	// NextDelay calculates the delay before the retry following the
	// given zero-based attempt.
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff. With the default
// initial delay of one second and multiplier of two, the delay after
// attempt i is 2^i seconds; MaxRetries is small so growth stays tame.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultBackoff returns the standard 2^attempt-seconds backoff
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Minute,
		Multiplier:   2,
	}
}

// NextDelay calculates the next retry delay using exponential backoff
func (s *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(s.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= s.Multiplier
	}

	if s.MaxDelay > 0 && delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}
