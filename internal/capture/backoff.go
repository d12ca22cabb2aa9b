package capture

import (
	"math"
	"math/rand/v2"
	"time"
)

// Reconnect backoff defaults.
const (
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
	DefaultJitterPercent  = 20
)

// Backoff returns the delay before reconnect attempt number attempt
// (0-based): initial * 2^attempt capped at maxDelay, plus uniform jitter of
// ±jitterPercent of the capped value. The result is rounded to whole
// milliseconds and never negative.
func Backoff(attempt int, initial, maxDelay time.Duration, jitterPercent float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	initialMs := float64(initial.Milliseconds())
	maxMs := float64(maxDelay.Milliseconds())

	capped := math.Min(initialMs*math.Pow(2, float64(attempt)), maxMs)
	jitterRange := capped * (jitterPercent / 100)
	jitter := (rand.Float64()*2 - 1) * jitterRange

	ms := math.Max(0, math.Round(capped+jitter))
	if math.IsNaN(ms) {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

// DefaultBackoff is Backoff with the default 100ms initial delay, 5s cap and
// 20% jitter.
func DefaultBackoff(attempt int) time.Duration {
	return Backoff(attempt, DefaultInitialBackoff, DefaultMaxBackoff, DefaultJitterPercent)
}
