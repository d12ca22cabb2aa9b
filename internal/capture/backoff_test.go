package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_NoJitter(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-3, 100 * time.Millisecond},
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{5, 3200 * time.Millisecond},
		{6, 5 * time.Second},
		{60, 5 * time.Second},
	}
	for _, tt := range tests {
		got := Backoff(tt.attempt, 100*time.Millisecond, 5*time.Second, 0)
		assert.Equal(t, tt.want, got, "attempt %d", tt.attempt)
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		base := min(100*time.Millisecond<<attempt, 5*time.Second)
		lo := time.Duration(float64(base) * 0.8).Round(time.Millisecond)
		hi := time.Duration(float64(base) * 1.2).Round(time.Millisecond)
		for i := 0; i < 50; i++ {
			got := DefaultBackoff(attempt)
			assert.GreaterOrEqual(t, got, lo)
			assert.LessOrEqual(t, got, hi)
			assert.Zero(t, got%time.Millisecond, "not rounded to ms: %v", got)
		}
	}
}

func TestBackoff_NeverNegative(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.GreaterOrEqual(t, Backoff(0, 10*time.Millisecond, time.Second, 500), time.Duration(0))
	}
	assert.Equal(t, time.Duration(0), Backoff(3, 0, 0, 20))
}
