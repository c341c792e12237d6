package session

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Delay returns the wait before retry attempt (1-based). The first attempt
// waits InitialDelay; later ones grow by Multiplier up to MaxDelay. Jitter
// scales the result into [0.5, 1.5) of itself; a nil rng uses the midpoint
// of the low half.
func (b BackoffConfig) Delay(attempt int, rng *rand.Rand) time.Duration {
	if b.InitialDelay <= 0 {
		return 0
	}
	growth := math.Max(b.Multiplier, 1)
	d := float64(b.InitialDelay)
	if attempt > 1 {
		d *= math.Pow(growth, float64(attempt-1))
	}
	if b.MaxDelay > 0 {
		d = math.Min(d, float64(b.MaxDelay))
	}
	if b.Jitter && attempt > 1 {
		scale := 0.5
		if rng != nil {
			scale += rng.Float64()
		}
		d *= scale
	}
	return time.Duration(d)
}

// Sleep waits out Delay(attempt) or returns early with the context's error.
func (b BackoffConfig) Sleep(ctx context.Context, attempt int, rng *rand.Rand) error {
	timer := time.NewTimer(b.Delay(attempt, rng))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
