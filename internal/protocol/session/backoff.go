package session

import (
	"math/rand"
	"time"
)

// Delay returns the wait before retry attempt n (1-based). The delay grows
// by Multiplier from InitialDelay and stops at MaxDelay. Jitter scales the
// result into [0.5, 1.5); a nil rng scales by 0.5.
func (b BackoffConfig) Delay(attempt int, rng *rand.Rand) time.Duration {
	if b.InitialDelay <= 0 {
		return 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(b.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= mult
		if b.MaxDelay > 0 && d >= float64(b.MaxDelay) {
			d = float64(b.MaxDelay)
			break
		}
	}
	if b.Jitter {
		f := 0.5
		if rng != nil {
			f += rng.Float64()
		}
		d *= f
	}
	return time.Duration(d)
}
