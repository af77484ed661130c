package board

import (
	"math"
	"math/rand"
	"time"
)

// backoffDelay computes base * 2^(retryNumber-1) * (1 + jitter), capped at
// maxDelay (spec.md §4.5). retryNumber is 1-indexed: the first retry (after
// the original attempt fails) passes 1 and gets roughly base, the second
// passes 2 and gets roughly 2*base, and so on.
func backoffDelay(retryNumber int, base, maxDelay time.Duration) time.Duration {
	if retryNumber <= 0 {
		return 0
	}
	multiplier := math.Pow(2, float64(retryNumber-1))

	if math.IsInf(multiplier, 1) || multiplier > float64(maxDelay)/float64(base) {
		return withJitter(maxDelay)
	}

	delay := time.Duration(float64(base) * multiplier)
	if delay > maxDelay {
		delay = maxDelay
	}
	return withJitter(delay)
}

// withJitter applies spec.md §4.5's "* (1 + jitter)" factor, jitter in [0, 0.1).
func withJitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (1.0 + rand.Float64()*0.1))
}
