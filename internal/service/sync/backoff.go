package sync

import (
	"math/rand"
	"time"
)

// backoff computes the delay before the given retry attempt (1-based):
// exponential doubling from base, capped at max, with up to 50% added
// jitter to spread retries from a burst of failures.
func backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt <= 0 {
		return 0
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			d = max
			break
		}
	}
	if max > 0 && d > max {
		d = max
	}

	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	d += jitter
	if max > 0 && d > max {
		d = max
	}
	return d
}
