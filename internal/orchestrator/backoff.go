package orchestrator

import (
	"math/rand"
	"time"
)

// backoff returns the delay before retry attempt n (1-based):
// exponential from base, capped, with up to 25% random jitter added so
// retries from concurrent jobs spread out. The pre-jitter delay never
// decreases with n.
func backoff(n int, base, cap time.Duration) time.Duration {
	if n < 1 {
		n = 1
	}
	d := base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= cap {
			d = cap
			break
		}
	}
	if d > cap {
		d = cap
	}
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}
