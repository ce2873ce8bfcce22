package outbox

import (
	"math/rand"
	"time"
)

const (
	backoffBase           = time.Second
	backoffCap            = 5 * time.Minute
	backoffJitterFraction = 0.2
	backoffMaxShift       = 20
)

// backoffDelay computes the delay before the next dispatch attempt:
// min(cap, 2^attempts seconds) with ±20% jitter, clamped to [1s, 5m].
func backoffDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	shift := attempts
	if shift > backoffMaxShift {
		shift = backoffMaxShift
	}
	delay := backoffBase << uint(shift)
	if delay > backoffCap {
		delay = backoffCap
	}
	jitter := 1 + backoffJitterFraction*(2*rand.Float64()-1)
	delay = time.Duration(float64(delay) * jitter)
	if delay > backoffCap {
		delay = backoffCap
	}
	if delay < backoffBase {
		delay = backoffBase
	}
	return delay
}
