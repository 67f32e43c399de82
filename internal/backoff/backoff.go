// Package backoff provides bounded backoff schedules for retryable work:
// the Delivery Queue's fixed retry ladder and general exponential-with-
// jitter backoff for callers that need a smooth curve instead.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy parameterizes exponential backoff with jitter.
type Policy struct {
	InitialMs float64
	MaxMs     float64
	Factor    float64
	Jitter    float64
}

// Compute returns the backoff duration for the given attempt (1-indexed).
func Compute(p Policy, attempt int) time.Duration {
	return ComputeWithRand(p, attempt, rand.Float64()) //nolint:gosec // jitter, not security-sensitive
}

// ComputeWithRand is Compute with an injectable random source, for
// deterministic tests.
func ComputeWithRand(p Policy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := p.InitialMs * math.Pow(p.Factor, exp)
	jitter := base * p.Jitter * randomValue
	total := math.Min(p.MaxMs, base+jitter)
	return time.Duration(math.Round(total)) * time.Millisecond
}

// DeliverySchedule is the Delivery Queue's fixed retry ladder from
// spec.md §4.3: {5s, 25s, 2m, 10m}, clamped at the last step. A delivery
// with maxRetries=5 thus lives on the queue for up to ~13 minutes before
// it is moved to the dead-letter directory.
var DeliverySchedule = []time.Duration{
	5 * time.Second,
	25 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
}

// ForDelivery returns the delay before the next attempt given how many
// retries have already happened (retryCount, 0-indexed: the value before
// this attempt). Attempts beyond the schedule's length clamp to the last
// step.
func ForDelivery(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= len(DeliverySchedule) {
		return DeliverySchedule[len(DeliverySchedule)-1]
	}
	return DeliverySchedule[retryCount]
}
