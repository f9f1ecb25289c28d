package keva

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// Upper bound on the pause between conflict re-runs. Backoff exists to spread
// contending writers apart, not to delay them for human-visible amounts of time.
const conflictBackoffCap = 250 * time.Millisecond

// newConflictBackoff builds the backoff schedule used when a read-write unit of
// work is re-run after losing the optimistic commit race: Fibonacci growth from
// base with 20% jitter, capped, optionally bounded by maxRetries (0 = unbounded).
func newConflictBackoff(base time.Duration, maxRetries uint64) retry.Backoff {
	b := retry.NewFibonacci(base)
	b = retry.WithCappedDuration(conflictBackoffCap, b)
	b = retry.WithJitterPercent(20, b)
	if maxRetries > 0 {
		b = retry.WithMaxRetries(maxRetries, b)
	}
	return b
}
