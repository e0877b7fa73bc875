package jobs

import "time"

var DefaultBackoff = []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}

const DefaultMaxRetries = 3

// RetryPolicy maps the number of consecutive failures to the delay before the
// job is eligible again. Attempts past the table reuse its last entry.
type RetryPolicy struct {
	Backoff    []time.Duration
	MaxRetries int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Backoff: DefaultBackoff, MaxRetries: DefaultMaxRetries}
}

// Delay for the given failure count (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return DefaultBackoff[len(DefaultBackoff)-1]
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(p.Backoff) {
		return p.Backoff[len(p.Backoff)-1]
	}
	return p.Backoff[attempt-1]
}

// Next reports when a job that has now failed attempt times in a row may run
// again. ok is false once the retry budget is spent.
func (p RetryPolicy) Next(attempt int, now time.Time) (time.Time, bool) {
	if attempt > p.MaxRetries {
		return time.Time{}, false
	}
	return now.Add(p.Delay(attempt)), true
}
