package payment

import "time"

// DefaultRetryInterval is the gap between a failed attempt and its retry
const DefaultRetryInterval = 8 * 24 * time.Hour

// RetryPolicy maps the number of failed attempts to the delay before the
// next attempt. A nil entry means no further retries. The policy is a pure
// function of its inputs; wall-clock time is always passed in.
type RetryPolicy struct {
	Schedule []time.Duration
}

// DefaultRetryPolicy retries three times, eight days apart
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Schedule: []time.Duration{
			DefaultRetryInterval,
			DefaultRetryInterval,
			DefaultRetryInterval,
		},
	}
}

// MaxRetries returns the number of retries the policy allows after the
// initial attempt
func (p RetryPolicy) MaxRetries() int {
	return len(p.Schedule)
}

// NextRetryTime returns when to retry after the given number of failed
// attempts, counted from the failure instant. The first failure consumes
// Schedule[0], the second Schedule[1], and so on; nil means the schedule
// is exhausted.
func (p RetryPolicy) NextRetryTime(failedAttempts int, failedAt time.Time) *time.Time {
	if failedAttempts < 1 || failedAttempts > len(p.Schedule) {
		return nil
	}
	retryAt := failedAt.Add(p.Schedule[failedAttempts-1])
	return &retryAt
}
