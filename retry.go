package statum

import "time"

// RetryBuilder assembles the conflict RetryPolicy handed to
// SchematicBuilder.WithStateConflictRetryPolicy.
//
//	statum.ConflictRetry(5).WithExponentialBackoff(time.Millisecond, 2, 50*time.Millisecond).Policy()
type RetryBuilder struct {
	p RetryPolicy
}

// ConflictRetry enables conflict retries, giving up after maxRetries of
// them. Zero or a negative count never gives up; Send then stops only on
// success or cancellation.
func ConflictRetry(maxRetries int) RetryBuilder {
	return RetryBuilder{p: RetryPolicy{Enabled: true, MaxRetries: max(maxRetries, 0)}}
}

// WithExponentialBackoff waits initial before the first retry and multiplies
// the wait by multiplier afterwards, never exceeding limit when limit is
// positive. A non-positive multiplier doubles.
func (b RetryBuilder) WithExponentialBackoff(initial time.Duration, multiplier float64, limit time.Duration) RetryBuilder {
	if multiplier <= 0 {
		multiplier = 2
	}
	b.p.Backoff, b.p.BackoffMultiplier, b.p.MaxBackoff = initial, multiplier, limit
	return b
}

// WithConstantBackoff waits delay before every retry.
func (b RetryBuilder) WithConstantBackoff(delay time.Duration) RetryBuilder {
	b.p.Backoff, b.p.BackoffMultiplier, b.p.MaxBackoff = delay, 1, 0
	return b
}

// Immediate retries without waiting.
func (b RetryBuilder) Immediate() RetryBuilder {
	b.p.Backoff, b.p.BackoffMultiplier, b.p.MaxBackoff = 0, 0, 0
	return b
}

// Policy returns the assembled policy.
func (b RetryBuilder) Policy() RetryPolicy { return b.p }
