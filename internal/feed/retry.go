package feed

import "time"

// RetryPolicy is the bounded exponential backoff used between reconnects.
// The delay before attempt n (1-based) is Base * 2^(n-1). Once MaxAttempts
// reconnects have been scheduled, the next failure exhausts the policy.
// Not safe for concurrent use; the stream guards it with its own lock.
type RetryPolicy struct {
	Base        time.Duration
	MaxAttempts int

	attempt int
}

// NewRetryPolicy creates a RetryPolicy starting at attempt 0.
func NewRetryPolicy(base time.Duration, maxAttempts int) *RetryPolicy {
	return &RetryPolicy{Base: base, MaxAttempts: maxAttempts}
}

// Next records a failure and returns the delay before the next attempt.
// The attempt counter is incremented first. ok is false once the policy is
// exhausted; no further attempt may be scheduled.
func (p *RetryPolicy) Next() (delay time.Duration, ok bool) {
	p.attempt++
	if p.attempt > p.MaxAttempts {
		return 0, false
	}
	return p.Delay(p.attempt), true
}

// Delay returns the backoff for a 1-based attempt number without changing state.
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	// Cap the shift to prevent overflow
	shift := uint(attempt - 1)
	if shift > 30 {
		shift = 30
	}
	return p.Base * time.Duration(uint64(1)<<shift)
}

// Reset returns the counter to zero after a successful connection.
func (p *RetryPolicy) Reset() {
	p.attempt = 0
}

// Attempt returns the current attempt counter.
func (p *RetryPolicy) Attempt() int {
	return p.attempt
}

// Exhausted reports whether the policy has refused a further attempt.
func (p *RetryPolicy) Exhausted() bool {
	return p.attempt > p.MaxAttempts
}
