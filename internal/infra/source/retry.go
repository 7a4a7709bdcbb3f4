package source

import (
	"context"
	"time"
)

// RetryPolicy controls how the fetcher retries transient failures.
type RetryPolicy struct {
	MaxAttempts int
	// Backoff returns the wait after the given failed attempt (1-based).
	Backoff func(attempt int) time.Duration
	// Sleep waits for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy makes three attempts, waiting 300ms × attempt between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     LinearBackoff(300 * time.Millisecond),
		Sleep:       SleepContext,
	}
}

// LinearBackoff waits step × attempt.
func LinearBackoff(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return step * time.Duration(attempt)
	}
}

// SleepContext is a cancellable time.Sleep.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Backoff == nil {
		p.Backoff = def.Backoff
	}
	if p.Sleep == nil {
		p.Sleep = def.Sleep
	}
	return p
}
