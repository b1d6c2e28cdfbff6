package services

import (
	"context"
	"log"
	"time"
)

// RetryPolicy bounds how transient failures are retried with exponential backoff
type RetryPolicy struct {
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaximumInterval    time.Duration
	MaximumAttempts    int
}

// DefaultRetryPolicy is used for calls to the payment processor
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval:    200 * time.Millisecond,
	BackoffCoefficient: 2.0,
	MaximumInterval:    2 * time.Second,
	MaximumAttempts:    3,
}

// Retry runs fn until it succeeds, returns a non-transient error, the attempts
// run out, or ctx is done. Only *TransientError results are retried.
func Retry(ctx context.Context, policy RetryPolicy, op string, fn func(ctx context.Context) error) error {
	attempts := policy.MaximumAttempts
	if attempts < 1 {
		attempts = 1
	}
	interval := policy.InitialInterval

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !IsTransient(err) || attempt == attempts {
			return err
		}

		log.Printf("[payment][retry] op=%s attempt=%d/%d err=%v next_in=%s", op, attempt, attempts, err, interval)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &TransientError{Op: op, Err: ctx.Err()}
		case <-timer.C:
		}

		interval = time.Duration(float64(interval) * policy.BackoffCoefficient)
		if policy.MaximumInterval > 0 && interval > policy.MaximumInterval {
			interval = policy.MaximumInterval
		}
	}
	return err
}
