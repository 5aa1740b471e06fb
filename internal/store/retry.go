package store

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryPolicy governs how store operations are retried after transient
// failures. Each attempt runs under the per-operation timeout; between
// attempts the caller sleeps for an exponentially growing backoff with
// jitter.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration

	// Factor multiplies the backoff after each retry.
	Factor float64

	// Jitter is the fraction of random variation applied to each delay
	// (0.1 = +/-10%).
	Jitter float64
}

// DefaultRetryPolicy returns the retry settings used when none are
// configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Factor:         2.0,
		Jitter:         0.1,
	}
}

// backoff returns the delay to sleep after the given zero-based attempt.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	if d <= 0 {
		d = 500 * time.Millisecond
	}
	factor := p.Factor
	if factor <= 1 {
		factor = 2.0
	}
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * factor)
		if p.MaxBackoff > 0 && d > p.MaxBackoff {
			d = p.MaxBackoff
			break
		}
	}
	if p.Jitter > 0 {
		jitterRange := float64(d) * p.Jitter
		d = time.Duration(float64(d) + (rand.Float64()*2-1)*jitterRange)
	}
	return d
}

// withRetry runs fn under the per-operation timeout, retrying transient
// failures per the policy. ErrNotFound and ErrConflict are definitive
// answers from the store, never retried.
func (db *DB) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := db.retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, db.timeout)
		err = fn(opCtx)
		cancel()

		if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			return err
		}
		if attempt+1 >= attempts || ctx.Err() != nil {
			break
		}

		delay := db.retry.backoff(attempt)
		db.logger.Printf("Store %s failed (attempt %d/%d), retrying in %v: %v",
			op, attempt+1, attempts, delay.Round(time.Millisecond), err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
