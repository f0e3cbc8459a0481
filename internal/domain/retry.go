package domain

import (
	"context"
	"time"
)

// RetryPolicy controls how transient adapter failures are retried.
// The zero value uses the defaults: base 2s, cap 60s, 5 attempts.
type RetryPolicy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Base == 0 {
		p.Base = 2 * time.Second
	}
	if p.Cap == 0 {
		p.Cap = 60 * time.Second
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 5
	}
	return p
}

// Delay returns the backoff before the given retry. attempt is zero-based:
// Delay(0) is the wait after the first failure.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.Cap {
			return p.Cap
		}
	}
	if d > p.Cap {
		return p.Cap
	}
	return d
}

// Retry runs fn up to MaxAttempts times, sleeping the policy's backoff
// between attempts. Only transient failures (see [IsTransient]) are
// retried; permanent and unclassified errors surface immediately. The
// last transient error is returned when attempts are exhausted.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	p = p.withDefaults()
	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err = fn(ctx); err == nil || !IsTransient(err) {
			return err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
