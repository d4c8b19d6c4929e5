package protocol

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// RetryPolicy bounds how often the handshake reconnects.
type RetryPolicy struct {
	// Retries is the number of attempts after the first one.
	Retries int `default:"2"`
	// Backoff is the constant pause between attempts.
	Backoff time.Duration `default:"0s"`
}

// Attempts returns the total number of attempts the policy allows.
func (p RetryPolicy) Attempts() int {
	if p.Retries < 0 {
		return 1
	}
	return p.Retries + 1
}

// newBackOff returns a backoff that yields Retries pauses and then backoff.Stop.
func (p RetryPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	retries := p.Retries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Backoff), uint64(retries)),
		ctx,
	)
	b.Reset()
	return b
}

// wait sleeps for d unless ctx ends first.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
