package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy is the explicit retry configuration for idempotent reads.
// Writes are never retried. Failed reads are attempted up to MaxRetries
// additional times with exponential backoff starting at BaseDelay, except
// for terminal statuses (401, 403, 404) which surface immediately.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy matches the web client's query defaults: two extra
// attempts, excluding 403/404.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, BaseDelay: 250 * time.Millisecond}
}

// retryRead runs op under the policy. A *APIError that is not Temporary is
// marked permanent so backoff stops immediately; transport errors and 5xx
// are retried until the attempt budget runs out.
func (p RetryPolicy) retryRead(ctx context.Context, op func() error) error {
	if p.MaxRetries <= 0 {
		return op()
	}
	wrapped := func() (struct{}, error) {
		err := op()
		if err == nil {
			return struct{}{}, nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	_, err := backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(p.MaxRetries)+1),
	)
	return err
}
