package kernelerr

import (
	"context"
	"time"
)

// RetryPolicy is a small exponential-backoff helper for the persistence
// adapter's external calls (§7). The teacher pulls in
// github.com/hashicorp/go-retryablehttp only indirectly (via vault/api);
// nothing in its own services imports it for HTTP, so this reimplements
// the same backoff shape directly over plain net/http rather than adding
// a direct dependency the corpus never exercises on its own.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy mirrors retryablehttp's defaults closely enough for
// the adapter's needs: a handful of attempts, doubling delay, capped.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// Do runs op up to p.MaxAttempts times, sleeping with doubling backoff
// between attempts. shouldRetry decides whether a given error is worth
// retrying at all (e.g. a non-2xx ExternalFailure is, a DomainValidation
// never is). The last error is returned if every attempt fails.
func (p RetryPolicy) Do(ctx context.Context, shouldRetry func(error) bool, op func() error) error {
	delay := p.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) || attempt == p.MaxAttempts {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return lastErr
}
