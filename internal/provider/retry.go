package provider

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig bounds the backoff loop around one upstream call.
type RetryConfig struct {
	Attempts  int           // total attempts, not retries
	BaseDelay time.Duration // doubled each attempt
	MaxDelay  time.Duration
	Timeout   time.Duration // per-attempt deadline; 0 = none
}

// DefaultRetry matches the sync pipeline's budget: 3 attempts, 500ms base.
var DefaultRetry = RetryConfig{
	Attempts:  3,
	BaseDelay: 500 * time.Millisecond,
	MaxDelay:  10 * time.Second,
	Timeout:   30 * time.Second,
}

// WithRetry runs fn, retrying retryable failures with jittered exponential
// backoff. A retryable error that survives the full budget is promoted to
// fatal. Ignorable and fatal errors return immediately.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < cfg.Attempts; attempt++ {
		if attempt > 0 {
			delay := cfg.BaseDelay << (attempt - 1)
			if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
			// full jitter keeps concurrent connectors from thundering
			delay = time.Duration(rand.Int63n(int64(delay) + 1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return Fatal("sync cancelled", ctx.Err())
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if cfg.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		}
		err := fn(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if Classify(err) != ClassRetryable {
			return err
		}
		if ctx.Err() != nil {
			return Fatal("sync cancelled", ctx.Err())
		}
	}
	return Fatal("retry budget exhausted", lastErr)
}

// Page is one page of a generic cursor-driven fetch.
type Page[T any] struct {
	Items      []T
	NextCursor string // empty means done
}

// PageFunc fetches one page. Cursor is empty on the first call.
type PageFunc[T any] func(ctx context.Context, cursor string, pageSize int) (Page[T], error)

// FetchAll drives PageFunc to exhaustion, retrying each page independently
// and sleeping pageDelay between pages to respect provider rate limits.
func FetchAll[T any](ctx context.Context, cfg RetryConfig, pageSize int, pageDelay time.Duration, fetch PageFunc[T]) ([]T, error) {
	var out []T
	cursor := ""
	for {
		var page Page[T]
		err := WithRetry(ctx, cfg, func(ctx context.Context) error {
			var err error
			page, err = fetch(ctx, cursor, pageSize)
			return err
		})
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if page.NextCursor == "" {
			return out, nil
		}
		cursor = page.NextCursor
		if pageDelay > 0 {
			select {
			case <-time.After(pageDelay):
			case <-ctx.Done():
				return nil, Fatal("sync cancelled", ctx.Err())
			}
		}
	}
}
