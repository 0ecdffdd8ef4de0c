package core

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig controls the Coordinator's retry of Transient/UniquenessConflict
// failures (spec §5, "On observed connection faults... retries... with
// exponential backoff; each retry obtains a fresh connection").
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryConfig matches spec §5's stated defaults
// (MAX_RETRY_ATTEMPTS=3).
var DefaultRetryConfig = RetryConfig{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond}

// withRetry runs op, retrying only Transient and UniquenessConflict failures
// (spec §7, "Propagation policy"), up to cfg.MaxAttempts total attempts,
// with exponential backoff seeded from cfg.BaseDelay. Every other error is
// returned immediately — no partial success, no retry.
func withRetry(ctx context.Context, cfg RetryConfig, op func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultRetryConfig.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryConfig.BaseDelay
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.BaseDelay
	bo.MaxElapsedTime = 0 // bounded by MaxAttempts, not wall-clock
	bounded := backoff.WithMaxRetries(bo, uint64(cfg.MaxAttempts-1))
	withCtx := backoff.WithContext(bounded, ctx)

	var lastErr error
	retryOp := func() error {
		err := op()
		lastErr = err
		if err == nil {
			return nil
		}
		if IsRetryable(err) {
			return err // signal backoff to retry
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(retryOp, withCtx); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		return lastErr
	}
	return nil
}
