package store

import (
	"context"
	"time"

	"manifold/internal/apperror"
	"manifold/internal/observability"
)

// isPermanent reports whether err should be re-raised immediately without
// retrying (§4.1 Retries: not-found, permission-denied, ownership-mismatch,
// validation). Everything else, including errors of an unrecognized shape,
// is treated as transient.
func isPermanent(err error) bool {
	switch apperror.CategoryOf(err) {
	case apperror.Input, apperror.Auth, apperror.Conflict:
		return true
	default:
		return false
	}
}

// withRetry runs op up to maxAttempts times with exponential backoff
// starting at initialDelay, stopping immediately on a permanent error.
// Unknown error shapes are retried but logged (§4.1).
func withRetry(ctx context.Context, maxAttempts int, initialDelay time.Duration, op func(ctx context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	log := observability.LoggerWithTrace(ctx)

	delay := initialDelay
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if isPermanent(err) {
			return err
		}
		if apperror.CategoryOf(err) == apperror.Internal {
			log.Warn().Err(err).Int("attempt", attempt).Msg("store_retry_unknown_error_class")
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}
