// Package lock implements the named leased locks of §4.8: file-level locks
// guard a single Discussion Store write, processing-level locks guard an
// in-flight round so a second client cannot start a concurrent one. A
// Redis back-end is used when configured, falling back to an in-process
// map so the service runs standalone.
package lock

import (
	"context"
	"time"

	"manifold/internal/apperror"
)

// Scope names a lock's purpose; the two scopes carry distinct default TTLs.
type Scope string

const (
	ScopeFile       Scope = "file"
	ScopeProcessing Scope = "processing"
)

// Backend is the pluggable storage mechanism behind the Service. Redis and
// in-memory implementations both satisfy it.
type Backend interface {
	// TryAcquire sets key to lockID with the given TTL only if key is
	// currently absent or expired. Returns true on success.
	TryAcquire(ctx context.Context, key, lockID string, ttl time.Duration) (bool, error)
	// Release deletes key only if its current value equals lockID.
	Release(ctx context.Context, key, lockID string) (bool, error)
}

// Service implements acquire/release/acquire_with_retry/with_lock over a
// Backend, generating opaque nonces and keying locks by
// (scope, user_id, discussion_id).
type Service struct {
	backend      Backend
	fileTTL      time.Duration
	processingTTL time.Duration
	pollInterval time.Duration
}

// New builds a Service. fileTTL and processingTTL are the default leases
// for their respective scopes (§3 Lock Record: 30s file / 5m processing);
// pollInterval governs AcquireWithRetry's polling cadence (§4.8 default 100ms).
func New(backend Backend, fileTTL, processingTTL, pollInterval time.Duration) *Service {
	return &Service{
		backend:       backend,
		fileTTL:       fileTTL,
		processingTTL: processingTTL,
		pollInterval:  pollInterval,
	}
}

func (s *Service) ttlFor(scope Scope) time.Duration {
	if scope == ScopeProcessing {
		return s.processingTTL
	}
	return s.fileTTL
}

func key(scope Scope, userID, discussionID string) string {
	return string(scope) + ":" + userID + ":" + discussionID
}

// Acquire attempts a single set-if-absent-with-expiry. Returns the opaque
// lock_id on success, or ("", nil) if another holder currently owns it.
func (s *Service) Acquire(ctx context.Context, scope Scope, userID, discussionID string) (string, error) {
	lockID, err := newNonce()
	if err != nil {
		return "", apperror.Wrap(apperror.Internal, err, "generate lock nonce")
	}
	ok, err := s.backend.TryAcquire(ctx, key(scope, userID, discussionID), lockID, s.ttlFor(scope))
	if err != nil {
		return "", apperror.Wrap(apperror.Transient, err, "acquire lock")
	}
	if !ok {
		return "", nil
	}
	return lockID, nil
}

// Release performs a compare-and-delete on lockID so one party never
// releases another's lock (§4.8).
func (s *Service) Release(ctx context.Context, scope Scope, userID, discussionID, lockID string) error {
	ok, err := s.backend.Release(ctx, key(scope, userID, discussionID), lockID)
	if err != nil {
		return apperror.Wrap(apperror.Transient, err, "release lock")
	}
	if !ok {
		return apperror.New(apperror.Conflict, "lock not held by caller")
	}
	return nil
}

// AcquireWithRetry polls every pollInterval up to maxAttempts times. If the
// lock is never obtained it returns the most recent backend error when any
// attempt failed with one, and otherwise an apperror.Conflict
// ("AlreadyProcessing", §4.2 Failure semantics).
func (s *Service) AcquireWithRetry(ctx context.Context, scope Scope, userID, discussionID string, maxAttempts int) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(s.pollInterval):
			}
		}
		lockID, err := s.Acquire(ctx, scope, userID, discussionID)
		if err != nil {
			lastErr = err
			continue
		}
		if lockID != "" {
			return lockID, nil
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", apperror.New(apperror.Conflict, "already processing")
}

// WithLock acquires scope/user/discussion with retry, runs f, and releases
// the lock on every exit path from f including panics.
func (s *Service) WithLock(ctx context.Context, scope Scope, userID, discussionID string, maxAttempts int, f func(ctx context.Context) error) error {
	lockID, err := s.AcquireWithRetry(ctx, scope, userID, discussionID, maxAttempts)
	if err != nil {
		return err
	}
	defer func() {
		_ = s.Release(ctx, scope, userID, discussionID, lockID)
	}()
	return f(ctx)
}
