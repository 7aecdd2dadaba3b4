package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"manifold/internal/apperror"
)

func TestWithRetryStopsImmediatelyOnPermanentError(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 5, time.Millisecond, func(ctx context.Context) error {
		attempts++
		return apperror.New(apperror.Input, "bad request")
	})
	if attempts != 1 {
		t.Fatalf("expected exactly one attempt for a permanent error, got %d", attempts)
	}
	if apperror.CategoryOf(err) != apperror.Input {
		t.Fatalf("expected Input category to propagate")
	}
}

func TestWithRetryRetriesTransientUntilSuccess(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 5, time.Millisecond, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return apperror.New(apperror.Transient, "busy")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithRetryExhaustsAndReturnsLastError(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 3, time.Millisecond, func(ctx context.Context) error {
		attempts++
		return errors.New("i/o timeout")
	})
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
}

func TestIsPermanentClassification(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{apperror.New(apperror.Input, "x"), true},
		{apperror.New(apperror.Auth, "x"), true},
		{apperror.New(apperror.Conflict, "x"), true},
		{apperror.New(apperror.Transient, "x"), false},
		{errors.New("unclassified"), false},
	}
	for _, tc := range cases {
		if got := isPermanent(tc.err); got != tc.want {
			t.Fatalf("isPermanent(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
