package store

import (
	"context"
	"testing"
	"time"

	"manifold/internal/domain"
)

func TestReconcileRepairsDivergedTokenCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d, err := s.Create(ctx, "user-1", "topic", "", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Force the index row out of sync with the journal's true token count.
	row, ok, err := s.index.Get(ctx, d.ID)
	if err != nil || !ok {
		t.Fatalf("expected index row to exist: ok=%v err=%v", ok, err)
	}
	row.LastTokenCount = 999999
	if err := s.index.Upsert(ctx, row); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	r := NewReconciler(s, time.Hour, 0.05)
	r.sweepOnce(ctx)

	got, ok, err := s.index.Get(ctx, d.ID)
	if err != nil || !ok {
		t.Fatalf("expected index row after reconcile: ok=%v err=%v", ok, err)
	}
	if got.LastTokenCount == 999999 {
		t.Fatalf("expected reconcile to repair the diverged token count")
	}
}

func TestReconcileRepairsDivergedSummaryText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d, err := s.Create(ctx, "user-1", "topic", "", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.AppendSummary(ctx, d.ID, "user-1", domain.Summary{RoundNumber: 1, SummaryText: "true summary"}); err != nil {
		t.Fatalf("AppendSummary failed: %v", err)
	}

	row, ok, err := s.index.Get(ctx, d.ID)
	if err != nil || !ok {
		t.Fatalf("expected index row to exist: ok=%v err=%v", ok, err)
	}
	row.Summary = "stale summary"
	if err := s.index.Upsert(ctx, row); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	r := NewReconciler(s, time.Hour, 0.05)
	r.sweepOnce(ctx)

	got, ok, err := s.index.Get(ctx, d.ID)
	if err != nil || !ok {
		t.Fatalf("expected index row after reconcile: ok=%v err=%v", ok, err)
	}
	if got.Summary != "true summary" {
		t.Fatalf("expected reconcile to repair diverged summary text, got %q", got.Summary)
	}
}

func TestTokenDivergence(t *testing.T) {
	if d := tokenDivergence(100, 100); d != 0 {
		t.Fatalf("expected 0 divergence for equal values, got %v", d)
	}
	if d := tokenDivergence(0, 0); d != 0 {
		t.Fatalf("expected 0 divergence when both are 0, got %v", d)
	}
	if d := tokenDivergence(50, 0); d != 1 {
		t.Fatalf("expected full divergence when actual is 0 but indexed is not, got %v", d)
	}
	if d := tokenDivergence(110, 100); d < 0.09 || d > 0.11 {
		t.Fatalf("expected ~0.10 divergence, got %v", d)
	}
}
