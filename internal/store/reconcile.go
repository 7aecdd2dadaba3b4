package store

import (
	"context"
	"math"
	"time"

	"manifold/internal/observability"
)

// Reconciler periodically recomputes each discussion's token count from
// its journal and repairs the index row if it diverges beyond a tolerance
// (§4.1 Reconciliation). The journal always wins.
type Reconciler struct {
	store     *Store
	interval  time.Duration
	tolerance float64
}

// NewReconciler builds a Reconciler over store.
func NewReconciler(store *Store, interval time.Duration, tolerance float64) *Reconciler {
	return &Reconciler{store: store, interval: interval, tolerance: tolerance}
}

// Run blocks, sweeping every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepOnce(ctx)
		}
	}
}

func (r *Reconciler) sweepOnce(ctx context.Context) {
	log := observability.LoggerWithTrace(ctx)
	rows, err := r.store.index.All(ctx)
	if err != nil {
		log.Error().Err(err).Msg("reconcile_list_rows_failed")
		return
	}
	for _, row := range rows {
		if err := r.reconcileOne(ctx, row); err != nil {
			log.Warn().Err(err).Str("discussion_id", row.ID).Msg("reconcile_discussion_failed")
		}
	}
}

func (r *Reconciler) reconcileOne(ctx context.Context, row IndexRow) error {
	d, err := readJournal(r.store.dir, row.UserID, row.ID)
	if err != nil {
		return err
	}

	trueTokens := estimateDiscussionTokens(d)
	diverged := tokenDivergence(row.LastTokenCount, trueTokens) > r.tolerance
	roundDrift := row.CurrentRound != d.CurrentRound
	resolvedDrift := row.IsResolved != d.IsResolved

	var currentSummaryText string
	if s, ok := d.CurrentSummary(); ok {
		currentSummaryText = s.SummaryText
	}
	summaryDrift := row.Summary != currentSummaryText

	if !diverged && !roundDrift && !resolvedDrift && !summaryDrift {
		return nil
	}
	d.LastTokenCount = trueTokens
	return r.store.index.Upsert(ctx, indexRowFrom(d))
}

func tokenDivergence(indexed, actual int) float64 {
	if actual == 0 {
		if indexed == 0 {
			return 0
		}
		return 1
	}
	return math.Abs(float64(indexed-actual)) / float64(actual)
}
