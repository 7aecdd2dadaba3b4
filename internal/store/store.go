// Package store implements the Discussion Store (§4.1): an authoritative
// per-discussion journal on disk, guarded by the file lock, with a
// reconcilable metadata index kept in sync by a periodic sweep.
package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"manifold/internal/apperror"
	"manifold/internal/domain"
	"manifold/internal/lock"
	"manifold/internal/tokenest"
)

// Store is the Discussion Store.
type Store struct {
	dir          string
	index        Index
	locks        *lock.Service
	maxRetries   int
	retryDelay   time.Duration
	staleAfter   time.Duration
	tokenBudget  int
}

// Config bundles the tunables Store needs from the process configuration.
type Config struct {
	DiscussionsDir       string
	MaxRetries           int
	RetryDelayMS         int
	StaleAfterMinutes    int
	DefaultTokenBudget   int
}

// New builds a Store over an already-opened Index and Lock Service.
func New(cfg Config, index Index, locks *lock.Service) *Store {
	return &Store{
		dir:         cfg.DiscussionsDir,
		index:       index,
		locks:       locks,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  time.Duration(cfg.RetryDelayMS) * time.Millisecond,
		staleAfter:  time.Duration(cfg.StaleAfterMinutes) * time.Minute,
		tokenBudget: cfg.DefaultTokenBudget,
	}
}

func (s *Store) withFileLock(ctx context.Context, userID, discussionID string, f func(ctx context.Context) error) error {
	return s.locks.WithLock(ctx, lock.ScopeFile, userID, discussionID, s.maxRetries, f)
}

// Create produces a new journal and metadata row. id may be caller-supplied
// for idempotent rebinding.
func (s *Store) Create(ctx context.Context, userID, topic, id string, files []domain.FileAttachment) (domain.Discussion, error) {
	if id == "" {
		id = uuid.NewString()
	}
	now := domain.NewTimestamp(time.Now().UTC())
	d := domain.Discussion{
		ID:          id,
		UserID:      userID,
		Topic:       topic,
		CreatedAt:   now,
		UpdatedAt:   now,
		TokenBudget: s.tokenBudget,
		Files:       files,
	}

	err := withRetry(ctx, s.maxRetries, s.retryDelay, func(ctx context.Context) error {
		return s.withFileLock(ctx, userID, id, func(ctx context.Context) error {
			if err := writeJournal(s.dir, d); err != nil {
				return err
			}
			return s.index.Upsert(ctx, indexRowFrom(d))
		})
	})
	if err != nil {
		return domain.Discussion{}, err
	}
	return d, nil
}

// Read loads a Discussion, enforcing ownership.
func (s *Store) Read(ctx context.Context, id, userID string) (domain.Discussion, error) {
	var d domain.Discussion
	err := withRetry(ctx, s.maxRetries, s.retryDelay, func(ctx context.Context) error {
		var err error
		d, err = readJournal(s.dir, userID, id)
		return err
	})
	if err != nil {
		return domain.Discussion{}, err
	}
	if d.UserID != userID {
		return domain.Discussion{}, apperror.New(apperror.Auth, "discussion is owned by another user")
	}
	return d, nil
}

// AppendRound appends round under the file lock, single-writer (§4.1).
func (s *Store) AppendRound(ctx context.Context, id, userID string, round domain.Round) error {
	return s.mutate(ctx, id, userID, func(d *domain.Discussion) error {
		d.Rounds = append(d.Rounds, round)
		if round.RoundNumber > d.CurrentRound {
			d.CurrentRound = round.RoundNumber
		}
		return nil
	})
}

// AppendSummary appends a summary under the file lock.
func (s *Store) AppendSummary(ctx context.Context, id, userID string, summary domain.Summary) error {
	return s.mutate(ctx, id, userID, func(d *domain.Discussion) error {
		d.Summaries = append(d.Summaries, summary)
		return nil
	})
}

// AppendQuestions appends a question set, attaching it to the round of
// matching number if present (§4.1).
func (s *Store) AppendQuestions(ctx context.Context, id, userID string, qs domain.QuestionSet) error {
	return s.mutate(ctx, id, userID, func(d *domain.Discussion) error {
		d.QuestionSets = append(d.QuestionSets, qs)
		for i := range d.Rounds {
			if d.Rounds[i].RoundNumber == qs.RoundNumber {
				d.Rounds[i].QuestionSetRound = qs.RoundNumber
			}
		}
		return nil
	})
}

// RecordAnswers validates that each answer key is a known question_id
// within the named round, then records the selections (§4.1).
func (s *Store) RecordAnswers(ctx context.Context, id, userID string, roundNumber int, answers map[string][]string) error {
	return s.mutate(ctx, id, userID, func(d *domain.Discussion) error {
		for i := range d.QuestionSets {
			if d.QuestionSets[i].RoundNumber != roundNumber {
				continue
			}
			known := make(map[string]int, len(d.QuestionSets[i].Questions))
			for qi, q := range d.QuestionSets[i].Questions {
				known[q.ID] = qi
			}
			for qid, selected := range answers {
				qi, ok := known[qid]
				if !ok {
					return apperror.New(apperror.Input, fmt.Sprintf("unknown question_id %q for round %d", qid, roundNumber))
				}
				d.QuestionSets[i].Questions[qi].Selected = selected
			}
			return nil
		}
		return apperror.New(apperror.Input, fmt.Sprintf("no question set for round %d", roundNumber))
	})
}

// MarkResolved flips the is_resolved flag under the file lock.
func (s *Store) MarkResolved(ctx context.Context, id, userID string) error {
	return s.mutate(ctx, id, userID, func(d *domain.Discussion) error {
		d.IsResolved = true
		return nil
	})
}

// mutate is the shared read-modify-write-under-lock helper backing every
// append/record/resolve operation.
func (s *Store) mutate(ctx context.Context, id, userID string, f func(d *domain.Discussion) error) error {
	return withRetry(ctx, s.maxRetries, s.retryDelay, func(ctx context.Context) error {
		return s.withFileLock(ctx, userID, id, func(ctx context.Context) error {
			d, err := readJournal(s.dir, userID, id)
			if err != nil {
				return err
			}
			if d.UserID != userID {
				return apperror.New(apperror.Auth, "discussion is owned by another user")
			}
			if err := f(&d); err != nil {
				return err
			}
			d.UpdatedAt = domain.NewTimestamp(time.Now().UTC())
			d.LastTokenCount = estimateDiscussionTokens(d)
			if err := writeJournal(s.dir, d); err != nil {
				return err
			}
			return s.index.Upsert(ctx, indexRowFrom(d))
		})
	})
}

// ListByUser returns index rows for userID, most recently updated first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]IndexRow, error) {
	rows, err := s.index.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperror.Wrap(apperror.Transient, err, "list discussions by user")
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UpdatedAt.After(rows[j].UpdatedAt) })
	return rows, nil
}

// DeleteAll removes every discussion owned by userID, journal and index
// rows alike.
func (s *Store) DeleteAll(ctx context.Context, userID string) error {
	rows, err := s.index.ListByUser(ctx, userID, 0)
	if err != nil {
		return apperror.Wrap(apperror.Transient, err, "list discussions for delete")
	}
	for _, row := range rows {
		if err := s.withFileLock(ctx, userID, row.ID, func(ctx context.Context) error {
			return deleteJournal(s.dir, userID, row.ID)
		}); err != nil {
			return err
		}
	}
	return s.index.DeleteAllForUser(ctx, userID)
}

// EnsureSoleActive scans for unresolved discussions under the user-scoped
// lock; a stale one past the threshold is force-resolved. Returns the
// single remaining active discussion id, or "" if none (§4.1).
func (s *Store) EnsureSoleActive(ctx context.Context, userID string) (string, error) {
	var active string
	err := s.withFileLock(ctx, userID, "ensure-sole-active", func(ctx context.Context) error {
		rows, err := s.index.ListByUser(ctx, userID, 0)
		if err != nil {
			return apperror.Wrap(apperror.Transient, err, "list discussions")
		}
		now := time.Now().UTC()
		for _, row := range rows {
			if row.IsResolved {
				continue
			}
			if now.Sub(row.UpdatedAt) > s.staleAfter {
				if err := s.MarkResolved(ctx, row.ID, userID); err != nil {
					return err
				}
				continue
			}
			active = row.ID
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return active, nil
}

// filePathsOf returns the attachment names carried on a discussion. There is
// no separate on-disk path distinct from the upload name in this model
// (FileAttachment never retains attachment bytes, only extracted text), so
// the attachment Name doubles as the "file path" column §6 asks for.
func filePathsOf(files []domain.FileAttachment) []string {
	if len(files) == 0 {
		return nil
	}
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
}

// currentTurnOf returns the highest turn number any response in d has
// reached, i.e. where the Round Scheduler currently stands.
func currentTurnOf(d domain.Discussion) int {
	turn := 0
	for _, r := range d.Rounds {
		for _, resp := range []*domain.Response{r.AnalyzerResponse, r.SolverResponse, r.ModeratorResponse} {
			if resp != nil && resp.Turn > turn {
				turn = resp.Turn
			}
		}
	}
	return turn
}

// pendingQuestionInput reports whether the most recently generated question
// set for d still has at least one question with no recorded selection:
// the Round Scheduler is blocked on the gateway's submit-answers event.
// This repo does not distinguish "questions are being generated" from
// "questions were sent and answers are awaited" as separate phases, so
// needs_user_input and user_input_pending both derive from this one check
// (decided in DESIGN.md's Open Questions).
func pendingQuestionInput(d domain.Discussion) bool {
	if len(d.QuestionSets) == 0 {
		return false
	}
	qs := d.QuestionSets[len(d.QuestionSets)-1]
	for _, q := range qs.Questions {
		if len(q.Selected) == 0 {
			return true
		}
	}
	return false
}

func indexRowFrom(d domain.Discussion) IndexRow {
	var summaryText string
	var summaryCreatedAt *time.Time
	if s, ok := d.CurrentSummary(); ok {
		summaryText = s.SummaryText
		t := s.CreatedAt.Time
		summaryCreatedAt = &t
	}
	pending := pendingQuestionInput(d)
	return IndexRow{
		ID:               d.ID,
		UserID:           d.UserID,
		Topic:            d.Topic,
		FilePaths:        filePathsOf(d.Files),
		CurrentRound:     d.CurrentRound,
		CurrentTurn:      currentTurnOf(d),
		IsResolved:       d.IsResolved,
		LastTokenCount:   d.LastTokenCount,
		TokenLimit:       d.TokenBudget,
		Summary:          summaryText,
		SummaryCreatedAt: summaryCreatedAt,
		NeedsUserInput:   pending,
		UserInputPending: pending,
		CreatedAt:        d.CreatedAt.Time,
		UpdatedAt:        d.UpdatedAt.Time,
	}
}

// estimateDiscussionTokens recomputes the token estimate for the full
// assembled transcript (§4.3 is used by the Store for reconciliation).
func estimateDiscussionTokens(d domain.Discussion) int {
	texts := make([]string, 0, len(d.Rounds)*3+len(d.Summaries))
	for _, sum := range d.Summaries {
		texts = append(texts, sum.SummaryText)
	}
	for _, r := range d.Rounds {
		for _, resp := range []*domain.Response{r.AnalyzerResponse, r.SolverResponse, r.ModeratorResponse} {
			if resp != nil {
				texts = append(texts, resp.Content)
			}
		}
	}
	return tokenest.EstimateAll(texts...)
}
