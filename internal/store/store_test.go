package store

import (
	"context"
	"testing"
	"time"

	"manifold/internal/apperror"
	"manifold/internal/domain"
	"manifold/internal/lock"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(Config{
		DiscussionsDir:     t.TempDir(),
		MaxRetries:         3,
		RetryDelayMS:       1,
		StaleAfterMinutes:  60,
		DefaultTokenBudget: 4000,
	}, NewMemoryIndex(), lock.New(lock.NewMemoryBackend(), 30*time.Second, 5*time.Minute, time.Millisecond))
}

func TestCreateThenRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d, err := s.Create(ctx, "user-1", "topic", "", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if d.ID == "" {
		t.Fatalf("expected generated id")
	}

	got, err := s.Read(ctx, d.ID, "user-1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.Topic != "topic" {
		t.Fatalf("unexpected topic %q", got.Topic)
	}
}

func TestReadRejectsWrongOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d, err := s.Create(ctx, "user-1", "topic", "", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	_, err = s.Read(ctx, d.ID, "user-2")
	if apperror.CategoryOf(err) != apperror.Auth {
		t.Fatalf("expected Auth category for wrong owner, got %v", err)
	}
}

func TestAppendRoundUpdatesCurrentRound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d, err := s.Create(ctx, "user-1", "topic", "", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	round := domain.Round{
		RoundNumber:       1,
		Timestamp:         domain.NewTimestamp(time.Now()),
		AnalyzerResponse:  &domain.Response{Persona: domain.PersonaAnalyzer, Content: "a"},
		SolverResponse:    &domain.Response{Persona: domain.PersonaSolver, Content: "s"},
		ModeratorResponse: &domain.Response{Persona: domain.PersonaModerator, Content: "m"},
	}
	if err := s.AppendRound(ctx, d.ID, "user-1", round); err != nil {
		t.Fatalf("AppendRound failed: %v", err)
	}

	got, err := s.Read(ctx, d.ID, "user-1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.CurrentRound != 1 || len(got.Rounds) != 1 {
		t.Fatalf("unexpected state after append: %+v", got)
	}
	if !got.Rounds[0].IsComplete() {
		t.Fatalf("expected appended round to be complete")
	}
}

func TestRecordAnswersRejectsUnknownQuestionID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d, err := s.Create(ctx, "user-1", "topic", "", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	qs := domain.QuestionSet{
		RoundNumber: 1,
		Questions:   []domain.Question{{ID: "q1", Prompt: "pick one", Options: []domain.Option{{ID: "o1", Text: "a"}}}},
	}
	if err := s.AppendQuestions(ctx, d.ID, "user-1", qs); err != nil {
		t.Fatalf("AppendQuestions failed: %v", err)
	}

	err = s.RecordAnswers(ctx, d.ID, "user-1", 1, map[string][]string{"unknown": {"o1"}})
	if apperror.CategoryOf(err) != apperror.Input {
		t.Fatalf("expected Input category for unknown question id, got %v", err)
	}

	if err := s.RecordAnswers(ctx, d.ID, "user-1", 1, map[string][]string{"q1": {"o1"}}); err != nil {
		t.Fatalf("expected known question id to be accepted: %v", err)
	}
}

func TestListByUserAndDeleteAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, "user-1", "topic-a", "", nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Create(ctx, "user-1", "topic-b", "", nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Create(ctx, "user-2", "topic-c", "", nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	rows, err := s.ListByUser(ctx, "user-1", 0)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 discussions for user-1, got %d", len(rows))
	}

	if err := s.DeleteAll(ctx, "user-1"); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	rows, err = s.ListByUser(ctx, "user-1", 0)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected 0 discussions after DeleteAll, got %d", len(rows))
	}
}

func TestEnsureSoleActiveForceResolvesStale(t *testing.T) {
	s := newTestStore(t)
	s.staleAfter = 30 * time.Millisecond
	ctx := context.Background()

	d1, err := s.Create(ctx, "user-1", "old", "", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	d2, err := s.Create(ctx, "user-1", "new", "", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	active, err := s.EnsureSoleActive(ctx, "user-1")
	if err != nil {
		t.Fatalf("EnsureSoleActive failed: %v", err)
	}
	if active != d2.ID {
		t.Fatalf("expected %q to remain active, got %q", d2.ID, active)
	}

	got, err := s.Read(ctx, d1.ID, "user-1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !got.IsResolved {
		t.Fatalf("expected stale discussion to be force-resolved")
	}
}
