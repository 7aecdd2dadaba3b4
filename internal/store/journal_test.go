package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"manifold/internal/domain"
)

func sampleDiscussion() domain.Discussion {
	now := domain.NewTimestamp(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	return domain.Discussion{
		ID:        "disc-1",
		UserID:    "user-1",
		Topic:     "should we ship it",
		CreatedAt: now,
		UpdatedAt: now,
		Rounds: []domain.Round{
			{
				RoundNumber:      1,
				Timestamp:        now,
				AnalyzerResponse: &domain.Response{Persona: domain.PersonaAnalyzer, Content: "analysis", Turn: 1},
			},
		},
	}
}

func TestWriteThenReadJournalRoundTrips(t *testing.T) {
	dir := t.TempDir()
	d := sampleDiscussion()

	if err := writeJournal(dir, d); err != nil {
		t.Fatalf("writeJournal failed: %v", err)
	}

	got, err := readJournal(dir, d.UserID, d.ID)
	if err != nil {
		t.Fatalf("readJournal failed: %v", err)
	}
	if got.ID != d.ID || got.Topic != d.Topic {
		t.Fatalf("unexpected round-tripped discussion: %+v", got)
	}
	if len(got.Rounds) != 1 || got.Rounds[0].AnalyzerResponse.Content != "analysis" {
		t.Fatalf("unexpected rounds after round trip: %+v", got.Rounds)
	}
}

func TestWriteJournalLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	d := sampleDiscussion()
	if err := writeJournal(dir, d); err != nil {
		t.Fatalf("writeJournal failed: %v", err)
	}
	entries, err := readDirNames(filepath.Join(dir, d.UserID))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, name := range entries {
		if strings.HasPrefix(name, ".journal-") {
			t.Fatalf("expected no leftover temp files, found %q", name)
		}
	}
}

func TestJournalNestsUnderPerUserDirectory(t *testing.T) {
	dir := t.TempDir()
	d := sampleDiscussion()
	if err := writeJournal(dir, d); err != nil {
		t.Fatalf("writeJournal failed: %v", err)
	}
	jsonPath, renderedPath := journalPaths(dir, d.UserID, d.ID)
	if _, err := os.Stat(jsonPath); err != nil {
		t.Fatalf("expected journal json under per-user directory: %v", err)
	}
	if _, err := os.Stat(renderedPath); err != nil {
		t.Fatalf("expected rendered doc under per-user directory: %v", err)
	}
	if !strings.Contains(jsonPath, filepath.Join(dir, d.UserID)) {
		t.Fatalf("expected journal path to nest under %q, got %q", d.UserID, jsonPath)
	}
}

func TestReadJournalMissingReturnsNotFoundClass(t *testing.T) {
	dir := t.TempDir()
	if _, err := readJournal(dir, "user-1", "does-not-exist"); err == nil {
		t.Fatalf("expected error for missing journal")
	}
}

func TestRenderDiscussionIncludesRoundsAndSummaries(t *testing.T) {
	d := sampleDiscussion()
	d.Summaries = []domain.Summary{{RoundNumber: 1, SummaryText: "condensed"}}
	rendered := renderDiscussion(d)
	if !strings.Contains(rendered, "condensed") {
		t.Fatalf("expected rendered document to include summary text")
	}
	if !strings.Contains(rendered, "analysis") {
		t.Fatalf("expected rendered document to include round content")
	}
}

func readDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
