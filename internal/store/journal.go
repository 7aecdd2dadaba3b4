package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"manifold/internal/apperror"
	"manifold/internal/domain"
)

// journalPaths returns the sibling structured-JSON and rendered-document
// paths for a discussion, nested under a per-user subdirectory (§6
// "a per-user directory"; §4.1: "two sibling files per discussion").
func journalPaths(dir, userID, id string) (jsonPath, renderedPath string) {
	userDir := filepath.Join(dir, userID)
	return filepath.Join(userDir, id+".json"), filepath.Join(userDir, id+".md")
}

// writeJournal performs the atomic two-file write: write to two temp
// paths, fsync each, rename in sequence, then verify both target paths
// exist. On any mid-write error both temp paths are best-effort removed
// (§4.1 Durability).
func writeJournal(dir string, d domain.Discussion) error {
	userDir := filepath.Join(dir, d.UserID)
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return apperror.Wrap(apperror.Transient, err, "create discussions directory")
	}

	jsonPath, renderedPath := journalPaths(dir, d.UserID, d.ID)
	jsonTmp, err := writeTempFile(userDir, ".journal-*.json", marshalJournal(d))
	if err != nil {
		return apperror.Wrap(apperror.Transient, err, "write journal temp file")
	}
	renderedTmp, err := writeTempFile(userDir, ".journal-*.md", []byte(renderDiscussion(d)))
	if err != nil {
		os.Remove(jsonTmp)
		return apperror.Wrap(apperror.Transient, err, "write rendered temp file")
	}

	if err := os.Rename(jsonTmp, jsonPath); err != nil {
		os.Remove(jsonTmp)
		os.Remove(renderedTmp)
		return apperror.Wrap(apperror.Transient, err, "rename journal file")
	}
	if err := os.Rename(renderedTmp, renderedPath); err != nil {
		os.Remove(renderedTmp)
		return apperror.Wrap(apperror.Transient, err, "rename rendered file")
	}

	if _, err := os.Stat(jsonPath); err != nil {
		return apperror.Wrap(apperror.Internal, err, "verify journal file after write")
	}
	if _, err := os.Stat(renderedPath); err != nil {
		return apperror.Wrap(apperror.Internal, err, "verify rendered file after write")
	}
	return nil
}

func writeTempFile(dir, pattern string, content []byte) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	tmpPath := f.Name()
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return tmpPath, nil
}

func marshalJournal(d domain.Discussion) []byte {
	b, _ := json.MarshalIndent(d, "", "  ")
	return b
}

// readJournal loads a Discussion from its structured JSON file.
func readJournal(dir, userID, id string) (domain.Discussion, error) {
	jsonPath, _ := journalPaths(dir, userID, id)
	b, err := os.ReadFile(jsonPath)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Discussion{}, apperror.New(apperror.Input, "discussion journal not found")
		}
		return domain.Discussion{}, apperror.Wrap(apperror.Transient, err, "read journal file")
	}
	var d domain.Discussion
	if err := json.Unmarshal(b, &d); err != nil {
		return domain.Discussion{}, apperror.Wrap(apperror.Internal, err, "decode journal file")
	}
	return d, nil
}

// deleteJournal removes both sibling files, best-effort.
func deleteJournal(dir, userID, id string) error {
	jsonPath, renderedPath := journalPaths(dir, userID, id)
	var firstErr error
	if err := os.Remove(jsonPath); err != nil && !os.IsNotExist(err) {
		firstErr = err
	}
	if err := os.Remove(renderedPath); err != nil && !os.IsNotExist(err) && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return apperror.Wrap(apperror.Transient, firstErr, "delete journal files")
	}
	return nil
}

// renderDiscussion produces the human-readable sibling document.
func renderDiscussion(d domain.Discussion) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Discussion %s\n\n", d.ID)
	fmt.Fprintf(&sb, "Topic: %s\n\n", d.Topic)
	fmt.Fprintf(&sb, "Current round: %d\n", d.CurrentRound)
	fmt.Fprintf(&sb, "Resolved: %v\n\n", d.IsResolved)

	for _, s := range d.Summaries {
		fmt.Fprintf(&sb, "## Summary at round %d (replaces %v)\n\n%s\n\n", s.RoundNumber, s.ReplacesRounds, s.SummaryText)
	}

	for _, r := range d.Rounds {
		fmt.Fprintf(&sb, "## Round %d (%s)\n\n", r.RoundNumber, r.Timestamp.Format(time.RFC3339))
		renderSlot(&sb, "Analyzer", r.AnalyzerResponse)
		renderSlot(&sb, "Solver", r.SolverResponse)
		renderSlot(&sb, "Moderator", r.ModeratorResponse)
	}
	return sb.String()
}

func renderSlot(sb *strings.Builder, label string, r *domain.Response) {
	if r == nil {
		return
	}
	fmt.Fprintf(sb, "### %s (turn %d)\n\n%s\n\n", label, r.Turn, r.Content)
}
