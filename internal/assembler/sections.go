package assembler

import (
	"fmt"
	"sort"
	"strings"

	"manifold/internal/domain"
)

func topicLine(d domain.Discussion) string {
	return fmt.Sprintf("Topic: %s", d.Topic)
}

// summaryBlock renders every installed summary in chronological order and
// states, for each, which rounds it replaces. Returns "" when no summary has
// been installed yet.
func summaryBlock(d domain.Discussion) string {
	if len(d.Summaries) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Prior discussion has been condensed into the following summaries. ")
	sb.WriteString("Treat each summary as replacing the rounds it lists; do not ask the group to repeat them.\n")
	for _, s := range d.Summaries {
		sb.WriteString(fmt.Sprintf("\nSummary (replaces rounds %s):\n%s\n", formatRoundList(s.ReplacesRounds), s.SummaryText))
	}
	return sb.String()
}

func formatRoundList(rounds []int) string {
	if len(rounds) == 0 {
		return "none"
	}
	cp := make([]int, len(rounds))
	copy(cp, rounds)
	sort.Ints(cp)
	parts := make([]string, len(cp))
	for i, r := range cp {
		parts[i] = fmt.Sprintf("%d", r)
	}
	return strings.Join(parts, ", ")
}

// fileManifest renders names, types, and sizes for attached files. Extracted
// text (produced upstream by the PDF extractor or encoded by the non-PDF
// manifest fallback per §4.5) is appended under its file so the persona
// actually sees the content, not just its existence.
func fileManifest(files []domain.FileAttachment) string {
	if len(files) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Attached files:\n")
	for _, f := range files {
		sb.WriteString(fmt.Sprintf("- %s (%s, %d bytes)\n", f.Name, f.ContentType, f.SizeBytes))
		if strings.TrimSpace(f.ExtractedText) != "" {
			sb.WriteString(fmt.Sprintf("  extracted content:\n  %s\n", strings.ReplaceAll(f.ExtractedText, "\n", "\n  ")))
		}
	}
	return sb.String()
}

// userAnswersBlock renders answered questions from every question set whose
// round is within the assembler's current inclusion window. Question sets of
// rounds before minRoundNumber are not rendered here; the Summarizer folds
// those rounds' recorded answers into the recap text of the summary block.
func userAnswersBlock(d domain.Discussion, minRoundNumber int) string {
	var sb strings.Builder
	wrote := false
	for _, qs := range d.QuestionSets {
		if qs.RoundNumber < minRoundNumber {
			continue
		}
		for _, q := range qs.Questions {
			if len(q.Selected) == 0 {
				continue
			}
			if !wrote {
				sb.WriteString("User steering answers:\n")
				wrote = true
			}
			sb.WriteString(fmt.Sprintf("- %s => %s\n", q.Prompt, strings.Join(selectedText(q), "; ")))
		}
	}
	if !wrote {
		return ""
	}
	return sb.String()
}

func selectedText(q domain.Question) []string {
	byID := make(map[string]string, len(q.Options))
	for _, o := range q.Options {
		byID[o.ID] = o.Text
	}
	out := make([]string, 0, len(q.Selected))
	for _, id := range q.Selected {
		if text, ok := byID[id]; ok {
			out = append(out, text)
		} else {
			out = append(out, id)
		}
	}
	return out
}

// transcriptWindow decides the minimum round number to include, per the
// §4.4 rule: rounds after the current summary's round_number, or all rounds
// when no summary has been installed.
func transcriptWindow(d domain.Discussion) int {
	if s, ok := d.CurrentSummary(); ok {
		return s.RoundNumber + 1
	}
	return 1
}

// transcriptBlock renders every included round, splitting completed rounds
// from the single optional in-progress round matching roundNumber.
func transcriptBlock(d domain.Discussion, minRoundNumber, roundNumber int) string {
	var sb strings.Builder
	wroteAny := false
	for _, r := range d.Rounds {
		if r.RoundNumber < minRoundNumber || r.IsEmpty() {
			continue
		}
		if r.RoundNumber == roundNumber && !r.IsComplete() {
			continue
		}
		sb.WriteString(renderRound(r))
		wroteAny = true
	}

	if current, ok := findRound(d, roundNumber); ok && !current.IsComplete() && !current.IsEmpty() {
		sb.WriteString(renderRound(current))
		wroteAny = true
	}

	if !wroteAny {
		return ""
	}
	return "Transcript so far:\n" + sb.String()
}

func renderRound(r domain.Round) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("\nRound %d:\n", r.RoundNumber))
	if r.AnalyzerResponse != nil {
		sb.WriteString(fmt.Sprintf("Analyzer: %s\n", r.AnalyzerResponse.Content))
	}
	if r.SolverResponse != nil {
		sb.WriteString(fmt.Sprintf("Solver: %s\n", r.SolverResponse.Content))
	}
	if r.ModeratorResponse != nil {
		sb.WriteString(fmt.Sprintf("Moderator: %s\n", r.ModeratorResponse.Content))
	}
	return sb.String()
}
