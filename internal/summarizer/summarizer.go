// Package summarizer implements the Summarizer (§4.6): it runs once a
// discussion's assembled context crosses its token budget, folding the
// currently-visible rounds (and any prior summary) into one fresh prose
// recap so the Context Assembler's inclusion window can shift forward.
//
// It is grounded on the single-shot classification shape of
// internal/llm/gemini.go's helper client and reuses the Round Scheduler's
// narrow view of the provider registry (internal/llm/providers/factory.go)
// rather than depending on the scheduler package directly.
package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"manifold/internal/domain"
	"manifold/internal/llm"
	"manifold/internal/tokenest"
)

// Streamer is the narrow registry slice the Summarizer needs: a single
// completion call, no streaming callback required for its own output.
type Streamer interface {
	Stream(ctx context.Context, providerName string, models []string, msgs []llm.Message, h llm.StreamHandler) (string, error)
}

// Config bundles the provider/model pair the Summarizer calls through.
type Config struct {
	ProviderName string
	Models       []string
}

// Summarizer installs a compacted Summary when a discussion's token count
// reaches its budget (§4.6). It satisfies scheduler.Summarizer.
type Summarizer struct {
	streamer Streamer
	cfg      Config
}

// New builds a Summarizer.
func New(streamer Streamer, cfg Config) *Summarizer {
	return &Summarizer{streamer: streamer, cfg: cfg}
}

// discard is a no-op StreamHandler: the Summarizer only needs the final
// accumulated text, never incremental chunks.
type discard struct{}

func (discard) OnDelta(string) {}

// Summarize produces a fresh Summary covering every round since the
// discussion's current summary (or since round 1, if none), folding the
// prior summary's text in as context rather than re-listing its rounds.
func (s *Summarizer) Summarize(ctx context.Context, d domain.Discussion) (domain.Summary, error) {
	windowStart := 1
	var priorText string
	if prior, ok := d.CurrentSummary(); ok {
		windowStart = prior.RoundNumber + 1
		priorText = prior.SummaryText
	}

	subsumed := make([]int, 0, len(d.Rounds))
	var inputTexts []string
	if priorText != "" {
		inputTexts = append(inputTexts, priorText)
	}
	for _, r := range d.Rounds {
		if r.RoundNumber < windowStart || !r.IsComplete() {
			continue
		}
		subsumed = append(subsumed, r.RoundNumber)
		inputTexts = append(inputTexts, renderRoundForRecap(r, d.QuestionSets))
	}
	if len(subsumed) == 0 {
		return domain.Summary{}, fmt.Errorf("summarizer: no complete round at or after %d to subsume", windowStart)
	}

	prompt := buildRecapPrompt(d.Topic, priorText, inputTexts)
	text, err := s.streamer.Stream(ctx, s.cfg.ProviderName, s.cfg.Models, []llm.Message{
		{Role: "user", Content: prompt, Persona: "summarizer"},
	}, discard{})
	if err != nil {
		return domain.Summary{}, fmt.Errorf("summarizer: recap call failed: %w", err)
	}

	summaryText := strings.TrimSpace(text)
	roundNumber := subsumed[len(subsumed)-1]
	return domain.Summary{
		RoundNumber:      roundNumber,
		ReplacesRounds:   subsumed,
		SummaryText:      summaryText,
		TokenCountBefore: tokenest.EstimateAll(inputTexts...),
		TokenCountAfter:  tokenest.Estimate(summaryText),
		CreatedAt:        domain.NewTimestamp(time.Now().UTC()),
	}, nil
}

// renderRoundForRecap renders a round's three responses plus any recorded
// user steering answers for that round, so the recap prompt actually
// carries the answer text rather than merely being told to "preserve" it
// (§4.6: "Summaries never drop user answers").
func renderRoundForRecap(r domain.Round, questionSets []domain.QuestionSet) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Round %d:\n", r.RoundNumber)
	if r.AnalyzerResponse != nil {
		fmt.Fprintf(&sb, "Analyzer: %s\n", r.AnalyzerResponse.Content)
	}
	if r.SolverResponse != nil {
		fmt.Fprintf(&sb, "Solver: %s\n", r.SolverResponse.Content)
	}
	if r.ModeratorResponse != nil {
		fmt.Fprintf(&sb, "Moderator: %s\n", r.ModeratorResponse.Content)
	}
	if answers := renderAnswersForRound(r.RoundNumber, questionSets); answers != "" {
		sb.WriteString(answers)
	}
	return sb.String()
}

// renderAnswersForRound renders every answered question from the question
// set attached to roundNumber as "<prompt>: <selected option labels>"
// lines, attributed to the user. Unanswered questions (no Selected) are
// skipped since there is nothing to preserve.
func renderAnswersForRound(roundNumber int, questionSets []domain.QuestionSet) string {
	var sb strings.Builder
	for _, qs := range questionSets {
		if qs.RoundNumber != roundNumber {
			continue
		}
		for _, q := range qs.Questions {
			if len(q.Selected) == 0 {
				continue
			}
			labels := optionLabels(q.Options, q.Selected)
			fmt.Fprintf(&sb, "User answer to %q: %s\n", q.Prompt, strings.Join(labels, "; "))
		}
	}
	if sb.Len() == 0 {
		return ""
	}
	return sb.String()
}

// optionLabels resolves selected option ids to their display text, falling
// back to the raw id if it does not match any known option.
func optionLabels(options []domain.Option, selected []string) []string {
	byID := make(map[string]string, len(options))
	for _, o := range options {
		byID[o.ID] = o.Text
	}
	out := make([]string, len(selected))
	for i, id := range selected {
		if text, ok := byID[id]; ok {
			out[i] = text
		} else {
			out[i] = id
		}
	}
	return out
}

func buildRecapPrompt(topic, priorSummary string, rounds []string) string {
	var sb strings.Builder
	sb.WriteString("Condense the following multi-persona deliberation into a single self-contained recap.\n")
	fmt.Fprintf(&sb, "Topic: %s\n", topic)
	sb.WriteString("Preserve every decision reached, every open question still unresolved, and any user steering answers verbatim or with explicit attribution. ")
	sb.WriteString("Write prose, not a transcript; a reader with no other context must be able to continue the discussion from your recap alone.\n\n")
	if priorSummary != "" {
		sb.WriteString("Existing summary to fold in:\n")
		sb.WriteString(priorSummary)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Rounds to fold in:\n")
	for _, r := range rounds {
		sb.WriteString(r)
		sb.WriteString("\n")
	}
	return sb.String()
}
