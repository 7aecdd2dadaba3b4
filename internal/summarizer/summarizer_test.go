package summarizer

import (
	"context"
	"strings"
	"testing"
	"time"

	"manifold/internal/domain"
	"manifold/internal/llm"
)

type fakeStreamer struct {
	lastMsgs []llm.Message
	response string
	err      error
}

func (f *fakeStreamer) Stream(ctx context.Context, providerName string, models []string, msgs []llm.Message, h llm.StreamHandler) (string, error) {
	f.lastMsgs = msgs
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func completeRound(n int) domain.Round {
	return domain.Round{
		RoundNumber:       n,
		AnalyzerResponse:  &domain.Response{Persona: domain.PersonaAnalyzer, Content: "analysis"},
		SolverResponse:    &domain.Response{Persona: domain.PersonaSolver, Content: "proposal"},
		ModeratorResponse: &domain.Response{Persona: domain.PersonaModerator, Content: "verdict"},
	}
}

func TestSummarizeFoldsAllCompleteRoundsWhenNoPriorSummary(t *testing.T) {
	streamer := &fakeStreamer{response: "condensed recap"}
	s := New(streamer, Config{ProviderName: "anthropic", Models: []string{"model-a"}})

	d := domain.Discussion{
		Topic:  "cache design",
		Rounds: []domain.Round{completeRound(1), completeRound(2)},
	}

	summary, err := s.Summarize(context.Background(), d)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if summary.RoundNumber != 2 {
		t.Fatalf("expected round_number 2, got %d", summary.RoundNumber)
	}
	if len(summary.ReplacesRounds) != 2 || summary.ReplacesRounds[0] != 1 || summary.ReplacesRounds[1] != 2 {
		t.Fatalf("expected replaces_rounds [1 2], got %v", summary.ReplacesRounds)
	}
	if summary.SummaryText != "condensed recap" {
		t.Fatalf("unexpected summary text: %q", summary.SummaryText)
	}
	if summary.TokenCountAfter == 0 {
		t.Fatalf("expected non-zero token_count_after")
	}

	prompt := streamer.lastMsgs[0].Content
	if !strings.Contains(prompt, "cache design") || !strings.Contains(prompt, "Round 1") || !strings.Contains(prompt, "Round 2") {
		t.Fatalf("expected recap prompt to reference topic and both rounds, got %q", prompt)
	}
}

func TestSummarizeOnlySubsumesRoundsAfterPriorSummary(t *testing.T) {
	streamer := &fakeStreamer{response: "newer recap"}
	s := New(streamer, Config{ProviderName: "anthropic", Models: []string{"model-a"}})

	d := domain.Discussion{
		Topic: "cache design",
		Rounds: []domain.Round{
			completeRound(1), completeRound(2), completeRound(3),
		},
		Summaries: []domain.Summary{
			{RoundNumber: 2, ReplacesRounds: []int{1, 2}, SummaryText: "earlier recap", CreatedAt: domain.NewTimestamp(time.Now())},
		},
	}

	summary, err := s.Summarize(context.Background(), d)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if len(summary.ReplacesRounds) != 1 || summary.ReplacesRounds[0] != 3 {
		t.Fatalf("expected only round 3 to be freshly subsumed, got %v", summary.ReplacesRounds)
	}
	if summary.RoundNumber != 3 {
		t.Fatalf("expected round_number 3, got %d", summary.RoundNumber)
	}

	prompt := streamer.lastMsgs[0].Content
	if !strings.Contains(prompt, "earlier recap") {
		t.Fatalf("expected prior summary text to be folded into the prompt, got %q", prompt)
	}
	if strings.Contains(prompt, "Round 1:") || strings.Contains(prompt, "Round 2:") {
		t.Fatalf("expected already-subsumed rounds not to be re-rendered, got %q", prompt)
	}
}

func TestSummarizeFailsWithNothingToSubsume(t *testing.T) {
	streamer := &fakeStreamer{response: "unused"}
	s := New(streamer, Config{ProviderName: "anthropic", Models: []string{"model-a"}})

	d := domain.Discussion{
		Topic:     "cache design",
		Rounds:    []domain.Round{completeRound(1), completeRound(2)},
		Summaries: []domain.Summary{{RoundNumber: 2, ReplacesRounds: []int{1, 2}, SummaryText: "recap"}},
	}

	if _, err := s.Summarize(context.Background(), d); err == nil {
		t.Fatalf("expected an error when every round is already subsumed")
	}
}

func TestSummarizeSkipsIncompleteRounds(t *testing.T) {
	streamer := &fakeStreamer{response: "recap"}
	s := New(streamer, Config{ProviderName: "anthropic", Models: []string{"model-a"}})

	incomplete := domain.Round{RoundNumber: 2, AnalyzerResponse: &domain.Response{Content: "partial"}}
	d := domain.Discussion{
		Topic:  "cache design",
		Rounds: []domain.Round{completeRound(1), incomplete},
	}

	summary, err := s.Summarize(context.Background(), d)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if len(summary.ReplacesRounds) != 1 || summary.ReplacesRounds[0] != 1 {
		t.Fatalf("expected only the complete round to be subsumed, got %v", summary.ReplacesRounds)
	}
}

func TestSummarizeFoldsRecordedUserAnswersIntoPrompt(t *testing.T) {
	streamer := &fakeStreamer{response: "recap"}
	s := New(streamer, Config{ProviderName: "anthropic", Models: []string{"model-a"}})

	d := domain.Discussion{
		Topic:  "cache design",
		Rounds: []domain.Round{completeRound(1)},
		QuestionSets: []domain.QuestionSet{
			{
				RoundNumber: 1,
				Questions: []domain.Question{
					{
						ID:       "q1",
						Prompt:   "Should we evict by LRU or LFU?",
						Options:  []domain.Option{{ID: "lru", Text: "LRU"}, {ID: "lfu", Text: "LFU"}},
						Selected: []string{"lru"},
					},
					{
						ID:      "q2",
						Prompt:  "unanswered question",
						Options: []domain.Option{{ID: "a", Text: "A"}},
					},
				},
			},
		},
	}

	if _, err := s.Summarize(context.Background(), d); err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	prompt := streamer.lastMsgs[0].Content
	if !strings.Contains(prompt, "Should we evict by LRU or LFU?") || !strings.Contains(prompt, "LRU") {
		t.Fatalf("expected recorded user answer to be folded into the recap prompt verbatim, got %q", prompt)
	}
	if strings.Contains(prompt, "unanswered question") {
		t.Fatalf("expected unanswered question not to be rendered, got %q", prompt)
	}
}
