package question

import (
	"context"
	"testing"

	"manifold/internal/domain"
	"manifold/internal/llm"
)

type fakeStreamer struct {
	lastPrompt string
	response   string
	err        error
}

func (f *fakeStreamer) Stream(ctx context.Context, providerName string, models []string, msgs []llm.Message, h llm.StreamHandler) (string, error) {
	f.lastPrompt = msgs[0].Content
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func discussionWithRound(n int) domain.Discussion {
	return domain.Discussion{
		Topic: "cache design",
		Rounds: []domain.Round{{
			RoundNumber:       n,
			AnalyzerResponse:  &domain.Response{Content: "three candidate strategies"},
			SolverResponse:    &domain.Response{Content: "propose LRU"},
			ModeratorResponse: &domain.Response{Content: "needs a tiebreaker"},
		}},
	}
}

func TestGenerateParsesCleanJSON(t *testing.T) {
	streamer := &fakeStreamer{response: `{"questions":[{"prompt":"Which eviction policy?","options":["LRU","LFU","FIFO"]}]}`}
	g := New(streamer, Config{ProviderName: "anthropic", Models: []string{"model-a"}})

	qs, err := g.Generate(context.Background(), discussionWithRound(1), 1)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if qs.RoundNumber != 1 || len(qs.Questions) != 1 {
		t.Fatalf("unexpected question set: %+v", qs)
	}
	q := qs.Questions[0]
	if q.ID != "q1" || len(q.Options) != 3 {
		t.Fatalf("unexpected question: %+v", q)
	}
	if q.Options[0].ID != "q1o1" || q.Options[0].Text != "LRU" {
		t.Fatalf("unexpected option ids: %+v", q.Options)
	}
}

func TestGenerateToleratesProseWrappedJSON(t *testing.T) {
	streamer := &fakeStreamer{response: "Sure, here you go:\n```json\n{\"questions\":[{\"prompt\":\"Scope?\",\"options\":[\"narrow\",\"broad\"]}]}\n```\nLet me know if you need more."}
	g := New(streamer, Config{ProviderName: "anthropic", Models: []string{"model-a"}})

	qs, err := g.Generate(context.Background(), discussionWithRound(1), 1)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(qs.Questions) != 1 || qs.Questions[0].Prompt != "Scope?" {
		t.Fatalf("unexpected question set: %+v", qs)
	}
}

func TestGenerateDropsQuestionsWithTooFewOptions(t *testing.T) {
	streamer := &fakeStreamer{response: `{"questions":[{"prompt":"Bad","options":["only one"]},{"prompt":"Good","options":["a","b"]}]}`}
	g := New(streamer, Config{ProviderName: "anthropic", Models: []string{"model-a"}})

	qs, err := g.Generate(context.Background(), discussionWithRound(1), 1)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(qs.Questions) != 1 || qs.Questions[0].Prompt != "Good" {
		t.Fatalf("expected only the valid question to survive, got %+v", qs.Questions)
	}
}

func TestGenerateFailsForUnknownRound(t *testing.T) {
	streamer := &fakeStreamer{response: `{"questions":[]}`}
	g := New(streamer, Config{ProviderName: "anthropic", Models: []string{"model-a"}})

	if _, err := g.Generate(context.Background(), discussionWithRound(1), 5); err == nil {
		t.Fatalf("expected an error for a round that doesn't exist")
	}
}

func TestGenerateFailsWhenNoQuestionsSurvive(t *testing.T) {
	streamer := &fakeStreamer{response: `{"questions":[{"prompt":"","options":["a","b"]}]}`}
	g := New(streamer, Config{ProviderName: "anthropic", Models: []string{"model-a"}})

	if _, err := g.Generate(context.Background(), discussionWithRound(1), 1); err == nil {
		t.Fatalf("expected an error when every question is filtered out")
	}
}
