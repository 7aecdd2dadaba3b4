package scheduler

import (
	"context"

	"manifold/internal/domain"
	"manifold/internal/llm"
)

// Streamer is the narrow slice of the provider registry the scheduler
// needs: run the fallback chain for one persona turn (§4.5). Satisfied by
// *providers.Registry.
type Streamer interface {
	Stream(ctx context.Context, providerName string, models []string, msgs []llm.Message, h llm.StreamHandler) (string, error)
}

// Resolver classifies the most recently completed round (§4.10). Satisfied
// by internal/resolution's Detector.
type Resolver interface {
	Detect(ctx context.Context, d domain.Discussion) (domain.Resolution, error)
}

// Summarizer installs a fresh compacted summary when the token budget is
// exceeded (§4.6). Satisfied by internal/summarizer's Summarizer.
type Summarizer interface {
	Summarize(ctx context.Context, d domain.Discussion) (domain.Summary, error)
}

// QuestionGenerator produces a QuestionSet for a round (§4.7). Satisfied by
// internal/question's Generator.
type QuestionGenerator interface {
	Generate(ctx context.Context, d domain.Discussion, roundNumber int) (domain.QuestionSet, error)
}
