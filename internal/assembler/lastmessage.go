package assembler

import (
	"context"
	"strings"

	"manifold/internal/apperror"
	"manifold/internal/domain"
	"manifold/internal/observability"
)

// LastMessage is the response a persona's new contribution replies to.
type LastMessage struct {
	Persona     domain.Persona
	Content     string
	RoundNumber int
}

// findRound returns the round with the given number, if present.
func findRound(d domain.Discussion, number int) (domain.Round, bool) {
	for _, r := range d.Rounds {
		if r.RoundNumber == number {
			return r, true
		}
	}
	return domain.Round{}, false
}

// selectLastMessage implements the §4.4 "respond to" contract: Analyzer
// replies to the previous completed round's Moderator (or nothing at round
// 1); Solver and Moderator reply to this round's Analyzer/Solver response
// respectively. A malformed journal (a round marked reachable without the
// response the contract requires) is repaired by walking back to the most
// recent round that does satisfy it; if none exists, assembly fails rather
// than proceed on a broken invariant.
func selectLastMessage(ctx context.Context, d domain.Discussion, persona domain.Persona, roundNumber int) (*LastMessage, error) {
	switch persona {
	case domain.PersonaAnalyzer:
		return lastMessageForAnalyzer(ctx, d, roundNumber)
	case domain.PersonaSolver:
		round, ok := findRound(d, roundNumber)
		if !ok || !nonEmptyResponse(round.AnalyzerResponse) {
			return nil, apperror.New(apperror.Internal, "solver has no analyzer response to reply to in the current round")
		}
		return &LastMessage{Persona: domain.PersonaAnalyzer, Content: round.AnalyzerResponse.Content, RoundNumber: roundNumber}, nil
	case domain.PersonaModerator:
		round, ok := findRound(d, roundNumber)
		if !ok || !nonEmptyResponse(round.SolverResponse) {
			return nil, apperror.New(apperror.Internal, "moderator has no solver response to reply to in the current round")
		}
		return &LastMessage{Persona: domain.PersonaSolver, Content: round.SolverResponse.Content, RoundNumber: roundNumber}, nil
	default:
		return nil, apperror.New(apperror.Internal, "unknown persona: "+string(persona))
	}
}

// errNoHistory marks the "discussion is not truly fresh but has no usable
// history" case described in §4.4: a round > 1 was requested against a
// journal holding no rounds at all. This is not a repairable invariant
// violation; Assemble falls back to the sixth template instead of failing.
var errNoHistory = apperror.New(apperror.Internal, "no history available to determine a respond-to target")

func lastMessageForAnalyzer(ctx context.Context, d domain.Discussion, roundNumber int) (*LastMessage, error) {
	if roundNumber <= 1 {
		return nil, nil
	}
	if len(d.Rounds) == 0 {
		return nil, errNoHistory
	}

	want := roundNumber - 1
	for r := want; r >= 1; r-- {
		round, ok := findRound(d, r)
		if !ok {
			continue
		}
		if nonEmptyResponse(round.ModeratorResponse) {
			if r != want {
				observability.LoggerWithTrace(ctx).Error().
					Str("discussion_id", d.ID).
					Int("expected_round", want).
					Int("repaired_round", r).
					Msg("context assembler repaired a broken respond-to invariant")
			}
			return &LastMessage{Persona: domain.PersonaModerator, Content: round.ModeratorResponse.Content, RoundNumber: r}, nil
		}
	}

	return nil, apperror.New(apperror.Internal, "no completed round with a moderator response found to continue from")
}

func nonEmptyResponse(r *domain.Response) bool {
	return r != nil && strings.TrimSpace(r.Content) != ""
}
