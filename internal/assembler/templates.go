package assembler

import (
	"fmt"

	"manifold/internal/domain"
)

// Template names the one of four prompt shapes (plus fallback) §4.4 assigns
// to a given (persona, round, last_message) combination.
type Template string

const (
	TemplateFirstMessage Template = "first-message"
	TemplateNewRound     Template = "new-round"
	TemplateContinuation Template = "continuation"
	TemplateUserInput    Template = "user-input"
	TemplateFallback     Template = "fallback"
)

func selectTemplate(persona domain.Persona, roundNumber int, last *LastMessage) Template {
	if persona == domain.PersonaAnalyzer && roundNumber == 1 && last == nil {
		return TemplateFirstMessage
	}
	if persona == domain.PersonaAnalyzer && roundNumber > 1 {
		return TemplateNewRound
	}
	if persona == domain.PersonaSolver || persona == domain.PersonaModerator {
		return TemplateContinuation
	}
	return TemplateFallback
}

func continuationInstruction(tmpl Template, persona domain.Persona, roundNumber int, last *LastMessage) string {
	switch tmpl {
	case TemplateFirstMessage:
		return "You are the Analyzer. Open the discussion: break the topic down into its core considerations. There is no prior discussion to respond to."
	case TemplateNewRound:
		return fmt.Sprintf(
			"You are the Analyzer starting round %d. Read the Moderator's closing remarks from round %d below and extend or challenge the analysis accordingly.\n\nModerator (round %d): %s",
			roundNumber, last.RoundNumber, last.RoundNumber, last.Content,
		)
	case TemplateContinuation:
		role := "Solver"
		repliedRole := "Analyzer"
		if persona == domain.PersonaModerator {
			role = "Moderator"
			repliedRole = "Solver"
		}
		return fmt.Sprintf(
			"You are the %s for round %d. Respond directly to the %s's contribution below.\n\n%s: %s",
			role, roundNumber, repliedRole, repliedRole, last.Content,
		)
	case TemplateUserInput:
		return fmt.Sprintf("A user contribution was just added to the discussion. Respond to it directly.\n\nUser: %s", last.Content)
	default:
		return "Continue the discussion using your assigned role and the transcript above; no specific prior message could be identified to reply to."
	}
}
