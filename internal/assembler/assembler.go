// Package assembler builds the prompt string sent to a provider for a given
// (discussion, responding persona, round number) per §4.4. It owns the
// "respond to" selection contract, the summary/transcript inclusion window,
// and the four prompt templates (plus a defensive fallback).
package assembler

import (
	"context"
	"errors"
	"strings"

	"manifold/internal/domain"
)

// Input is everything the assembler needs to produce a prompt.
type Input struct {
	Discussion  domain.Discussion
	Persona     domain.Persona
	RoundNumber int
	Files       []domain.FileAttachment
}

// Result carries the assembled prompt plus the template and respond-to
// target that produced it, so callers (the scheduler, diagnostics) can log
// or assert on them without re-deriving.
type Result struct {
	Prompt      string
	Template    Template
	LastMessage *LastMessage
}

// Assemble builds the full prompt for in.Persona to contribute to
// in.RoundNumber of in.Discussion.
func Assemble(ctx context.Context, in Input) (Result, error) {
	last, err := selectLastMessage(ctx, in.Discussion, in.Persona, in.RoundNumber)
	var tmpl Template
	switch {
	case errors.Is(err, errNoHistory):
		tmpl = TemplateFallback
		last = nil
	case err != nil:
		return Result{}, err
	default:
		tmpl = selectTemplate(in.Persona, in.RoundNumber, last)
	}

	minRound := transcriptWindow(in.Discussion)

	var sb strings.Builder
	writeSection(&sb, topicLine(in.Discussion))
	writeSection(&sb, summaryBlock(in.Discussion))
	writeSection(&sb, fileManifest(in.Files))
	writeSection(&sb, userAnswersBlock(in.Discussion, minRound))
	writeSection(&sb, transcriptBlock(in.Discussion, minRound, in.RoundNumber))
	writeSection(&sb, continuationInstruction(tmpl, in.Persona, in.RoundNumber, last))

	return Result{Prompt: sb.String(), Template: tmpl, LastMessage: last}, nil
}

// AssembleUserInput builds the "user-input" template path: a free-text user
// contribution is the thing responses reply to. Retained for compatibility;
// the interactive surface does not currently emit the inbound event that
// would reach this path (§4.4).
func AssembleUserInput(ctx context.Context, in Input, userMessage string) (Result, error) {
	last := &LastMessage{Persona: domain.Persona("user"), Content: userMessage, RoundNumber: in.RoundNumber}
	minRound := transcriptWindow(in.Discussion)

	var sb strings.Builder
	writeSection(&sb, topicLine(in.Discussion))
	writeSection(&sb, summaryBlock(in.Discussion))
	writeSection(&sb, fileManifest(in.Files))
	writeSection(&sb, userAnswersBlock(in.Discussion, minRound))
	writeSection(&sb, transcriptBlock(in.Discussion, minRound, in.RoundNumber))
	writeSection(&sb, continuationInstruction(TemplateUserInput, in.Persona, in.RoundNumber, last))

	return Result{Prompt: sb.String(), Template: TemplateUserInput, LastMessage: last}, nil
}

func writeSection(sb *strings.Builder, section string) {
	if section == "" {
		return
	}
	if sb.Len() > 0 {
		sb.WriteString("\n\n")
	}
	sb.WriteString(section)
}
