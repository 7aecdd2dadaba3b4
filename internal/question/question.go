// Package question implements the Question Engine (§4.7): it asks a
// model to propose a small set of multi-select steering questions tied to
// a round's content, parses the structured response, and assigns stable
// option ids so answers recorded later can reference them unambiguously.
//
// Grounded on the JSON request/response shape of internal/llm/gemini.go's
// proxy handler, adapted from a raw HTTP passthrough into a single
// structured-output call through the provider registry.
package question

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"manifold/internal/domain"
	"manifold/internal/llm"
)

// Streamer is the narrow registry slice the Question Engine needs.
type Streamer interface {
	Stream(ctx context.Context, providerName string, models []string, msgs []llm.Message, h llm.StreamHandler) (string, error)
}

// Config bundles the provider/model pair and the bounds on generated sets.
type Config struct {
	ProviderName  string
	Models        []string
	QuestionCount int // questions requested per set; default 3
}

// Generator produces QuestionSets for a round (§4.7). It satisfies
// scheduler.QuestionGenerator.
type Generator struct {
	streamer Streamer
	cfg      Config
}

// New builds a Generator.
func New(streamer Streamer, cfg Config) *Generator {
	if cfg.QuestionCount <= 0 {
		cfg.QuestionCount = 3
	}
	return &Generator{streamer: streamer, cfg: cfg}
}

type discard struct{}

func (discard) OnDelta(string) {}

// rawQuestion is the wire shape a model is asked to emit; Options stores
// text only, ids are assigned locally so they stay stable regardless of
// what (if anything) the model invents for them.
type rawQuestion struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

type rawQuestionSet struct {
	Questions []rawQuestion `json:"questions"`
}

// Generate asks the model for steering questions about roundNumber and
// returns a validated QuestionSet: each question has 2-6 options with
// stable ids of the form "q<N>" for questions and "q<N>o<M>" for options.
func (g *Generator) Generate(ctx context.Context, d domain.Discussion, roundNumber int) (domain.QuestionSet, error) {
	round, ok := findRound(d, roundNumber)
	if !ok {
		return domain.QuestionSet{}, fmt.Errorf("question: no round %d to generate questions for", roundNumber)
	}

	prompt := buildPrompt(d.Topic, round, g.cfg.QuestionCount)
	text, err := g.streamer.Stream(ctx, g.cfg.ProviderName, g.cfg.Models, []llm.Message{
		{Role: "user", Content: prompt, Persona: "question-engine"},
	}, discard{})
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("question: generation call failed: %w", err)
	}

	raw, err := parseRawQuestionSet(text)
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("question: %w", err)
	}

	qs := domain.QuestionSet{RoundNumber: roundNumber}
	for qi, rq := range raw.Questions {
		opts := normalizeOptions(rq.Options)
		if len(opts) < 2 || len(opts) > 6 {
			continue
		}
		q := domain.Question{
			ID:     fmt.Sprintf("q%d", qi+1),
			Prompt: strings.TrimSpace(rq.Prompt),
		}
		for oi, text := range opts {
			q.Options = append(q.Options, domain.Option{ID: fmt.Sprintf("q%do%d", qi+1, oi+1), Text: text})
		}
		if q.Prompt == "" {
			continue
		}
		qs.Questions = append(qs.Questions, q)
	}
	if len(qs.Questions) == 0 {
		return domain.QuestionSet{}, fmt.Errorf("question: model response produced no usable questions")
	}
	return qs, nil
}

func normalizeOptions(opts []string) []string {
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		o = strings.TrimSpace(o)
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

// parseRawQuestionSet tolerates a model wrapping the JSON object in prose
// or a fenced code block, a common real-world deviation from "respond with
// only JSON" instructions.
func parseRawQuestionSet(text string) (rawQuestionSet, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end < start {
		return rawQuestionSet{}, fmt.Errorf("no JSON object found in model response")
	}
	var raw rawQuestionSet
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return rawQuestionSet{}, fmt.Errorf("decode question set: %w", err)
	}
	return raw, nil
}

func buildPrompt(topic string, r domain.Round, count int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\n", topic)
	sb.WriteString("Round under discussion:\n")
	if r.AnalyzerResponse != nil {
		fmt.Fprintf(&sb, "Analyzer: %s\n", r.AnalyzerResponse.Content)
	}
	if r.SolverResponse != nil {
		fmt.Fprintf(&sb, "Solver: %s\n", r.SolverResponse.Content)
	}
	if r.ModeratorResponse != nil {
		fmt.Fprintf(&sb, "Moderator: %s\n", r.ModeratorResponse.Content)
	}
	fmt.Fprintf(&sb, "\nPropose %d multi-select steering questions a user could answer to direct the next round. ", count)
	sb.WriteString("Each question must reference content from the round above and offer 2 to 6 options. ")
	sb.WriteString(`Respond with only a JSON object of the shape {"questions":[{"prompt":"...","options":["...","..."]}]}.`)
	return sb.String()
}

func findRound(d domain.Discussion, number int) (domain.Round, bool) {
	for _, r := range d.Rounds {
		if r.RoundNumber == number {
			return r, true
		}
	}
	return domain.Round{}, false
}
