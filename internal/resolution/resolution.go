// Package resolution implements the Resolution Detector (§4.10): given the
// most recently completed round, it classifies the discussion as resolved
// or not, delegating the classification itself to a model via a single
// structured-output call through the provider registry.
package resolution

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"manifold/internal/domain"
	"manifold/internal/llm"
)

// Streamer is the narrow registry slice the Detector needs.
type Streamer interface {
	Stream(ctx context.Context, providerName string, models []string, msgs []llm.Message, h llm.StreamHandler) (string, error)
}

// Config bundles the provider/model pair the Detector calls through.
type Config struct {
	ProviderName string
	Models       []string
}

// Detector classifies the latest complete round (§4.10). It satisfies
// scheduler.Resolver.
type Detector struct {
	streamer Streamer
	cfg      Config
}

// New builds a Detector.
func New(streamer Streamer, cfg Config) *Detector {
	return &Detector{streamer: streamer, cfg: cfg}
}

type discard struct{}

func (discard) OnDelta(string) {}

type rawVerdict struct {
	Resolved   bool    `json:"resolved"`
	Solution   string  `json:"solution"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Detect asks the model whether the discussion's most recent complete
// round reached consensus.
func (d *Detector) Detect(ctx context.Context, disc domain.Discussion) (domain.Resolution, error) {
	round, ok := lastCompleteRound(disc)
	if !ok {
		return domain.Resolution{}, fmt.Errorf("resolution: no complete round to classify")
	}

	prompt := buildPrompt(disc.Topic, round)
	text, err := d.streamer.Stream(ctx, d.cfg.ProviderName, d.cfg.Models, []llm.Message{
		{Role: "user", Content: prompt, Persona: "resolution-detector"},
	}, discard{})
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("resolution: classification call failed: %w", err)
	}

	raw, err := parseVerdict(text)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("resolution: %w", err)
	}

	confidence := raw.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return domain.Resolution{
		Resolved:   raw.Resolved,
		Solution:   strings.TrimSpace(raw.Solution),
		Confidence: confidence,
		Reason:     strings.TrimSpace(raw.Reason),
	}, nil
}

func parseVerdict(text string) (rawVerdict, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end < start {
		return rawVerdict{}, fmt.Errorf("no JSON object found in model response")
	}
	var raw rawVerdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return rawVerdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	return raw, nil
}

func buildPrompt(topic string, r domain.Round) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\n", topic)
	sb.WriteString("Most recent round:\n")
	if r.AnalyzerResponse != nil {
		fmt.Fprintf(&sb, "Analyzer: %s\n", r.AnalyzerResponse.Content)
	}
	if r.SolverResponse != nil {
		fmt.Fprintf(&sb, "Solver: %s\n", r.SolverResponse.Content)
	}
	if r.ModeratorResponse != nil {
		fmt.Fprintf(&sb, "Moderator: %s\n", r.ModeratorResponse.Content)
	}
	sb.WriteString("\nDid the group reach consensus on a solution in this round? ")
	sb.WriteString(`Respond with only a JSON object of the shape {"resolved":bool,"solution":"...","confidence":0.0,"reason":"..."}. `)
	sb.WriteString(`Leave "solution" empty and "confidence" at 0 when unresolved.`)
	return sb.String()
}

func lastCompleteRound(d domain.Discussion) (domain.Round, bool) {
	for i := len(d.Rounds) - 1; i >= 0; i-- {
		if d.Rounds[i].IsComplete() {
			return d.Rounds[i], true
		}
	}
	return domain.Round{}, false
}
