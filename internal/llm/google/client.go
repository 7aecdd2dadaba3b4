// Package google adapts Gemini models to the llm.Provider interface (§4.5).
package google

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"manifold/internal/config"
	"manifold/internal/llm"
	"manifold/internal/observability"
)

// Client streams completions against the Gemini GenerateContent API.
type Client struct {
	client *genai.Client
	model  string
}

// New builds a Client from a resolved provider configuration (§6).
func New(cfg config.ProviderConfig, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}

	httpOpts := genai.HTTPOptions{}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("init google client: %w", err)
	}

	return &Client{client: client, model: model}, nil
}

// Stream implements llm.Provider.
func (c *Client) Stream(ctx context.Context, msgs []llm.Message, model string, h llm.StreamHandler) (string, error) {
	effectiveModel := c.pickModel(model)

	ctx, span := llm.StartRequestSpan(ctx, "google.Stream", effectiveModel, len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	contents, err := toContents(msgs)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	start := time.Now()
	stream := c.client.Models.GenerateContentStream(ctx, effectiveModel, contents, &genai.GenerateContentConfig{})

	var full strings.Builder
	for resp, err := range stream {
		if err != nil {
			dur := time.Since(start)
			span.RecordError(err)
			log.Error().Err(err).Dur("duration", dur).Msg("google_stream_error")
			return full.String(), err
		}
		text, skip, err := textFromChunk(resp)
		if err != nil {
			span.RecordError(err)
			return full.String(), err
		}
		if skip || text == "" {
			continue
		}
		full.WriteString(text)
		if h != nil {
			h.OnDelta(text)
		}
	}

	dur := time.Since(start)
	llm.LogRedactedResponse(ctx, full.String())
	log.Debug().Str("model", effectiveModel).Dur("duration", dur).Msg("google_stream_ok")

	return full.String(), nil
}

func (c *Client) pickModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}

func toContents(msgs []llm.Message) ([]*genai.Content, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("google provider: messages required")
	}
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		text := m.Content
		switch role {
		case "assistant":
			role = genai.RoleModel
		case "system":
			role = genai.RoleUser
			text = "[system] " + text
		default:
			role = genai.RoleUser
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		contents = append(contents, genai.NewContentFromText(text, role))
	}
	return contents, nil
}

// textFromChunk extracts text from a streaming response chunk. Intermediate
// chunks with no candidates or nil content are normal and skipped.
func textFromChunk(resp *genai.GenerateContentResponse) (text string, skip bool, err error) {
	if resp == nil {
		return "", true, nil
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", false, fmt.Errorf("request blocked by google: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", true, nil
	}
	candidate := resp.Candidates[0]
	switch candidate.FinishReason {
	case genai.FinishReasonSafety:
		return "", false, fmt.Errorf("response blocked by safety filters")
	case genai.FinishReasonRecitation:
		return "", false, fmt.Errorf("response blocked due to recitation")
	}
	if candidate.Content == nil {
		return "", true, nil
	}
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	if sb.Len() == 0 {
		return "", true, nil
	}
	return sb.String(), false, nil
}
