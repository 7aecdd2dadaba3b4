// Package providers builds the provider registry and fallback chain used by
// the Round Scheduler (§4.5). Every discussion uses the process-wide primary
// provider/model; on a model-unavailable error the registry walks the configured fallback
// list before surfacing a ProviderUnavailable error to the caller.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"manifold/internal/apperror"
	"manifold/internal/config"
	"manifold/internal/llm"
	"manifold/internal/llm/anthropic"
	"manifold/internal/llm/google"
	openaillm "manifold/internal/llm/openai"
)

// Entry pairs a named provider with the client used to reach it.
type Entry struct {
	Name     string
	Provider llm.Provider
}

// Registry resolves a named provider and walks a fallback chain of models.
type Registry struct {
	entries     map[string]llm.Provider
	defaultName string
	maxAttempts int
}

// Build constructs a Registry from the resolved LLM configuration, wiring
// one client per configured provider (§6 ANTHROPIC_*/OPENAI_*/GOOGLE_*).
func Build(cfg config.LLMConfig, httpClient *http.Client) (*Registry, error) {
	entries := map[string]llm.Provider{}

	if strings.TrimSpace(cfg.Anthropic.APIKey) != "" {
		entries["anthropic"] = anthropic.New(cfg.Anthropic, httpClient)
	}
	if strings.TrimSpace(cfg.OpenAI.APIKey) != "" {
		entries["openai"] = openaillm.New(cfg.OpenAI, httpClient)
	}
	if strings.TrimSpace(cfg.Google.APIKey) != "" {
		gc, err := google.New(cfg.Google, httpClient)
		if err != nil {
			return nil, fmt.Errorf("init google provider: %w", err)
		}
		entries["google"] = gc
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no llm provider configured")
	}

	def := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if def == "" {
		def = "anthropic"
	}
	if _, ok := entries[def]; !ok {
		return nil, fmt.Errorf("default llm provider %q is not configured", def)
	}

	attempts := cfg.FallbackMaxAttempts
	if attempts <= 0 {
		attempts = 5
	}

	return &Registry{entries: entries, defaultName: def, maxAttempts: attempts}, nil
}

// Stream runs the fallback chain for providerName (or the registry default
// when empty): primary model first, then each entry of models in order,
// stopping at maxAttempts total tries or the first non-model-unavailable
// error (§4.5 "fallback classification").
func (r *Registry) Stream(ctx context.Context, providerName string, models []string, msgs []llm.Message, h llm.StreamHandler) (string, error) {
	name := strings.ToLower(strings.TrimSpace(providerName))
	if name == "" {
		name = r.defaultName
	}
	provider, ok := r.entries[name]
	if !ok {
		return "", apperror.New(apperror.ProviderUnavailable, fmt.Sprintf("provider %q is not configured", name))
	}
	if len(models) == 0 {
		return "", apperror.New(apperror.Internal, "provider fallback chain requires at least one model")
	}

	var lastErr error
	attempts := 0
	for _, model := range models {
		if attempts >= r.maxAttempts {
			break
		}
		attempts++
		text, err := provider.Stream(ctx, msgs, model, h)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !apperror.IsModelUnavailable(err) {
			return text, err
		}
	}
	return "", apperror.Wrap(apperror.ProviderUnavailable, lastErr, "exhausted fallback chain")
}
