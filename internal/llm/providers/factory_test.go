package providers

import (
	"context"
	"errors"
	"testing"

	"manifold/internal/apperror"
	"manifold/internal/llm"
)

type stubProvider struct {
	calls     []string
	responses map[string]struct {
		text string
		err  error
	}
}

func (s *stubProvider) Stream(ctx context.Context, msgs []llm.Message, model string, h llm.StreamHandler) (string, error) {
	s.calls = append(s.calls, model)
	r := s.responses[model]
	return r.text, r.err
}

func newRegistry(name string, p llm.Provider) *Registry {
	return &Registry{
		entries:     map[string]llm.Provider{name: p},
		defaultName: name,
		maxAttempts: 5,
	}
}

func TestStreamReturnsFirstSuccess(t *testing.T) {
	stub := &stubProvider{responses: map[string]struct {
		text string
		err  error
	}{
		"model-a": {text: "hello"},
	}}
	r := newRegistry("anthropic", stub)

	text, err := r.Stream(context.Background(), "anthropic", []string{"model-a", "model-b"}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello" {
		t.Fatalf("unexpected text %q", text)
	}
	if len(stub.calls) != 1 {
		t.Fatalf("expected a single attempt, got %v", stub.calls)
	}
}

func TestStreamFallsThroughOnModelUnavailable(t *testing.T) {
	stub := &stubProvider{responses: map[string]struct {
		text string
		err  error
	}{
		"model-a": {err: errors.New("model_not_found: model-a is not available")},
		"model-b": {text: "from fallback"},
	}}
	r := newRegistry("anthropic", stub)

	text, err := r.Stream(context.Background(), "", []string{"model-a", "model-b"}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "from fallback" {
		t.Fatalf("unexpected text %q", text)
	}
	if len(stub.calls) != 2 {
		t.Fatalf("expected two attempts, got %v", stub.calls)
	}
}

func TestStreamStopsOnNonModelUnavailableError(t *testing.T) {
	authErr := apperror.New(apperror.Auth, "invalid api key")
	stub := &stubProvider{responses: map[string]struct {
		text string
		err  error
	}{
		"model-a": {err: authErr},
	}}
	r := newRegistry("anthropic", stub)

	_, err := r.Stream(context.Background(), "", []string{"model-a", "model-b"}, nil, nil)
	if !errors.Is(err, authErr) {
		t.Fatalf("expected auth error to propagate unwrapped, got %v", err)
	}
	if len(stub.calls) != 1 {
		t.Fatalf("expected chain to stop after first attempt, got %v", stub.calls)
	}
}

func TestStreamExhaustsFallbackChain(t *testing.T) {
	stub := &stubProvider{responses: map[string]struct {
		text string
		err  error
	}{
		"model-a": {err: errors.New("model_not_found")},
		"model-b": {err: errors.New("model_not_found")},
	}}
	r := newRegistry("anthropic", stub)

	_, err := r.Stream(context.Background(), "", []string{"model-a", "model-b"}, nil, nil)
	if err == nil {
		t.Fatalf("expected error after exhausting fallback chain")
	}
	if apperror.CategoryOf(err) != apperror.ProviderUnavailable {
		t.Fatalf("expected ProviderUnavailable category, got %q", apperror.CategoryOf(err))
	}
}

func TestStreamUnknownProviderName(t *testing.T) {
	r := newRegistry("anthropic", &stubProvider{})
	_, err := r.Stream(context.Background(), "unknown", []string{"model-a"}, nil, nil)
	if apperror.CategoryOf(err) != apperror.ProviderUnavailable {
		t.Fatalf("expected ProviderUnavailable category for unknown provider, got %v", err)
	}
}

func TestStreamRequiresAtLeastOneModel(t *testing.T) {
	r := newRegistry("anthropic", &stubProvider{})
	_, err := r.Stream(context.Background(), "", nil, nil, nil)
	if apperror.CategoryOf(err) != apperror.Internal {
		t.Fatalf("expected Internal category when no models given, got %v", err)
	}
}
