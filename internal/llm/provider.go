// Package llm adapts the deliberation engine's persona streaming calls
// (§4.5) to concrete model provider SDKs. The Provider interface is
// intentionally narrow: a discussion round needs one thing from a model —
// stream a completion for an ordered message list and report the final
// text — so no tool-call, image, or thought-signature machinery rides along.
package llm

import "context"

// Message is one turn in the conversation handed to a provider. Role is
// "system", "user", or "assistant"; Persona optionally records which
// deliberation persona authored an assistant turn, purely for logging.
type Message struct {
	Role    string
	Content string
	Persona string
}

// StreamHandler receives incremental content as a provider streams a
// response. OnDelta is called once per chunk in arrival order.
type StreamHandler interface {
	OnDelta(content string)
}

// StreamHandlerFunc adapts a plain function to StreamHandler.
type StreamHandlerFunc func(content string)

func (f StreamHandlerFunc) OnDelta(content string) { f(content) }

// Provider streams a single completion from a model. Implementations must
// accumulate the full text themselves and return it alongside any error, so
// callers can persist a partial response even when streaming fails midway
// (§4.5 "partial content policy").
type Provider interface {
	Stream(ctx context.Context, msgs []Message, model string, h StreamHandler) (string, error)
}

// Usage reports token accounting for a completed call, when the underlying
// SDK exposes it. Providers that cannot report usage return a zero Usage.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}
