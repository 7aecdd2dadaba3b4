package llm

import (
	"context"
	"encoding/json"

	"manifold/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var payloadLoggingEnabled = false

// ConfigureLogging toggles redacted prompt/response debug logging. Call once
// at startup from the values resolved by config.Load (§6 LOG_PAYLOADS).
func ConfigureLogging(enable bool) {
	payloadLoggingEnabled = enable
}

// StartRequestSpan starts a tracer span for a provider call (§4.5) and sets
// common attributes.
func StartRequestSpan(ctx context.Context, operation, model string, messages int) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("internal/llm").Start(ctx, operation)
	span.SetAttributes(attribute.String("llm.model", model), attribute.Int("llm.messages", messages))
	return ctx, span
}

// RecordTokenAttributes sets token count attributes on the provided span.
func RecordTokenAttributes(span trace.Span, promptTokens, completionTokens, totalTokens int) {
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", promptTokens),
		attribute.Int("llm.completion_tokens", completionTokens),
		attribute.Int("llm.total_tokens", totalTokens),
	)
}

// LogRedactedPrompt logs a redacted copy of the outbound messages at debug
// level. No-op unless ConfigureLogging(true) was called at startup.
func LogRedactedPrompt(ctx context.Context, msgs []Message) {
	if !payloadLoggingEnabled {
		return
	}
	log := observability.LoggerWithTrace(ctx)
	if b, err := json.Marshal(msgs); err == nil {
		red := observability.RedactJSON(b)
		tmp := log.With().RawJSON("prompt", red).Logger()
		tmp.Debug().Msg("llm_request")
	}
}

// LogRedactedResponse logs a redacted copy of the final response text at
// debug level. No-op unless ConfigureLogging(true) was called at startup.
func LogRedactedResponse(ctx context.Context, text string) {
	if !payloadLoggingEnabled {
		return
	}
	log := observability.LoggerWithTrace(ctx)
	log.Debug().Str("response", observability.RedactText(text, 2000)).Msg("llm_response")
}
