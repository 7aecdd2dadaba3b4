package observability

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

type discussionFieldsKey struct{}

// discussionFields holds the per-discussion structured fields that every log
// line emitted while processing one discussion turn should carry
// (discussion_id, round_number, persona, turn). They are attached once, at
// the Round Scheduler call sites where a ctx first enters a discussion's or
// a turn's processing (WithDiscussionFields, WithTurnFields), and read back
// by every LoggerWithTrace call downstream: the Round Scheduler, the
// assembler, and the LLM clients all share one ctx chain, so none of them
// need to repeat discussion_id/persona/turn by hand.
type discussionFields struct {
	discussionID string
	roundNumber  int
	persona      string
	turn         int
}

// WithDiscussionFields returns a context carrying discussion_id and
// round_number for every log line produced while ctx is in scope.
func WithDiscussionFields(ctx context.Context, discussionID string, roundNumber int) context.Context {
	f := discussionFieldsFrom(ctx)
	f.discussionID = discussionID
	f.roundNumber = roundNumber
	return context.WithValue(ctx, discussionFieldsKey{}, f)
}

// WithTurnFields returns a context additionally carrying persona and turn
// for the single Analyzer/Solver/Moderator turn ctx is scoped to.
func WithTurnFields(ctx context.Context, persona string, turn int) context.Context {
	f := discussionFieldsFrom(ctx)
	f.persona = persona
	f.turn = turn
	return context.WithValue(ctx, discussionFieldsKey{}, f)
}

func discussionFieldsFrom(ctx context.Context) discussionFields {
	if ctx == nil {
		return discussionFields{}
	}
	if f, ok := ctx.Value(discussionFieldsKey{}).(discussionFields); ok {
		return f
	}
	return discussionFields{}
}

// LoggerWithTrace returns a zerolog.Logger enriched with trace_id/span_id
// from the context's span, plus whatever discussion/turn fields were
// attached upstream via WithDiscussionFields/WithTurnFields.
func LoggerWithTrace(ctx context.Context) *zerolog.Logger {
	l := log.Logger
	if ctx == nil {
		return &l
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With().Str("trace_id", sc.TraceID().String()).Logger()
		if sc.HasSpanID() {
			l = l.With().Str("span_id", sc.SpanID().String()).Logger()
		}
		if sc.IsSampled() {
			l = l.With().Bool("trace_sampled", true).Logger()
		}
	}
	if f := discussionFieldsFrom(ctx); f.discussionID != "" {
		ctxLog := l.With().Str("discussion_id", f.discussionID).Int("round_number", f.roundNumber)
		if f.persona != "" {
			ctxLog = ctxLog.Str("persona", f.persona)
		}
		if f.turn != 0 {
			ctxLog = ctxLog.Int("turn", f.turn)
		}
		l = ctxLog.Logger()
	}
	return &l
}
