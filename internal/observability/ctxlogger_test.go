package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestLoggerWithTraceAttachesDiscussionFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	orig := log.Logger
	log.Logger = base
	defer func() { log.Logger = orig }()

	ctx := WithDiscussionFields(context.Background(), "disc-1", 3)
	ctx = WithTurnFields(ctx, "solver", 5)
	LoggerWithTrace(ctx).Info().Msg("turn started")

	var fields map[string]any
	if err := json.Unmarshal(buf.Bytes(), &fields); err != nil {
		t.Fatalf("failed to parse logged line: %v", err)
	}
	if fields["discussion_id"] != "disc-1" {
		t.Fatalf("expected discussion_id field, got %+v", fields)
	}
	if fields["round_number"] != float64(3) {
		t.Fatalf("expected round_number field, got %+v", fields)
	}
	if fields["persona"] != "solver" {
		t.Fatalf("expected persona field, got %+v", fields)
	}
	if fields["turn"] != float64(5) {
		t.Fatalf("expected turn field, got %+v", fields)
	}
}

func TestLoggerWithTraceOmitsDiscussionFieldsWhenUnset(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	orig := log.Logger
	log.Logger = base
	defer func() { log.Logger = orig }()

	LoggerWithTrace(context.Background()).Info().Msg("no discussion in scope")

	var fields map[string]any
	if err := json.Unmarshal(buf.Bytes(), &fields); err != nil {
		t.Fatalf("failed to parse logged line: %v", err)
	}
	if _, ok := fields["discussion_id"]; ok {
		t.Fatalf("expected no discussion_id field, got %+v", fields)
	}
}
