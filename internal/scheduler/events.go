package scheduler

import (
	"context"

	"manifold/internal/domain"
)

// EventType names one of the outbound wire events of §4.9.
type EventType string

const (
	EventDiscussionStarted    EventType = "discussion-started"
	EventMessageStart         EventType = "message-start"
	EventMessageChunk         EventType = "message-chunk"
	EventMessageComplete      EventType = "message-complete"
	EventRoundComplete        EventType = "round-complete"
	EventQuestionsGenerated   EventType = "questions-generated"
	EventSummaryCreated       EventType = "summary-created"
	EventConversationResolved EventType = "conversation-resolved"
	EventError                EventType = "error"
)

// Event is a single outbound notification the scheduler hands to its
// Emitter. Only the fields relevant to Type are populated.
type Event struct {
	Type         EventType
	DiscussionID string
	Persona      domain.Persona
	Turn         int
	Chunk        string
	Message      *domain.Response
	Round        *domain.Round
	QuestionSet  *domain.QuestionSet
	Summary      *domain.Summary
	Solution     string
	Confidence   float64
	Reason       string
	ErrorCode    string
	ErrorMessage string
}

// Emitter delivers scheduler events to subscribers (the Session Gateway in
// production; a recorder in tests). Emit must not block the scheduler step
// for long; slow fan-out is the emitter's concern, not the scheduler's.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}
