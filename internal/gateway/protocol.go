package gateway

import (
	"encoding/json"

	"manifold/internal/domain"
	"manifold/internal/scheduler"
)

// inboundEnvelope is the wire shape of every client-to-server frame (§4.9):
// a type tag, a type-specific payload, and an optional ack id the client
// uses to correlate a server acknowledgement.
type inboundEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	AckID   string          `json:"ack_id,omitempty"`
}

const (
	inboundStartDialogue     = "start-dialogue"
	inboundProceedDialogue   = "proceed-dialogue"
	inboundGenerateQuestions = "generate-questions"
	inboundSubmitAnswers     = "submit-answers"
)

type startDialoguePayload struct {
	Topic  string                  `json:"topic"`
	Files  []domain.FileAttachment `json:"files,omitempty"`
	UserID string                  `json:"user_id"`
}

type proceedDialoguePayload struct {
	DiscussionID string `json:"discussion_id"`
}

type generateQuestionsPayload struct {
	DiscussionID string `json:"discussion_id"`
	RoundNumber  int    `json:"round_number,omitempty"`
}

type submitAnswersPayload struct {
	DiscussionID string              `json:"discussion_id"`
	RoundNumber  int                 `json:"round_number"`
	Answers      map[string][]string `json:"answers"`
}

// ackFrame is sent back to the originating client in response to any
// inbound frame that carried an ack_id (§4.9 "Acknowledgement").
type ackFrame struct {
	Type  string `json:"type"`
	AckID string `json:"ack_id"`
	Error string `json:"error,omitempty"`
}

// outboundFrame is the wire shape of every server-to-client event. Only the
// fields relevant to Type are populated, mirroring scheduler.Event.
type outboundFrame struct {
	Type         scheduler.EventType `json:"type"`
	DiscussionID string              `json:"discussion_id,omitempty"`
	Persona      domain.Persona      `json:"persona,omitempty"`
	Turn         int                 `json:"turn,omitempty"`
	Chunk        string              `json:"chunk,omitempty"`
	Message      *domain.Response    `json:"message,omitempty"`
	Round        *domain.Round       `json:"round,omitempty"`
	QuestionSet  *domain.QuestionSet `json:"question_set,omitempty"`
	Summary      *domain.Summary     `json:"summary,omitempty"`
	Solution     string              `json:"solution,omitempty"`
	Confidence   float64             `json:"confidence,omitempty"`
	Reason       string              `json:"reason,omitempty"`
	ErrorCode    string              `json:"error_code,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
}

func toWireEvent(ev scheduler.Event) outboundFrame {
	return outboundFrame{
		Type:         ev.Type,
		DiscussionID: ev.DiscussionID,
		Persona:      ev.Persona,
		Turn:         ev.Turn,
		Chunk:        ev.Chunk,
		Message:      ev.Message,
		Round:        ev.Round,
		QuestionSet:  ev.QuestionSet,
		Summary:      ev.Summary,
		Solution:     ev.Solution,
		Confidence:   ev.Confidence,
		Reason:       ev.Reason,
		ErrorCode:    ev.ErrorCode,
		ErrorMessage: ev.ErrorMessage,
	}
}
