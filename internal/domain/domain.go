// Package domain holds the data model of §3: the shapes that flow between
// the Discussion Store, Context Assembler, Round Scheduler, Summarizer,
// Question Engine, and Session Gateway.
package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Persona identifies one of the three fixed discussion participants.
type Persona string

const (
	PersonaAnalyzer  Persona = "analyzer"
	PersonaSolver    Persona = "solver"
	PersonaModerator Persona = "moderator"
)

// personaOrder is the canonical sequence within a round.
var personaOrder = []Persona{PersonaAnalyzer, PersonaSolver, PersonaModerator}

// PersonaOrder returns the canonical Analyzer -> Solver -> Moderator sequence.
func PersonaOrder() []Persona {
	out := make([]Persona, len(personaOrder))
	copy(out, personaOrder)
	return out
}

// Position returns persona's 1-based position within a round (§3 Response
// "turn" formula), or 0 if persona is not one of the three fixed roles.
func Position(p Persona) int {
	for i, cand := range personaOrder {
		if cand == p {
			return i + 1
		}
	}
	return 0
}

// Turn computes the strictly monotonic turn number (round_number-1)*3+position.
func Turn(roundNumber, position int) int {
	return (roundNumber-1)*3 + position
}

// Response is one persona's contribution within a Round.
type Response struct {
	Persona   Persona   `json:"persona"`
	Content   string    `json:"content"`
	Turn      int       `json:"turn"`
	Timestamp Timestamp `json:"timestamp"`
}

// Round holds the three response slots for a single round of discussion.
type Round struct {
	RoundNumber       int       `json:"roundNumber"`
	Timestamp         Timestamp `json:"timestamp"`
	AnalyzerResponse  *Response `json:"analyzerResponse,omitempty"`
	SolverResponse    *Response `json:"solverResponse,omitempty"`
	ModeratorResponse *Response `json:"moderatorResponse,omitempty"`
	QuestionSetRound  int       `json:"questionSetRound,omitempty"`
}

// IsComplete reports whether all three response slots are non-empty after
// trimming (§3 Round invariant).
func (r Round) IsComplete() bool {
	return nonEmpty(r.AnalyzerResponse) && nonEmpty(r.SolverResponse) && nonEmpty(r.ModeratorResponse)
}

// IsEmpty reports whether none of the three slots are filled.
func (r Round) IsEmpty() bool {
	return !nonEmpty(r.AnalyzerResponse) && !nonEmpty(r.SolverResponse) && !nonEmpty(r.ModeratorResponse)
}

// IsIncomplete reports whether the round has some but not all slots filled.
func (r Round) IsIncomplete() bool {
	return !r.IsComplete() && !r.IsEmpty()
}

func nonEmpty(r *Response) bool {
	if r == nil {
		return false
	}
	return strings.TrimSpace(r.Content) != ""
}

// Summary records a compaction event installed by the Summarizer (§4.6).
type Summary struct {
	RoundNumber      int       `json:"roundNumber"`
	ReplacesRounds   []int     `json:"replacesRounds"`
	SummaryText      string    `json:"summary"`
	TokenCountBefore int       `json:"tokenCountBefore"`
	TokenCountAfter  int       `json:"tokenCountAfter"`
	CreatedAt        Timestamp `json:"summaryCreatedAt"`
}

// Option is one selectable answer within a Question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is a single steering prompt with an ordered list of Options and
// an optional recorded user selection.
type Question struct {
	ID       string   `json:"id"`
	Prompt   string   `json:"prompt"`
	Options  []Option `json:"options"`
	Selected []string `json:"selected,omitempty"`
}

// QuestionSet binds an ordered list of Questions to the round that
// generated them (§3).
type QuestionSet struct {
	RoundNumber int        `json:"roundNumber"`
	Questions   []Question `json:"questions"`
}

// Discussion is the aggregate root of the data model (§3). The journal wire
// schema (§6) is camelCase at the top level: id, topic, userId, rounds[],
// summaries[], questions[], currentSummary?, currentRound, createdAt,
// updatedAt. currentSummary is not a stored field; it is derived on marshal
// by MarshalJSON below from the last entry of Summaries.
type Discussion struct {
	ID             string            `json:"id"`
	UserID         string            `json:"userId"`
	Topic          string            `json:"topic"`
	Rounds         []Round           `json:"rounds"`
	Summaries      []Summary         `json:"summaries"`
	QuestionSets   []QuestionSet     `json:"questions"`
	CurrentRound   int               `json:"currentRound"`
	IsResolved     bool              `json:"isResolved"`
	CreatedAt      Timestamp         `json:"createdAt"`
	UpdatedAt      Timestamp         `json:"updatedAt"`
	TokenBudget    int               `json:"tokenBudget"`
	LastTokenCount int               `json:"lastTokenCount"`
	Files          []FileAttachment  `json:"files,omitempty"`
}

// CurrentSummary returns the most recently installed summary, if any.
func (d Discussion) CurrentSummary() (Summary, bool) {
	if len(d.Summaries) == 0 {
		return Summary{}, false
	}
	return d.Summaries[len(d.Summaries)-1], true
}

// MarshalJSON emits Discussion's stored fields plus the derived
// currentSummary? key the journal schema calls for.
func (d Discussion) MarshalJSON() ([]byte, error) {
	type alias Discussion
	var cur *Summary
	if s, ok := d.CurrentSummary(); ok {
		cur = &s
	}
	return json.Marshal(struct {
		alias
		CurrentSummary *Summary `json:"currentSummary,omitempty"`
	}{alias: alias(d), CurrentSummary: cur})
}

// FileAttachment describes one file offered at discussion start. Content is
// never retained here: PDFs arrive pre-extracted as plain text by an
// external extractor, everything else is represented by name/type/size only.
type FileAttachment struct {
	Name          string `json:"name"`
	ContentType   string `json:"contentType"`
	SizeBytes     int64  `json:"sizeBytes"`
	ExtractedText string `json:"extractedText,omitempty"`
}

// Resolution is the Resolution Detector's verdict on the most recent
// complete round (§4.10).
type Resolution struct {
	Resolved   bool
	Solution   string
	Confidence float64
	Reason     string
}

// LockRecord mirrors the persisted shape of a lease (§3). Nothing in this
// module constructs or serializes it: the lock backends keep only the lock
// id and expiry under a scope:user:discussion key.
type LockRecord struct {
	Scope        string    `json:"scope"`
	UserID       string    `json:"user_id"`
	DiscussionID string    `json:"discussion_id"`
	LockID       string    `json:"lock_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ClientSession is a connected Session Gateway client (§3).
type ClientSession struct {
	SocketID       string
	RemoteAddr     string
	ConnectedAt    time.Time
	LastActivity   time.Time
	MessageCount   int
	WindowStart    time.Time
	Subscriptions  map[string]struct{}
}
