// Package scheduler implements the Round Scheduler (§4.2): the state
// machine that drives a discussion through Analyzer -> Solver -> Moderator
// turns, one step at a time, under the exclusive processing lock. It is
// grounded on the staged-callback orchestration in internal/agent/warpp.go
// and the transient/permanent failure framing of internal/orchestrator/handler.go.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"manifold/internal/apperror"
	"manifold/internal/assembler"
	"manifold/internal/domain"
	"manifold/internal/lock"
	"manifold/internal/llm"
	"manifold/internal/observability"
	"manifold/internal/store"
)

// creationLockKey names a processing-lock discussion id for a discussion
// that does not exist yet. Start does not use it: it keys the processing
// lock on the discussion id, which is known before the record is created.
const creationLockKey = "new-discussion"

// Config bundles the tunables Scheduler needs from process configuration.
type Config struct {
	ProviderName              string
	Models                    []string
	StreamTimeoutSeconds      int
	ProcessingLockMaxAttempts int
}

// Scheduler drives discussions through their rounds.
type Scheduler struct {
	store      *store.Store
	locks      *lock.Service
	streamer   Streamer
	resolver   Resolver
	summarizer Summarizer
	questions  QuestionGenerator
	emitter    Emitter
	cfg        Config
}

// New builds a Scheduler. resolver, summarizer, and questions may be nil in
// tests that never exercise the corresponding transitions.
func New(st *store.Store, locks *lock.Service, streamer Streamer, resolver Resolver, summarizer Summarizer, questions QuestionGenerator, emitter Emitter, cfg Config) *Scheduler {
	if cfg.ProcessingLockMaxAttempts <= 0 {
		cfg.ProcessingLockMaxAttempts = 1
	}
	return &Scheduler{
		store:      st,
		locks:      locks,
		streamer:   streamer,
		resolver:   resolver,
		summarizer: summarizer,
		questions:  questions,
		emitter:    emitter,
		cfg:        cfg,
	}
}

// Start implements the initial transition (§4.2): acquire the processing
// lock, create the discussion, run round 1 Analyzer -> Solver -> Moderator,
// then settle into AwaitingUserAction. id may be supplied by the caller (the
// Session Gateway pre-generates one so it can subscribe a client to the
// discussion's room before any event is emitted); a blank id is generated
// here, matching Store.Create's own caller-supplied-id convention.
func (s *Scheduler) Start(ctx context.Context, userID, topic string, files []domain.FileAttachment, id string) (domain.Discussion, error) {
	active, err := s.store.EnsureSoleActive(ctx, userID)
	if err != nil {
		return domain.Discussion{}, err
	}
	if active != "" {
		return domain.Discussion{}, apperror.New(apperror.Conflict, fmt.Sprintf("an active discussion already exists: %s", active))
	}

	if id == "" {
		id = uuid.NewString()
	}
	var d domain.Discussion
	err = s.locks.WithLock(ctx, lock.ScopeProcessing, userID, id, s.cfg.ProcessingLockMaxAttempts, func(ctx context.Context) error {
		created, err := s.store.Create(ctx, userID, topic, id, files)
		if err != nil {
			return err
		}
		d = created
		s.emit(ctx, Event{Type: EventDiscussionStarted, DiscussionID: d.ID})
		return s.runRound(ctx, userID, &d, 1)
	})
	if err != nil {
		return domain.Discussion{}, err
	}
	return d, nil
}

// Proceed implements proceed-dialogue (§4.2, §4.9): begins round N+1 with
// the Analyzer. A resolved discussion rejects this as a no-op Conflict
// error with no state change (§8 idempotence property).
func (s *Scheduler) Proceed(ctx context.Context, userID, discussionID string) error {
	d, err := s.store.Read(ctx, discussionID, userID)
	if err != nil {
		return err
	}
	if d.IsResolved {
		return apperror.New(apperror.Conflict, "discussion is already resolved")
	}

	return s.locks.WithLock(ctx, lock.ScopeProcessing, userID, discussionID, s.cfg.ProcessingLockMaxAttempts, func(ctx context.Context) error {
		d, err := s.store.Read(ctx, discussionID, userID)
		if err != nil {
			return err
		}
		if d.IsResolved {
			return apperror.New(apperror.Conflict, "discussion is already resolved")
		}

		if d.TokenBudget > 0 && d.LastTokenCount >= d.TokenBudget && s.summarizer != nil {
			if err := s.summarize(ctx, userID, &d); err != nil {
				return err
			}
		}

		return s.runRound(ctx, userID, &d, d.CurrentRound+1)
	})
}

// GenerateQuestions implements generate-questions (§4.2, §4.7): transitions
// through GeneratingQuestions and back to AwaitingUserAction.
func (s *Scheduler) GenerateQuestions(ctx context.Context, userID, discussionID string, roundNumber int) error {
	if s.questions == nil {
		return apperror.New(apperror.Internal, "question engine is not configured")
	}
	return s.locks.WithLock(ctx, lock.ScopeProcessing, userID, discussionID, s.cfg.ProcessingLockMaxAttempts, func(ctx context.Context) error {
		d, err := s.store.Read(ctx, discussionID, userID)
		if err != nil {
			return err
		}
		round := roundNumber
		if round == 0 {
			round = mostRecentCompleteRound(d)
		}
		if round == 0 {
			return apperror.New(apperror.Input, "no completed round to generate questions for")
		}

		qs, err := s.questions.Generate(ctx, d, round)
		if err != nil {
			s.emit(ctx, Event{Type: EventError, DiscussionID: discussionID, ErrorCode: string(apperror.CategoryOf(err)), ErrorMessage: err.Error()})
			return err
		}
		if err := s.store.AppendQuestions(ctx, discussionID, userID, qs); err != nil {
			return err
		}
		s.emit(ctx, Event{Type: EventQuestionsGenerated, DiscussionID: discussionID, QuestionSet: &qs})
		return nil
	})
}

// SubmitAnswers implements submit-answers (§4.2, §4.7): validates and
// records without advancing the scheduler state.
func (s *Scheduler) SubmitAnswers(ctx context.Context, userID, discussionID string, roundNumber int, answers map[string][]string) error {
	return s.store.RecordAnswers(ctx, discussionID, userID, roundNumber, answers)
}

// runRound drives one round's three persona turns, appends the completed
// round, and runs resolution detection. Must be called with the processing
// lock already held.
func (s *Scheduler) runRound(ctx context.Context, userID string, d *domain.Discussion, roundNumber int) error {
	ctx = observability.WithDiscussionFields(ctx, d.ID, roundNumber)
	round := domain.Round{RoundNumber: roundNumber, Timestamp: domain.NewTimestamp(time.Now().UTC())}

	for _, persona := range domain.PersonaOrder() {
		resp, err := s.runTurn(ctx, *d, persona, roundNumber, &round)
		if err != nil {
			// §4.2 failure semantics: the partial response is discarded, the
			// round is never written, the lock releases on return.
			s.emit(ctx, Event{Type: EventError, DiscussionID: d.ID, Persona: persona, ErrorCode: string(apperror.CategoryOf(err)), ErrorMessage: err.Error()})
			return err
		}
		setResponseSlot(&round, persona, resp)
	}

	if err := s.store.AppendRound(ctx, d.ID, userID, round); err != nil {
		s.emit(ctx, Event{Type: EventError, DiscussionID: d.ID, ErrorCode: string(apperror.CategoryOf(err)), ErrorMessage: err.Error()})
		return err
	}
	d.Rounds = append(d.Rounds, round)
	d.CurrentRound = roundNumber
	s.emit(ctx, Event{Type: EventRoundComplete, DiscussionID: d.ID, Round: &round})

	return s.detectResolution(ctx, userID, d)
}

func (s *Scheduler) runTurn(ctx context.Context, d domain.Discussion, persona domain.Persona, roundNumber int, inProgress *domain.Round) (*domain.Response, error) {
	working := d
	working.Rounds = appendOrReplaceRound(working.Rounds, *inProgress)

	result, err := assembler.Assemble(ctx, assembler.Input{
		Discussion:  working,
		Persona:     persona,
		RoundNumber: roundNumber,
		Files:       d.Files,
	})
	if err != nil {
		return nil, err
	}

	turn := domain.Turn(roundNumber, domain.Position(persona))
	ctx = observability.WithTurnFields(ctx, string(persona), turn)
	s.emit(ctx, Event{Type: EventMessageStart, DiscussionID: d.ID, Persona: persona, Turn: turn})

	streamCtx := ctx
	cancel := func() {}
	if s.cfg.StreamTimeoutSeconds > 0 {
		streamCtx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.StreamTimeoutSeconds)*time.Second)
	}
	defer cancel()

	observability.LoggerWithTrace(ctx).Debug().
		Str("template", string(result.Template)).
		Msg("assembled prompt, starting stream")

	text, err := s.streamer.Stream(streamCtx, s.cfg.ProviderName, s.cfg.Models, toMessages(persona, result.Prompt), llm.StreamHandlerFunc(func(delta string) {
		s.emit(ctx, Event{Type: EventMessageChunk, DiscussionID: d.ID, Persona: persona, Turn: turn, Chunk: delta})
	}))
	if err != nil {
		return nil, apperror.Wrap(apperror.CategoryOf(err), err, fmt.Sprintf("%s stream failed", persona))
	}

	resp := &domain.Response{Persona: persona, Content: text, Turn: turn, Timestamp: domain.NewTimestamp(time.Now().UTC())}
	s.emit(ctx, Event{Type: EventMessageComplete, DiscussionID: d.ID, Persona: persona, Turn: turn, Message: resp})
	return resp, nil
}

func (s *Scheduler) summarize(ctx context.Context, userID string, d *domain.Discussion) error {
	summary, err := s.summarizer.Summarize(ctx, *d)
	if err != nil {
		return err
	}
	if err := s.store.AppendSummary(ctx, d.ID, userID, summary); err != nil {
		return err
	}
	d.Summaries = append(d.Summaries, summary)
	s.emit(ctx, Event{Type: EventSummaryCreated, DiscussionID: d.ID, Summary: &summary})
	return nil
}

func (s *Scheduler) detectResolution(ctx context.Context, userID string, d *domain.Discussion) error {
	if s.resolver == nil {
		return nil
	}
	verdict, err := s.resolver.Detect(ctx, *d)
	if err != nil {
		// Resolution detection is advisory: a failure leaves the discussion
		// in AwaitingUserAction rather than failing the round that already
		// persisted successfully.
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("resolution detection failed")
		return nil
	}
	if !verdict.Resolved {
		return nil
	}
	if err := s.store.MarkResolved(ctx, d.ID, userID); err != nil {
		return err
	}
	d.IsResolved = true
	s.emit(ctx, Event{
		Type:         EventConversationResolved,
		DiscussionID: d.ID,
		Solution:     verdict.Solution,
		Confidence:   verdict.Confidence,
		Reason:       verdict.Reason,
	})
	return nil
}

func (s *Scheduler) emit(ctx context.Context, ev Event) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(ctx, ev)
}

func toMessages(persona domain.Persona, prompt string) []llm.Message {
	return []llm.Message{{Role: "user", Content: prompt, Persona: string(persona)}}
}

func setResponseSlot(round *domain.Round, persona domain.Persona, resp *domain.Response) {
	switch persona {
	case domain.PersonaAnalyzer:
		round.AnalyzerResponse = resp
	case domain.PersonaSolver:
		round.SolverResponse = resp
	case domain.PersonaModerator:
		round.ModeratorResponse = resp
	}
}

func appendOrReplaceRound(rounds []domain.Round, r domain.Round) []domain.Round {
	for i, existing := range rounds {
		if existing.RoundNumber == r.RoundNumber {
			out := make([]domain.Round, len(rounds))
			copy(out, rounds)
			out[i] = r
			return out
		}
	}
	return append(rounds, r)
}

func mostRecentCompleteRound(d domain.Discussion) int {
	best := 0
	for _, r := range d.Rounds {
		if r.IsComplete() && r.RoundNumber > best {
			best = r.RoundNumber
		}
	}
	return best
}
