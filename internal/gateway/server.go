// Package gateway implements the Event Bus / Session Gateway (§4.9): a
// duplex WebSocket endpoint per client, grouped into per-discussion rooms,
// fed by the Round Scheduler's Emitter hook.
//
// Grounded on the http.ServeMux pattern-routing of internal/httpapi/server.go
// and the pub/sub-style subscribe/unsubscribe shape of
// internal/workspaces/redis_cache.go, adapted from network fan-out to an
// in-process hub since a single gateway instance owns every connection.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"manifold/internal/apperror"
	"manifold/internal/config"
	"manifold/internal/scheduler"
)

// Server is the Session Gateway's HTTP/WebSocket front door.
type Server struct {
	hub      *Hub
	sched    *scheduler.Scheduler
	cfg      config.GatewayConfig
	upgrader websocket.Upgrader
	connLim  *connLimiter

	mux        *http.ServeMux
	httpServer *http.Server

	clientsMu sync.Mutex
	clients   map[*Client]struct{}

	sweepStop chan struct{}
}

// NewServer builds a Server. sched may be nil at construction time since
// the Scheduler itself needs the Server's Hub as its Emitter (a
// construction-order cycle) — callers build the Hub first via Hub(), pass
// it to scheduler.New, then call SetScheduler before Start. sched's
// Emitter must be the returned Server's Hub.
func NewServer(sched *scheduler.Scheduler, cfg config.GatewayConfig) *Server {
	s := &Server{
		hub:     NewHub(),
		sched:   sched,
		cfg:     cfg,
		connLim: newConnLimiter(cfg.MaxConnectionsPerIP, cfg.ConnectionRateLimit),
		mux:     http.NewServeMux(),
		clients: make(map[*Client]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	s.registerRoutes()
	return s
}

// Hub returns the Server's event fan-out hub, which satisfies
// scheduler.Emitter.
func (s *Server) Hub() *Hub { return s.hub }

// SetScheduler binds the Scheduler a constructed-with-nil Server dispatches
// to. Must be called before Start.
func (s *Server) SetScheduler(sched *scheduler.Scheduler) { s.sched = sched }

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start binds and serves in the background, returning once the listener is
// up. Shutdown must be called to stop serving.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", addr, err)
	}
	s.sweepStop = make(chan struct{})
	go s.idleSweepLoop()
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("gateway server stopped unexpectedly")
		}
	}()
	return nil
}

// Shutdown drains the gateway (§5 "Cancellation"): stop accepting new
// sessions, wait up to the configured deadline, then force-disconnect
// whatever remains.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.sweepStop != nil {
		close(s.sweepStop)
	}
	drainCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.ShutdownDrainSeconds)*time.Second)
	defer cancel()

	var shutdownErr error
	if s.httpServer != nil {
		shutdownErr = s.httpServer.Shutdown(drainCtx)
	}

	s.clientsMu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.Unlock()
	for _, c := range clients {
		c.close()
	}
	return shutdownErr
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	addr := sourceAddr(r)
	release, ok := s.connLim.Allow(addr)
	if !ok {
		http.Error(w, "connection limit exceeded", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		release()
		return
	}

	c := newClient(conn, s, addr, r.URL.Query().Get("user_id"), release)
	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()

	go func() {
		c.writePump()
		s.clientsMu.Lock()
		delete(s.clients, c)
		s.clientsMu.Unlock()
	}()
	c.readPump()
}

func (s *Server) idleSweepLoop() {
	idleAfter := time.Duration(s.cfg.IdleTimeoutMinutes) * time.Minute
	if idleAfter <= 0 {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.sweepStop:
			return
		case now := <-ticker.C:
			s.clientsMu.Lock()
			stale := make([]*Client, 0)
			for c := range s.clients {
				if c.idleSince(now, idleAfter) {
					stale = append(stale, c)
				}
			}
			s.clientsMu.Unlock()
			for _, c := range stale {
				c.close()
			}
		}
	}
}

// dispatch decodes env's payload and invokes the matching Scheduler
// transition. Long-running transitions (everything but submit-answers) run
// on their own goroutine so the read loop is never blocked on provider
// streaming (§5 "Scheduling model"). The returned error reflects malformed
// input or, for submit-answers, the result of recording the answers; the
// eventual outcome of an asynchronous step is not returned and arrives
// through the Hub as an ordinary message-* or error event.
func (s *Server) dispatch(c *Client, env inboundEnvelope) error {
	switch env.Type {
	case inboundStartDialogue:
		var p startDialoguePayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return err
		}
		userID := p.UserID
		if userID == "" {
			userID = c.userIDHint()
		}
		if strings.TrimSpace(userID) == "" {
			return apperror.New(apperror.Input, "user_id is required")
		}
		c.setUserIDHint(userID)

		id := uuid.NewString()
		c.subscribe(id)
		go func() {
			if _, err := s.sched.Start(context.Background(), userID, p.Topic, p.Files, id); err != nil {
				log.Error().Err(err).Str("discussion_id", id).Msg("start-dialogue failed")
			}
		}()
		return nil

	case inboundProceedDialogue:
		var p proceedDialoguePayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return err
		}
		userID := c.userIDHint()
		c.subscribe(p.DiscussionID)
		go func() {
			if err := s.sched.Proceed(context.Background(), userID, p.DiscussionID); err != nil {
				log.Error().Err(err).Str("discussion_id", p.DiscussionID).Msg("proceed-dialogue failed")
			}
		}()
		return nil

	case inboundGenerateQuestions:
		var p generateQuestionsPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return err
		}
		userID := c.userIDHint()
		c.subscribe(p.DiscussionID)
		go func() {
			if err := s.sched.GenerateQuestions(context.Background(), userID, p.DiscussionID, p.RoundNumber); err != nil {
				log.Error().Err(err).Str("discussion_id", p.DiscussionID).Msg("generate-questions failed")
			}
		}()
		return nil

	case inboundSubmitAnswers:
		var p submitAnswersPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return err
		}
		userID := c.userIDHint()
		return s.sched.SubmitAnswers(context.Background(), userID, p.DiscussionID, p.RoundNumber, p.Answers)

	default:
		return apperror.New(apperror.Input, fmt.Sprintf("unknown event type %q", env.Type))
	}
}

func decodePayload(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return apperror.Wrap(apperror.Input, err, "decode event payload")
	}
	return nil
}

func sourceAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
