package gateway

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"manifold/internal/observability"
	"manifold/internal/scheduler"
)

// turnKey identifies one in-flight persona turn for chunk-loss tracking.
type turnKey struct {
	discussionID string
	turn         int
}

// Hub fans scheduler events out to every client subscribed to a
// discussion, in per-subscriber order, and performs the chunk-loss
// detection of §4.9. It satisfies scheduler.Emitter.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}

	accumMu sync.Mutex
	accum   map[turnKey]int
}

// NewHub builds an empty Hub.
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]struct{}),
		accum: make(map[turnKey]int),
	}
}

// Subscribe adds c to discussionID's room.
func (h *Hub) Subscribe(discussionID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[discussionID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[discussionID] = room
	}
	room[c] = struct{}{}
}

// Unsubscribe removes c from discussionID's room, if present.
func (h *Hub) Unsubscribe(discussionID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[discussionID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, discussionID)
	}
}

// UnsubscribeAll removes c from every room it belongs to, used on
// disconnect since a client may have started one discussion and also be
// watching others.
func (h *Hub) UnsubscribeAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, room := range h.rooms {
		if _, ok := room[c]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, id)
			}
		}
	}
}

// Emit implements scheduler.Emitter: it tracks per-turn chunk accounting
// and fans the event out to every subscriber of ev.DiscussionID. Fan-out
// across clients is best-effort parallel; each client's own send queue
// preserves its per-subscriber order (§4.9 "Ordering guarantees").
func (h *Hub) Emit(ctx context.Context, ev scheduler.Event) {
	h.track(ctx, ev)

	h.mu.RLock()
	room := h.rooms[ev.DiscussionID]
	clients := make([]*Client, 0, len(room))
	for c := range room {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	frame := toWireEvent(ev)
	var g errgroup.Group
	for _, c := range clients {
		c := c
		g.Go(func() error {
			c.enqueue(frame)
			return nil
		})
	}
	_ = g.Wait()
}

// track maintains the accumulated chunk length per in-flight turn and, on
// message-complete, logs a warning when the final content length differs
// from it by more than 10 characters in either direction. It does not alter
// any frame: message-complete is forwarded with the scheduler's content
// whichever side is longer, and no accumulated view is rebuilt or re-sent.
func (h *Hub) track(ctx context.Context, ev scheduler.Event) {
	key := turnKey{discussionID: ev.DiscussionID, turn: ev.Turn}
	switch ev.Type {
	case scheduler.EventMessageStart:
		h.accumMu.Lock()
		h.accum[key] = 0
		h.accumMu.Unlock()
	case scheduler.EventMessageChunk:
		h.accumMu.Lock()
		h.accum[key] += len(ev.Chunk)
		h.accumMu.Unlock()
	case scheduler.EventMessageComplete:
		h.accumMu.Lock()
		accumulated := h.accum[key]
		delete(h.accum, key)
		h.accumMu.Unlock()

		if ev.Message == nil {
			return
		}
		final := len(ev.Message.Content)
		diff := final - accumulated
		if diff > 10 {
			observability.LoggerWithTrace(ctx).Warn().
				Str("discussion_id", ev.DiscussionID).
				Int("turn", ev.Turn).
				Int("accumulated", accumulated).
				Int("final", final).
				Msg("chunk accounting lagged final content; final content wins")
		} else if diff < -10 {
			observability.LoggerWithTrace(ctx).Warn().
				Str("discussion_id", ev.DiscussionID).
				Int("turn", ev.Turn).
				Int("accumulated", accumulated).
				Int("final", final).
				Msg("final content shorter than accumulated chunks; provider-side truncation suspected")
		}
	}
}
