package gateway

import (
	"context"
	"testing"
	"time"

	"manifold/internal/domain"
	"manifold/internal/scheduler"
)

func TestHubFansOutOnlyToSubscribersOfDiscussion(t *testing.T) {
	hub := NewHub()
	a := &Client{send: make(chan any, 8)}
	b := &Client{send: make(chan any, 8)}
	hub.Subscribe("disc-1", a)
	hub.Subscribe("disc-2", b)

	hub.Emit(context.Background(), scheduler.Event{Type: scheduler.EventDiscussionStarted, DiscussionID: "disc-1"})

	select {
	case <-a.send:
	default:
		t.Fatalf("expected subscriber of disc-1 to receive the event")
	}
	select {
	case <-b.send:
		t.Fatalf("subscriber of disc-2 should not receive disc-1's event")
	default:
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	c := &Client{send: make(chan any, 8)}
	hub.Subscribe("disc-1", c)
	hub.Unsubscribe("disc-1", c)

	hub.Emit(context.Background(), scheduler.Event{Type: scheduler.EventDiscussionStarted, DiscussionID: "disc-1"})
	select {
	case <-c.send:
		t.Fatalf("unsubscribed client should not receive events")
	default:
	}
}

func TestHubUnsubscribeAllRemovesEveryRoom(t *testing.T) {
	hub := NewHub()
	c := &Client{send: make(chan any, 8)}
	hub.Subscribe("disc-1", c)
	hub.Subscribe("disc-2", c)
	hub.UnsubscribeAll(c)

	hub.Emit(context.Background(), scheduler.Event{Type: scheduler.EventDiscussionStarted, DiscussionID: "disc-1"})
	hub.Emit(context.Background(), scheduler.Event{Type: scheduler.EventDiscussionStarted, DiscussionID: "disc-2"})
	select {
	case <-c.send:
		t.Fatalf("client removed from all rooms should not receive events")
	default:
	}
}

func TestHubTrackDoesNotPanicOnMismatchedChunkAccounting(t *testing.T) {
	hub := NewHub()
	c := &Client{send: make(chan any, 8)}
	hub.Subscribe("disc-1", c)

	ctx := context.Background()
	hub.Emit(ctx, scheduler.Event{Type: scheduler.EventMessageStart, DiscussionID: "disc-1", Turn: 1})
	hub.Emit(ctx, scheduler.Event{Type: scheduler.EventMessageChunk, DiscussionID: "disc-1", Turn: 1, Chunk: "abcd"})
	hub.Emit(ctx, scheduler.Event{
		Type:         scheduler.EventMessageComplete,
		DiscussionID: "disc-1",
		Turn:         1,
		Message:      &domain.Response{Content: "abcd-efgh-truncated-by-a-lot-more-than-ten-characters"},
	})

	drained := 0
	for {
		select {
		case <-c.send:
			drained++
		default:
			if drained != 3 {
				t.Fatalf("expected 3 frames delivered, got %d", drained)
			}
			return
		}
	}
}

func TestConnLimiterEnforcesConcurrentCap(t *testing.T) {
	l := newConnLimiter(1, 0)
	_, ok := l.Allow("1.2.3.4")
	if !ok {
		t.Fatalf("expected first connection to be admitted")
	}
	_, ok = l.Allow("1.2.3.4")
	if ok {
		t.Fatalf("expected second concurrent connection from the same address to be rejected")
	}
}

func TestConnLimiterReleaseFreesSlot(t *testing.T) {
	l := newConnLimiter(1, 0)
	release, ok := l.Allow("1.2.3.4")
	if !ok {
		t.Fatalf("expected first connection to be admitted")
	}
	release()
	if _, ok := l.Allow("1.2.3.4"); !ok {
		t.Fatalf("expected a slot to free up after release")
	}
}

func TestConnLimiterEnforcesPerMinuteRate(t *testing.T) {
	l := newConnLimiter(100, 2)
	if _, ok := l.Allow("5.5.5.5"); !ok {
		t.Fatalf("first connection should be admitted")
	}
	if _, ok := l.Allow("5.5.5.5"); !ok {
		t.Fatalf("second connection should be admitted")
	}
	if _, ok := l.Allow("5.5.5.5"); ok {
		t.Fatalf("third connection within the window should be rejected")
	}
}

func TestMessageLimiterEnforcesPerMinuteRate(t *testing.T) {
	l := newMessageLimiter(2)
	if !l.Allow() || !l.Allow() {
		t.Fatalf("first two messages should be allowed")
	}
	if l.Allow() {
		t.Fatalf("third message within the window should be rejected")
	}
}

func TestMessageLimiterResetsAfterWindowElapses(t *testing.T) {
	l := newMessageLimiter(1)
	if !l.Allow() {
		t.Fatalf("first message should be allowed")
	}
	l.windowStart = time.Now().Add(-2 * time.Minute)
	if !l.Allow() {
		t.Fatalf("message after the window elapses should be allowed again")
	}
}
