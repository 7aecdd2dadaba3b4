package gateway

import (
	"sync"
	"time"
)

// connLimiter enforces the per-source-address connection limits of §4.9:
// a cap on concurrent connections and a sliding one-minute window on new
// connection attempts.
type connLimiter struct {
	mu             sync.Mutex
	maxConcurrent  int
	maxPerMinute   int
	active         map[string]int
	recentConnects map[string][]time.Time
}

func newConnLimiter(maxConcurrent, maxPerMinute int) *connLimiter {
	return &connLimiter{
		maxConcurrent:  maxConcurrent,
		maxPerMinute:   maxPerMinute,
		active:         make(map[string]int),
		recentConnects: make(map[string][]time.Time),
	}
}

// Allow admits a new connection from addr, or reports false when either
// limit is already exhausted. On success the caller must call the returned
// release func when the connection closes.
func (l *connLimiter) Allow(addr string) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxConcurrent > 0 && l.active[addr] >= l.maxConcurrent {
		return nil, false
	}

	now := time.Now()
	window := now.Add(-time.Minute)
	kept := l.recentConnects[addr][:0]
	for _, t := range l.recentConnects[addr] {
		if t.After(window) {
			kept = append(kept, t)
		}
	}
	if l.maxPerMinute > 0 && len(kept) >= l.maxPerMinute {
		l.recentConnects[addr] = kept
		return nil, false
	}
	l.recentConnects[addr] = append(kept, now)
	l.active[addr]++

	released := false
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if released {
			return
		}
		released = true
		l.active[addr]--
		if l.active[addr] <= 0 {
			delete(l.active, addr)
		}
	}, true
}

// messageLimiter enforces the per-connection inbound message rate of §4.9
// (default 100/min). One instance lives on each Client, independent of the
// session's own ClientSession bookkeeping.
type messageLimiter struct {
	mu          sync.Mutex
	maxPerMin   int
	windowStart time.Time
	count       int
}

func newMessageLimiter(maxPerMin int) *messageLimiter {
	return &messageLimiter{maxPerMin: maxPerMin, windowStart: time.Now()}
}

// Allow reports whether one more inbound message is permitted in the
// current rolling minute, advancing the window when it has elapsed.
func (l *messageLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if now.Sub(l.windowStart) >= time.Minute {
		l.windowStart = now
		l.count = 0
	}
	if l.maxPerMin > 0 && l.count >= l.maxPerMin {
		return false
	}
	l.count++
	return true
}
