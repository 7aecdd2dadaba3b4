package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"manifold/internal/apperror"
	"manifold/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	sendBufferSize = 64
)

// Client is one connected Session Gateway client (§3 Client Session).
type Client struct {
	conn    *websocket.Conn
	hub     *Hub
	server  *Server
	session domain.ClientSession
	msgRate *messageLimiter

	send chan any

	mu       sync.Mutex
	closed   bool
	userID   string
	released func()
}

func newClient(conn *websocket.Conn, server *Server, remoteAddr, userID string, release func()) *Client {
	now := time.Now()
	return &Client{
		conn:   conn,
		hub:    server.hub,
		server: server,
		session: domain.ClientSession{
			SocketID:      uuid.NewString(),
			RemoteAddr:    remoteAddr,
			ConnectedAt:   now,
			LastActivity:  now,
			Subscriptions: make(map[string]struct{}),
		},
		msgRate:  newMessageLimiter(server.cfg.MaxMessagesPerMinute),
		send:     make(chan any, sendBufferSize),
		userID:   userID,
		released: release,
	}
}

// userIDHint returns the identity established for this connection: the
// user_id supplied on connect, or whatever a prior start-dialogue event on
// this same socket provided. The Session Gateway has no identity store of
// its own (§6 "Identity store" is an external collaborator); it trusts
// whatever the front end has already authenticated.
func (c *Client) userIDHint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Client) setUserIDHint(userID string) {
	if userID == "" {
		return
	}
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

// enqueue queues a frame for writePump, the connection's sole writer, so
// acks and scheduler events never race each other on the same socket.
// Dropping the frame rather than blocking the caller when the client is
// backed up past its buffer keeps a slow/stalled client from stalling the
// emitting goroutine (Emitter's contract that Emit must not block the
// scheduler step for long).
func (c *Client) enqueue(v any) {
	select {
	case c.send <- v:
	default:
		log.Warn().Str("socket_id", c.session.SocketID).Msg("dropping frame for slow client")
	}
}

func (c *Client) subscribe(discussionID string) {
	c.mu.Lock()
	c.session.Subscriptions[discussionID] = struct{}{}
	c.mu.Unlock()
	c.hub.Subscribe(discussionID, c)
}

func (c *Client) touch() {
	c.mu.Lock()
	c.session.LastActivity = time.Now()
	c.mu.Unlock()
}

func (c *Client) idleSince(now time.Time, idleAfter time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.session.LastActivity) > idleAfter
}

func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.hub.UnsubscribeAll(c)
	_ = c.conn.Close()
	if c.released != nil {
		c.released()
	}
}

// writePump owns all writes to conn: outbound frames plus periodic pings,
// the conventional gorilla/websocket single-writer goroutine shape.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump owns all reads from conn: rate limiting, size enforcement,
// envelope decoding, and dispatch to the Server's handler.
func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(c.server.cfg.MaxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.touch()
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.touch()

		if !c.msgRate.Allow() {
			c.writeAck("", apperror.New(apperror.RateLimited, "message rate limit exceeded").Error())
			continue
		}

		var env inboundEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.writeAck("", "malformed frame: "+err.Error())
			continue
		}

		err = c.server.dispatch(c, env)
		if env.AckID != "" {
			msg := ""
			if err != nil {
				msg = err.Error()
			}
			c.writeAck(env.AckID, msg)
		}
	}
}

func (c *Client) writeAck(ackID, errMsg string) {
	c.enqueue(ackFrame{Type: "ack", AckID: ackID, Error: errMsg})
}
