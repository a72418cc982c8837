package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/artisan-platform/live-session/internal/errs"
	"github.com/artisan-platform/live-session/internal/model"
)

// Conn is the subset of *websocket.Conn the client needs; tests substitute
// in-memory implementations.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc establishes one transport connection. ctx carries the per-attempt
// timeout.
type DialFunc func(ctx context.Context, url string) (Conn, error)

func gorillaDial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Handlers are the event callbacks. All fields are optional. Handlers are
// registered once at construction and survive reconnects, so no listener is
// ever registered twice.
type Handlers struct {
	OnConnected         func()
	OnDisconnected      func(reason error)
	OnReconnecting      func(attempt int)
	OnReconnected       func()
	OnReconnectFailed   func()
	OnStreamStarted     func()
	OnStreamEnded       func()
	OnStreamInterrupted func()
	OnViewerCount       func(count int)
	OnChatMessage       func(msg model.ChatMessage)
	OnChatHistory       func(msgs []model.ChatMessage)
	OnReaction          func(reaction string)
}

// Options configure the client. Zero values fall back to the production
// web-client defaults: 10 attempts, 1s initial delay, 5s max delay, 20s
// per-attempt timeout.
type Options struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
	ConnectTimeout    time.Duration
	Dial              DialFunc
	Logger            *zap.Logger
}

func (o *Options) withDefaults() {
	if o.ReconnectAttempts == 0 {
		o.ReconnectAttempts = 10
	}
	if o.ReconnectDelay == 0 {
		o.ReconnectDelay = time.Second
	}
	if o.ReconnectDelayMax == 0 {
		o.ReconnectDelayMax = 5 * time.Second
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 20 * time.Second
	}
	if o.Dial == nil {
		o.Dial = gorillaDial
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

type room struct {
	ExhibitionID string
	Role         model.Role
}

// Client maintains one logical live-session connection: auto-reconnect with a
// bounded attempt budget, idempotent room membership re-sent after every
// reconnect, and event dispatch to Handlers.
//
// One Client per open live session. The page-level owner must call Close on
// teardown; after Close the client never dials again.
type Client struct {
	opts Options
	h    Handlers
	log  *zap.Logger

	mu           sync.Mutex
	conn         Conn
	room         *room
	closed       bool
	failed       bool // reconnect budget exhausted
	reconnecting bool

	writeMu sync.Mutex

	// online is poked by NotifyOnline to cut the current backoff wait short.
	online chan struct{}
}

// New creates a client; call Connect to establish the transport.
func New(opts Options, h Handlers) *Client {
	opts.withDefaults()
	return &Client{
		opts:   opts,
		h:      h,
		log:    opts.Logger,
		online: make(chan struct{}, 1),
	}
}

// Connect establishes the transport, retrying transient failures with capped
// exponential backoff up to the attempt budget. It blocks until connected or
// the budget is exhausted (errs.ErrReconnectFailed), or ctx is cancelled.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dialOnce(ctx)
	if err == nil {
		c.attach(conn, false)
		return nil
	}
	c.log.Warn("signaling: initial connect failed", zap.Error(err))
	return c.reconnect(ctx, false)
}

// JoinRoom records the room for this session and announces membership.
// Idempotent: the same membership is re-announced after every reconnect
// because the server forgets it across transport-level reconnects.
func (c *Client) JoinRoom(exhibitionID string, role model.Role) error {
	c.mu.Lock()
	c.room = &room{ExhibitionID: exhibitionID, Role: role}
	c.mu.Unlock()
	return c.send(EventJoinExhibition, JoinPayload{ExhibitionID: exhibitionID, Role: role})
}

// AnnounceGoLive notifies the room that the artist went live.
func (c *Client) AnnounceGoLive(exhibitionID string) error {
	return c.send(EventArtistGoLive, LifecyclePayload{ExhibitionID: exhibitionID})
}

// AnnounceEndStream notifies the room that the artist ended the stream.
func (c *Client) AnnounceEndStream(exhibitionID string) error {
	return c.send(EventArtistEndStream, LifecyclePayload{ExhibitionID: exhibitionID})
}

// SendChat relays a chat message to the room.
func (c *Client) SendChat(msg model.ChatMessage) error {
	return c.send(EventChatMessage, msg)
}

// SendReaction broadcasts a fire-and-forget reaction.
func (c *Client) SendReaction(exhibitionID, reaction string) error {
	return c.send(EventSendReaction, ReactionPayload{ExhibitionID: exhibitionID, Reaction: reaction})
}

// NotifyOnline hints that connectivity returned (browser online event
// analogue); a pending reconnect backoff is cut short.
func (c *Client) NotifyOnline() {
	select {
	case c.online <- struct{}{}:
	default:
	}
}

// Connected reports whether the transport is currently established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close tears the connection down for good. Safe to call twice.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) dialOnce(ctx context.Context) (Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()
	return c.opts.Dial(dialCtx, c.opts.URL)
}

// attach installs conn, replays room membership and starts the read loop.
func (c *Client) attach(conn Conn, rejoined bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	r := c.room
	c.mu.Unlock()

	if rejoined {
		if r != nil {
			_ = c.send(EventJoinExhibition, JoinPayload{ExhibitionID: r.ExhibitionID, Role: r.Role})
		}
		if c.h.OnReconnected != nil {
			c.h.OnReconnected()
		}
	} else if c.h.OnConnected != nil {
		c.h.OnConnected()
	}

	go c.readLoop(conn)
}

// reconnect runs the bounded retry loop. Serialized: a second caller returns
// immediately while one loop is pending.
func (c *Client) reconnect(ctx context.Context, rejoined bool) error {
	c.mu.Lock()
	if c.closed || c.failed || c.reconnecting {
		c.mu.Unlock()
		return errs.ErrReconnectFailed
	}
	c.reconnecting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	delay := c.opts.ReconnectDelay
	for attempt := 1; attempt <= c.opts.ReconnectAttempts; attempt++ {
		if c.h.OnReconnecting != nil {
			c.h.OnReconnecting(attempt)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.online:
			// connectivity came back, try right away
		case <-time.After(delay):
		}
		if delay *= 2; delay > c.opts.ReconnectDelayMax {
			delay = c.opts.ReconnectDelayMax
		}

		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return errs.ErrReconnectFailed
		}

		conn, err := c.dialOnce(ctx)
		if err != nil {
			c.log.Warn("signaling: reconnect attempt failed",
				zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		c.attach(conn, rejoined)
		return nil
	}

	c.mu.Lock()
	c.failed = true
	c.mu.Unlock()
	c.log.Error("signaling: reconnect attempts exhausted",
		zap.Int("attempts", c.opts.ReconnectAttempts))
	if c.h.OnReconnectFailed != nil {
		c.h.OnReconnectFailed()
	}
	return errs.ErrReconnectFailed
}

func (c *Client) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			_ = conn.Close()
			if closed {
				return
			}
			if c.h.OnDisconnected != nil {
				c.h.OnDisconnected(err)
			}
			go func() { _ = c.reconnect(context.Background(), true) }()
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Warn("signaling: bad frame", zap.Error(err))
		return
	}
	switch env.Event {
	case EventStreamStarted:
		if c.h.OnStreamStarted != nil {
			c.h.OnStreamStarted()
		}
	case EventStreamEnded:
		if c.h.OnStreamEnded != nil {
			c.h.OnStreamEnded()
		}
	case EventStreamInterrupted:
		if c.h.OnStreamInterrupted != nil {
			c.h.OnStreamInterrupted()
		}
	case EventViewerCount:
		var p ViewerCountPayload
		if json.Unmarshal(env.Payload, &p) == nil && c.h.OnViewerCount != nil {
			c.h.OnViewerCount(p.Count)
		}
	case EventChatMessage:
		var msg model.ChatMessage
		if json.Unmarshal(env.Payload, &msg) == nil && c.h.OnChatMessage != nil {
			c.h.OnChatMessage(msg)
		}
	case EventChatHistory:
		var msgs []model.ChatMessage
		if json.Unmarshal(env.Payload, &msgs) == nil && c.h.OnChatHistory != nil {
			c.h.OnChatHistory(msgs)
		}
	case EventReaction:
		var p ReactionPayload
		if json.Unmarshal(env.Payload, &p) == nil && c.h.OnReaction != nil {
			c.h.OnReaction(p.Reaction)
		}
	default:
		c.log.Debug("signaling: unknown event", zap.String("event", env.Event))
	}
}

func (c *Client) send(event string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errs.ErrNotConnected
	}
	raw, err := json.Marshal(NewEnvelope(event, payload))
	if err != nil {
		return fmt.Errorf("signaling: marshal %s: %w", event, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, raw)
}
