package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/artisan-platform/live-session/internal/errs"
	"github.com/artisan-platform/live-session/internal/model"
)

type fakeConn struct {
	mu       sync.Mutex
	writes   [][]byte
	incoming chan []byte
	done     chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-c.incoming:
		return websocket.TextMessage, msg, nil
	case <-c.done:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) push(t *testing.T, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(NewEnvelope(event, payload))
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	c.incoming <- raw
}

func (c *fakeConn) sentEvents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.writes))
	for _, w := range c.writes {
		var env Envelope
		if json.Unmarshal(w, &env) == nil {
			out = append(out, env.Event)
		}
	}
	return out
}

// queueDialer hands out connections in order, or errors once the queue runs dry.
type queueDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	calls int32
}

func (d *queueDialer) dial(ctx context.Context, url string) (Conn, error) {
	atomic.AddInt32(&d.calls, 1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil, errors.New("dial refused")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func fastOptions(dial DialFunc) Options {
	return Options{
		URL:               "ws://test/ws/live",
		ReconnectDelay:    time.Millisecond,
		ReconnectDelayMax: 2 * time.Millisecond,
		ConnectTimeout:    time.Second,
		Dial:              dial,
	}
}

func awaitf(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestClient_ReconnectBudgetExhausted(t *testing.T) {
	var attempts []int
	var mu sync.Mutex
	failed := make(chan struct{})

	d := &queueDialer{} // always refuses
	c := New(fastOptions(d.dial), Handlers{
		OnReconnecting: func(n int) {
			mu.Lock()
			attempts = append(attempts, n)
			mu.Unlock()
		},
		OnReconnectFailed: func() { close(failed) },
	})

	err := c.Connect(context.Background())
	if !errors.Is(err, errs.ErrReconnectFailed) {
		t.Fatalf("Connect() = %v, want ErrReconnectFailed", err)
	}

	select {
	case <-failed:
	case <-time.After(time.Second):
		t.Fatal("OnReconnectFailed never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 10 {
		t.Fatalf("reconnect attempts = %d, want 10", len(attempts))
	}
	for i, n := range attempts {
		if n != i+1 {
			t.Errorf("attempt[%d] = %d, want %d", i, n, i+1)
		}
	}
	// one initial dial plus one per attempt
	if got := atomic.LoadInt32(&d.calls); got != 11 {
		t.Errorf("dial calls = %d, want 11", got)
	}
}

func TestClient_RejoinsRoomAfterReconnect(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	d := &queueDialer{conns: []*fakeConn{conn1, conn2}}

	reconnected := make(chan struct{})
	disconnected := make(chan struct{})
	c := New(fastOptions(d.dial), Handlers{
		OnDisconnected: func(error) { close(disconnected) },
		OnReconnected:  func() { close(reconnected) },
	})
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() = %v", err)
	}
	if err := c.JoinRoom("ex1", model.RoleViewer); err != nil {
		t.Fatalf("JoinRoom() = %v", err)
	}

	conn1.Close() // drop the transport under the client

	select {
	case <-disconnected:
	case <-time.After(time.Second):
		t.Fatal("OnDisconnected never fired")
	}
	select {
	case <-reconnected:
	case <-time.After(time.Second):
		t.Fatal("OnReconnected never fired")
	}

	// the same membership is announced again on the new transport
	awaitf(t, "rejoin frame", func() bool {
		for _, ev := range conn2.sentEvents() {
			if ev == EventJoinExhibition {
				return true
			}
		}
		return false
	})

	var join JoinPayload
	for _, w := range func() [][]byte { conn2.mu.Lock(); defer conn2.mu.Unlock(); return conn2.writes }() {
		var env Envelope
		if json.Unmarshal(w, &env) == nil && env.Event == EventJoinExhibition {
			if err := json.Unmarshal(env.Payload, &join); err != nil {
				t.Fatalf("unmarshal join payload: %v", err)
			}
		}
	}
	if join.ExhibitionID != "ex1" || join.Role != model.RoleViewer {
		t.Errorf("rejoin payload = %+v, want ex1/VIEWER", join)
	}
}

func TestClient_DispatchesServerEvents(t *testing.T) {
	conn := newFakeConn()
	d := &queueDialer{conns: []*fakeConn{conn}}

	started := make(chan struct{})
	counts := make(chan int, 1)
	chats := make(chan model.ChatMessage, 1)
	c := New(fastOptions(d.dial), Handlers{
		OnStreamStarted: func() { close(started) },
		OnViewerCount:   func(n int) { counts <- n },
		OnChatMessage:   func(m model.ChatMessage) { chats <- m },
	})
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() = %v", err)
	}

	conn.push(t, EventStreamStarted, LifecyclePayload{ExhibitionID: "ex1"})
	conn.push(t, EventViewerCount, ViewerCountPayload{Count: 42})
	conn.push(t, EventChatMessage, model.ChatMessage{ExhibitionID: "ex1", DisplayName: "ann", Message: "hi"})

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("stream-started not dispatched")
	}
	select {
	case n := <-counts:
		if n != 42 {
			t.Errorf("viewer count = %d, want 42", n)
		}
	case <-time.After(time.Second):
		t.Fatal("viewer-count not dispatched")
	}
	select {
	case m := <-chats:
		if m.Message != "hi" || m.DisplayName != "ann" {
			t.Errorf("chat message = %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("chat-message not dispatched")
	}
}

func TestClient_SendWithoutConnection(t *testing.T) {
	c := New(fastOptions(func(ctx context.Context, url string) (Conn, error) {
		return nil, errors.New("unused")
	}), Handlers{})

	err := c.SendChat(model.ChatMessage{Message: "hi"})
	if !errors.Is(err, errs.ErrNotConnected) {
		t.Errorf("SendChat() = %v, want ErrNotConnected", err)
	}
}

func TestClient_CloseStopsReconnecting(t *testing.T) {
	conn := newFakeConn()
	d := &queueDialer{conns: []*fakeConn{conn}}

	var reconnects int32
	c := New(fastOptions(d.dial), Handlers{
		OnReconnecting: func(int) { atomic.AddInt32(&reconnects, 1) },
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() = %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&reconnects); got != 0 {
		t.Errorf("reconnect attempts after Close = %d, want 0", got)
	}
	if c.Connected() {
		t.Error("Connected() = true after Close")
	}
}

func TestClient_NotifyOnlineSkipsBackoff(t *testing.T) {
	conn := newFakeConn()
	d := &queueDialer{} // first dials refused
	c := New(Options{
		URL:               "ws://test/ws/live",
		ReconnectAttempts: 3,
		ReconnectDelay:    time.Hour, // would stall without the online poke
		ReconnectDelayMax: time.Hour,
		ConnectTimeout:    time.Second,
		Dial:              d.dial,
	}, Handlers{})
	defer c.Close()

	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background()) }()

	awaitf(t, "initial dial", func() bool { return atomic.LoadInt32(&d.calls) >= 1 })
	d.mu.Lock()
	d.conns = []*fakeConn{conn}
	d.mu.Unlock()
	c.NotifyOnline()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Connect() = %v, want nil after online poke", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect still blocked in backoff after NotifyOnline")
	}
}
