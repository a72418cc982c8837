package devserver

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/artisan-platform/live-session/internal/model"
	"github.com/artisan-platform/live-session/internal/signaling"
)

func newTestPeer(exhibitionID string, role model.Role) *Peer {
	return &Peer{
		ExhibitionID: exhibitionID,
		Role:         role,
		Send:         make(chan []byte, 256),
	}
}

func recvEnvelope(t *testing.T, p *Peer) signaling.Envelope {
	t.Helper()
	select {
	case raw := <-p.Send:
		var env signaling.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return signaling.Envelope{}
	}
}

func drainUntil(t *testing.T, p *Peer, event string) signaling.Envelope {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case raw := <-p.Send:
			var env signaling.Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				t.Fatalf("unmarshal envelope: %v", err)
			}
			if env.Event == event {
				return env
			}
		case <-deadline:
			t.Fatalf("no %s frame received", event)
		}
	}
}

func TestHub_JoinPushesHistoryAndCount(t *testing.T) {
	store := NewStore()
	h := NewHub(store, zap.NewNop())

	h.AddChat(model.ChatMessage{ExhibitionID: "demo", DisplayName: "ann", Message: "early"})

	p := newTestPeer("demo", model.RoleViewer)
	cleanup := h.Join(p)
	defer cleanup()

	env := recvEnvelope(t, p)
	if env.Event != signaling.EventChatHistory {
		t.Fatalf("first frame = %q, want chat-history", env.Event)
	}
	var msgs []model.ChatMessage
	if err := json.Unmarshal(env.Payload, &msgs); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Message != "early" {
		t.Errorf("history = %+v", msgs)
	}

	env = drainUntil(t, p, signaling.EventViewerCount)
	var vc signaling.ViewerCountPayload
	if err := json.Unmarshal(env.Payload, &vc); err != nil {
		t.Fatalf("unmarshal count: %v", err)
	}
	if vc.Count != 1 {
		t.Errorf("viewer count = %d, want 1", vc.Count)
	}

	// the store sees hub-authoritative presence
	ex, _ := store.Get("demo")
	if ex.LiveDetails.CurrentViewers != 1 {
		t.Errorf("store viewers = %d, want 1", ex.LiveDetails.CurrentViewers)
	}
	if ex.LiveDetails.TotalViews != 1 {
		t.Errorf("total views = %d, want 1", ex.LiveDetails.TotalViews)
	}
}

func TestHub_AuthorsDoNotCountAsViewers(t *testing.T) {
	store := NewStore()
	h := NewHub(store, zap.NewNop())

	author := newTestPeer("demo", model.RoleAuthor)
	viewer := newTestPeer("demo", model.RoleViewer)
	defer h.Join(author)()
	defer h.Join(viewer)()

	if got := h.ViewerCount("demo"); got != 1 {
		t.Errorf("ViewerCount() = %d, want 1 (author excluded)", got)
	}
	ex, _ := store.Get("demo")
	if ex.LiveDetails.TotalViews != 1 {
		t.Errorf("total views = %d, want 1 (author join not counted)", ex.LiveDetails.TotalViews)
	}
}

func TestHub_AuthorVanishBroadcastsInterruption(t *testing.T) {
	store := NewStore()
	store.SetStreamStatus("demo", model.StreamStreaming)
	h := NewHub(store, zap.NewNop())

	author := newTestPeer("demo", model.RoleAuthor)
	viewer := newTestPeer("demo", model.RoleViewer)
	leaveAuthor := h.Join(author)
	defer h.Join(viewer)()

	// author connection drops without an explicit end-stream
	leaveAuthor()

	env := drainUntil(t, viewer, signaling.EventStreamInterrupted)
	if env.Event != signaling.EventStreamInterrupted {
		t.Fatalf("event = %q", env.Event)
	}
	ex, _ := store.Get("demo")
	if ex.CurrentStreamStatus() != model.StreamDisconnected {
		t.Errorf("stream status = %v, want DISCONNECTED", ex.CurrentStreamStatus())
	}
}

func TestHub_ChatRelayAndCappedHistory(t *testing.T) {
	store := NewStore()
	h := NewHub(store, zap.NewNop())

	a := newTestPeer("demo", model.RoleViewer)
	b := newTestPeer("demo", model.RoleViewer)
	defer h.Join(a)()
	defer h.Join(b)()

	h.AddChat(model.ChatMessage{ExhibitionID: "demo", DisplayName: "ann", Message: "hi"})

	for _, p := range []*Peer{a, b} {
		env := drainUntil(t, p, signaling.EventChatMessage)
		var msg model.ChatMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			t.Fatalf("unmarshal chat: %v", err)
		}
		if msg.Message != "hi" {
			t.Errorf("relayed message = %q", msg.Message)
		}
	}

	// the buffer keeps only the newest historyLimit messages
	for i := 0; i < historyLimit+10; i++ {
		h.AddChat(model.ChatMessage{ExhibitionID: "demo", Message: "m"})
	}
	h.mu.RLock()
	got := len(h.history["demo"])
	h.mu.RUnlock()
	if got != historyLimit {
		t.Errorf("history length = %d, want %d", got, historyLimit)
	}
}

func TestHub_RejoinIsIdempotent(t *testing.T) {
	store := NewStore()
	h := NewHub(store, zap.NewNop())

	p := newTestPeer("demo", model.RoleViewer)
	h.Join(p)
	cleanup := h.Join(p) // same connection re-announces membership
	defer cleanup()

	if got := h.ViewerCount("demo"); got != 1 {
		t.Errorf("ViewerCount() after rejoin = %d, want 1", got)
	}
	ex, _ := store.Get("demo")
	if ex.LiveDetails.TotalViews != 1 {
		t.Errorf("total views = %d, want 1 (rejoin not double-counted)", ex.LiveDetails.TotalViews)
	}
}
