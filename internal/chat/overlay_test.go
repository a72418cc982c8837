package chat

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/artisan-platform/live-session/internal/errs"
	"github.com/artisan-platform/live-session/internal/model"
)

type fakeSender struct {
	mu        sync.Mutex
	chats     []model.ChatMessage
	reactions []string
	sendErr   error
}

func (f *fakeSender) SendChat(msg model.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.chats = append(f.chats, msg)
	return nil
}

func (f *fakeSender) SendReaction(exhibitionID, reaction string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.reactions = append(f.reactions, reaction)
	return nil
}

func TestSend_GatedOnLive(t *testing.T) {
	s := &fakeSender{}
	live := false
	o := New("ex1", s, func() bool { return live }, 0, nil)

	if err := o.Send("u1", "ann", "", "hello", model.RoleViewer); !errors.Is(err, errs.ErrChatUnavailable) {
		t.Fatalf("Send() before live = %v, want ErrChatUnavailable", err)
	}

	live = true
	if err := o.Send("u1", "ann", "", "hello", model.RoleViewer); err != nil {
		t.Fatalf("Send() while live = %v", err)
	}
	if len(s.chats) != 1 || s.chats[0].Message != "hello" {
		t.Errorf("sent chats = %+v", s.chats)
	}
	if s.chats[0].ExhibitionID != "ex1" || s.chats[0].Role != model.RoleViewer {
		t.Errorf("message metadata = %+v", s.chats[0])
	}
}

func TestSend_LengthCapCountsRunes(t *testing.T) {
	s := &fakeSender{}
	o := New("ex1", s, func() bool { return true }, 0, nil)

	// 200 multi-byte runes are within the cap even though the byte count is not
	ok := strings.Repeat("д", DefaultMaxMessageLen)
	if err := o.Send("u1", "ann", "", ok, model.RoleViewer); err != nil {
		t.Fatalf("Send(200 runes) = %v", err)
	}

	over := strings.Repeat("д", DefaultMaxMessageLen+1)
	if err := o.Send("u1", "ann", "", over, model.RoleViewer); !errors.Is(err, errs.ErrMessageTooLong) {
		t.Fatalf("Send(201 runes) = %v, want ErrMessageTooLong", err)
	}
	// rejected, not truncated
	if len(s.chats) != 1 {
		t.Errorf("sent chats = %d, want 1", len(s.chats))
	}
}

func TestReact_OptimisticLocalEcho(t *testing.T) {
	s := &fakeSender{sendErr: errors.New("transport down")}
	o := New("ex1", s, func() bool { return true }, 0, nil)

	fr := o.React("🔥")
	if fr.Emoji != "🔥" {
		t.Errorf("echo emoji = %q", fr.Emoji)
	}
	if fr.OffsetPct < 0 || fr.OffsetPct > 100 {
		t.Errorf("offset = %v, want 0..100", fr.OffsetPct)
	}
	// the local echo shows even though the send failed
	active := o.ActiveReactions(time.Now())
	if len(active) != 1 || active[0].ID != fr.ID {
		t.Errorf("active reactions = %+v, want the local echo", active)
	}
}

func TestActiveReactions_PrunesExpired(t *testing.T) {
	s := &fakeSender{}
	o := New("ex1", s, func() bool { return true }, 0, nil)

	fr := o.React("👏")
	if got := o.ActiveReactions(time.Now()); len(got) != 1 {
		t.Fatalf("active = %d, want 1", len(got))
	}
	// past the TTL the reaction is gone
	if got := o.ActiveReactions(fr.ExpiresAt.Add(time.Millisecond)); len(got) != 0 {
		t.Fatalf("active after TTL = %d, want 0", len(got))
	}
	// and stays gone
	if got := o.ActiveReactions(time.Now()); len(got) != 0 {
		t.Errorf("pruned reaction came back: %d", len(got))
	}
}

func TestHistoryReplacesBuffer(t *testing.T) {
	s := &fakeSender{}
	o := New("ex1", s, func() bool { return true }, 0, nil)

	o.OnMessage(model.ChatMessage{Message: "stale"})
	o.OnHistory([]model.ChatMessage{
		{Message: "first"},
		{Message: "second"},
	})
	o.OnMessage(model.ChatMessage{Message: "third"})

	msgs := o.Messages()
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3 (history replaces, relay appends)", len(msgs))
	}
	if msgs[0].Message != "first" || msgs[2].Message != "third" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestRemoteReactionRenders(t *testing.T) {
	s := &fakeSender{}
	o := New("ex1", s, func() bool { return true }, 0, nil)

	o.OnRemoteReaction("❤️")
	if got := o.ActiveReactions(time.Now()); len(got) != 1 {
		t.Errorf("active = %d, want 1", len(got))
	}
	// a remote render never echoes back out
	if len(s.reactions) != 0 {
		t.Errorf("sent reactions = %d, want 0", len(s.reactions))
	}
}
