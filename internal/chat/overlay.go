package chat

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/artisan-platform/live-session/internal/errs"
	"github.com/artisan-platform/live-session/internal/model"
)

const (
	// DefaultMaxMessageLen caps chat messages (runes, not bytes).
	DefaultMaxMessageLen = 200
	// reactionTTL is how long a floating reaction stays on screen.
	reactionTTL = 4 * time.Second
)

// Sender is the slice of the signaling client the overlay needs.
type Sender interface {
	SendChat(msg model.ChatMessage) error
	SendReaction(exhibitionID, reaction string) error
}

// FloatingReaction is purely client-local animation state: an emoji with a
// random horizontal offset and a fixed time-to-live. No server-side state.
type FloatingReaction struct {
	ID        string
	Emoji     string
	OffsetPct float64 // 0..100, horizontal position
	ExpiresAt time.Time
}

// Overlay relays chat and reactions over the signaling channel for the
// lifetime of one live session. Sending is gated on the stream being live and
// connected; history comes only from the server push on room join.
type Overlay struct {
	exhibitionID string
	sender       Sender
	liveFn       func() bool // gate: live with media connected
	maxLen       int
	log          *zap.Logger

	mu        sync.Mutex
	messages  []model.ChatMessage
	reactions []FloatingReaction
	rnd       *rand.Rand
}

// New creates an overlay. liveFn gates sending; maxLen <= 0 uses the default.
func New(exhibitionID string, sender Sender, liveFn func() bool, maxLen int, log *zap.Logger) *Overlay {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLen
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Overlay{
		exhibitionID: exhibitionID,
		sender:       sender,
		liveFn:       liveFn,
		maxLen:       maxLen,
		log:          log,
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Send relays one chat message. No-op (error) while the stream is not
// live-connected; over-length messages are rejected, not truncated.
func (o *Overlay) Send(userID, displayName, avatar, text string, role model.Role) error {
	if o.liveFn != nil && !o.liveFn() {
		return errs.ErrChatUnavailable
	}
	if len([]rune(text)) > o.maxLen {
		return errs.ErrMessageTooLong
	}
	msg := model.ChatMessage{
		ExhibitionID: o.exhibitionID,
		UserID:       userID,
		DisplayName:  displayName,
		Avatar:       avatar,
		Message:      text,
		Role:         role,
		SentAt:       time.Now(),
	}
	return o.sender.SendChat(msg)
}

// React broadcasts a fire-and-forget reaction and renders the local echo
// immediately instead of waiting for the server copy.
func (o *Overlay) React(emoji string) FloatingReaction {
	fr := o.newFloating(emoji)
	if err := o.sender.SendReaction(o.exhibitionID, emoji); err != nil {
		// fire-and-forget: the local echo still shows
		o.log.Debug("chat: reaction send failed", zap.Error(err))
	}
	return fr
}

// OnHistory replaces the local buffer with the server's history push on join.
func (o *Overlay) OnHistory(msgs []model.ChatMessage) {
	o.mu.Lock()
	o.messages = append([]model.ChatMessage(nil), msgs...)
	o.mu.Unlock()
}

// OnMessage appends a relayed message.
func (o *Overlay) OnMessage(msg model.ChatMessage) {
	o.mu.Lock()
	o.messages = append(o.messages, msg)
	o.mu.Unlock()
}

// OnRemoteReaction renders a reaction relayed from another participant.
func (o *Overlay) OnRemoteReaction(emoji string) FloatingReaction {
	return o.newFloating(emoji)
}

// Messages returns the session-scoped message buffer.
func (o *Overlay) Messages() []model.ChatMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]model.ChatMessage(nil), o.messages...)
}

// ActiveReactions prunes expired reactions and returns the live ones.
func (o *Overlay) ActiveReactions(now time.Time) []FloatingReaction {
	o.mu.Lock()
	defer o.mu.Unlock()
	kept := o.reactions[:0]
	for _, r := range o.reactions {
		if r.ExpiresAt.After(now) {
			kept = append(kept, r)
		}
	}
	o.reactions = kept
	return append([]FloatingReaction(nil), kept...)
}

func (o *Overlay) newFloating(emoji string) FloatingReaction {
	o.mu.Lock()
	defer o.mu.Unlock()
	fr := FloatingReaction{
		ID:        uuid.New().String(),
		Emoji:     emoji,
		OffsetPct: o.rnd.Float64() * 100,
		ExpiresAt: time.Now().Add(reactionTTL),
	}
	o.reactions = append(o.reactions, fr)
	return fr
}
