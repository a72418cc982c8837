package signaling

import (
	"encoding/json"

	"github.com/artisan-platform/live-session/internal/model"
)

// Event names on the live-session socket. Client→server events carry the
// exhibition id so one socket can be multiplexed server-side.
const (
	// client → server
	EventJoinExhibition  = "join-exhibition"
	EventArtistGoLive    = "artist-go-live"
	EventArtistEndStream = "artist-end-stream"
	EventChatMessage     = "chat-message"
	EventSendReaction    = "send-reaction"

	// server → client
	EventStreamStarted     = "stream-started"
	EventStreamEnded       = "stream-ended"
	EventStreamInterrupted = "stream-interrupted"
	EventViewerCount       = "viewer-count-update"
	EventChatHistory       = "chat-history"
	EventReaction          = "reaction"
)

// Envelope is the wire frame: event name plus event-specific JSON payload.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an Envelope. Marshal errors are
// programming errors (all payloads are plain structs), so they panic.
func NewEnvelope(event string, payload any) Envelope {
	if payload == nil {
		return Envelope{Event: event}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		panic("signaling: marshal payload: " + err.Error())
	}
	return Envelope{Event: event, Payload: raw}
}

// JoinPayload — client → server на join-exhibition.
type JoinPayload struct {
	ExhibitionID string     `json:"exhibition_id"`
	Role         model.Role `json:"role"`
}

// LifecyclePayload accompanies artist-go-live / artist-end-stream.
type LifecyclePayload struct {
	ExhibitionID string `json:"exhibition_id"`
}

// ViewerCountPayload accompanies viewer-count-update.
type ViewerCountPayload struct {
	Count int `json:"count"`
}

// ReactionPayload accompanies send-reaction and reaction.
type ReactionPayload struct {
	ExhibitionID string `json:"exhibition_id,omitempty"`
	Reaction     string `json:"reaction"`
}
