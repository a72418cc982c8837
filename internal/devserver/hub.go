package devserver

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/artisan-platform/live-session/internal/model"
	"github.com/artisan-platform/live-session/internal/signaling"
)

// historyLimit caps the in-memory chat buffer per room; it is the only
// persistence chat gets.
const historyLimit = 50

// Peer represents a WebSocket connection joined to an exhibition room.
type Peer struct {
	ExhibitionID string
	Role         model.Role
	Conn         *websocket.Conn
	Send         chan []byte
}

// Hub manages live-session rooms: membership keyed by exhibition id, chat
// history buffers and event fan-out.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Peer]struct{}
	history  map[string][]model.ChatMessage
	upgrader websocket.Upgrader
	store    *Store
	log      *zap.Logger
}

// NewHub creates a hub backed by the store (viewer counts, stream status).
func NewHub(store *Store, log *zap.Logger) *Hub {
	return &Hub{
		rooms:   make(map[string]map[*Peer]struct{}),
		history: make(map[string][]model.ChatMessage),
		store:   store,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024 * 4,
			WriteBufferSize: 1024 * 4,
			// Allow all origins for dev; in prod set CheckOrigin.
		},
	}
}

// Upgrader returns the WebSocket upgrader for HTTP handlers.
func (h *Hub) Upgrader() *websocket.Upgrader { return &h.upgrader }

// Join adds a peer to a room and returns a cleanup function. Joining pushes
// the chat history to the new peer and a viewer-count update to the room.
// Re-joins on the same connection are idempotent (membership is a set).
func (h *Hub) Join(p *Peer) func() {
	h.mu.Lock()
	if h.rooms[p.ExhibitionID] == nil {
		h.rooms[p.ExhibitionID] = make(map[*Peer]struct{})
	}
	_, already := h.rooms[p.ExhibitionID][p]
	h.rooms[p.ExhibitionID][p] = struct{}{}
	history := append([]model.ChatMessage(nil), h.history[p.ExhibitionID]...)
	h.mu.Unlock()

	if already {
		return func() { h.leave(p) }
	}

	h.log.Info("peer joined",
		zap.String("exhibition_id", p.ExhibitionID),
		zap.String("role", string(p.Role)))

	h.sendTo(p, signaling.NewEnvelope(signaling.EventChatHistory, history))
	if p.Role == model.RoleViewer {
		h.store.AddView(p.ExhibitionID)
	}
	h.broadcastViewerCount(p.ExhibitionID)

	return func() { h.leave(p) }
}

func (h *Hub) leave(p *Peer) {
	h.mu.Lock()
	room, ok := h.rooms[p.ExhibitionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, member := room[p]; !member {
		h.mu.Unlock()
		return
	}
	delete(room, p)
	if len(room) == 0 {
		delete(h.rooms, p.ExhibitionID)
	}
	h.mu.Unlock()
	close(p.Send)

	h.log.Info("peer left",
		zap.String("exhibition_id", p.ExhibitionID),
		zap.String("role", string(p.Role)))

	// an author vanishing without an explicit end-stream is an interruption
	if p.Role == model.RoleAuthor {
		h.store.SetStreamStatus(p.ExhibitionID, model.StreamDisconnected)
		h.Broadcast(p.ExhibitionID, signaling.NewEnvelope(signaling.EventStreamInterrupted, nil))
	}
	h.broadcastViewerCount(p.ExhibitionID)
}

// Broadcast fans an envelope out to every peer in the room.
func (h *Hub) Broadcast(exhibitionID string, env signaling.Envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		return
	}
	h.mu.RLock()
	peers := make([]*Peer, 0, len(h.rooms[exhibitionID]))
	for p := range h.rooms[exhibitionID] {
		peers = append(peers, p)
	}
	h.mu.RUnlock()
	for _, p := range peers {
		select {
		case p.Send <- raw:
		default:
			h.log.Warn("peer send buffer full",
				zap.String("exhibition_id", exhibitionID))
		}
	}
}

// AddChat appends to the capped history buffer and relays the message.
func (h *Hub) AddChat(msg model.ChatMessage) {
	h.mu.Lock()
	buf := append(h.history[msg.ExhibitionID], msg)
	if len(buf) > historyLimit {
		buf = buf[len(buf)-historyLimit:]
	}
	h.history[msg.ExhibitionID] = buf
	h.mu.Unlock()
	h.Broadcast(msg.ExhibitionID, signaling.NewEnvelope(signaling.EventChatMessage, msg))
}

// ViewerCount returns the number of viewer-role peers in the room.
func (h *Hub) ViewerCount(exhibitionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for p := range h.rooms[exhibitionID] {
		if p.Role == model.RoleViewer {
			n++
		}
	}
	return n
}

func (h *Hub) broadcastViewerCount(exhibitionID string) {
	n := h.ViewerCount(exhibitionID)
	h.store.SetViewers(exhibitionID, n)
	h.Broadcast(exhibitionID, signaling.NewEnvelope(signaling.EventViewerCount,
		signaling.ViewerCountPayload{Count: n}))
}

func (h *Hub) sendTo(p *Peer, env signaling.Envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		return
	}
	select {
	case p.Send <- raw:
	default:
	}
}
