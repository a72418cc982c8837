package devserver

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/artisan-platform/live-session/internal/model"
	"github.com/artisan-platform/live-session/internal/signaling"
)

// WSHandler handles the live-session event socket at /ws/live.
type WSHandler struct {
	hub    *Hub
	store  *Store
	logger *zap.Logger
}

// NewWSHandler creates the signaling socket handler.
func NewWSHandler(hub *Hub, store *Store, logger *zap.Logger) *WSHandler {
	return &WSHandler{hub: hub, store: store, logger: logger}
}

// ServeWS upgrades the request and runs the event loop. Room membership is
// declared by the first (and any repeated) join-exhibition envelope; the
// server forgets membership when the connection drops, so clients re-join on
// every reconnect.
func (h *WSHandler) ServeWS(c *gin.Context) {
	conn, err := h.hub.Upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	peer := &Peer{Conn: conn, Send: make(chan []byte, 256)}
	var cleanup func()
	defer func() {
		if cleanup != nil {
			cleanup()
		}
	}()

	go h.writePump(peer)
	h.readPump(peer, &cleanup)
}

func (h *WSHandler) readPump(p *Peer, cleanup *func()) {
	defer func() {
		_ = p.Conn.Close()
	}()
	for {
		_, data, err := p.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("read error", zap.Error(err))
			}
			return
		}
		var env signaling.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.logger.Debug("bad frame", zap.Error(err))
			continue
		}
		h.handle(p, cleanup, env)
	}
}

func (h *WSHandler) handle(p *Peer, cleanup *func(), env signaling.Envelope) {
	switch env.Event {
	case signaling.EventJoinExhibition:
		var join signaling.JoinPayload
		if err := json.Unmarshal(env.Payload, &join); err != nil || join.ExhibitionID == "" {
			return
		}
		p.ExhibitionID = join.ExhibitionID
		p.Role = join.Role
		*cleanup = h.hub.Join(p)

	case signaling.EventArtistGoLive:
		var lc signaling.LifecyclePayload
		if json.Unmarshal(env.Payload, &lc) != nil {
			return
		}
		h.store.SetStreamStatus(lc.ExhibitionID, model.StreamStreaming)
		h.hub.Broadcast(lc.ExhibitionID, signaling.NewEnvelope(signaling.EventStreamStarted, nil))

	case signaling.EventArtistEndStream:
		var lc signaling.LifecyclePayload
		if json.Unmarshal(env.Payload, &lc) != nil {
			return
		}
		h.store.SetStreamStatus(lc.ExhibitionID, model.StreamIdle)
		h.hub.Broadcast(lc.ExhibitionID, signaling.NewEnvelope(signaling.EventStreamEnded, nil))

	case signaling.EventChatMessage:
		var msg model.ChatMessage
		if json.Unmarshal(env.Payload, &msg) != nil || msg.ExhibitionID == "" {
			return
		}
		h.hub.AddChat(msg)

	case signaling.EventSendReaction:
		var r signaling.ReactionPayload
		if json.Unmarshal(env.Payload, &r) != nil || r.ExhibitionID == "" {
			return
		}
		h.hub.Broadcast(r.ExhibitionID, signaling.NewEnvelope(signaling.EventReaction,
			signaling.ReactionPayload{Reaction: r.Reaction}))

	default:
		h.logger.Debug("unknown client event", zap.String("event", env.Event))
	}
}

func (h *WSHandler) writePump(p *Peer) {
	defer func() {
		_ = p.Conn.Close()
	}()
	for data := range p.Send {
		if err := p.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
