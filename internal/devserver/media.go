package devserver

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/artisan-platform/live-session/internal/model"
)

// MediaRelay is the harness's stand-in for the media provider: WHIP-style
// publish, WHEP-style subscribe, RTP forwarded from the one publisher to every
// subscriber. Subscribers arriving before the publisher get zero tracks, which
// is a state the client must render as a placeholder anyway.
type MediaRelay struct {
	store *Store
	log   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*webrtc.PeerConnection          // resource id → pc
	locals   map[string][]*webrtc.TrackLocalStaticRTP   // exhibition → forwarded tracks
	authors  map[string]string                          // exhibition → resource id
}

// NewMediaRelay creates the relay.
func NewMediaRelay(store *Store, log *zap.Logger) *MediaRelay {
	return &MediaRelay{
		store:    store,
		log:      log,
		sessions: make(map[string]*webrtc.PeerConnection),
		locals:   make(map[string][]*webrtc.TrackLocalStaticRTP),
		authors:  make(map[string]string),
	}
}

// HandleWHIP godoc
// POST /media/whip — authors publish here
func (m *MediaRelay) HandleWHIP(c *gin.Context) {
	exhibitionID, ok := m.authorize(c, model.RoleAuthor)
	if !ok {
		return
	}
	offer, err := io.ReadAll(io.LimitReader(c.Request.Body, 64*1024))
	if err != nil || len(offer) == 0 {
		c.String(http.StatusBadRequest, "sdp offer required")
		return
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		c.String(http.StatusInternalServerError, "peer connection failed")
		return
	}
	id := uuid.New().String()

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		local, terr := webrtc.NewTrackLocalStaticRTP(remote.Codec().RTPCodecCapability, remote.ID(), remote.StreamID())
		if terr != nil {
			m.log.Warn("relay: local track failed", zap.Error(terr))
			return
		}
		m.mu.Lock()
		m.locals[exhibitionID] = append(m.locals[exhibitionID], local)
		m.mu.Unlock()
		for {
			pkt, _, rerr := remote.ReadRTP()
			if rerr != nil {
				return
			}
			if werr := local.WriteRTP(pkt); werr != nil {
				return
			}
		}
	})
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		if st == webrtc.PeerConnectionStateFailed || st == webrtc.PeerConnectionStateClosed {
			m.drop(id, exhibitionID)
		}
	})

	m.mu.Lock()
	m.sessions[id] = pc
	m.authors[exhibitionID] = id
	m.mu.Unlock()

	m.answer(c, pc, offer, id)
}

// HandleWHEP godoc
// POST /media/whep — viewers subscribe here
func (m *MediaRelay) HandleWHEP(c *gin.Context) {
	exhibitionID, ok := m.authorize(c, model.RoleViewer)
	if !ok {
		return
	}
	offer, err := io.ReadAll(io.LimitReader(c.Request.Body, 64*1024))
	if err != nil || len(offer) == 0 {
		c.String(http.StatusBadRequest, "sdp offer required")
		return
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		c.String(http.StatusInternalServerError, "peer connection failed")
		return
	}
	id := uuid.New().String()

	m.mu.Lock()
	for _, local := range m.locals[exhibitionID] {
		if _, aerr := pc.AddTrack(local); aerr != nil {
			m.log.Warn("relay: add track failed", zap.Error(aerr))
		}
	}
	m.sessions[id] = pc
	m.mu.Unlock()

	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		if st == webrtc.PeerConnectionStateFailed || st == webrtc.PeerConnectionStateClosed {
			m.drop(id, "")
		}
	})

	m.answer(c, pc, offer, id)
}

// DeleteSession godoc
// DELETE /media/session/:id
func (m *MediaRelay) DeleteSession(c *gin.Context) {
	id := c.Param("id")
	m.mu.Lock()
	pc, ok := m.sessions[id]
	delete(m.sessions, id)
	var exhibition string
	for ex, author := range m.authors {
		if author == id {
			exhibition = ex
		}
	}
	m.mu.Unlock()
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	if exhibition != "" {
		m.clearExhibition(exhibition)
	}
	_ = pc.Close()
	c.Status(http.StatusNoContent)
}

func (m *MediaRelay) authorize(c *gin.Context, want model.Role) (string, bool) {
	auth := c.GetHeader("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == "" || token == auth {
		c.String(http.StatusUnauthorized, "bearer token required")
		return "", false
	}
	exhibitionID, role, err := m.store.VerifyToken(token)
	if err != nil || role != want {
		c.String(http.StatusForbidden, "invalid media token")
		return "", false
	}
	return exhibitionID, true
}

func (m *MediaRelay) answer(c *gin.Context, pc *webrtc.PeerConnection, offer []byte, id string) {
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  string(offer),
	}); err != nil {
		_ = pc.Close()
		c.String(http.StatusBadRequest, "bad sdp offer")
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = pc.Close()
		c.String(http.StatusInternalServerError, "create answer failed")
		return
	}
	gatherDone := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		_ = pc.Close()
		c.String(http.StatusInternalServerError, "set local description failed")
		return
	}
	<-gatherDone

	c.Header("Location", "/media/session/"+id)
	c.Data(http.StatusCreated, "application/sdp", []byte(pc.LocalDescription().SDP))
}

func (m *MediaRelay) drop(id, exhibitionID string) {
	m.mu.Lock()
	pc, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if exhibitionID != "" {
		m.clearExhibition(exhibitionID)
	}
	if ok {
		_ = pc.Close()
	}
}

func (m *MediaRelay) clearExhibition(exhibitionID string) {
	m.mu.Lock()
	delete(m.locals, exhibitionID)
	delete(m.authors, exhibitionID)
	m.mu.Unlock()
}
