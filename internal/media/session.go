package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/artisan-platform/live-session/internal/model"
)

// JoinOptions mirror the {audio, video} constraints of a join call.
type JoinOptions struct {
	Audio bool
	Video bool
}

// Session bridges a media credential and a live audio/video room. The media
// transport is negotiated WHIP/WHEP style: the SDP offer is POSTed to the
// media server with the bearer token, the answer comes back in the response
// body. Connection lifecycle is reported independently of the signaling
// channel: losing media while signaling is alive is "interrupted", not
// "ended".
type Session struct {
	httpc *http.Client
	log   *zap.Logger

	// OnConnected fires when the transport reaches connected; OnDisconnected
	// on involuntary drop. Voluntary Close never fires OnDisconnected.
	OnConnected    func()
	OnDisconnected func()

	mu        sync.Mutex
	pc        *webrtc.PeerConnection
	resource  string // session resource URL (Location header), deleted on Close
	closed    bool
	connected bool

	remoteMu     sync.RWMutex
	remoteTracks map[string]*webrtc.TrackRemote
}

// NewSession creates an unconnected media session.
func NewSession(log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		httpc:        &http.Client{Timeout: 15 * time.Second},
		log:          log,
		remoteTracks: make(map[string]*webrtc.TrackRemote),
	}
}

// Publish connects as the stream source: local tracks are added sendonly and
// the offer goes to the WHIP endpoint.
func (s *Session) Publish(ctx context.Context, cred model.Credential, serverURL string, tracks *LocalTracks) error {
	pc, err := s.newPeerConnection()
	if err != nil {
		return err
	}
	for _, t := range tracks.All() {
		if _, err := pc.AddTrack(t); err != nil {
			_ = pc.Close()
			return fmt.Errorf("media: add track: %w", err)
		}
	}
	return s.negotiate(ctx, pc, serverURL, cred.Token)
}

// Subscribe connects as a viewer: recvonly transceivers per requested kind,
// offer to the WHEP endpoint. Zero published remote tracks is a valid state
// (artist momentarily off-camera); HasRemoteVideo distinguishes it.
func (s *Session) Subscribe(ctx context.Context, cred model.Credential, serverURL string, opts JoinOptions) error {
	pc, err := s.newPeerConnection()
	if err != nil {
		return err
	}
	init := webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}
	if opts.Video {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, init); err != nil {
			_ = pc.Close()
			return fmt.Errorf("media: add video transceiver: %w", err)
		}
	}
	if opts.Audio {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, init); err != nil {
			_ = pc.Close()
			return fmt.Errorf("media: add audio transceiver: %w", err)
		}
	}
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.remoteMu.Lock()
		s.remoteTracks[track.ID()] = track
		s.remoteMu.Unlock()
		s.log.Info("media: remote track",
			zap.String("kind", track.Kind().String()), zap.String("id", track.ID()))
	})
	return s.negotiate(ctx, pc, serverURL, cred.Token)
}

// HasRemoteVideo reports whether a remote video track has arrived; the UI
// shows a placeholder until then instead of a blank screen.
func (s *Session) HasRemoteVideo() bool {
	s.remoteMu.RLock()
	defer s.remoteMu.RUnlock()
	for _, t := range s.remoteTracks {
		if t.Kind() == webrtc.RTPCodecTypeVideo {
			return true
		}
	}
	return false
}

// Connected reports current transport state.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Close releases the transport. Safe to call twice and mid-failure.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.connected = false
	pc := s.pc
	resource := s.resource
	s.mu.Unlock()

	if resource != "" {
		req, err := http.NewRequest(http.MethodDelete, resource, nil)
		if err == nil {
			if _, derr := s.httpc.Do(req); derr != nil {
				s.log.Warn("media: session delete failed", zap.Error(derr))
			}
		}
	}
	if pc != nil {
		return pc.Close()
	}
	return nil
}

func (s *Session) newPeerConnection() (*webrtc.PeerConnection, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("media: peer connection: %w", err)
	}
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		s.log.Debug("media: connection state", zap.String("state", st.String()))
		switch st {
		case webrtc.PeerConnectionStateConnected:
			s.mu.Lock()
			first := !s.connected && !s.closed
			s.connected = true
			s.mu.Unlock()
			if first && s.OnConnected != nil {
				s.OnConnected()
			}
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
			s.mu.Lock()
			wasConnected := s.connected && !s.closed
			s.connected = false
			s.mu.Unlock()
			if wasConnected && s.OnDisconnected != nil {
				s.OnDisconnected()
			}
		}
	})
	s.mu.Lock()
	s.pc = pc
	s.mu.Unlock()
	return pc, nil
}

// negotiate runs the offer/answer exchange over HTTP: offer out, answer back,
// resource URL from the Location header.
func (s *Session) negotiate(ctx context.Context, pc *webrtc.PeerConnection, serverURL, token string) error {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = pc.Close()
		return fmt.Errorf("media: create offer: %w", err)
	}
	gatherDone := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		_ = pc.Close()
		return fmt.Errorf("media: set local description: %w", err)
	}
	select {
	case <-gatherDone:
	case <-ctx.Done():
		_ = pc.Close()
		return ctx.Err()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL,
		bytes.NewReader([]byte(pc.LocalDescription().SDP)))
	if err != nil {
		_ = pc.Close()
		return err
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.httpc.Do(req)
	if err != nil {
		_ = pc.Close()
		return fmt.Errorf("media: offer exchange: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		_ = pc.Close()
		return fmt.Errorf("media: offer exchange: unexpected status %d", resp.StatusCode)
	}
	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		_ = pc.Close()
		return fmt.Errorf("media: read answer: %w", err)
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		s.mu.Lock()
		s.resource = resolveResource(serverURL, loc)
		s.mu.Unlock()
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  string(answer),
	}); err != nil {
		_ = pc.Close()
		return fmt.Errorf("media: set remote description: %w", err)
	}
	return nil
}
