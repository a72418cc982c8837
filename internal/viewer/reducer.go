package viewer

import "github.com/artisan-platform/live-session/internal/model"

// Phase is the stream-lifecycle axis of the viewer session.
type Phase string

const (
	PhaseWaiting     Phase = "waiting"
	PhaseLive        Phase = "live"
	PhaseJoining     Phase = "joining"
	PhaseEnded       Phase = "ended"
	PhaseInterrupted Phase = "interrupted"
)

// State is the whole client-local viewer session state. Ephemeral: rebuilt
// from the REST snapshot plus live events on every page load, never persisted.
//
// Phase tracks the stream lifecycle; Reconnecting overlays it and tracks the
// signaling transport, which fails independently. MediaConnected is a separate
// flag because "stream started" can arrive before the media transport finishes
// negotiating.
type State struct {
	Phase              Phase
	MediaConnected     bool
	HasToken           bool
	EverJoined         bool // viewer completed a media join at least once
	ArtistDisconnected bool
	Reconnecting       bool
	ReconnectAttempt   int
	SignalingLost      bool // reconnect budget exhausted; page-level recovery required
	ViewerCount        int
	Notice             string // transient user-visible message, cleared on next transition
}

// Initial is the state before the REST snapshot arrives.
func Initial() State {
	return State{Phase: PhaseWaiting}
}

// UIState resolves the one screen to render: the reconnecting overlay wins
// over the stream phase while the transport is down.
func (s State) UIState() string {
	if s.SignalingLost {
		return "connection-lost"
	}
	if s.Reconnecting {
		return "reconnecting"
	}
	if s.Phase == PhaseLive && s.MediaConnected {
		return "live-connected"
	}
	return string(s.Phase)
}

// Event is the tagged union over everything that can move the machine:
// the REST snapshot, signaling events, media-adapter events and user actions.
type Event interface{ isViewerEvent() }

type (
	// RestSnapshot seeds or refreshes state from the exhibition record.
	RestSnapshot struct{ Exhibition model.Exhibition }
	// StreamStarted, StreamEnded, StreamInterrupted mirror signaling pushes.
	StreamStarted     struct{}
	StreamEnded       struct{}
	StreamInterrupted struct{}
	ViewerCount       struct{ Count int }
	// Signaling transport axis.
	SignalingReconnecting struct{ Attempt int }
	SignalingReconnected  struct{}
	SignalingFailed       struct{}
	// User actions.
	UserJoin struct{}
	// Join side-effect outcomes.
	TokenAcquired struct{}
	TokenFailed   struct{ Reason string }
	// Media-adapter connection axis.
	MediaConnected    struct{}
	MediaDisconnected struct{}
)

func (RestSnapshot) isViewerEvent()          {}
func (StreamStarted) isViewerEvent()         {}
func (StreamEnded) isViewerEvent()           {}
func (StreamInterrupted) isViewerEvent()     {}
func (ViewerCount) isViewerEvent()           {}
func (SignalingReconnecting) isViewerEvent() {}
func (SignalingReconnected) isViewerEvent()  {}
func (SignalingFailed) isViewerEvent()       {}
func (UserJoin) isViewerEvent()              {}
func (TokenAcquired) isViewerEvent()         {}
func (TokenFailed) isViewerEvent()           {}
func (MediaConnected) isViewerEvent()        {}
func (MediaDisconnected) isViewerEvent()     {}

// Reduce is the pure transition function. Side effects (token requests, media
// joins, teardown) belong to the Controller, which reacts to what changed.
func Reduce(s State, e Event) State {
	s.Notice = ""
	switch ev := e.(type) {
	case RestSnapshot:
		return reduceSnapshot(s, ev.Exhibition)

	case StreamStarted:
		switch s.Phase {
		case PhaseWaiting, PhaseInterrupted:
			// Rejoining media stays a manual action: the artist's return does
			// not mean the viewer still wants bandwidth committed.
			s.Phase = PhaseLive
			s.ArtistDisconnected = false
		}
		return s

	case StreamEnded:
		return ended(s)

	case StreamInterrupted:
		if s.Phase == PhaseEnded {
			return s
		}
		return interrupted(s)

	case ViewerCount:
		s.ViewerCount = ev.Count
		return s

	case SignalingReconnecting:
		s.Reconnecting = true
		s.ReconnectAttempt = ev.Attempt
		return s

	case SignalingReconnected:
		s.Reconnecting = false
		s.ReconnectAttempt = 0
		return s

	case SignalingFailed:
		s.Reconnecting = false
		s.SignalingLost = true
		return s

	case UserJoin:
		if s.Phase == PhaseLive && !s.MediaConnected {
			s.Phase = PhaseJoining
		}
		return s

	case TokenAcquired:
		if s.Phase == PhaseJoining {
			s.HasToken = true
		}
		return s

	case TokenFailed:
		if s.Phase == PhaseJoining {
			// fall back, keep no partial token; retry is an explicit re-click
			s.Phase = PhaseLive
			s.HasToken = false
			s.Notice = ev.Reason
		}
		return s

	case MediaConnected:
		if s.Phase == PhaseJoining || s.Phase == PhaseLive {
			s.Phase = PhaseLive
			s.MediaConnected = true
			s.EverJoined = true
		}
		return s

	case MediaDisconnected:
		// Signaling already said the stream ended: stay ended, never pass
		// through interrupted.
		if s.Phase == PhaseEnded {
			return s
		}
		if s.Phase == PhaseJoining || s.MediaConnected {
			return interrupted(s)
		}
		return s
	}
	return s
}

func reduceSnapshot(s State, ex model.Exhibition) State {
	if !ex.Streamable() {
		return ended(s)
	}
	if ex.LiveDetails != nil {
		s.ViewerCount = ex.LiveDetails.CurrentViewers
	}
	switch ex.CurrentStreamStatus() {
	case model.StreamStreaming:
		if s.Phase != PhaseJoining && !(s.Phase == PhaseLive && s.MediaConnected) {
			s.Phase = PhaseLive
		}
		s.ArtistDisconnected = false
	case model.StreamDisconnected:
		return interrupted(s)
	default: // IDLE
		if !s.MediaConnected && s.Phase != PhaseJoining {
			s.Phase = PhaseWaiting
			s.HasToken = false
		}
	}
	return s
}

func ended(s State) State {
	s.Phase = PhaseEnded
	s.MediaConnected = false
	s.HasToken = false
	s.ArtistDisconnected = false
	return s
}

func interrupted(s State) State {
	s.Phase = PhaseInterrupted
	s.MediaConnected = false
	s.HasToken = false // rejoin needs a fresh token
	s.ArtistDisconnected = true
	return s
}
