package viewer

import (
	"testing"

	"github.com/artisan-platform/live-session/internal/model"
)

func liveExhibition(st model.StreamStatus) model.Exhibition {
	return model.Exhibition{
		ID:     "ex1",
		Status: model.ExhibitionLive,
		Type:   model.TypeLive,
		LiveDetails: &model.LiveDetails{
			StreamStatus: st,
		},
	}
}

func archivedExhibition() model.Exhibition {
	ex := liveExhibition(model.StreamStreaming)
	ex.Status = model.ExhibitionArchived
	return ex
}

func TestReduce_SnapshotSeedsInitialState(t *testing.T) {
	cases := []struct {
		name string
		st   model.StreamStatus
		want Phase
	}{
		{"idle", model.StreamIdle, PhaseWaiting},
		{"streaming", model.StreamStreaming, PhaseLive},
		{"disconnected", model.StreamDisconnected, PhaseInterrupted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Reduce(Initial(), RestSnapshot{Exhibition: liveExhibition(tc.st)})
			if s.Phase != tc.want {
				t.Errorf("phase = %v, want %v", s.Phase, tc.want)
			}
		})
	}
}

func TestReduce_ArchivedForcesEnded(t *testing.T) {
	// archived wins regardless of stream_status
	s := Reduce(Initial(), RestSnapshot{Exhibition: archivedExhibition()})
	if s.Phase != PhaseEnded {
		t.Fatalf("phase = %v, want ended", s.Phase)
	}
	// and stays terminal
	s = Reduce(s, StreamStarted{})
	if s.Phase != PhaseEnded {
		t.Errorf("phase after stream-started = %v, want ended", s.Phase)
	}
	s = Reduce(s, UserJoin{})
	if s.Phase != PhaseEnded {
		t.Errorf("phase after user join = %v, want ended", s.Phase)
	}
}

func TestReduce_JoinFlow(t *testing.T) {
	s := Reduce(Initial(), RestSnapshot{Exhibition: liveExhibition(model.StreamIdle)})
	s = Reduce(s, StreamStarted{})
	if s.Phase != PhaseLive || s.HasToken {
		t.Fatalf("after stream-started: %+v, want live without token", s)
	}

	s = Reduce(s, UserJoin{})
	if s.Phase != PhaseJoining {
		t.Fatalf("after join click: phase = %v, want joining", s.Phase)
	}
	s = Reduce(s, TokenAcquired{})
	if !s.HasToken {
		t.Fatal("token not recorded")
	}
	s = Reduce(s, MediaConnected{})
	if s.Phase != PhaseLive || !s.MediaConnected || !s.EverJoined {
		t.Fatalf("after media connect: %+v, want live(connected)", s)
	}
	if s.UIState() != "live-connected" {
		t.Errorf("UIState = %q, want live-connected", s.UIState())
	}
}

func TestReduce_TokenFailureFallsBack(t *testing.T) {
	s := State{Phase: PhaseJoining}
	s = Reduce(s, TokenFailed{Reason: "boom"})
	if s.Phase != PhaseLive {
		t.Errorf("phase = %v, want live", s.Phase)
	}
	if s.HasToken {
		t.Error("partial token retained after failure")
	}
	if s.Notice == "" {
		t.Error("no user-visible notice after token failure")
	}
}

func TestReduce_InterruptedVsEnded(t *testing.T) {
	connected := State{Phase: PhaseLive, MediaConnected: true, HasToken: true}

	// media drop while signaling still says live → interrupted
	s := Reduce(connected, MediaDisconnected{})
	if s.Phase != PhaseInterrupted {
		t.Fatalf("phase = %v, want interrupted", s.Phase)
	}
	if s.HasToken {
		t.Error("token not cleared on interruption")
	}
	if !s.ArtistDisconnected {
		t.Error("artist-disconnected flag not set")
	}

	// stream-ended first → ended directly, never via interrupted
	s = Reduce(connected, StreamEnded{})
	if s.Phase != PhaseEnded {
		t.Fatalf("phase = %v, want ended", s.Phase)
	}
	s = Reduce(s, MediaDisconnected{})
	if s.Phase != PhaseEnded {
		t.Errorf("phase after late media drop = %v, want ended (not interrupted)", s.Phase)
	}
}

func TestReduce_InterruptedRecoveryIsManual(t *testing.T) {
	s := State{Phase: PhaseInterrupted, ArtistDisconnected: true, EverJoined: true}
	s = Reduce(s, StreamStarted{})
	if s.Phase != PhaseLive {
		t.Fatalf("phase = %v, want live", s.Phase)
	}
	if s.MediaConnected {
		t.Error("media must not silently reconnect; rejoin is a user action")
	}
	if s.HasToken {
		t.Error("stale token must not survive an interruption")
	}
}

func TestReduce_StreamEndedCancelsMidJoin(t *testing.T) {
	s := State{Phase: PhaseJoining, HasToken: true}
	s = Reduce(s, StreamEnded{})
	if s.Phase != PhaseEnded {
		t.Fatalf("phase = %v, want ended", s.Phase)
	}
	// the in-flight join resolving later changes nothing
	s = Reduce(s, MediaConnected{})
	if s.Phase != PhaseEnded || s.MediaConnected {
		t.Errorf("late join completion leaked into %+v", s)
	}
}

func TestReduce_ReconnectOverlay(t *testing.T) {
	s := State{Phase: PhaseLive, MediaConnected: true}
	s = Reduce(s, SignalingReconnecting{Attempt: 3})
	if !s.Reconnecting || s.ReconnectAttempt != 3 {
		t.Fatalf("overlay not set: %+v", s)
	}
	if s.UIState() != "reconnecting" {
		t.Errorf("UIState = %q, want reconnecting", s.UIState())
	}
	// the stream axis is untouched underneath
	if s.Phase != PhaseLive || !s.MediaConnected {
		t.Errorf("stream axis corrupted by transport overlay: %+v", s)
	}

	s = Reduce(s, SignalingReconnected{})
	if s.Reconnecting || s.ReconnectAttempt != 0 {
		t.Errorf("overlay not cleared: %+v", s)
	}

	s = Reduce(s, SignalingFailed{})
	if !s.SignalingLost {
		t.Error("terminal reconnect failure not recorded")
	}
	if s.UIState() != "connection-lost" {
		t.Errorf("UIState = %q, want connection-lost", s.UIState())
	}
}

// Every reachable (state, event) pair must resolve to exactly one defined
// state; no combination may leave the machine in an unknown phase.
func TestReduce_Totality(t *testing.T) {
	phases := []Phase{PhaseWaiting, PhaseLive, PhaseJoining, PhaseEnded, PhaseInterrupted}
	bools := []bool{false, true}
	events := []Event{
		RestSnapshot{Exhibition: liveExhibition(model.StreamIdle)},
		RestSnapshot{Exhibition: liveExhibition(model.StreamStreaming)},
		RestSnapshot{Exhibition: liveExhibition(model.StreamDisconnected)},
		RestSnapshot{Exhibition: archivedExhibition()},
		StreamStarted{}, StreamEnded{}, StreamInterrupted{},
		ViewerCount{Count: 7},
		SignalingReconnecting{Attempt: 1}, SignalingReconnected{}, SignalingFailed{},
		UserJoin{}, TokenAcquired{}, TokenFailed{Reason: "x"},
		MediaConnected{}, MediaDisconnected{},
	}
	valid := map[Phase]bool{
		PhaseWaiting: true, PhaseLive: true, PhaseJoining: true,
		PhaseEnded: true, PhaseInterrupted: true,
	}

	for _, phase := range phases {
		for _, mediaConn := range bools {
			for _, reconnecting := range bools {
				for _, ev := range events {
					s := State{Phase: phase, MediaConnected: mediaConn, Reconnecting: reconnecting}
					out := Reduce(s, ev)
					if !valid[out.Phase] {
						t.Fatalf("Reduce(%+v, %T) produced undefined phase %q", s, ev, out.Phase)
					}
					if out.UIState() == "" {
						t.Fatalf("Reduce(%+v, %T) produced empty UI state", s, ev)
					}
					// live video controls must never show without media connected
					if out.UIState() == "live-connected" && !out.MediaConnected {
						t.Fatalf("live-connected rendered without media: %+v", out)
					}
				}
			}
		}
	}
}
