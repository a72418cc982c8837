package media

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"
)

func resolveResource(serverURL, location string) string {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return location
	}
	base, err := url.Parse(serverURL)
	if err != nil {
		return location
	}
	ref, err := url.Parse(location)
	if err != nil {
		return location
	}
	return base.ResolveReference(ref).String()
}

// sampleSink receives a copy of every captured sample; the recorder attaches
// here so capture and recording stay decoupled.
type sampleSink func(kind string, data []byte)

// LocalTracks owns the acquired camera/microphone tracks. Exclusive to one
// broadcaster controller from acquisition to teardown; Release is idempotent
// and must run on every exit path.
type LocalTracks struct {
	audio *webrtc.TrackLocalStaticSample
	video *webrtc.TrackLocalStaticSample

	mu   sync.Mutex
	sink sampleSink

	stop        chan struct{}
	releaseOnce sync.Once
	released    bool
}

// All returns the owned tracks for AddTrack.
func (t *LocalTracks) All() []webrtc.TrackLocal {
	var out []webrtc.TrackLocal
	if t.audio != nil {
		out = append(out, t.audio)
	}
	if t.video != nil {
		out = append(out, t.video)
	}
	return out
}

// HasVideo reports whether a camera track was acquired.
func (t *LocalTracks) HasVideo() bool { return t.video != nil }

// SetSink attaches a recorder tap. One sink at a time; nil detaches.
func (t *LocalTracks) SetSink(s sampleSink) {
	t.mu.Lock()
	t.sink = s
	t.mu.Unlock()
}

func (t *LocalTracks) feed(kind string, data []byte) {
	t.mu.Lock()
	s := t.sink
	t.mu.Unlock()
	if s != nil {
		s(kind, data)
	}
}

// Release stops capture goroutines and frees the device handle exactly once.
func (t *LocalTracks) Release() {
	t.releaseOnce.Do(func() {
		t.mu.Lock()
		t.released = true
		t.sink = nil
		t.mu.Unlock()
		close(t.stop)
	})
}

// Released reports whether the device handle was freed.
func (t *LocalTracks) Released() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}

// CaptureDevice acquires camera/microphone tracks. getUserMedia analogue:
// acquisition can fail with errs.ErrDeviceAccessDenied, which is terminal for
// the current attempt.
type CaptureDevice interface {
	Acquire(ctx context.Context, opts JoinOptions) (*LocalTracks, error)
	Name() string
}

// SyntheticDevice generates a test pattern: silence on audio, a flat frame on
// video. Used by the headless broadcast command and by tests; a hardware
// capture device satisfies the same interface.
type SyntheticDevice struct {
	Log *zap.Logger
}

func (d *SyntheticDevice) Name() string { return "synthetic" }

// Acquire builds the requested tracks and pumps samples until Release.
func (d *SyntheticDevice) Acquire(ctx context.Context, opts JoinOptions) (*LocalTracks, error) {
	lt := &LocalTracks{stop: make(chan struct{})}
	if opts.Audio {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "live-session")
		if err != nil {
			return nil, err
		}
		lt.audio = track
		go pump(lt, track, "audio", silenceFrame(), 20*time.Millisecond)
	}
	if opts.Video {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "live-session")
		if err != nil {
			lt.Release()
			return nil, err
		}
		lt.video = track
		go pump(lt, track, "video", flatFrame(), 33*time.Millisecond)
	}
	return lt, nil
}

func pump(lt *LocalTracks, track *webrtc.TrackLocalStaticSample, kind string, frame []byte, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-lt.stop:
			return
		case <-ticker.C:
			_ = track.WriteSample(media.Sample{Data: frame, Duration: interval})
			lt.feed(kind, frame)
		}
	}
}

func silenceFrame() []byte {
	// opus silence frame (TOC + comfort noise)
	return []byte{0xf8, 0xff, 0xfe}
}

func flatFrame() []byte {
	return make([]byte, 128)
}
