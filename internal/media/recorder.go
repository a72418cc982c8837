package media

import (
	"bytes"
	"sync"

	"go.uber.org/zap"

	"github.com/artisan-platform/live-session/internal/errs"
)

// Recorder captures the local stream for post-hoc upload. This is a
// runtime capability, not a hard dependency: the broadcaster contract holds
// with recording entirely absent, and a recorder failure never blocks going
// live.
type Recorder interface {
	Start() error
	// Stop flushes the final chunk and returns the captured blob.
	Stop() ([]byte, error)
}

// RecorderFactory feature-detects a recorder for the acquired tracks.
// errs.ErrRecordingUnsupported means "log and broadcast without recording".
type RecorderFactory func(tracks *LocalTracks) (Recorder, error)

// NewBufferRecorder returns a factory producing in-memory recorders that tap
// the capture sample sink. maxBytes caps the buffer (0 = 64 MiB).
func NewBufferRecorder(maxBytes int, log *zap.Logger) RecorderFactory {
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	if log == nil {
		log = zap.NewNop()
	}
	return func(tracks *LocalTracks) (Recorder, error) {
		if tracks == nil || len(tracks.All()) == 0 {
			return nil, errs.ErrRecordingUnsupported
		}
		return &bufferRecorder{tracks: tracks, max: maxBytes, log: log}, nil
	}
}

type bufferRecorder struct {
	tracks *LocalTracks
	max    int
	log    *zap.Logger

	mu      sync.Mutex
	buf     bytes.Buffer
	full    bool
	started bool
	stopped bool
}

func (r *bufferRecorder) Start() error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	r.mu.Unlock()

	r.tracks.SetSink(func(kind string, data []byte) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.stopped || r.full {
			return
		}
		if r.buf.Len()+len(data) > r.max {
			r.full = true
			r.log.Warn("recording buffer full, capture truncated",
				zap.Int("max_bytes", r.max))
			return
		}
		r.buf.Write(data)
	})
	return nil
}

// Stop detaches the tap and returns whatever was captured. Idempotent: the
// second call returns the same blob.
func (r *bufferRecorder) Stop() ([]byte, error) {
	r.tracks.SetSink(nil)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	return r.buf.Bytes(), nil
}
