package broadcaster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/artisan-platform/live-session/internal/errs"
	"github.com/artisan-platform/live-session/internal/media"
	"github.com/artisan-platform/live-session/internal/model"
)

// Phase is the broadcaster session state.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseConnecting   Phase = "connecting"
	PhaseLive         Phase = "live"
	PhaseDisconnected Phase = "disconnected"
)

// RestAPI is the slice of the platform API the broadcaster needs.
type RestAPI interface {
	GetExhibition(ctx context.Context, id string) (*model.Exhibition, error)
	RequestToken(ctx context.Context, exhibitionID string, role model.Role) (model.Credential, error)
	EndLiveStream(ctx context.Context, exhibitionID string) error
	UploadRecording(ctx context.Context, exhibitionID, filename string, blob io.Reader) error
}

// Announcer is the broadcaster's view of the signaling channel.
type Announcer interface {
	AnnounceGoLive(exhibitionID string) error
	AnnounceEndStream(exhibitionID string) error
}

// MediaPublisher publishes the local tracks to the media server.
type MediaPublisher interface {
	Publish(ctx context.Context, cred model.Credential, serverURL string, tracks *media.LocalTracks) error
	Close() error
}

// PublisherFactory builds a fresh publisher per start attempt with the
// connection callbacks wired.
type PublisherFactory func(onConnected, onDisconnected func()) MediaPublisher

// Options tune the controller.
type Options struct {
	MediaURL     string
	RecordingDir string // optional on-disk copy of the captured blob
}

// Controller is the publisher-side session controller. It exclusively owns the
// camera/microphone handle from acquisition to teardown; every exit path
// (success, error, forced stop) releases it exactly once.
type Controller struct {
	exhibitionID string
	rest         RestAPI
	sig          Announcer
	device       media.CaptureDevice
	newPublisher PublisherFactory
	newRecorder  media.RecorderFactory // nil when local recording is off
	opts         Options
	log          *zap.Logger

	mu             sync.Mutex
	phase          Phase
	mediaConnected bool
	tracks         *media.LocalTracks
	session        MediaPublisher
	recorder       media.Recorder
	onChange       func(Phase)
}

// New creates a broadcaster controller in idle.
func New(exhibitionID string, rest RestAPI, sig Announcer, device media.CaptureDevice,
	newPublisher PublisherFactory, newRecorder media.RecorderFactory,
	opts Options, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		exhibitionID: exhibitionID,
		rest:         rest,
		sig:          sig,
		device:       device,
		newPublisher: newPublisher,
		newRecorder:  newRecorder,
		opts:         opts,
		log:          log,
		phase:        PhaseIdle,
	}
}

// Phase returns the current session phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Live reports live with the media transport actually connected; this is
// the gate for chat availability.
func (c *Controller) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == PhaseLive && c.mediaConnected
}

// OnChange registers the render callback.
func (c *Controller) OnChange(fn func(Phase)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// StartStream runs the go-live sequence: device → recorder (best-effort) →
// fresh AUTHOR token → signaling announce → media publish. Any failure rolls
// back fully: devices released, state idle, error surfaced.
func (c *Controller) StartStream(ctx context.Context) error {
	c.mu.Lock()
	if c.phase == PhaseConnecting || c.phase == PhaseLive {
		c.mu.Unlock()
		return errs.ErrAlreadyLive
	}
	c.setPhaseLocked(PhaseConnecting)
	c.mu.Unlock()

	// archived lockout comes before any token request
	ex, err := c.rest.GetExhibition(ctx, c.exhibitionID)
	if err != nil {
		return c.rollback(fmt.Errorf("broadcast: exhibition check: %w", err))
	}
	if !ex.Streamable() {
		return c.rollback(errs.ErrExhibitionArchived)
	}

	tracks, err := c.device.Acquire(ctx, media.JoinOptions{Audio: true, Video: true})
	if err != nil {
		if errors.Is(err, errs.ErrDeviceAccessDenied) {
			return c.rollback(err)
		}
		return c.rollback(fmt.Errorf("%w: %v", errs.ErrDeviceAccessDenied, err))
	}
	c.mu.Lock()
	c.tracks = tracks
	c.mu.Unlock()

	// local recording is best-effort; its absence or failure never blocks
	// going live
	if c.newRecorder != nil {
		rec, rerr := c.newRecorder(tracks)
		if rerr != nil {
			c.log.Warn("broadcast: recording unavailable, continuing without", zap.Error(rerr))
		} else if serr := rec.Start(); serr != nil {
			c.log.Warn("broadcast: recorder start failed, continuing without", zap.Error(serr))
		} else {
			c.mu.Lock()
			c.recorder = rec
			c.mu.Unlock()
		}
	}

	cred, err := c.rest.RequestToken(ctx, c.exhibitionID, model.RoleAuthor)
	if err != nil {
		return c.rollback(fmt.Errorf("broadcast: token: %w", err))
	}

	// announce before media connect so viewers see "live" promptly even if
	// negotiation takes another second
	if err := c.sig.AnnounceGoLive(c.exhibitionID); err != nil {
		return c.rollback(fmt.Errorf("broadcast: announce: %w", err))
	}

	sess := c.newPublisher(
		func() {
			c.mu.Lock()
			c.mediaConnected = true
			c.mu.Unlock()
		},
		func() {
			c.mu.Lock()
			c.mediaConnected = false
			if c.phase == PhaseLive {
				c.setPhaseLocked(PhaseDisconnected)
			}
			c.mu.Unlock()
		},
	)
	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()

	if err := sess.Publish(ctx, cred, c.opts.MediaURL, tracks); err != nil {
		_ = c.sig.AnnounceEndStream(c.exhibitionID)
		return c.rollback(fmt.Errorf("broadcast: media publish: %w", err))
	}

	c.mu.Lock()
	c.setPhaseLocked(PhaseLive)
	c.mu.Unlock()
	c.log.Info("broadcast: live", zap.String("exhibition_id", c.exhibitionID))
	return nil
}

// EndStream runs the teardown sequence: stop recording and upload the blob
// (best-effort), release devices, announce end, mark ended server-side with
// bounded retry. State resets to idle regardless of the REST call's outcome,
// and the whole sequence is safe to call mid-failure.
func (c *Controller) EndStream(ctx context.Context) error {
	c.mu.Lock()
	if c.phase == PhaseIdle {
		c.mu.Unlock()
		return nil
	}
	rec := c.recorder
	tracks := c.tracks
	sess := c.session
	c.recorder = nil
	c.tracks = nil
	c.session = nil
	c.mu.Unlock()

	if rec != nil {
		blob, err := rec.Stop()
		if err != nil {
			c.log.Warn("broadcast: recorder stop failed", zap.Error(err))
		} else if len(blob) > 0 {
			c.saveRecording(ctx, blob)
		}
	}

	if tracks != nil {
		tracks.Release()
	}

	if err := c.sig.AnnounceEndStream(c.exhibitionID); err != nil {
		c.log.Warn("broadcast: end announce failed", zap.Error(err))
	}
	if sess != nil {
		_ = sess.Close()
	}

	endErr := c.rest.EndLiveStream(ctx, c.exhibitionID)
	if endErr != nil {
		c.log.Error("broadcast: end-live call failed", zap.Error(endErr))
	}

	c.mu.Lock()
	c.mediaConnected = false
	c.setPhaseLocked(PhaseIdle)
	c.mu.Unlock()
	return endErr
}

// Abort releases everything without the end-of-stream server calls. Used on
// forced unmount (ctx cancellation, navigation away mid-connect).
func (c *Controller) Abort() {
	c.mu.Lock()
	tracks := c.tracks
	sess := c.session
	c.recorder = nil
	c.tracks = nil
	c.session = nil
	c.mediaConnected = false
	c.setPhaseLocked(PhaseIdle)
	c.mu.Unlock()
	if tracks != nil {
		tracks.Release()
	}
	if sess != nil {
		_ = sess.Close()
	}
}

func (c *Controller) rollback(err error) error {
	c.mu.Lock()
	tracks := c.tracks
	sess := c.session
	c.recorder = nil
	c.tracks = nil
	c.session = nil
	c.mediaConnected = false
	c.setPhaseLocked(PhaseIdle)
	c.mu.Unlock()
	if tracks != nil {
		tracks.Release()
	}
	if sess != nil {
		_ = sess.Close()
	}
	return err
}

// saveRecording uploads the blob and optionally keeps an on-disk copy.
// Best-effort on both counts: a failed recording upload is never confused
// with a failed stream.
func (c *Controller) saveRecording(ctx context.Context, blob []byte) {
	name := fmt.Sprintf("%s-%d.webm", c.exhibitionID, time.Now().Unix())
	if c.opts.RecordingDir != "" {
		path := filepath.Join(c.opts.RecordingDir, name)
		if err := os.WriteFile(path, blob, 0o644); err != nil {
			c.log.Warn("broadcast: recording disk copy failed", zap.Error(err))
		}
	}
	if err := c.rest.UploadRecording(ctx, c.exhibitionID, name, bytes.NewReader(blob)); err != nil {
		c.log.Warn("broadcast: recording upload failed", zap.Error(err))
	}
}

// setPhaseLocked updates phase while the caller holds mu. The callback runs
// in its own goroutine so it can call back into the controller without
// deadlocking.
func (c *Controller) setPhaseLocked(p Phase) {
	if c.phase == p {
		return
	}
	c.phase = p
	if c.onChange != nil {
		go c.onChange(p)
	}
}
