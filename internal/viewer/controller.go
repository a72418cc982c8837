package viewer

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/artisan-platform/live-session/internal/media"
	"github.com/artisan-platform/live-session/internal/model"
	"github.com/artisan-platform/live-session/internal/signaling"
)

// RestAPI is the slice of the platform API the viewer needs.
type RestAPI interface {
	GetExhibition(ctx context.Context, id string) (*model.Exhibition, error)
	RequestToken(ctx context.Context, exhibitionID string, role model.Role) (model.Credential, error)
}

// MediaSession is the viewer's side of the media adapter.
type MediaSession interface {
	Subscribe(ctx context.Context, cred model.Credential, serverURL string, opts media.JoinOptions) error
	Close() error
}

// MediaFactory builds a fresh media session per join attempt, with the
// connection callbacks already wired. A fresh session (and fresh token) per
// attempt: nothing is reused across reconnects.
type MediaFactory func(onConnected, onDisconnected func()) MediaSession

// Options tune the controller.
type Options struct {
	MediaURL string
	// AutoRejoin re-attempts the media join after a signaling reconnect when
	// the viewer had an active join. Off by default: rejoining commits
	// bandwidth on the viewer's behalf.
	AutoRejoin bool
}

// Controller is the subscriber-side session controller: it fuses the REST
// snapshot, signaling events and media-adapter events into one State via the
// pure reducer, and owns all side effects.
type Controller struct {
	exhibitionID string
	rest         RestAPI
	newMedia     MediaFactory
	opts         Options
	log          *zap.Logger

	events chan Event

	mu         sync.RWMutex
	state      State
	session    MediaSession
	joinCancel context.CancelFunc
	onChange   func(State)
}

// New creates a viewer controller. Run drives it.
func New(exhibitionID string, rest RestAPI, newMedia MediaFactory, opts Options, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		exhibitionID: exhibitionID,
		rest:         rest,
		newMedia:     newMedia,
		opts:         opts,
		log:          log,
		events:       make(chan Event, 64),
		state:        Initial(),
	}
}

// Handlers wires signaling callbacks into the event stream. Registered once;
// reconnects never add a second set of listeners.
func (c *Controller) Handlers() signaling.Handlers {
	return signaling.Handlers{
		OnStreamStarted:     func() { c.Dispatch(StreamStarted{}) },
		OnStreamEnded:       func() { c.Dispatch(StreamEnded{}) },
		OnStreamInterrupted: func() { c.Dispatch(StreamInterrupted{}) },
		OnViewerCount:       func(n int) { c.Dispatch(ViewerCount{Count: n}) },
		OnReconnecting:      func(attempt int) { c.Dispatch(SignalingReconnecting{Attempt: attempt}) },
		OnReconnected:       func() { c.Dispatch(SignalingReconnected{}) },
		OnReconnectFailed:   func() { c.Dispatch(SignalingFailed{}) },
	}
}

// Dispatch feeds one event into the machine. Safe from any goroutine.
func (c *Controller) Dispatch(e Event) {
	select {
	case c.events <- e:
	default:
		// The loop is stalled beyond the buffer; dropping presence updates is
		// preferable to blocking a transport callback.
		c.log.Warn("viewer: event buffer full, dropping event")
	}
}

// Join is the explicit user action to commit bandwidth to the stream.
func (c *Controller) Join() { c.Dispatch(UserJoin{}) }

// State returns a snapshot of the current session state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// OnChange registers the render callback, invoked after every transition.
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Run seeds state from the REST snapshot and processes events until ctx is
// cancelled. On exit every acquired resource is torn down: in-flight joins are
// cancelled and the media session is closed.
func (c *Controller) Run(ctx context.Context) {
	c.refreshSnapshot(ctx)
	for {
		select {
		case <-ctx.Done():
			c.teardown()
			return
		case e := <-c.events:
			c.apply(ctx, e)
		}
	}
}

func (c *Controller) apply(ctx context.Context, e Event) {
	c.mu.Lock()
	prev := c.state
	next := Reduce(prev, e)
	c.state = next
	fn := c.onChange
	c.mu.Unlock()

	c.effects(ctx, prev, next, e)
	if fn != nil {
		fn(next)
	}
}

// effects runs what the transition implies. All slow work happens in
// goroutines that dispatch their outcome back into the loop.
func (c *Controller) effects(ctx context.Context, prev, next State, e Event) {
	// entering joining: fresh token, fresh media session
	if next.Phase == PhaseJoining && prev.Phase != PhaseJoining {
		c.startJoin(ctx)
	}

	// leaving the connected/joining world: drop media, cancel in-flight join.
	// A stream-ended during a mid-flight join lands here too: the join is
	// discarded and the machine is already in ended.
	if next.Phase == PhaseEnded || next.Phase == PhaseInterrupted {
		if prev.Phase == PhaseJoining || prev.MediaConnected || prev.Phase != next.Phase {
			c.dropMedia()
		}
	}

	// signaling came back: state may be stale, re-check against REST and
	// restore the media join only when the viewer had one and opted in
	if _, ok := e.(SignalingReconnected); ok {
		go func() {
			c.refreshSnapshot(ctx)
			if c.opts.AutoRejoin && next.EverJoined && !next.MediaConnected {
				c.Dispatch(UserJoin{})
			}
		}()
	}
}

func (c *Controller) startJoin(ctx context.Context) {
	joinCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.joinCancel != nil {
		c.joinCancel()
	}
	c.joinCancel = cancel
	c.mu.Unlock()

	go func() {
		cred, err := c.rest.RequestToken(joinCtx, c.exhibitionID, model.RoleViewer)
		if err != nil {
			c.log.Warn("viewer: token request failed", zap.Error(err))
			c.Dispatch(TokenFailed{Reason: "could not get stream access, try again"})
			return
		}
		if joinCtx.Err() != nil {
			return
		}
		c.Dispatch(TokenAcquired{})

		sess := c.newMedia(
			func() { c.Dispatch(MediaConnected{}) },
			func() { c.Dispatch(MediaDisconnected{}) },
		)
		c.mu.Lock()
		c.session = sess
		c.mu.Unlock()

		if err := sess.Subscribe(joinCtx, cred, c.opts.MediaURL, media.JoinOptions{Audio: true, Video: true}); err != nil {
			c.log.Warn("viewer: media join failed", zap.Error(err))
			_ = sess.Close()
			c.mu.Lock()
			if c.session == sess {
				c.session = nil
			}
			c.mu.Unlock()
			if joinCtx.Err() == nil {
				c.Dispatch(TokenFailed{Reason: "stream connection failed, try again"})
			}
		}
	}()
}

func (c *Controller) dropMedia() {
	c.mu.Lock()
	cancel := c.joinCancel
	sess := c.session
	c.joinCancel = nil
	c.session = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if sess != nil {
		_ = sess.Close()
	}
}

func (c *Controller) teardown() {
	c.dropMedia()
}

func (c *Controller) refreshSnapshot(ctx context.Context) {
	ex, err := c.rest.GetExhibition(ctx, c.exhibitionID)
	if err != nil {
		c.log.Warn("viewer: exhibition fetch failed", zap.Error(err))
		return
	}
	c.Dispatch(RestSnapshot{Exhibition: *ex})
}
