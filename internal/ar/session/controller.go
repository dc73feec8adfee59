// Package session drives the tracker session through its recording and
// playback states.
//
// Every transition uses the same hand-off: pause the tracker, reconfigure
// it, resume it. The Controller performs these steps synchronously and must
// be called between frames (frame.Loop.Do does this), so a frame update can
// never run against a tracker that is being reconfigured. State and
// Unrecoverable may be read from any goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/arpositioning/internal/ar/anchors"
	"github.com/banshee-data/arpositioning/internal/ar/render"
	"github.com/banshee-data/arpositioning/internal/ar/tracking"
	"github.com/banshee-data/arpositioning/internal/db"
	"github.com/banshee-data/arpositioning/internal/timeutil"
)

// Journal is where recordings and anchor events are persisted.
// *db.Journal implements it.
type Journal interface {
	StartRecording(ctx context.Context, r *db.Recording) error
	FinishRecording(ctx context.Context, id uuid.UUID, stoppedAt time.Time, status string) error
	RecordAnchorEvent(ctx context.Context, e *db.AnchorEvent) error
}

// Baseline is the session configuration applied to every new tracker
// session.
type Baseline struct {
	LightEstimation  tracking.LightEstimationMode
	Depth            bool
	InstantPlacement bool
}

// SessionConfig resolves b against what t supports. Depth is only enabled
// when the tracker supports it.
func (b Baseline) SessionConfig(t tracking.Tracker) tracking.SessionConfig {
	cfg := tracking.SessionConfig{
		Focus:           tracking.FocusAuto,
		LightEstimation: b.LightEstimation,
	}
	if b.Depth && t.IsDepthModeSupported(tracking.DepthAutomatic) {
		cfg.Depth = tracking.DepthAutomatic
	}
	if b.InstantPlacement {
		cfg.InstantPlacement = tracking.InstantPlacementLocalYUp
	}
	return cfg
}

// Options configures a Controller. Factory and Sinks are required.
type Options struct {
	Factory  tracking.Factory
	Baseline Baseline
	Latch    *render.TextureNameLatch
	Sinks    *SinkAllocator
	Journal  Journal
	Clock    timeutil.Clock

	// OnResumed runs after every successful tracker resume.
	OnResumed func()
	// OnStateChange runs after every state transition.
	OnStateChange func(from, to State)
}

// Controller owns the tracker session and its recording/playback state.
type Controller struct {
	opts Options

	state  atomic.Int32
	broken atomic.Bool

	tracker   tracking.Tracker
	sink      string
	recording uuid.UUID

	// running is true while the tracker is resumed.
	running bool
	// suspended is set by Pause and cleared by Resume. While it is set no
	// transition resumes the tracker.
	suspended bool
}

// NewController returns an Idle controller with no tracker session. Call
// Open or Resume to create one.
func NewController(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Latch == nil {
		opts.Latch = render.NewTextureNameLatch()
	}
	return &Controller{opts: opts}
}

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Unrecoverable reports whether the last attempt to create or restart the
// tracker session failed.
func (c *Controller) Unrecoverable() bool {
	return c.broken.Load()
}

// Tracker returns the current session, or nil if there is none.
func (c *Controller) Tracker() tracking.Tracker {
	return c.tracker
}

// Latch returns the camera texture latch invalidated on every new session.
func (c *Controller) Latch() *render.TextureNameLatch {
	return c.opts.Latch
}

// SinkPath returns the output file of the current or last recording.
func (c *Controller) SinkPath() string {
	return c.sink
}

func (c *Controller) transition(from, to State) bool {
	if !c.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	c.changed(from, to)
	return true
}

func (c *Controller) force(to State) {
	from := State(c.state.Swap(int32(to)))
	if from != to {
		c.changed(from, to)
	}
}

func (c *Controller) changed(from, to State) {
	diagf("state %s -> %s", from, to)
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(from, to)
	}
}

func invalid(op string, s State) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidState, op, s)
}

func (c *Controller) checkIdle(op string) error {
	if s := c.State(); s != Idle {
		return invalid(op, s)
	}
	if c.suspended {
		return fmt.Errorf("%w: %s while suspended", ErrInvalidState, op)
	}
	return nil
}

// Open creates the tracker session if there is none and applies the
// baseline configuration. The new session is paused and the texture latch
// is invalidated.
func (c *Controller) Open() error {
	if c.tracker != nil {
		return nil
	}
	if c.opts.Factory == nil {
		c.broken.Store(true)
		return unrecoverable(errors.New("no tracker factory"))
	}
	t, err := c.opts.Factory()
	if err != nil {
		c.broken.Store(true)
		return unrecoverable(fmt.Errorf("create session: %w", err))
	}
	if err := t.Configure(c.opts.Baseline.SessionConfig(t)); err != nil {
		t.Close()
		c.broken.Store(true)
		return unrecoverable(fmt.Errorf("configure session: %w", err))
	}
	c.tracker = t
	c.running = false
	c.broken.Store(false)
	c.opts.Latch.Invalidate()
	diagf("tracker session created")
	return nil
}

// Resume resumes the tracker, creating the session first if needed, and
// ends a suspension. Resuming a running session does nothing.
func (c *Controller) Resume() error {
	c.suspended = false
	if err := c.Open(); err != nil {
		return err
	}
	if c.running {
		return nil
	}
	return c.resumeTracker()
}

// resumeTracker resumes a paused tracker. OnResumed runs once per actual
// paused to running change.
func (c *Controller) resumeTracker() error {
	if err := c.tracker.Resume(); err != nil {
		return fmt.Errorf("resume tracker: %w", err)
	}
	c.running = true
	c.broken.Store(false)
	if c.opts.OnResumed != nil {
		c.opts.OnResumed()
	}
	return nil
}

func (c *Controller) pauseTracker() error {
	if err := c.tracker.Pause(); err != nil {
		return fmt.Errorf("pause tracker: %w", err)
	}
	c.running = false
	return nil
}

// Pause suspends the session until the next Resume. If the tracker
// stopped an active recording on pause, the recording is finished and the
// controller returns to Idle. Recording and playback cannot start while
// suspended.
func (c *Controller) Pause(ctx context.Context) error {
	c.suspended = true
	if c.tracker == nil {
		return nil
	}
	if err := c.pauseTracker(); err != nil {
		return err
	}
	if c.State() == Recording && c.tracker.RecordingStatus() == tracking.RecordingNone {
		c.finishJournal(ctx, db.RecordingAutoStop)
		c.transition(Recording, Idle)
		diagf("recording %s stopped on pause", c.sink)
	}
	return nil
}

// StartRecording moves from Idle to Recording and returns the output path.
// The output file is allocated before the tracker is touched. On failure
// the controller stays Idle with the tracker running and the error is a
// *ConfigurationRejectedError.
func (c *Controller) StartRecording(ctx context.Context) (string, error) {
	const op = "start recording"
	if err := c.checkIdle(op); err != nil {
		return "", err
	}
	if c.tracker == nil {
		return "", rejected(op, tracking.ErrSessionUnavailable)
	}
	if c.opts.Sinks == nil {
		return "", rejected(op, errors.New("no recording output configured"))
	}
	sink, err := c.opts.Sinks.Allocate()
	if err != nil {
		return "", rejected(op, err)
	}

	if err := c.pauseTracker(); err != nil {
		c.opts.Sinks.Release(sink)
		return "", rejected(op, err)
	}
	cfg := tracking.RecordingConfig{
		DatasetURI:      sink,
		AutoStopOnPause: true,
		Tracks:          []tracking.Track{AnchorTrack()},
	}
	if err := c.tracker.StartRecording(cfg); err != nil {
		c.opts.Sinks.Release(sink)
		return "", rejected(op, errors.Join(err, c.resumeTracker()))
	}
	if err := c.resumeTracker(); err != nil {
		c.abandonRecording(sink)
		return "", rejected(op, err)
	}
	if status := c.tracker.RecordingStatus(); status != tracking.RecordingOK {
		c.abandonRecording(sink)
		return "", rejected(op, fmt.Errorf("recording status %s after resume", status))
	}

	c.sink = sink
	c.startJournal(ctx, sink)
	c.transition(Idle, Recording)
	return sink, nil
}

func (c *Controller) abandonRecording(sink string) {
	if err := c.tracker.StopRecording(); err != nil {
		opsf("stop abandoned recording %s: %v", sink, err)
	}
	c.opts.Sinks.Release(sink)
}

// StopRecording moves from Recording to Idle. If the tracker fails to stop,
// or still reports an active recording, the controller stays in Recording.
func (c *Controller) StopRecording(ctx context.Context) error {
	const op = "stop recording"
	if s := c.State(); s != Recording {
		return invalid(op, s)
	}
	if err := c.tracker.StopRecording(); err != nil {
		return rejected(op, err)
	}
	if status := c.tracker.RecordingStatus(); status != tracking.RecordingNone {
		return rejected(op, fmt.Errorf("recording status %s after stop", status))
	}
	c.finishJournal(ctx, db.RecordingStopped)
	c.transition(Recording, Idle)
	diagf("recording saved to %s", c.sink)
	return nil
}

// StartPlayback moves from Idle to Playingback with the dataset at uri.
// The texture latch is invalidated because the camera image source
// changes. If the dataset is refused the live session resumes; if playback
// does not start after resume the session is recreated. Either way the
// controller stays Idle.
func (c *Controller) StartPlayback(ctx context.Context, uri string) error {
	const op = "start playback"
	if err := c.checkIdle(op); err != nil {
		return err
	}
	if c.tracker == nil {
		return rejected(op, tracking.ErrSessionUnavailable)
	}
	if uri == "" {
		return rejected(op, errors.New("no playback dataset selected"))
	}

	if err := c.pauseTracker(); err != nil {
		return rejected(op, err)
	}
	if err := c.tracker.SetPlaybackDataset(uri); err != nil {
		return rejected(op, errors.Join(err, c.resumeTracker()))
	}
	c.opts.Latch.Invalidate()
	if err := c.resumeTracker(); err != nil {
		return rejected(op, errors.Join(err, c.restoreLive()))
	}
	if status := c.tracker.PlaybackStatus(); status != tracking.PlaybackOK {
		return rejected(op, errors.Join(fmt.Errorf("playback status %s after resume", status), c.restoreLive()))
	}
	c.sink = uri
	c.transition(Idle, Playingback)
	return nil
}

// StopPlayback ends playback at the user's request and returns to live
// tracking on a new session.
func (c *Controller) StopPlayback(ctx context.Context) error {
	if !c.transition(Playingback, Idle) {
		return invalid("stop playback", c.State())
	}
	return c.restoreLive()
}

// FinishPlayback handles an exhausted dataset. Only the first call for a
// playback performs the transition and reports true; later calls, such as
// from the frames that follow, do nothing.
func (c *Controller) FinishPlayback(ctx context.Context) (bool, error) {
	if !c.transition(Playingback, Idle) {
		return false, nil
	}
	diagf("playback of %s finished", c.sink)
	return true, c.restoreLive()
}

// restoreLive replaces the tracker with a fresh live session. A session
// that has played back a dataset cannot return to live tracking. While
// suspended the new session stays paused until Resume.
func (c *Controller) restoreLive() error {
	if c.tracker != nil {
		if err := c.pauseTracker(); err != nil {
			opsf("pause before close: %v", err)
		}
		if err := c.tracker.Close(); err != nil {
			opsf("close session: %v", err)
		}
		c.tracker = nil
		c.running = false
	}
	if err := c.Open(); err != nil {
		return err
	}
	if c.suspended {
		diagf("live session recreated while suspended")
		return nil
	}
	if err := c.resumeTracker(); err != nil {
		c.broken.Store(true)
		return unrecoverable(err)
	}
	return nil
}

// RecordAnchor persists a new anchor: to the recording's anchor track
// while Recording, and to the journal. timestampNs is the frame timestamp.
func (c *Controller) RecordAnchor(ctx context.Context, entry anchors.Entry, timestampNs int64) error {
	kind := tracking.KindOther.String()
	if entry.Trackable != nil {
		kind = entry.Trackable.Kind.String()
	}
	pose := entry.Anchor.Pose()
	payload, err := EncodeAnchorEvent(AnchorEvent{
		AnchorID:    entry.Anchor.ID(),
		Trackable:   kind,
		Pose:        pose,
		TimestampNs: timestampNs,
	})
	if err != nil {
		return err
	}

	var errs []error
	recordingID := uuid.Nil
	if c.State() == Recording && c.tracker != nil {
		recordingID = c.recording
		if err := c.tracker.RecordTrackData(AnchorTrackID, payload); err != nil {
			errs = append(errs, fmt.Errorf("write anchor track: %w", err))
		} else {
			tracef("anchor %s written to track (%d bytes)", entry.Anchor.ID(), len(payload))
		}
	}
	if c.opts.Journal != nil {
		err := c.opts.Journal.RecordAnchorEvent(ctx, &db.AnchorEvent{
			RecordingID:   recordingID,
			AnchorID:      entry.Anchor.ID(),
			TrackableKind: kind,
			X:             pose.Tx(),
			Y:             pose.Ty(),
			Z:             pose.Tz(),
			Payload:       payload,
			CreatedAt:     c.opts.Clock.Now(),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("journal anchor: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases the tracker session. An active recording is finalised by
// the tracker and journaled as aborted. The controller returns to Idle;
// Resume creates a new session.
func (c *Controller) Close(ctx context.Context) error {
	if c.tracker == nil {
		c.force(Idle)
		return nil
	}
	if c.State() == Recording {
		c.finishJournal(ctx, db.RecordingAborted)
	}
	err := c.tracker.Close()
	c.tracker = nil
	c.running = false
	c.force(Idle)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

func (c *Controller) startJournal(ctx context.Context, sink string) {
	c.recording = uuid.Nil
	if c.opts.Journal == nil {
		return
	}
	rec := &db.Recording{SinkPath: sink, StartedAt: c.opts.Clock.Now()}
	if err := c.opts.Journal.StartRecording(ctx, rec); err != nil {
		opsf("journal recording %s: %v", sink, err)
		return
	}
	c.recording = rec.ID
}

func (c *Controller) finishJournal(ctx context.Context, status string) {
	id := c.recording
	c.recording = uuid.Nil
	if c.opts.Journal == nil || id == uuid.Nil {
		return
	}
	if err := c.opts.Journal.FinishRecording(ctx, id, c.opts.Clock.Now(), status); err != nil {
		opsf("journal recording %s finish: %v", id, err)
	}
}
