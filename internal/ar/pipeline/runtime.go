// Package pipeline assembles the AR core for an embedding shell.
//
// A Runtime owns the session controller, the anchor store, the tap router,
// the frame processor and its render loop, and the telemetry outputs. The
// shell drives it through Init, Run, Resume, Suspend and Teardown, and
// forwards user input with Tap, MarkPoint and the recording and playback
// calls. Every control call is executed on the render goroutine between
// frames.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/arpositioning/internal/ar/anchors"
	"github.com/banshee-data/arpositioning/internal/ar/frame"
	"github.com/banshee-data/arpositioning/internal/ar/render"
	"github.com/banshee-data/arpositioning/internal/ar/session"
	"github.com/banshee-data/arpositioning/internal/ar/taprouter"
	"github.com/banshee-data/arpositioning/internal/ar/telemetry"
	"github.com/banshee-data/arpositioning/internal/ar/tracking"
	"github.com/banshee-data/arpositioning/internal/config"
	"github.com/banshee-data/arpositioning/internal/db"
	"github.com/banshee-data/arpositioning/internal/fsutil"
	"github.com/banshee-data/arpositioning/internal/security"
	"github.com/banshee-data/arpositioning/internal/timeutil"
)

// Journal persists recordings, anchor events and mark points.
// *db.Journal implements it.
type Journal interface {
	session.Journal
	RecordMarkPoint(ctx context.Context, m *db.MarkPoint) error
}

// Options are the collaborators supplied by the shell. Renderer and Factory
// are required.
type Options struct {
	Config   *config.Config
	Renderer render.Renderer
	Factory  tracking.Factory

	FS      fsutil.FileSystem
	Clock   timeutil.Clock
	Journal Journal

	// PlaybackDirs are accepted as playback sources in addition to the
	// recording output directory.
	PlaybackDirs []string

	// OnTelemetry receives the pose text after every drawn frame, off the
	// render goroutine.
	OnTelemetry func(text string)
	// OnStateChange is called on every recording/playback transition.
	OnStateChange func(from, to session.State)
	// OnError receives failures the user should see, such as a playback
	// that could not return to live tracking.
	OnError func(err error)
}

// Stats is a point-in-time view of the runtime, safe to read from any
// goroutine.
type Stats struct {
	State         session.State
	CameraState   tracking.TrackingState
	Frames        uint64
	Skipped       uint64
	Anchors       int
	Unrecoverable bool
}

// Runtime is the assembled AR core.
type Runtime struct {
	opts Options
	cfg  *config.Config

	ctrl      *session.Controller
	store     *anchors.Store
	queue     *taprouter.Queue
	proc      *frame.Processor
	loop      *frame.Loop
	publisher *telemetry.Publisher
	logs      *telemetry.FileLog
	anchorLog *anchorJournal

	camera  atomic.Int32
	frames  atomic.Uint64
	skipped atomic.Uint64
	drawn   atomic.Int64

	closeOnce sync.Once
	closed    atomic.Bool
}

// Init validates the configuration, prepares the renderer and wires the
// core. A renderer that cannot load its assets fails with
// *AssetMissingError. No tracker session exists until Resume.
func Init(opts Options) (*Runtime, error) {
	if opts.Renderer == nil || opts.Factory == nil {
		return nil, errors.New("pipeline: renderer and tracker factory are required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Empty()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.FS == nil {
		opts.FS = fsutil.OSFileSystem{}
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}

	if err := opts.Renderer.Prepare(); err != nil {
		opsf("renderer prepare failed: %v", err)
		return nil, &AssetMissingError{Err: err}
	}

	logs, err := telemetry.NewFileLog(opts.FS, opts.Clock, cfg.GetLogDir(), cfg.GetProjectName())
	if err != nil {
		return nil, err
	}

	r := &Runtime{opts: opts, cfg: cfg, logs: logs}
	r.camera.Store(int32(tracking.Paused))

	handlers := []telemetry.Handler{logs.Handle}
	if opts.OnTelemetry != nil {
		handlers = append(handlers, func(rep telemetry.FrameReport) { opts.OnTelemetry(rep.Text()) })
	}
	r.publisher = telemetry.NewPublisher(cfg.GetTelemetryBuffer(), handlers...)

	policy := anchors.EvictStoppedFirst
	if cfg.GetEvictionPolicy() == config.EvictFIFO {
		policy = anchors.StrictFIFO
	}
	r.store = anchors.NewStore(anchors.WithCapacity(cfg.GetMaxAnchors()), anchors.WithPolicy(policy))
	r.queue = taprouter.NewQueue(cfg.GetTapQueueSize())
	router := taprouter.NewRouter(r.queue, r.store, taprouter.Config{
		InstantPlacement:    cfg.GetInstantPlacement(),
		ApproximateDistance: cfg.GetApproximateDistanceMeters(),
	})

	var journal session.Journal
	if opts.Journal != nil {
		r.anchorLog = newAnchorJournal(opts.Journal, anchorJournalBuffer)
		journal = r.anchorLog
	}
	depth := cfg.GetDepthMode() == config.DepthAutomatic
	r.ctrl = session.NewController(session.Options{
		Factory: opts.Factory,
		Baseline: session.Baseline{
			LightEstimation:  lightMode(cfg.GetLightEstimation()),
			Depth:            depth,
			InstantPlacement: cfg.GetInstantPlacement(),
		},
		Sinks:         session.NewSinkAllocator(opts.FS, opts.Clock, cfg.GetOutputDir()),
		Journal:       journal,
		Clock:         opts.Clock,
		OnResumed:     r.sessionResumed,
		OnStateChange: opts.OnStateChange,
	})

	r.proc = frame.NewProcessor(frame.Options{
		Session:   r.ctrl,
		Renderer:  opts.Renderer,
		Store:     r.store,
		Router:    router,
		Publisher: r.publisher,
		ZNear:     cfg.GetZNear(),
		ZFar:      cfg.GetZFar(),
		Depth:     depth,
	})
	r.loop = frame.NewLoop(frame.LoopConfig{
		Processor:          r.proc,
		Finisher:           r.ctrl,
		OnFrame:            r.frameDone,
		OnPlaybackFinished: r.playbackFinished,
	})

	diagf("initialized: project=%q anchors=%d eviction=%s depth=%s light=%s",
		cfg.GetProjectName(), cfg.GetMaxAnchors(), cfg.GetEvictionPolicy(),
		cfg.GetDepthMode(), cfg.GetLightEstimation())
	return r, nil
}

func lightMode(s string) tracking.LightEstimationMode {
	switch s {
	case config.LightAmbientIntensity:
		return tracking.LightEstimationAmbientIntensity
	case config.LightEstimationOff:
		return tracking.LightEstimationDisabled
	default:
		return tracking.LightEstimationEnvironmentalHDR
	}
}

// Controller exposes the session controller for health reporting.
func (r *Runtime) Controller() *session.Controller { return r.ctrl }

// Logs returns the text log writer.
func (r *Runtime) Logs() *telemetry.FileLog { return r.logs }

// Run drives the render loop until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}
	return r.loop.Run(ctx)
}

func (r *Runtime) do(ctx context.Context, fn func(context.Context) error) error {
	if r.closed.Load() {
		return ErrClosed
	}
	return r.loop.Do(ctx, fn)
}

// Resume creates the tracker session if needed and resumes it.
func (r *Runtime) Resume(ctx context.Context) error {
	return r.do(ctx, func(context.Context) error {
		if err := r.ctrl.Resume(); err != nil {
			r.report(err)
			return err
		}
		return nil
	})
}

// Suspend pauses the tracker. An active recording is stopped by the
// tracker and journaled.
func (r *Runtime) Suspend(ctx context.Context) error {
	return r.do(ctx, r.ctrl.Pause)
}

// Teardown closes the session, clears the anchor store and flushes the
// telemetry outputs. Run must have returned or be about to. Later calls do
// nothing.
func (r *Runtime) Teardown(ctx context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		err = r.loop.Do(ctx, func(ctx context.Context) error {
			r.store.Clear()
			return r.ctrl.Close(ctx)
		})
		r.closed.Store(true)
		r.publisher.Close()
		diagf("torn down: %d telemetry reports published, %d dropped",
			r.publisher.Published(), r.publisher.Dropped())
		if r.anchorLog != nil {
			r.anchorLog.Close()
			diagf("anchor journal: %d events written, %d dropped",
				r.anchorLog.written.Load(), r.anchorLog.dropped.Load())
		}
	})
	return err
}

// Tap queues a screen tap for the next tracking frame. It never blocks and
// reports false when the queue is full.
func (r *Runtime) Tap(x, y float64) bool {
	ok := r.queue.Offer(taprouter.Tap{X: x, Y: y})
	if !ok {
		tracef("tap (%.1f, %.1f) dropped, queue full", x, y)
	}
	return ok
}

// StartRecording starts recording into a new file in the output directory
// and returns its path.
func (r *Runtime) StartRecording(ctx context.Context) (string, error) {
	var sink string
	err := r.do(ctx, func(ctx context.Context) error {
		var err error
		sink, err = r.ctrl.StartRecording(ctx)
		return err
	})
	return sink, err
}

// StopRecording stops the active recording.
func (r *Runtime) StopRecording(ctx context.Context) error {
	return r.do(ctx, r.ctrl.StopRecording)
}

// StartPlayback replays the dataset at path. The path must lie inside the
// output directory or one of the configured playback directories.
func (r *Runtime) StartPlayback(ctx context.Context, path string) error {
	roots := append([]string{r.cfg.GetOutputDir()}, r.opts.PlaybackDirs...)
	if err := security.ValidatePathWithinAllowedDirs(path, roots); err != nil {
		opsf("playback source refused: %v", err)
		return &session.ConfigurationRejectedError{Op: "start playback", Err: err}
	}
	return r.do(ctx, func(ctx context.Context) error {
		if err := r.ctrl.StartPlayback(ctx, path); err != nil {
			r.report(err)
			return err
		}
		r.proc.Reset()
		return nil
	})
}

// StopPlayback returns to live tracking.
func (r *Runtime) StopPlayback(ctx context.Context) error {
	return r.do(ctx, func(ctx context.Context) error {
		err := r.ctrl.StopPlayback(ctx)
		r.proc.Reset()
		if err != nil {
			r.report(err)
		}
		return err
	})
}

// MarkPoint records a named point with the current camera status. When name
// is a number the next number is returned as the suggested next name;
// otherwise next is empty.
func (r *Runtime) MarkPoint(ctx context.Context, name string) (next string, err error) {
	status := tracking.TrackingState(r.camera.Load()).String()
	if err := r.logs.WriteMarkPoint(name, status); err != nil {
		return "", err
	}
	if r.opts.Journal != nil {
		err := r.opts.Journal.RecordMarkPoint(ctx, &db.MarkPoint{
			Project:      r.cfg.GetProjectName(),
			Name:         name,
			CameraStatus: status,
			CreatedAt:    r.opts.Clock.Now(),
		})
		if err != nil {
			opsf("journal mark point %q: %v", name, err)
		}
	}
	diagf("mark point %q (%s)", name, status)
	if n, err := strconv.Atoi(name); err == nil {
		return strconv.Itoa(n + 1), nil
	}
	return "", nil
}

// Stats returns the current counters.
func (r *Runtime) Stats() Stats {
	return Stats{
		State:         r.ctrl.State(),
		CameraState:   tracking.TrackingState(r.camera.Load()),
		Frames:        r.frames.Load(),
		Skipped:       r.skipped.Load(),
		Anchors:       int(r.drawn.Load()),
		Unrecoverable: r.ctrl.Unrecoverable(),
	}
}

func (r *Runtime) sessionResumed() {
	if err := r.logs.WriteSessionBoundary(); err != nil {
		opsf("session boundary: %v", err)
	}
}

func (r *Runtime) frameDone(out frame.Outcome, err error) {
	if err != nil {
		var transient *frame.TransientSensorError
		if errors.As(err, &transient) {
			r.skipped.Add(1)
		}
		return
	}
	if !out.Submitted {
		return
	}
	r.frames.Add(1)
	r.camera.Store(int32(out.CameraState))
	r.drawn.Store(int64(out.Anchors))
}

func (r *Runtime) playbackFinished(err error) {
	if err != nil {
		r.report(err)
	}
}

func (r *Runtime) report(err error) {
	if r.opts.OnError != nil {
		r.opts.OnError(err)
	}
}
