package frame

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/arpositioning/internal/ar/tracking"
)

// DefaultIdleInterval is how long the loop waits before retrying when the
// tracker has no session or is paused.
const DefaultIdleInterval = 10 * time.Millisecond

// PlaybackFinisher ends playback when the dataset is exhausted.
// *session.Controller implements it.
type PlaybackFinisher interface {
	FinishPlayback(ctx context.Context) (bool, error)
}

// LoopConfig contains configuration for a Loop.
type LoopConfig struct {
	Processor *Processor
	// Finisher is told when playback runs out. Optional.
	Finisher PlaybackFinisher

	// IdleInterval defaults to DefaultIdleInterval.
	IdleInterval time.Duration

	// OnFrame is called on the render goroutine after every frame attempt.
	OnFrame func(Outcome, error)
	// OnPlaybackFinished is called after the loop has ended a playback,
	// with the result of restoring live tracking.
	OnPlaybackFinished func(error)
}

type request struct {
	fn   func(context.Context) error
	done chan error
}

// Loop is the render context. Run processes frames back to back; the
// tracker's blocking Update paces it to the camera rate. Do runs control
// requests on the same goroutine between two frames, so a frame never
// overlaps a tracker reconfiguration.
type Loop struct {
	cfg LoopConfig

	mu      sync.Mutex
	running bool
	pending []request
	wake    chan struct{}
}

// NewLoop creates a loop. It does not start it.
func NewLoop(cfg LoopConfig) *Loop {
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = DefaultIdleInterval
	}
	return &Loop{cfg: cfg, wake: make(chan struct{}, 1)}
}

// IsRunning reports whether Run is active.
func (l *Loop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Do runs fn on the render goroutine between frames and waits for it. When
// the loop is not running, fn runs on the caller's goroutine instead. If
// ctx ends first Do returns ctx.Err(); fn may still run later.
func (l *Loop) Do(ctx context.Context, fn func(context.Context) error) error {
	l.mu.Lock()
	if !l.running {
		defer l.mu.Unlock()
		return fn(ctx)
	}
	req := request{fn: fn, done: make(chan error, 1)}
	l.pending = append(l.pending, req)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes frames until ctx is cancelled. It returns nil on clean
// shutdown, or immediately if the loop is already running. Requests queued
// when the loop stops are run before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = true
	l.mu.Unlock()
	diagf("render loop started")

	defer func() {
		l.mu.Lock()
		l.running = false
		rest := l.pending
		l.pending = nil
		l.serve(context.WithoutCancel(ctx), rest)
		l.mu.Unlock()
		diagf("render loop stopped")
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		l.serve(ctx, l.take())

		out, err := l.cfg.Processor.ProcessFrame(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if l.cfg.OnFrame != nil {
			l.cfg.OnFrame(out, err)
		}

		var transient *TransientSensorError
		switch {
		case err == nil:
		case errors.As(err, &transient):
			tracef("%v", err)
			continue
		case errors.Is(err, tracking.ErrSessionUnavailable),
			errors.Is(err, tracking.ErrSessionPaused),
			errors.Is(err, tracking.ErrTextureNotSet):
			l.idle(ctx)
			continue
		default:
			opsf("%v", err)
			continue
		}

		if out.PlaybackFinished {
			l.finishPlayback(ctx)
		}
	}
}

func (l *Loop) finishPlayback(ctx context.Context) {
	if l.cfg.Finisher == nil {
		return
	}
	done, err := l.cfg.Finisher.FinishPlayback(ctx)
	if !done {
		return
	}
	l.cfg.Processor.Reset()
	if err != nil {
		opsf("restore live tracking after playback: %v", err)
	} else {
		diagf("playback finished, live tracking restored")
	}
	if l.cfg.OnPlaybackFinished != nil {
		l.cfg.OnPlaybackFinished(err)
	}
}

func (l *Loop) take() []request {
	l.mu.Lock()
	defer l.mu.Unlock()
	reqs := l.pending
	l.pending = nil
	return reqs
}

func (l *Loop) serve(ctx context.Context, reqs []request) {
	for _, r := range reqs {
		r.done <- r.fn(ctx)
	}
}

// idle waits for a control request, the idle interval or cancellation.
func (l *Loop) idle(ctx context.Context) {
	t := time.NewTimer(l.cfg.IdleInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-l.wake:
	case <-t.C:
	}
}
