package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/arpositioning/internal/ar/pipeline"
	"github.com/banshee-data/arpositioning/internal/ar/render"
	"github.com/banshee-data/arpositioning/internal/ar/session"
	"github.com/banshee-data/arpositioning/internal/ar/simtracker"
	"github.com/banshee-data/arpositioning/internal/db"
	"github.com/banshee-data/arpositioning/internal/fsutil"
	"github.com/banshee-data/arpositioning/internal/timeutil"
)

// Screen size of the simulated device.
const (
	screenWidth  = 1080
	screenHeight = 1920
)

type simulateOptions struct {
	duration    time.Duration
	taps        int
	tapInterval time.Duration
	marks       int
	record      time.Duration
	replay      bool
	playback    string
	printPoses  bool
	healthAddr  string

	warmup           int64
	panRate          float64
	depthSupported   bool
	unavailableEvery int
}

func newSimulateCmd(root *rootOptions) *cobra.Command {
	o := &simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the frame pipeline against the simulated tracker",
		Long: `Runs the AR core headless against a simulated camera panning over a floor.

A control script resumes the session, places anchors with synthetic taps,
writes mark points and optionally records the session and plays it back.
The gRPC health endpoint reports NOT_SERVING while the tracker session
cannot be recreated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context(), root, o, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.DurationVar(&o.duration, "duration", 10*time.Second, "How long to run; 0 runs until interrupted")
	f.IntVar(&o.taps, "taps", 5, "Synthetic taps to send")
	f.DurationVar(&o.tapInterval, "tap-interval", 500*time.Millisecond, "Delay between taps")
	f.IntVar(&o.marks, "marks", 0, "Numbered mark points to write after the taps")
	f.DurationVar(&o.record, "record", 0, "Record the session for this long; 0 disables recording")
	f.BoolVar(&o.replay, "replay", false, "Play back the recording once it stops")
	f.StringVar(&o.playback, "playback", "", "Play back this dataset instead of live tracking")
	f.BoolVar(&o.printPoses, "print-poses", false, "Print the pose text of every drawn frame")
	f.StringVar(&o.healthAddr, "health-addr", "127.0.0.1:50551", "gRPC health listen address; empty disables it")
	f.Int64Var(&o.warmup, "warmup", 30, "Frames before the simulated camera starts tracking")
	f.Float64Var(&o.panRate, "pan-rate", 0.002, "Camera yaw per frame in radians")
	f.BoolVar(&o.depthSupported, "depth", true, "Simulated device supports depth")
	f.IntVar(&o.unavailableEvery, "unavailable-every", 0, "Make every Nth camera frame unavailable; 0 disables")
	return cmd
}

func runSimulate(parent context.Context, root *rootOptions, o *simulateOptions, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	logger := root.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := loadConfig(root.configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if o.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.duration)
		defer cancel()
	}

	clock := timeutil.RealClock{}
	fsys := fsutil.OSFileSystem{}

	var journal pipeline.Journal
	if path := cfg.GetDatabasePath(); path != "" {
		database, err := db.Open(path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer database.Close()
		journal = db.NewJournal(database)
	}

	rt, err := pipeline.Init(pipeline.Options{
		Config:   cfg,
		Renderer: render.NewRecorder(render.WithHistory(1)),
		Factory: simtracker.Factory(simtracker.Options{
			FS:                fsys,
			Clock:             clock,
			FrameInterval:     cfg.GetFrameInterval(),
			ScreenWidth:       screenWidth,
			ScreenHeight:      screenHeight,
			WarmupFrames:      o.warmup,
			UnavailableEvery:  o.unavailableEvery,
			DepthSupported:    o.depthSupported,
			PanRate:           o.panRate,
			CubemapResolution: cfg.GetCubemapResolution(),
		}),
		FS:      fsys,
		Clock:   clock,
		Journal: journal,
		OnTelemetry: func(text string) {
			if o.printPoses {
				fmt.Fprint(out, text)
			}
		},
		OnStateChange: func(from, to session.State) {
			logger.Info("session state changed", zap.Stringer("from", from), zap.Stringer("to", to))
		},
		OnError: func(err error) {
			var st interface{ StatusText() string }
			if errors.As(err, &st) {
				logger.Warn(st.StatusText(), zap.Error(err))
				return
			}
			logger.Warn("runtime error", zap.Error(err))
		},
	})
	if err != nil {
		return err
	}
	logger.Debug("renderer hints", zap.Int("cubemap_resolution", cfg.GetCubemapResolution()),
		zap.Int("cubemap_samples", cfg.GetCubemapSamples()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.Run(gctx) })
	if o.healthAddr != "" {
		lis, err := net.Listen("tcp", o.healthAddr)
		if err != nil {
			_ = rt.Teardown(context.Background())
			return fmt.Errorf("health listen: %w", err)
		}
		g.Go(func() error { return serveHealth(gctx, lis, rt.Controller(), time.Second) })
	}
	g.Go(func() error { return ignoreCancel(runScript(gctx, rt, o, out)) })

	runErr := g.Wait()
	tdErr := rt.Teardown(context.Background())

	st := rt.Stats()
	fmt.Fprintf(out, "frames=%d skipped=%d anchors=%d state=%s camera=%s\n",
		st.Frames, st.Skipped, st.Anchors, st.State, st.CameraState)
	return errors.Join(runErr, tdErr)
}

// runScript plays the user's part: resume, tap, mark, record, play back.
func runScript(ctx context.Context, rt *pipeline.Runtime, o *simulateOptions, out io.Writer) error {
	if err := rt.Resume(ctx); err != nil {
		return err
	}
	if o.playback != "" {
		if err := rt.StartPlayback(ctx, o.playback); err != nil {
			return err
		}
		fmt.Fprintf(out, "playing back %s\n", o.playback)
	}

	started := time.Now()
	var sink string
	if o.record > 0 && o.playback == "" {
		var err error
		if sink, err = rt.StartRecording(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "recording to %s\n", sink)
	}

	for i := 0; i < o.taps; i++ {
		if err := sleepCtx(ctx, o.tapInterval); err != nil {
			return err
		}
		a := float64(i)
		x := screenWidth/2 + 120*math.Cos(a)
		y := screenHeight*0.57 + 80*math.Sin(a)
		if !rt.Tap(x, y) {
			fmt.Fprintf(out, "tap %d dropped\n", i+1)
		}
	}

	name := "1"
	for i := 0; i < o.marks; i++ {
		next, err := rt.MarkPoint(ctx, name)
		if err != nil {
			return err
		}
		name = next
	}

	if sink == "" {
		return nil
	}
	if err := sleepCtx(ctx, o.record-time.Since(started)); err != nil {
		return err
	}
	if err := rt.StopRecording(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "recording saved to %s\n", sink)
	if o.replay {
		if err := rt.StartPlayback(ctx, sink); err != nil {
			return err
		}
		fmt.Fprintf(out, "playing back %s\n", sink)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
