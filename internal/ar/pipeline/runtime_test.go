package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/banshee-data/arpositioning/internal/ar/render"
	"github.com/banshee-data/arpositioning/internal/ar/session"
	"github.com/banshee-data/arpositioning/internal/ar/simtracker"
	"github.com/banshee-data/arpositioning/internal/ar/telemetry"
	"github.com/banshee-data/arpositioning/internal/ar/tracking"
	"github.com/banshee-data/arpositioning/internal/config"
	"github.com/banshee-data/arpositioning/internal/db"
	"github.com/banshee-data/arpositioning/internal/fsutil"
	"github.com/banshee-data/arpositioning/internal/security"
	"github.com/banshee-data/arpositioning/internal/timeutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitFor = 5 * time.Second

type fixture struct {
	rt      *Runtime
	fsys    *fsutil.MemoryFileSystem
	journal *db.Journal
	rec     *render.Recorder

	mu        sync.Mutex
	telemetry []string
	errs      []error

	cancel context.CancelFunc
	done   chan error
}

func newFixture(t *testing.T, renderer *render.Recorder) (*fixture, error) {
	t.Helper()
	fsys := fsutil.NewMemoryFileSystem()
	clock := timeutil.NewMockClock(time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC))

	database, err := db.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	outDir := t.TempDir()
	logDir := "/logs"
	queue := 32
	cfg := &config.Config{OutputDir: &outDir, LogDir: &logDir, TapQueueSize: &queue}

	f := &fixture{fsys: fsys, journal: db.NewJournal(database), rec: renderer}
	f.rt, err = Init(Options{
		Config:   cfg,
		Renderer: renderer,
		Factory:  simtracker.Factory(simtracker.Options{FS: fsys, Clock: clock}),
		FS:       fsys,
		Clock:    clock,
		Journal:  f.journal,
		OnTelemetry: func(text string) {
			f.mu.Lock()
			f.telemetry = append(f.telemetry, text)
			f.mu.Unlock()
		},
		OnError: func(err error) {
			f.mu.Lock()
			f.errs = append(f.errs, err)
			f.mu.Unlock()
		},
	})
	return f, err
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan error, 1)
	go func() { f.done <- f.rt.Run(ctx) }()
	t.Cleanup(func() {
		f.cancel()
		<-f.done
		require.NoError(t, f.rt.Teardown(context.Background()))
	})
	require.NoError(t, f.rt.Resume(context.Background()))
}

func (f *fixture) lastTelemetry() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.telemetry) == 0 {
		return ""
	}
	return f.telemetry[len(f.telemetry)-1]
}

func anchorLines(text string) []string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	return lines[1:]
}

func TestInit_AssetMissing(t *testing.T) {
	_, err := newFixture(t, render.NewRecorder(render.WithMissingAssets("models/pawn.obj")))
	var missing *AssetMissingError
	require.True(t, errors.As(err, &missing))
	assert.ErrorIs(t, err, render.ErrAssetMissing)
	assert.Equal(t, "Failed to read a required asset file", missing.StatusText())
}

func TestInit_RejectsInvalidConfig(t *testing.T) {
	bad := 0
	_, err := Init(Options{
		Config:   &config.Config{MaxAnchors: &bad},
		Renderer: render.NewRecorder(),
		Factory:  simtracker.Factory(simtracker.Options{}),
		FS:       fsutil.NewMemoryFileSystem(),
	})
	assert.ErrorContains(t, err, "max_anchors")
}

func TestRuntime_AnchorCapKeepsNewest(t *testing.T) {
	f, err := newFixture(t, render.NewRecorder(render.WithHistory(4)))
	require.NoError(t, err)
	for i := 0; i < 25; i++ {
		require.True(t, f.rt.Tap(float64(100+30*i), 1100))
	}
	f.start(t)
	ctx := context.Background()

	require.Eventually(t, func() bool {
		got, err := f.journal.AnchorEvents(ctx, uuid.Nil)
		return err == nil && len(got) == 25
	}, waitFor, time.Millisecond)
	events, err := f.journal.AnchorEvents(ctx, uuid.Nil)
	require.NoError(t, err)

	var want []string
	for _, e := range events[5:] {
		want = append(want, fmt.Sprintf("x=%.3f y=%.3f z=%.3f", e.X, e.Y, e.Z))
	}
	require.Eventually(t, func() bool {
		text := f.lastTelemetry()
		return text != "" && len(anchorLines(text)) == 20
	}, waitFor, time.Millisecond)
	assert.Equal(t, want, anchorLines(f.lastTelemetry()))
	require.Eventually(t, func() bool { return f.rt.Stats().Anchors == 20 }, waitFor, time.Millisecond)
	assert.Equal(t, tracking.Tracking, f.rt.Stats().CameraState)
}

func TestRuntime_SessionBoundaryOnResume(t *testing.T) {
	f, err := newFixture(t, render.NewRecorder(render.WithHistory(4)))
	require.NoError(t, err)
	f.start(t)

	camera, anchor, mark := f.rt.Logs().Paths()
	for path, tag := range map[string]string{camera: "-C", anchor: "-A", mark: "-M"} {
		data, err := f.fsys.ReadFile(path)
		require.NoError(t, err, path)
		assert.Contains(t, string(data), "\t"+tag+"----New Session------\n")
	}
}

func TestRuntime_SuspendedSessionStaysPaused(t *testing.T) {
	f, err := newFixture(t, render.NewRecorder(render.WithHistory(4)))
	require.NoError(t, err)
	f.start(t)
	ctx := context.Background()

	banners := func() int {
		camera, _, _ := f.rt.Logs().Paths()
		data, err := f.fsys.ReadFile(camera)
		require.NoError(t, err)
		return strings.Count(string(data), "-C----New Session------")
	}

	require.NoError(t, f.rt.Resume(ctx))
	assert.Equal(t, 1, banners(), "resuming a running session writes no boundary")

	require.NoError(t, f.rt.Suspend(ctx))
	_, err = f.rt.StartRecording(ctx)
	assert.ErrorIs(t, err, session.ErrInvalidState)
	assert.Equal(t, session.Idle, f.rt.Controller().State())

	require.NoError(t, f.rt.Resume(ctx))
	assert.Equal(t, 2, banners())
}

func TestRuntime_MarkPoint(t *testing.T) {
	f, err := newFixture(t, render.NewRecorder())
	require.NoError(t, err)
	ctx := context.Background()

	next, err := f.rt.MarkPoint(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "8", next)

	next, err = f.rt.MarkPoint(ctx, "door")
	require.NoError(t, err)
	assert.Empty(t, next)

	_, err = f.rt.MarkPoint(ctx, " ")
	assert.ErrorIs(t, err, telemetry.ErrEmptyMarkName)

	_, _, mark := f.rt.Logs().Paths()
	data, err := f.fsys.ReadFile(mark)
	require.NoError(t, err)
	assert.Equal(t, "0314-150926\t7\tPAUSED\n0314-150926\tdoor\tPAUSED\n", string(data))

	points, err := f.journal.MarkPoints(ctx, "Default")
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "door", points[1].Name)
	assert.Equal(t, "PAUSED", points[1].CameraStatus)
	require.NoError(t, f.rt.Teardown(ctx))
}

func TestRuntime_PlaybackOutsideOutputDir(t *testing.T) {
	f, err := newFixture(t, render.NewRecorder())
	require.NoError(t, err)
	ctx := context.Background()

	err = f.rt.StartPlayback(ctx, "/etc/passwd")
	var rejected *session.ConfigurationRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.ErrorIs(t, err, security.ErrOutsideRoot)
	assert.Equal(t, session.Idle, f.rt.Stats().State)
	require.NoError(t, f.rt.Teardown(ctx))
}

func TestRuntime_RecordAndPlayBack(t *testing.T) {
	f, err := newFixture(t, render.NewRecorder(render.WithHistory(4)))
	require.NoError(t, err)
	f.start(t)
	ctx := context.Background()

	require.Eventually(t, func() bool { return f.rt.Stats().Frames >= 2 }, waitFor, time.Millisecond)
	sink, err := f.rt.StartRecording(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(sink, "arcore-0314-150926.mp4"))
	require.True(t, f.rt.Tap(540, 960))

	start := f.rt.Stats().Frames
	require.Eventually(t, func() bool { return f.rt.Stats().Frames >= start+10 }, waitFor, time.Millisecond)
	require.NoError(t, f.rt.StopRecording(ctx))

	recordings, err := f.journal.Recordings(ctx)
	require.NoError(t, err)
	require.Len(t, recordings, 1)
	assert.Equal(t, db.RecordingStopped, recordings[0].Status)
	events, err := f.journal.AnchorEvents(ctx, recordings[0].ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	require.NoError(t, f.rt.StartPlayback(ctx, sink))
	require.Eventually(t, func() bool { return f.rt.Stats().State == session.Idle }, waitFor, time.Millisecond)
	assert.False(t, f.rt.Stats().Unrecoverable)

	f.mu.Lock()
	assert.Empty(t, f.errs)
	f.mu.Unlock()
}

func TestRuntime_TeardownIsFinal(t *testing.T) {
	f, err := newFixture(t, render.NewRecorder())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, f.rt.Resume(ctx))

	require.NoError(t, f.rt.Teardown(ctx))
	require.NoError(t, f.rt.Teardown(ctx))
	assert.ErrorIs(t, f.rt.Resume(ctx), ErrClosed)
	assert.ErrorIs(t, f.rt.Run(ctx), ErrClosed)
}
