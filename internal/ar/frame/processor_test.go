package frame

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/banshee-data/arpositioning/internal/ar/anchors"
	"github.com/banshee-data/arpositioning/internal/ar/render"
	"github.com/banshee-data/arpositioning/internal/ar/session"
	"github.com/banshee-data/arpositioning/internal/ar/simtracker"
	"github.com/banshee-data/arpositioning/internal/ar/taprouter"
	"github.com/banshee-data/arpositioning/internal/ar/telemetry"
	"github.com/banshee-data/arpositioning/internal/ar/tracking"
	"github.com/banshee-data/arpositioning/internal/fsutil"
	"github.com/banshee-data/arpositioning/internal/timeutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var centerTap = taprouter.Tap{X: 540, Y: 960}

type stack struct {
	fsys  *fsutil.MemoryFileSystem
	ctrl  *session.Controller
	rec   *render.Recorder
	store *anchors.Store
	queue *taprouter.Queue
	proc  *Processor
}

type stackOptions struct {
	sim       simtracker.Options
	baseline  session.Baseline
	router    taprouter.Config
	depth     bool
	publisher *telemetry.Publisher
}

func newStack(t *testing.T, o stackOptions) *stack {
	t.Helper()
	fsys := fsutil.NewMemoryFileSystem()
	clock := timeutil.NewMockClock(time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC))
	o.sim.FS = fsys
	o.sim.Clock = clock
	if o.baseline.LightEstimation == tracking.LightEstimationDisabled {
		o.baseline.LightEstimation = tracking.LightEstimationEnvironmentalHDR
	}

	ctrl := session.NewController(session.Options{
		Factory:  simtracker.Factory(o.sim),
		Baseline: o.baseline,
		Sinks:    session.NewSinkAllocator(fsys, clock, "/out"),
		Clock:    clock,
	})
	require.NoError(t, ctrl.Resume())
	t.Cleanup(func() { _ = ctrl.Close(context.Background()) })

	s := &stack{
		fsys:  fsys,
		ctrl:  ctrl,
		rec:   render.NewRecorder(render.WithHistory(8)),
		store: anchors.NewStore(),
		queue: taprouter.NewQueue(0),
	}
	s.proc = NewProcessor(Options{
		Session:   ctrl,
		Renderer:  s.rec,
		Store:     s.store,
		Router:    taprouter.NewRouter(s.queue, s.store, o.router),
		Publisher: o.publisher,
		Depth:     o.depth,
	})
	return s
}

func (s *stack) frame(t *testing.T) Outcome {
	t.Helper()
	out, err := s.proc.ProcessFrame(context.Background())
	require.NoError(t, err)
	return out
}

func TestStatusMessage(t *testing.T) {
	paused := tracking.Camera{TrackingState: tracking.Paused}
	dark := tracking.Camera{TrackingState: tracking.Paused, FailureReason: tracking.FailureInsufficientLight}
	live := tracking.Camera{TrackingState: tracking.Tracking}

	tests := []struct {
		name       string
		camera     tracking.Camera
		plane      bool
		hasAnchors bool
		want       string
	}{
		{"searching while paused", paused, false, false, MessageSearching},
		{"failure reason while paused", dark, true, true, "Too dark. Try moving to a well-lit area."},
		{"plane without anchors", live, true, false, MessageTapToPlace},
		{"plane with anchors", live, true, true, ""},
		{"no plane yet", live, false, true, MessageSearching},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusMessage(tt.camera, tt.plane, tt.hasAnchors))
		})
	}
}

func TestProcessFrame_DrawOrder(t *testing.T) {
	s := newStack(t, stackOptions{})
	require.True(t, s.queue.Offer(centerTap))

	out := s.frame(t)
	assert.True(t, out.Submitted)
	assert.True(t, out.Tracking)
	assert.Equal(t, 1, out.Anchors)
	require.NotNil(t, out.Tap.Anchor)
	assert.False(t, s.ctrl.Latch().Pending())

	list := s.rec.Last()
	require.NotNil(t, list)
	assert.Equal(t, []render.Mesh{
		render.MeshBackground,
		render.MeshPointCloud,
		render.MeshPlanes,
		render.MeshVirtualObject,
		render.MeshComposite,
	}, list.Meshes())
	assert.True(t, list.KeepScreenOn)
	assert.Empty(t, list.Message)
	assert.NotNil(t, list.PointCloud)
	assert.Nil(t, list.Depth)

	obj := list.Commands[3]
	assert.Equal(t, render.TargetVirtualScene, obj.Target)
	assert.Equal(t, render.TextureAlbedo, obj.Params[render.UniformAlbedoTexture])
	assert.Equal(t, true, obj.Params[render.UniformLightEstimateIsValid])
	assert.Contains(t, obj.Params, render.UniformCubeMap)
	assert.Equal(t, 1, list.Commands[2].Params[render.UniformPlaneCount])
	assert.Equal(t, false, list.Commands[4].Params[render.UniformUseOcclusion])
}

func TestProcessFrame_TapPrompt(t *testing.T) {
	s := newStack(t, stackOptions{})
	out := s.frame(t)
	assert.Zero(t, out.Anchors)
	assert.Equal(t, MessageTapToPlace, s.rec.Last().Message)
}

func TestProcessFrame_PointCloudUploadGate(t *testing.T) {
	s := newStack(t, stackOptions{})
	for i := 0; i < 4; i++ {
		s.frame(t)
	}
	assert.Equal(t, 2, s.rec.PointCloudUploads())
}

func TestProcessFrame_PausedCameraSkips3D(t *testing.T) {
	s := newStack(t, stackOptions{sim: simtracker.Options{WarmupFrames: 1}})
	require.True(t, s.queue.Offer(centerTap))

	out := s.frame(t)
	assert.True(t, out.Submitted)
	assert.False(t, out.Tracking)
	assert.False(t, out.Tap.Consumed)
	assert.Equal(t, 1, s.queue.Len(), "taps wait for tracking")

	list := s.rec.Last()
	assert.Equal(t, []render.Mesh{render.MeshBackground}, list.Meshes())
	assert.False(t, list.KeepScreenOn)
	assert.Equal(t, MessageSearching, list.Message)

	out = s.frame(t)
	assert.True(t, out.Tap.Consumed)
	assert.Equal(t, 1, out.Anchors)
}

func TestProcessFrame_TransientSkipsFrame(t *testing.T) {
	s := newStack(t, stackOptions{sim: simtracker.Options{UnavailableEvery: 2}})
	s.frame(t)

	out, err := s.proc.ProcessFrame(context.Background())
	var transient *TransientSensorError
	require.True(t, errors.As(err, &transient))
	assert.ErrorIs(t, err, tracking.ErrCameraUnavailable)
	assert.NotEmpty(t, transient.StatusText())
	assert.False(t, out.Submitted)
	assert.Len(t, s.rec.Lists(), 1)

	s.frame(t)
	assert.Len(t, s.rec.Lists(), 2)
}

func TestProcessFrame_NoSession(t *testing.T) {
	ctrl := session.NewController(session.Options{})
	p := NewProcessor(Options{Session: ctrl, Renderer: render.NewRecorder()})
	_, err := p.ProcessFrame(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
	assert.ErrorIs(t, err, tracking.ErrSessionUnavailable)
}

func TestProcessFrame_InstantPlacementTexture(t *testing.T) {
	s := newStack(t, stackOptions{
		baseline: session.Baseline{InstantPlacement: true},
		router:   taprouter.Config{InstantPlacement: true, ApproximateDistance: 1},
	})
	require.True(t, s.queue.Offer(centerTap))
	s.frame(t)
	assert.Equal(t, render.TextureAlbedoInstantPlacement, s.rec.Last().Commands[3].Params[render.UniformAlbedoTexture])

	for i := 0; i < 31; i++ {
		s.frame(t)
	}
	assert.Equal(t, render.TextureAlbedo, s.rec.Last().Commands[3].Params[render.UniformAlbedoTexture])
}

func TestProcessFrame_Depth(t *testing.T) {
	s := newStack(t, stackOptions{
		sim:      simtracker.Options{DepthSupported: true},
		baseline: session.Baseline{Depth: true},
		depth:    true,
	})
	s.frame(t)
	list := s.rec.Last()
	require.NotNil(t, list.Depth)
	assert.Equal(t, 16, list.Depth.Width)
	assert.Equal(t, true, list.Commands[len(list.Commands)-1].Params[render.UniformUseOcclusion])
}

func TestProcessFrame_DepthUnsupported(t *testing.T) {
	s := newStack(t, stackOptions{baseline: session.Baseline{Depth: true}, depth: true})
	s.frame(t)
	list := s.rec.Last()
	assert.Nil(t, list.Depth)
	assert.Equal(t, false, list.Commands[len(list.Commands)-1].Params[render.UniformUseOcclusion])
}

func TestProcessFrame_PublishesTelemetry(t *testing.T) {
	var (
		mu      sync.Mutex
		reports []telemetry.FrameReport
	)
	pub := telemetry.NewPublisher(8, func(r telemetry.FrameReport) {
		mu.Lock()
		reports = append(reports, r)
		mu.Unlock()
	})
	s := newStack(t, stackOptions{publisher: pub})
	require.True(t, s.queue.Offer(centerTap))
	s.frame(t)
	s.frame(t)
	pub.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reports, 2)
	assert.Len(t, reports[0].Anchors, 1)
	assert.True(t, strings.HasPrefix(reports[0].Text(), "Camera x=0.000 y=1.500 z=0.000\n"))
	assert.Equal(t, 2, strings.Count(reports[1].Text(), "\n"))
}

func TestProcessFrame_CapsAnchors(t *testing.T) {
	s := newStack(t, stackOptions{})
	for i := 0; i < 25; i++ {
		require.True(t, s.queue.Offer(centerTap))
		s.frame(t)
	}
	assert.Equal(t, anchors.DefaultCapacity, s.store.Len())
	assert.Equal(t, anchors.DefaultCapacity, s.frame(t).Anchors)
}
