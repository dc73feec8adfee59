// Package frame runs the per-frame pipeline: acquire a tracker frame, route
// a tap, update lighting and emit the draw list for the renderer.
//
// A Processor handles one frame per call and keeps no goroutines. Loop
// drives it on the render goroutine and serializes control requests between
// frames.
package frame

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/arpositioning/internal/ar/anchors"
	"github.com/banshee-data/arpositioning/internal/ar/lighting"
	"github.com/banshee-data/arpositioning/internal/ar/posemath"
	"github.com/banshee-data/arpositioning/internal/ar/render"
	"github.com/banshee-data/arpositioning/internal/ar/taprouter"
	"github.com/banshee-data/arpositioning/internal/ar/telemetry"
	"github.com/banshee-data/arpositioning/internal/ar/tracking"
)

// Default clip planes in metres.
const (
	DefaultZNear = 0.1
	DefaultZFar  = 80.0
)

// Draw constants for the feature point cloud.
var (
	pointCloudColor = [4]float32{31.0 / 255, 188.0 / 255, 210.0 / 255, 1}
	pointSize       = float32(5)
)

// ErrNoSession is returned when there is no tracker session to read from.
var ErrNoSession = fmt.Errorf("frame: %w", tracking.ErrSessionUnavailable)

// Session is the part of the session controller the processor reads.
// *session.Controller implements it.
type Session interface {
	Tracker() tracking.Tracker
	Latch() *render.TextureNameLatch
	RecordAnchor(ctx context.Context, entry anchors.Entry, timestampNs int64) error
}

// Options configures a Processor. Session, Renderer, Store and Router are
// required.
type Options struct {
	Session  Session
	Renderer render.Renderer
	Store    *anchors.Store
	Router   *taprouter.Router

	// Publisher receives a pose report after every drawn frame. Optional.
	Publisher *telemetry.Publisher

	ZNear, ZFar float64
	// Depth enables depth images and occlusion when the tracker supports
	// automatic depth.
	Depth bool
}

// Outcome summarizes one processed frame.
type Outcome struct {
	Timestamp   int64
	CameraState tracking.TrackingState
	// Submitted is true when a draw list reached the renderer.
	Submitted bool
	// Tracking is true when 3D content was drawn.
	Tracking bool
	Anchors  int
	Tap      taprouter.Result
	// PlaybackFinished is set when the tracker reported an exhausted
	// playback dataset. The frame is not drawn.
	PlaybackFinished bool
}

// Processor turns tracker frames into draw lists. It is owned by the render
// goroutine and is not safe for concurrent use.
type Processor struct {
	opts  Options
	light lighting.Estimator

	lastCloud int64
}

// NewProcessor returns a processor. Zero clip planes take the defaults.
func NewProcessor(opts Options) *Processor {
	if opts.ZNear <= 0 {
		opts.ZNear = DefaultZNear
	}
	if opts.ZFar <= opts.ZNear {
		opts.ZFar = DefaultZFar
	}
	return &Processor{opts: opts}
}

// Lighting returns the current lighting values.
func (p *Processor) Lighting() lighting.Params {
	return p.light.Params()
}

// Reset forgets per-session state. Call it when the tracker session is
// replaced.
func (p *Processor) Reset() {
	p.lastCloud = 0
}

// ProcessFrame runs the pipeline for one frame. It blocks in the tracker
// until the frame is available.
//
// A frame the tracker cannot deliver is skipped whole: nothing is submitted
// and the error is a *TransientSensorError when the camera is busy. Errors
// from optional steps (depth, taps, lighting, journaling) are logged and the
// frame is still drawn.
func (p *Processor) ProcessFrame(ctx context.Context) (Outcome, error) {
	var out Outcome
	tracker := p.opts.Session.Tracker()
	if tracker == nil {
		return out, ErrNoSession
	}

	if p.opts.Session.Latch().TakePending() {
		tracker.SetCameraTextureNames(p.opts.Renderer.CameraTextureNames())
		p.lastCloud = 0
		diagf("camera texture names bound")
	}

	snap, err := tracker.Update(ctx)
	if err != nil {
		if errors.Is(err, tracking.ErrCameraUnavailable) {
			return out, &TransientSensorError{Err: err}
		}
		return out, fmt.Errorf("update tracker: %w", err)
	}
	out.Timestamp = snap.Timestamp

	if tracker.PlaybackStatus() == tracking.PlaybackFinished {
		out.PlaybackFinished = true
		return out, nil
	}

	camera := snap.Camera
	out.CameraState = camera.TrackingState
	planes := trackingPlanes(snap.Planes)
	list := &render.DrawList{
		FrameTimestamp: snap.Timestamp,
		KeepScreenOn:   camera.TrackingState == tracking.Tracking,
	}

	depth := p.opts.Depth && tracker.IsDepthModeSupported(tracking.DepthAutomatic)
	if depth && camera.TrackingState == tracking.Tracking {
		img, err := tracker.AcquireDepthImage()
		switch {
		case err == nil:
			list.Depth = img
		case errors.Is(err, tracking.ErrNotYetAvailable):
		default:
			opsf("acquire depth image: %v", err)
		}
	}

	if snap.Timestamp != 0 {
		list.Append(render.DrawCommand{
			Mesh:   render.MeshBackground,
			Shader: render.ShaderBackground,
			Target: render.TargetScreen,
		})
	}

	res, err := p.opts.Router.Route(tracker, camera)
	if err != nil {
		opsf("route tap: %v", err)
	}
	out.Tap = res
	if res.Anchor != nil {
		if err := p.opts.Session.RecordAnchor(ctx, *res.Anchor, snap.Timestamp); err != nil {
			opsf("record anchor %s: %v", res.Anchor.Anchor.ID(), err)
		}
	}

	list.Message = StatusMessage(camera, len(planes) > 0, p.opts.Store.Len() > 0)

	if camera.TrackingState != tracking.Tracking {
		tracef("frame %d: camera %s, 3D skipped", snap.Timestamp, camera.TrackingState)
		if err := p.opts.Renderer.Submit(list); err != nil {
			return out, fmt.Errorf("submit frame %d: %w", snap.Timestamp, err)
		}
		out.Submitted = true
		return out, nil
	}
	out.Tracking = true

	projection := posemath.Projection(camera.Intrinsics, p.opts.ZNear, p.opts.ZFar)
	view := posemath.View(camera.Pose)
	viewProjection := posemath.Multiply(projection, view)

	if pc := snap.PointCloud; pc.Timestamp > p.lastCloud {
		p.lastCloud = pc.Timestamp
		list.PointCloud = &pc
	}
	list.Append(render.DrawCommand{
		Mesh:   render.MeshPointCloud,
		Shader: render.ShaderPointCloud,
		Params: render.ShaderParams{
			render.UniformModelViewProjection: viewProjection.ColumnMajor32(),
			render.UniformColor:               pointCloudColor,
			render.UniformPointSize:           pointSize,
		},
		Target: render.TargetScreen,
	})
	list.Append(render.DrawCommand{
		Mesh:   render.MeshPlanes,
		Shader: render.ShaderPlane,
		Params: render.ShaderParams{
			render.UniformModelViewProjection: viewProjection.ColumnMajor32(),
			render.UniformPlaneCount:          len(planes),
			render.ParamPlanes:                planes,
		},
		Target: render.TargetScreen,
	})

	if err := p.light.Update(snap.LightEstimate, view); err != nil {
		opsf("frame %d lighting: %v", snap.Timestamp, err)
	}
	shading := render.ShaderParams{}
	lightParams := p.light.Params()
	lightParams.Apply(shading)

	report := telemetry.FrameReport{Timestamp: snap.Timestamp, Camera: camera.Pose}
	for anchor, trackable := range p.opts.Store.Tracking() {
		pose := anchor.Pose()
		mvp, modelView := posemath.ModelViewProjection(projection, view, pose.Matrix())
		albedo := render.TextureAlbedo
		if (anchors.Entry{Anchor: anchor, Trackable: trackable}).UsesApproximateDistance() {
			albedo = render.TextureAlbedoInstantPlacement
		}
		params := shading.Clone()
		params[render.UniformModelView] = modelView.ColumnMajor32()
		params[render.UniformModelViewProjection] = mvp.ColumnMajor32()
		params[render.UniformAlbedoTexture] = albedo
		list.Append(render.DrawCommand{
			Mesh:   render.MeshVirtualObject,
			Shader: render.ShaderEnvironmental,
			Params: params,
			Target: render.TargetVirtualScene,
		})
		report.Anchors = append(report.Anchors, pose)
	}
	out.Anchors = len(report.Anchors)

	list.Append(render.DrawCommand{
		Mesh:   render.MeshComposite,
		Shader: render.ShaderComposite,
		Params: render.ShaderParams{render.UniformUseOcclusion: depth},
		Target: render.TargetScreen,
	})

	if err := p.opts.Renderer.Submit(list); err != nil {
		return out, fmt.Errorf("submit frame %d: %w", snap.Timestamp, err)
	}
	out.Submitted = true

	if p.opts.Publisher != nil && !p.opts.Publisher.Publish(report) {
		tracef("frame %d: telemetry report dropped", snap.Timestamp)
	}
	return out, nil
}
