// Package simtracker is a deterministic, in-process tracking.Tracker.
//
// It simulates a camera panning over a single detected floor plane. Frames,
// point clouds, lighting and hit tests are pure functions of the frame
// number, so runs are reproducible. Recording writes a dataset file through
// an fsutil.FileSystem and playback replays one.
package simtracker

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/arpositioning/internal/ar/posemath"
	"github.com/banshee-data/arpositioning/internal/ar/tracking"
	"github.com/banshee-data/arpositioning/internal/fsutil"
	"github.com/banshee-data/arpositioning/internal/timeutil"
)

// instantPlacementUpgradeFrames is how long an instant placement point stays
// at its approximate distance before switching to full tracking.
const instantPlacementUpgradeFrames = 30

// Options configures a simulated tracker. The zero value is usable.
type Options struct {
	FS    fsutil.FileSystem
	Clock timeutil.Clock

	// FrameInterval paces Update with a clock ticker. Zero returns frames
	// as fast as they are requested.
	FrameInterval time.Duration

	ScreenWidth, ScreenHeight float64

	// WarmupFrames is the number of frames reported as Paused before
	// tracking starts.
	WarmupFrames int64
	// UnavailableEvery makes every Nth Update fail with
	// tracking.ErrCameraUnavailable. Zero disables it.
	UnavailableEvery int
	// DepthSupported allows tracking.DepthAutomatic.
	DepthSupported bool
	// PanRate is the camera yaw per frame in radians.
	PanRate float64

	CubemapResolution int
}

func (o Options) withDefaults() Options {
	if o.FS == nil {
		o.FS = fsutil.OSFileSystem{}
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	if o.ScreenWidth <= 0 {
		o.ScreenWidth = 1080
	}
	if o.ScreenHeight <= 0 {
		o.ScreenHeight = 1920
	}
	if o.CubemapResolution <= 0 {
		o.CubemapResolution = 16
	}
	return o
}

// Tracker is the simulated session. New sessions start paused with no
// camera texture bound, like a real one.
type Tracker struct {
	opts       Options
	intrinsics posemath.Intrinsics

	mu         sync.Mutex
	cfg        tracking.SessionConfig
	paused     bool
	closed     bool
	textureSet bool
	ticker     timeutil.Ticker

	frame   int64
	updates int
	last    *tracking.FrameSnapshot

	floor   *tracking.Trackable
	instant []instantPoint
	anchors []*anchor

	recStatus tracking.RecordingStatus
	recCfg    tracking.RecordingConfig
	recWriter *DatasetWriter
	recTracks map[uuid.UUID]bool

	playStatus tracking.PlaybackStatus
	playback   *Dataset
	playPos    int
}

type instantPoint struct {
	trackable *tracking.Trackable
	created   int64
}

var _ tracking.Tracker = (*Tracker)(nil)

// New returns a paused simulated session.
func New(opts Options) *Tracker {
	opts = opts.withDefaults()
	return &Tracker{
		opts: opts,
		intrinsics: posemath.Intrinsics{
			FovY:   fovY,
			Aspect: opts.ScreenWidth / opts.ScreenHeight,
		},
		paused: true,
		floor:  newFloor(),
	}
}

// Factory returns a tracking.Factory that creates sessions with opts.
func Factory(opts Options) tracking.Factory {
	return func() (tracking.Tracker, error) {
		return New(opts), nil
	}
}

func (t *Tracker) usable() error {
	if t.closed {
		return tracking.ErrSessionUnavailable
	}
	return nil
}

// Configure implements tracking.Tracker.
func (t *Tracker) Configure(cfg tracking.SessionConfig) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return err
	}
	if cfg.Depth == tracking.DepthAutomatic && !t.opts.DepthSupported {
		return fmt.Errorf("depth mode automatic: %w", tracking.ErrUnsupported)
	}
	t.cfg = cfg
	return nil
}

// IsDepthModeSupported implements tracking.Tracker.
func (t *Tracker) IsDepthModeSupported(mode tracking.DepthMode) bool {
	return mode == tracking.DepthDisabled || t.opts.DepthSupported
}

// Update implements tracking.Tracker. With a FrameInterval it blocks until
// the next tick.
func (t *Tracker) Update(ctx context.Context) (*tracking.FrameSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	ticker := t.ticker
	t.mu.Unlock()
	if ticker != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C():
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.closed:
		return nil, tracking.ErrSessionUnavailable
	case t.paused:
		return nil, tracking.ErrSessionPaused
	case !t.textureSet:
		return nil, tracking.ErrTextureNotSet
	}

	t.updates++
	if n := t.opts.UnavailableEvery; n > 0 && t.updates%n == 0 {
		return nil, fmt.Errorf("update %d: %w", t.updates, tracking.ErrCameraUnavailable)
	}

	var snap *tracking.FrameSnapshot
	if t.playback != nil {
		snap = t.nextPlaybackFrame()
	} else {
		snap = t.generate()
	}

	if t.recWriter != nil && t.recStatus == tracking.RecordingOK {
		if err := t.recWriter.WriteFrame(snap); err != nil {
			t.recStatus = tracking.RecordingIOError
		}
	}
	t.last = snap
	return snap, nil
}

func (t *Tracker) generate() *tracking.FrameSnapshot {
	n := t.frame
	t.frame++

	pose := cameraPose(n, t.opts.PanRate)
	snap := &tracking.FrameSnapshot{
		Timestamp: (n + 1) * FramePeriodNs,
		Camera: tracking.Camera{
			Pose:                pose,
			DisplayOrientedPose: pose,
			Intrinsics:          t.intrinsics,
			TrackingState:       tracking.Tracking,
		},
		PointCloud:    pointCloud(n),
		LightEstimate: lightEstimate(t.cfg.LightEstimation, t.opts.CubemapResolution),
	}
	if n < t.opts.WarmupFrames {
		snap.Camera.TrackingState = tracking.Paused
		snap.PointCloud = tracking.PointCloud{}
		return snap
	}
	snap.Planes = []*tracking.Trackable{t.floor}

	for _, ip := range t.instant {
		if n-ip.created >= instantPlacementUpgradeFrames {
			ip.trackable.Method = tracking.MethodFullTracking
		}
	}
	return snap
}

func (t *Tracker) nextPlaybackFrame() *tracking.FrameSnapshot {
	if t.playPos >= len(t.playback.Frames) {
		t.playStatus = tracking.PlaybackFinished
		if t.last != nil {
			return t.last
		}
		return &tracking.FrameSnapshot{Camera: tracking.Camera{TrackingState: tracking.Paused}}
	}
	frame := t.playback.Frames[t.playPos]
	t.playPos++
	if frame.Camera.TrackingState == tracking.Tracking {
		frame.Planes = []*tracking.Trackable{t.floor}
	}
	return &frame
}

// Pause implements tracking.Tracker. A recording started with
// AutoStopOnPause is stopped.
func (t *Tracker) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return err
	}
	t.paused = true
	t.stopTicker()
	if t.recWriter != nil && t.recCfg.AutoStopOnPause {
		return t.stopRecording()
	}
	return nil
}

// Resume implements tracking.Tracker. A bound playback dataset starts
// playing.
func (t *Tracker) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return err
	}
	if t.playback != nil && t.playStatus == tracking.PlaybackNone {
		t.playStatus = tracking.PlaybackOK
	}
	t.paused = false
	if t.opts.FrameInterval > 0 && t.ticker == nil {
		t.ticker = t.opts.Clock.NewTicker(t.opts.FrameInterval)
	}
	return nil
}

func (t *Tracker) stopTicker() {
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
}

func (t *Tracker) cameraPoseLocked() (posemath.Pose, error) {
	switch {
	case t.closed:
		return posemath.Pose{}, tracking.ErrSessionUnavailable
	case t.paused:
		return posemath.Pose{}, tracking.ErrSessionPaused
	case t.last == nil:
		return posemath.Pose{}, tracking.ErrNotYetAvailable
	}
	return t.last.Camera.Pose, nil
}

// HitTest implements tracking.Tracker. The floor plane is the only
// geometry; with depth enabled a depth point is reported just behind it.
func (t *Tracker) HitTest(x, y float64) ([]tracking.Hit, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	camera, err := t.cameraPoseLocked()
	if err != nil {
		return nil, err
	}
	origin, dir := ray(camera, t.intrinsics, t.opts.ScreenWidth, t.opts.ScreenHeight, x, y)
	d, ok := intersectFloor(origin, dir)
	if !ok {
		return nil, nil
	}
	pose := posemath.NewPose(along(origin, dir, d), posemath.IdentityQuaternion)
	if !t.floor.Plane.IsPoseInPolygon(pose) {
		return nil, nil
	}
	hits := []tracking.Hit{{Pose: pose, Distance: d, Trackable: t.floor}}
	if t.cfg.Depth == tracking.DepthAutomatic {
		hits = append(hits, tracking.Hit{
			Pose:     pose,
			Distance: d + 0.001,
			Trackable: &tracking.Trackable{
				ID:    uuid.New(),
				Kind:  tracking.KindDepthPoint,
				State: tracking.Tracking,
				Pose:  pose,
			},
		})
	}
	return hits, nil
}

// HitTestInstantPlacement implements tracking.Tracker. It always returns a
// single point at approximateDistance along the tap ray; the point switches
// to full tracking a fixed number of frames later.
func (t *Tracker) HitTestInstantPlacement(x, y, approximateDistance float64) ([]tracking.Hit, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	camera, err := t.cameraPoseLocked()
	if err != nil {
		return nil, err
	}
	if t.cfg.InstantPlacement != tracking.InstantPlacementLocalYUp {
		return nil, fmt.Errorf("instant placement disabled: %w", tracking.ErrUnsupported)
	}
	origin, dir := ray(camera, t.intrinsics, t.opts.ScreenWidth, t.opts.ScreenHeight, x, y)
	pose := posemath.NewPose(along(origin, dir, approximateDistance), posemath.IdentityQuaternion)
	tr := &tracking.Trackable{
		ID:     uuid.New(),
		Kind:   tracking.KindInstantPlacementPoint,
		State:  tracking.Tracking,
		Pose:   pose,
		Method: tracking.MethodScreenspaceWithApproximateDistance,
	}
	t.instant = append(t.instant, instantPoint{trackable: tr, created: t.frame})
	return []tracking.Hit{{Pose: pose, Distance: approximateDistance, Trackable: tr}}, nil
}

// CreateAnchor implements tracking.Tracker.
func (t *Tracker) CreateAnchor(hit tracking.Hit) (tracking.Anchor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.cameraPoseLocked(); err != nil {
		return nil, err
	}
	a := &anchor{id: uuid.New(), pose: hit.Pose, t: t}
	t.anchors = append(t.anchors, a)
	return a, nil
}

// AcquireDepthImage implements tracking.Tracker. The depth map is the
// distance to the floor, available once tracking has settled.
func (t *Tracker) AcquireDepthImage() (*tracking.DepthImage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cfg.Depth != tracking.DepthAutomatic {
		return nil, fmt.Errorf("depth disabled: %w", tracking.ErrUnsupported)
	}
	if t.last == nil || t.last.Camera.TrackingState != tracking.Tracking {
		return nil, tracking.ErrNotYetAvailable
	}
	const w, h = 16, 12
	img := &tracking.DepthImage{
		Timestamp:   t.last.Timestamp,
		Width:       w,
		Height:      h,
		Millimetres: make([]uint16, w*h),
	}
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			img.Millimetres[row*w+col] = uint16(1500 + row*40)
		}
	}
	return img, nil
}

// SetCameraTextureNames implements tracking.Tracker.
func (t *Tracker) SetCameraTextureNames(names []uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(names) > 0 {
		t.textureSet = true
	}
}

// StartRecording implements tracking.Tracker. The session must be paused.
func (t *Tracker) StartRecording(cfg tracking.RecordingConfig) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return err
	}
	switch {
	case !t.paused:
		return fmt.Errorf("start recording while running: %w", tracking.ErrRecordingFailed)
	case t.recWriter != nil:
		return fmt.Errorf("already recording: %w", tracking.ErrRecordingFailed)
	case t.playback != nil:
		return fmt.Errorf("session is playing back: %w", tracking.ErrRecordingFailed)
	case cfg.DatasetURI == "":
		return fmt.Errorf("empty dataset uri: %w", tracking.ErrRecordingFailed)
	}

	f, err := t.opts.FS.Create(cfg.DatasetURI)
	if err != nil {
		return fmt.Errorf("%w: %w", tracking.ErrRecordingFailed, err)
	}
	header := DatasetHeader{CreatedNs: t.opts.Clock.Now().UnixNano()}
	tracks := make(map[uuid.UUID]bool, len(cfg.Tracks))
	for _, tr := range cfg.Tracks {
		header.Tracks = append(header.Tracks, TrackHeader{ID: tr.ID, MimeType: tr.MimeType})
		tracks[tr.ID] = true
	}
	w, err := NewDatasetWriter(f, header)
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: %w", tracking.ErrRecordingFailed, err)
	}
	t.recWriter = w
	t.recCfg = cfg
	t.recTracks = tracks
	t.recStatus = tracking.RecordingOK
	return nil
}

// StopRecording implements tracking.Tracker.
func (t *Tracker) StopRecording() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return err
	}
	return t.stopRecording()
}

func (t *Tracker) stopRecording() error {
	if t.recWriter == nil {
		return nil
	}
	err := t.recWriter.Close()
	t.recWriter = nil
	t.recTracks = nil
	if err != nil {
		t.recStatus = tracking.RecordingIOError
		return fmt.Errorf("%w: %w", tracking.ErrRecordingFailed, err)
	}
	t.recStatus = tracking.RecordingNone
	return nil
}

// RecordingStatus implements tracking.Tracker.
func (t *Tracker) RecordingStatus() tracking.RecordingStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recStatus
}

// RecordTrackData implements tracking.Tracker. The sample is stamped with
// the current frame's timestamp.
func (t *Tracker) RecordTrackData(track uuid.UUID, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return err
	}
	if t.recWriter == nil || t.recStatus != tracking.RecordingOK {
		return fmt.Errorf("not recording: %w", tracking.ErrRecordingFailed)
	}
	if !t.recTracks[track] {
		return fmt.Errorf("track %s not in recording config: %w", track, tracking.ErrUnsupported)
	}
	if t.paused {
		return tracking.ErrSessionPaused
	}
	var ts int64
	if t.last != nil {
		ts = t.last.Timestamp
	}
	if err := t.recWriter.WriteTrackData(ts, track, payload); err != nil {
		t.recStatus = tracking.RecordingIOError
		return fmt.Errorf("%w: %w", tracking.ErrRecordingFailed, err)
	}
	return nil
}

// SetPlaybackDataset implements tracking.Tracker. The session must be
// paused; the camera texture must be bound again before the next Update.
func (t *Tracker) SetPlaybackDataset(uri string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usable(); err != nil {
		return err
	}
	switch {
	case !t.paused:
		return fmt.Errorf("set playback while running: %w", tracking.ErrPlaybackFailed)
	case t.recWriter != nil:
		return fmt.Errorf("session is recording: %w", tracking.ErrPlaybackFailed)
	case uri == "":
		return fmt.Errorf("empty dataset uri: %w", tracking.ErrPlaybackFailed)
	}
	data, err := t.opts.FS.ReadFile(uri)
	if err != nil {
		return fmt.Errorf("%w: %w", tracking.ErrPlaybackFailed, err)
	}
	ds, err := ReadDataset(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", tracking.ErrPlaybackFailed, uri, err)
	}
	t.playback = ds
	t.playPos = 0
	t.playStatus = tracking.PlaybackNone
	t.textureSet = false
	t.last = nil
	return nil
}

// PlaybackStatus implements tracking.Tracker.
func (t *Tracker) PlaybackStatus() tracking.PlaybackStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playStatus
}

// Close implements tracking.Tracker. An active recording is finalised and
// every anchor stops tracking. Close is idempotent.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	err := t.stopRecording()
	t.closed = true
	t.paused = true
	t.stopTicker()
	return err
}

// Anchors returns the number of anchors created and not yet detached.
func (t *Tracker) Anchors() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, a := range t.anchors {
		if !a.detached {
			n++
		}
	}
	return n
}

type anchor struct {
	id       uuid.UUID
	pose     posemath.Pose
	t        *Tracker
	detached bool
}

func (a *anchor) ID() uuid.UUID { return a.id }

func (a *anchor) Pose() posemath.Pose { return a.pose }

func (a *anchor) TrackingState() tracking.TrackingState {
	a.t.mu.Lock()
	defer a.t.mu.Unlock()
	switch {
	case a.detached || a.t.closed:
		return tracking.Stopped
	case a.t.paused:
		return tracking.Paused
	default:
		return tracking.Tracking
	}
}

func (a *anchor) Detach() {
	a.t.mu.Lock()
	defer a.t.mu.Unlock()
	a.detached = true
}
