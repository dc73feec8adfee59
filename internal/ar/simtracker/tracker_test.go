package simtracker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/arpositioning/internal/ar/taprouter"
	"github.com/banshee-data/arpositioning/internal/ar/tracking"
	"github.com/banshee-data/arpositioning/internal/fsutil"
)

var testTrack = uuid.MustParse("53069eb5-21ef-4946-b71c-6ac4979216a6")

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func running(t *testing.T, opts Options) *Tracker {
	t.Helper()
	tr := New(opts)
	require.NoError(t, tr.Configure(tracking.SessionConfig{LightEstimation: tracking.LightEstimationEnvironmentalHDR}))
	require.NoError(t, tr.Resume())
	tr.SetCameraTextureNames([]uint32{1})
	return tr
}

func update(t *testing.T, tr *Tracker) *tracking.FrameSnapshot {
	t.Helper()
	snap, err := tr.Update(context.Background())
	require.NoError(t, err)
	return snap
}

func TestUpdate_Preconditions(t *testing.T) {
	tr := New(Options{})
	ctx := context.Background()

	_, err := tr.Update(ctx)
	assert.ErrorIs(t, err, tracking.ErrSessionPaused)

	require.NoError(t, tr.Resume())
	_, err = tr.Update(ctx)
	assert.ErrorIs(t, err, tracking.ErrTextureNotSet)

	tr.SetCameraTextureNames([]uint32{7})
	snap, err := tr.Update(ctx)
	require.NoError(t, err)
	assert.Equal(t, FramePeriodNs, snap.Timestamp)
	assert.Equal(t, tracking.Tracking, snap.Camera.TrackingState)
	require.Len(t, snap.Planes, 1)
	assert.Equal(t, tracking.KindPlane, snap.Planes[0].Kind)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = tr.Update(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUpdate_PointCloudAdvancesEveryOtherFrame(t *testing.T) {
	tr := running(t, Options{})
	var stamps []int64
	for i := 0; i < 4; i++ {
		stamps = append(stamps, update(t, tr).PointCloud.Timestamp)
	}
	assert.Equal(t, stamps[0], stamps[1])
	assert.Greater(t, stamps[2], stamps[1])
	assert.Equal(t, stamps[2], stamps[3])
}

func TestUpdate_Warmup(t *testing.T) {
	tr := running(t, Options{WarmupFrames: 2})
	for i := 0; i < 2; i++ {
		snap := update(t, tr)
		assert.Equal(t, tracking.Paused, snap.Camera.TrackingState)
		assert.Empty(t, snap.Planes)
	}
	assert.Equal(t, tracking.Tracking, update(t, tr).Camera.TrackingState)
}

func TestUpdate_LightEstimate(t *testing.T) {
	tr := running(t, Options{CubemapResolution: 8})
	est := update(t, tr).LightEstimate
	assert.Equal(t, tracking.LightValid, est.State)
	assert.Len(t, est.SphericalHarmonics, 27)
	require.NotNil(t, est.CubeMap)
	assert.Equal(t, 8, est.CubeMap.Resolution)

	require.NoError(t, tr.Configure(tracking.SessionConfig{}))
	assert.Equal(t, tracking.LightNotValid, update(t, tr).LightEstimate.State)
}

func TestUpdate_UnavailableEvery(t *testing.T) {
	tr := running(t, Options{UnavailableEvery: 3})
	ctx := context.Background()
	var failures int
	for i := 0; i < 9; i++ {
		if _, err := tr.Update(ctx); err != nil {
			assert.ErrorIs(t, err, tracking.ErrCameraUnavailable)
			failures++
		}
	}
	assert.Equal(t, 3, failures)
}

func TestHitTest_CenterTapQualifies(t *testing.T) {
	tr := running(t, Options{})
	snap := update(t, tr)

	hits, err := tr.HitTest(540, 960)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.5*math.Sqrt2, hits[0].Distance, 1e-9)
	assert.InDelta(t, 0, hits[0].Pose.Ty(), 1e-9)
	assert.Equal(t, 0, taprouter.SelectHit(hits, snap.Camera.Pose))

	// Near the top of the screen the ray meets the floor beyond its edge.
	hits, err = tr.HitTest(540, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestHitTest_DepthPoint(t *testing.T) {
	tr := New(Options{DepthSupported: true})
	require.NoError(t, tr.Configure(tracking.SessionConfig{Depth: tracking.DepthAutomatic}))
	require.NoError(t, tr.Resume())
	tr.SetCameraTextureNames([]uint32{1})
	update(t, tr)

	hits, err := tr.HitTest(540, 960)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, tracking.KindDepthPoint, hits[1].Trackable.Kind)
	assert.Less(t, hits[0].Distance, hits[1].Distance)

	img, err := tr.AcquireDepthImage()
	require.NoError(t, err)
	assert.Len(t, img.Millimetres, img.Width*img.Height)
}

func TestConfigure_DepthUnsupported(t *testing.T) {
	tr := New(Options{})
	assert.False(t, tr.IsDepthModeSupported(tracking.DepthAutomatic))
	err := tr.Configure(tracking.SessionConfig{Depth: tracking.DepthAutomatic})
	assert.ErrorIs(t, err, tracking.ErrUnsupported)
}

func TestInstantPlacement_UpgradesToFullTracking(t *testing.T) {
	tr := New(Options{})
	require.NoError(t, tr.Configure(tracking.SessionConfig{InstantPlacement: tracking.InstantPlacementLocalYUp}))
	require.NoError(t, tr.Resume())
	tr.SetCameraTextureNames([]uint32{1})
	update(t, tr)

	hits, err := tr.HitTestInstantPlacement(540, 960, 1.0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	point := hits[0].Trackable
	assert.Equal(t, tracking.MethodScreenspaceWithApproximateDistance, point.Method)

	for i := 0; i < instantPlacementUpgradeFrames+1; i++ {
		update(t, tr)
	}
	assert.Equal(t, tracking.MethodFullTracking, point.Method)
}

func TestAnchorStates(t *testing.T) {
	tr := running(t, Options{})
	update(t, tr)
	hits, err := tr.HitTest(540, 960)
	require.NoError(t, err)
	a, err := tr.CreateAnchor(hits[0])
	require.NoError(t, err)
	b, err := tr.CreateAnchor(hits[0])
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, tracking.Tracking, a.TrackingState())

	a.Detach()
	assert.Equal(t, tracking.Stopped, a.TrackingState())
	assert.Equal(t, 1, tr.Anchors())

	require.NoError(t, tr.Pause())
	assert.Equal(t, tracking.Paused, b.TrackingState())

	require.NoError(t, tr.Close())
	assert.Equal(t, tracking.Stopped, b.TrackingState())
	_, err = tr.Update(context.Background())
	assert.ErrorIs(t, err, tracking.ErrSessionUnavailable)
	assert.NoError(t, tr.Close())
}

func TestRecordAndPlayback(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	tr := running(t, Options{FS: fsys})
	update(t, tr)

	cfg := tracking.RecordingConfig{
		DatasetURI:      "/out/session.mp4",
		AutoStopOnPause: true,
		Tracks:          []tracking.Track{{ID: testTrack, MimeType: "application/recording-playback-anchor"}},
	}
	err := tr.StartRecording(cfg)
	assert.ErrorIs(t, err, tracking.ErrRecordingFailed, "must be paused first")

	require.NoError(t, tr.Pause())
	require.NoError(t, tr.StartRecording(cfg))
	assert.Equal(t, tracking.RecordingOK, tr.RecordingStatus())
	require.NoError(t, tr.Resume())

	var recorded []int64
	for i := 0; i < 5; i++ {
		recorded = append(recorded, update(t, tr).Timestamp)
	}
	require.NoError(t, tr.RecordTrackData(testTrack, []byte("anchor")))
	assert.ErrorIs(t, tr.RecordTrackData(uuid.New(), nil), tracking.ErrUnsupported)

	// AutoStopOnPause finalises the dataset.
	require.NoError(t, tr.Pause())
	assert.Equal(t, tracking.RecordingNone, tr.RecordingStatus())
	assert.ErrorIs(t, tr.RecordTrackData(testTrack, nil), tracking.ErrRecordingFailed)

	data, err := fsys.ReadFile("/out/session.mp4")
	require.NoError(t, err)
	ds, err := ReadDataset(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, ds.Frames, 5)
	require.Len(t, ds.Samples, 1)
	assert.Equal(t, recorded[4], ds.Samples[0].TimestampNs)
	assert.Equal(t, testTrack, ds.Header.Tracks[0].ID)

	require.NoError(t, tr.SetPlaybackDataset("/out/session.mp4"))
	assert.Equal(t, tracking.PlaybackNone, tr.PlaybackStatus())
	require.NoError(t, tr.Resume())
	assert.Equal(t, tracking.PlaybackOK, tr.PlaybackStatus())

	_, err = tr.Update(context.Background())
	assert.ErrorIs(t, err, tracking.ErrTextureNotSet, "playback changes the camera image source")
	tr.SetCameraTextureNames([]uint32{2})

	for _, want := range recorded {
		snap := update(t, tr)
		assert.Equal(t, want, snap.Timestamp)
		assert.Len(t, snap.Planes, 1)
	}
	assert.Equal(t, tracking.PlaybackOK, tr.PlaybackStatus())
	update(t, tr)
	assert.Equal(t, tracking.PlaybackFinished, tr.PlaybackStatus())
}

func TestSetPlaybackDataset_Failures(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.AppendFile("/out/junk.mp4", []byte("not a dataset")))
	tr := New(Options{FS: fsys})

	for _, uri := range []string{"", "/out/missing.mp4", "/out/junk.mp4"} {
		err := tr.SetPlaybackDataset(uri)
		assert.ErrorIs(t, err, tracking.ErrPlaybackFailed, uri)
	}
	assert.Equal(t, tracking.PlaybackNone, tr.PlaybackStatus())

	require.NoError(t, tr.Resume())
	assert.ErrorIs(t, tr.SetPlaybackDataset("/out/junk.mp4"), tracking.ErrPlaybackFailed)
}

func TestStartRecording_ReadOnlyFS(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.ReadOnly = true
	tr := New(Options{FS: fsys})
	err := tr.StartRecording(tracking.RecordingConfig{DatasetURI: "/out/a.mp4"})
	assert.ErrorIs(t, err, tracking.ErrRecordingFailed)
	assert.Equal(t, tracking.RecordingNone, tr.RecordingStatus())
}

func TestReadDataset_Corrupt(t *testing.T) {
	_, err := ReadDataset(bytes.NewReader([]byte("XXXX")))
	assert.Error(t, err)

	var buf bytes.Buffer
	w, err := NewDatasetWriter(nopCloser{&buf}, DatasetHeader{})
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(&tracking.FrameSnapshot{Timestamp: 1}))
	full := buf.Bytes()

	ds, err := ReadDataset(bytes.NewReader(full))
	require.NoError(t, err)
	assert.Equal(t, DatasetVersion, ds.Header.Version)
	assert.Len(t, ds.Frames, 1)

	_, err = ReadDataset(bytes.NewReader(full[:len(full)-3]))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF), "got %v", err)
}
