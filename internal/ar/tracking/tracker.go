package tracking

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Tracker boundary errors. Implementations wrap these so callers can match
// with errors.Is.
var (
	// ErrCameraUnavailable means the camera is busy or owned by another
	// client. Transient: the frame is skipped.
	ErrCameraUnavailable = errors.New("tracking: camera unavailable")
	// ErrNotYetAvailable means the requested image has not been produced yet.
	ErrNotYetAvailable = errors.New("tracking: data not yet available")
	// ErrSessionPaused is returned by Update while the session is paused.
	ErrSessionPaused = errors.New("tracking: session paused")
	// ErrTextureNotSet is returned by Update before camera texture names
	// have been bound for the current session.
	ErrTextureNotSet = errors.New("tracking: camera texture names not set")

	ErrRecordingFailed    = errors.New("tracking: recording failed")
	ErrPlaybackFailed     = errors.New("tracking: playback failed")
	ErrSessionUnavailable = errors.New("tracking: session unavailable")
	ErrUnsupported        = errors.New("tracking: configuration not supported")
)

// FocusMode selects the camera focus behaviour.
type FocusMode int

const (
	FocusFixed FocusMode = iota
	FocusAuto
)

// LightEstimationMode selects which lighting estimate the tracker produces.
type LightEstimationMode int

const (
	LightEstimationDisabled LightEstimationMode = iota
	LightEstimationAmbientIntensity
	LightEstimationEnvironmentalHDR
)

// DepthMode selects depth image production.
type DepthMode int

const (
	DepthDisabled DepthMode = iota
	DepthAutomatic
)

// InstantPlacementMode enables hit tests that succeed before plane detection.
type InstantPlacementMode int

const (
	InstantPlacementDisabled InstantPlacementMode = iota
	InstantPlacementLocalYUp
)

// SessionConfig is the tracker configuration applied with Configure.
type SessionConfig struct {
	Focus            FocusMode
	LightEstimation  LightEstimationMode
	Depth            DepthMode
	InstantPlacement InstantPlacementMode
}

// Track is an auxiliary data track attached to a recording.
type Track struct {
	ID       uuid.UUID
	MimeType string
}

// RecordingConfig describes a recording to start.
type RecordingConfig struct {
	DatasetURI      string
	AutoStopOnPause bool
	Tracks          []Track
}

// RecordingStatus is the tracker's recording status.
type RecordingStatus int

const (
	RecordingNone RecordingStatus = iota
	RecordingOK
	RecordingIOError
)

func (s RecordingStatus) String() string {
	switch s {
	case RecordingNone:
		return "NONE"
	case RecordingOK:
		return "OK"
	case RecordingIOError:
		return "IO_ERROR"
	default:
		return "UNKNOWN"
	}
}

// PlaybackStatus is the tracker's playback status.
type PlaybackStatus int

const (
	PlaybackNone PlaybackStatus = iota
	PlaybackOK
	PlaybackIOError
	PlaybackFinished
)

func (s PlaybackStatus) String() string {
	switch s {
	case PlaybackNone:
		return "NONE"
	case PlaybackOK:
		return "OK"
	case PlaybackIOError:
		return "IO_ERROR"
	case PlaybackFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Tracker is the external tracking session consumed by the core.
//
// A Tracker is not safe for concurrent use. Update blocks until the next
// camera frame is available, which throttles the render loop to the sensor
// rate. Configuration calls (Configure, StartRecording, SetPlaybackDataset)
// must only be made while the tracker is paused.
type Tracker interface {
	Configure(cfg SessionConfig) error
	IsDepthModeSupported(mode DepthMode) bool

	// Update blocks for the next frame. Errors wrapping ErrCameraUnavailable
	// are transient.
	Update(ctx context.Context) (*FrameSnapshot, error)
	Pause() error
	Resume() error

	// HitTest returns hits ordered by ascending distance from the camera.
	HitTest(x, y float64) ([]Hit, error)
	HitTestInstantPlacement(x, y, approximateDistance float64) ([]Hit, error)
	CreateAnchor(hit Hit) (Anchor, error)
	AcquireDepthImage() (*DepthImage, error)
	SetCameraTextureNames(names []uint32)

	StartRecording(cfg RecordingConfig) error
	StopRecording() error
	RecordingStatus() RecordingStatus
	RecordTrackData(track uuid.UUID, payload []byte) error

	SetPlaybackDataset(uri string) error
	PlaybackStatus() PlaybackStatus

	Close() error
}

// Factory creates a fresh tracker session.
type Factory func() (Tracker, error)
