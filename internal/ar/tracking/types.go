package tracking

import (
	"github.com/google/uuid"

	"github.com/banshee-data/arpositioning/internal/ar/posemath"
)

// TrackingState is the tracking status of the camera, a trackable or an anchor.
type TrackingState int

const (
	Tracking TrackingState = iota
	Paused
	Stopped
)

func (s TrackingState) String() string {
	switch s {
	case Tracking:
		return "TRACKING"
	case Paused:
		return "PAUSED"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// TrackingFailureReason explains why the camera is not tracking.
type TrackingFailureReason int

const (
	FailureNone TrackingFailureReason = iota
	FailureBadState
	FailureInsufficientLight
	FailureExcessiveMotion
	FailureInsufficientFeatures
	FailureCameraUnavailable
)

// Message returns the short user-visible explanation for the failure.
func (r TrackingFailureReason) Message() string {
	switch r {
	case FailureNone:
		return ""
	case FailureBadState:
		return "Tracking lost due to bad internal state. Please try restarting the AR experience."
	case FailureInsufficientLight:
		return "Too dark. Try moving to a well-lit area."
	case FailureExcessiveMotion:
		return "Moving too fast. Slow down."
	case FailureInsufficientFeatures:
		return "Can't find anything. Aim device at a surface with more texture or color."
	case FailureCameraUnavailable:
		return "Another app is using the camera. Tap on this app or try closing the other one."
	default:
		return "Unknown tracking failure reason"
	}
}

func (r TrackingFailureReason) String() string {
	switch r {
	case FailureNone:
		return "NONE"
	case FailureBadState:
		return "BAD_STATE"
	case FailureInsufficientLight:
		return "INSUFFICIENT_LIGHT"
	case FailureExcessiveMotion:
		return "EXCESSIVE_MOTION"
	case FailureInsufficientFeatures:
		return "INSUFFICIENT_FEATURES"
	case FailureCameraUnavailable:
		return "CAMERA_UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// TrackableKind tags the variant carried by a Trackable.
type TrackableKind int

const (
	KindOther TrackableKind = iota
	KindPlane
	KindPoint
	KindInstantPlacementPoint
	KindDepthPoint
)

func (k TrackableKind) String() string {
	switch k {
	case KindPlane:
		return "plane"
	case KindPoint:
		return "point"
	case KindInstantPlacementPoint:
		return "instant_placement_point"
	case KindDepthPoint:
		return "depth_point"
	default:
		return "other"
	}
}

// OrientationMode describes how a Point's pose orientation was derived.
type OrientationMode int

const (
	OrientationInitializedToIdentity OrientationMode = iota
	OrientationEstimatedSurfaceNormal
)

// InstantPlacementMethod reports how an InstantPlacementPoint is tracked.
type InstantPlacementMethod int

const (
	MethodNotTracking InstantPlacementMethod = iota
	MethodScreenspaceWithApproximateDistance
	MethodFullTracking
)

// Trackable is a tracked real-world feature. Kind selects which of the
// variant fields are meaningful: Plane for KindPlane, Orientation for
// KindPoint, Method for KindInstantPlacementPoint.
//
// Trackables are shared by pointer: the tracker mutates State, Pose and
// Method in place as tracking evolves, and anchors keep the pointer they
// were created from.
type Trackable struct {
	ID    uuid.UUID
	Kind  TrackableKind
	State TrackingState
	Pose  posemath.Pose

	Plane       *Plane
	Orientation OrientationMode
	Method      InstantPlacementMethod
}

// Hit is a single hit-test result.
type Hit struct {
	Pose      posemath.Pose
	Distance  float64
	Trackable *Trackable
}

// Anchor is a pose pinned to the world and kept updated by the tracker.
type Anchor interface {
	ID() uuid.UUID
	Pose() posemath.Pose
	TrackingState() TrackingState
	// Detach asks the tracker to stop updating the anchor and release it.
	Detach()
}

// Camera is the per-frame camera state.
type Camera struct {
	Pose                posemath.Pose
	DisplayOrientedPose posemath.Pose
	Intrinsics          posemath.Intrinsics
	TrackingState       TrackingState
	FailureReason       TrackingFailureReason
}

// Point is a single point-cloud sample.
type Point struct {
	X, Y, Z    float32
	Confidence float32
}

// PointCloud is the sparse feature cloud for a frame. Timestamp is in
// nanoseconds and only increases when the cloud content changes.
type PointCloud struct {
	Timestamp int64
	Points    []Point
}

// LightEstimateState reports whether a lighting estimate can be used.
type LightEstimateState int

const (
	LightNotValid LightEstimateState = iota
	LightValid
)

// CubeMap is an opaque handle to the environmental HDR cube map. Filtering
// happens in the renderer; the core only forwards it.
type CubeMap struct {
	Resolution int
	Faces      [6][]float32
}

// LightEstimate is the ambient lighting sample for a frame. Directions are
// in world space.
type LightEstimate struct {
	State              LightEstimateState
	SphericalHarmonics []float32
	MainLightDirection [3]float32
	MainLightIntensity [3]float32
	CubeMap            *CubeMap
}

// FrameSnapshot is the immutable bundle of tracker output for one frame.
// A zero Timestamp means the camera has not produced an image yet.
type FrameSnapshot struct {
	Timestamp     int64
	Camera        Camera
	PointCloud    PointCloud
	LightEstimate LightEstimate
	Planes        []*Trackable
}

// DepthImage is a 16-bit depth map in millimetres.
type DepthImage struct {
	Timestamp     int64
	Width, Height int
	Millimetres   []uint16
}
