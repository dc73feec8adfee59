package frame

import "github.com/banshee-data/arpositioning/internal/ar/tracking"

// User-visible status messages.
const (
	MessageSearching  = "Searching for surfaces..."
	MessageTapToPlace = "Tap on a surface to place an object."
)

// StatusMessage returns the status text for a frame, or "" when nothing
// should be shown.
func StatusMessage(camera tracking.Camera, planeTracking, hasAnchors bool) string {
	switch {
	case camera.TrackingState == tracking.Paused && camera.FailureReason == tracking.FailureNone:
		return MessageSearching
	case camera.TrackingState == tracking.Paused:
		return camera.FailureReason.Message()
	case planeTracking && !hasAnchors:
		return MessageTapToPlace
	case planeTracking:
		return ""
	default:
		return MessageSearching
	}
}

func trackingPlanes(planes []*tracking.Trackable) []*tracking.Trackable {
	var out []*tracking.Trackable
	for _, p := range planes {
		if p != nil && p.Kind == tracking.KindPlane && p.State == tracking.Tracking {
			out = append(out, p)
		}
	}
	return out
}
