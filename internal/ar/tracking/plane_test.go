package tracking

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/arpositioning/internal/ar/posemath"
)

func square(half float64) [][2]float64 {
	return [][2]float64{{-half, -half}, {half, -half}, {half, half}, {-half, half}}
}

func TestPlane_IsPoseInPolygon(t *testing.T) {
	t.Parallel()

	plane := &Plane{CenterPose: posemath.Translate(1, 0, 1), Polygon: square(0.5)}

	tests := []struct {
		name string
		pose posemath.Pose
		want bool
	}{
		{"centre", posemath.Translate(1, 0, 1), true},
		{"inside offset", posemath.Translate(1.4, 0, 0.7), true},
		{"height ignored", posemath.Translate(1, 2, 1), true},
		{"outside x", posemath.Translate(1.6, 0, 1), false},
		{"outside z", posemath.Translate(1, 0, -0.2), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, plane.IsPoseInPolygon(tt.pose))
		})
	}
}

func TestPlane_IsPoseInPolygon_RotatedPlane(t *testing.T) {
	t.Parallel()

	// A 2x0.2 strip along local X, rotated 90 degrees about Y so it runs
	// along world Z.
	plane := &Plane{
		CenterPose: posemath.NewPose([3]float64{}, posemath.AxisAngle([3]float64{0, 1, 0}, math.Pi/2)),
		Polygon:    [][2]float64{{-1, -0.1}, {1, -0.1}, {1, 0.1}, {-1, 0.1}},
	}
	assert.True(t, plane.IsPoseInPolygon(posemath.Translate(0, 0, 0.9)))
	assert.False(t, plane.IsPoseInPolygon(posemath.Translate(0.9, 0, 0)))
}

func TestPlane_IsPoseInPolygon_Degenerate(t *testing.T) {
	t.Parallel()

	var nilPlane *Plane
	assert.False(t, nilPlane.IsPoseInPolygon(posemath.IdentityPose))
	assert.False(t, (&Plane{Polygon: [][2]float64{{0, 0}, {1, 1}}}).IsPoseInPolygon(posemath.IdentityPose))
}

func TestTrackingFailureReason_Message(t *testing.T) {
	t.Parallel()

	assert.Empty(t, FailureNone.Message())
	for _, r := range []TrackingFailureReason{
		FailureBadState, FailureInsufficientLight, FailureExcessiveMotion,
		FailureInsufficientFeatures, FailureCameraUnavailable,
	} {
		assert.NotEmpty(t, r.Message(), r.String())
	}
}
