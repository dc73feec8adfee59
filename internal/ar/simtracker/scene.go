package simtracker

import (
	"math"

	"github.com/google/uuid"

	"github.com/banshee-data/arpositioning/internal/ar/posemath"
	"github.com/banshee-data/arpositioning/internal/ar/tracking"
)

// Scene constants. The simulated room is a single 8m x 8m floor with the
// camera held at eye height, pitched down and panning slowly about +Y.
const (
	FramePeriodNs = int64(33_333_333)

	cameraHeight  = 1.5
	cameraPitch   = math.Pi / 4
	floorHalfSize = 4.0
	fovY          = math.Pi / 3

	pointGrid = 4
)

// floorID is fixed so recorded datasets can be replayed against the same
// scene.
var floorID = uuid.MustParse("6d1f0a3e-5a8c-4b8e-9a53-2f5b7c1e9d40")

func newFloor() *tracking.Trackable {
	h := floorHalfSize
	return &tracking.Trackable{
		ID:    floorID,
		Kind:  tracking.KindPlane,
		State: tracking.Tracking,
		Pose:  posemath.IdentityPose,
		Plane: &tracking.Plane{
			Type:       tracking.HorizontalUpwardFacing,
			CenterPose: posemath.IdentityPose,
			Polygon:    [][2]float64{{-h, -h}, {h, -h}, {h, h}, {-h, h}},
		},
	}
}

func cameraPose(frame int64, panRate float64) posemath.Pose {
	yaw := posemath.AxisAngle([3]float64{0, 1, 0}, float64(frame)*panRate)
	pitch := posemath.AxisAngle([3]float64{1, 0, 0}, -cameraPitch)
	return posemath.NewPose([3]float64{0, cameraHeight, 0}, yaw.Mul(pitch))
}

// ray returns the world-space origin and unit direction through a screen
// pixel.
func ray(camera posemath.Pose, in posemath.Intrinsics, width, height, x, y float64) ([3]float64, [3]float64) {
	ndcX := 2*x/width - 1
	ndcY := 1 - 2*y/height
	t := math.Tan(in.FovY / 2)
	d := camera.Rotation.Rotate([3]float64{ndcX * t * in.Aspect, ndcY * t, -1})
	n := math.Sqrt(d[0]*d[0] + d[1]*d[1] + d[2]*d[2])
	return camera.Translation, [3]float64{d[0] / n, d[1] / n, d[2] / n}
}

// intersectFloor returns the distance along the ray to the y=0 plane.
func intersectFloor(origin, dir [3]float64) (float64, bool) {
	if dir[1] >= 0 {
		return 0, false
	}
	return -origin[1] / dir[1], true
}

func along(origin, dir [3]float64, d float64) [3]float64 {
	return [3]float64{origin[0] + dir[0]*d, origin[1] + dir[1]*d, origin[2] + dir[2]*d}
}

func pointCloud(frame int64) tracking.PointCloud {
	epoch := frame / 2
	pc := tracking.PointCloud{
		Timestamp: (epoch*2 + 1) * FramePeriodNs,
		Points:    make([]tracking.Point, 0, pointGrid*pointGrid),
	}
	jitter := float32(epoch%10) * 0.01
	for i := 0; i < pointGrid; i++ {
		for j := 0; j < pointGrid; j++ {
			pc.Points = append(pc.Points, tracking.Point{
				X:          float32(i-pointGrid/2) + jitter,
				Y:          0,
				Z:          float32(j-pointGrid/2) - jitter,
				Confidence: 0.5 + float32((i+j)%5)*0.1,
			})
		}
	}
	return pc
}

func lightEstimate(mode tracking.LightEstimationMode, cubemapResolution int) tracking.LightEstimate {
	if mode == tracking.LightEstimationDisabled {
		return tracking.LightEstimate{State: tracking.LightNotValid}
	}
	sh := make([]float32, 27)
	for i := range sh {
		sh[i] = 0.05
	}
	sh[0], sh[1], sh[2] = 0.8, 0.78, 0.75
	est := tracking.LightEstimate{
		State:              tracking.LightValid,
		SphericalHarmonics: sh,
		MainLightDirection: [3]float32{0.267, -0.891, 0.178},
		MainLightIntensity: [3]float32{1, 0.98, 0.95},
	}
	if mode == tracking.LightEstimationEnvironmentalHDR {
		est.CubeMap = &tracking.CubeMap{Resolution: cubemapResolution}
	}
	return est
}
