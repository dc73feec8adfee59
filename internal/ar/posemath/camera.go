package posemath

import "math"

// Intrinsics describes the camera frustum shape. FovY is the vertical field
// of view in radians; Aspect is viewport width over height.
type Intrinsics struct {
	FovY   float64
	Aspect float64
}

// Projection returns a right-handed perspective matrix mapping the view
// frustum between near and far into clip space.
func Projection(in Intrinsics, near, far float64) Mat4 {
	f := 1 / math.Tan(in.FovY/2)
	aspect := in.Aspect
	if aspect == 0 {
		aspect = 1
	}
	nf := 1 / (near - far)
	return Mat4{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, (far + near) * nf, 2 * far * near * nf,
		0, 0, -1, 0,
	}
}

// View returns the world-to-camera matrix for a camera pose. The camera
// looks down its local -Z axis with +Y up.
func View(cameraPose Pose) Mat4 {
	return cameraPose.Inverse().Matrix()
}

// ModelViewProjection returns (projection*view*model, view*model).
func ModelViewProjection(projection, view, model Mat4) (mvp, modelView Mat4) {
	modelView = Multiply(view, model)
	return Multiply(projection, modelView), modelView
}
