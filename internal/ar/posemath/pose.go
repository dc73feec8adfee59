package posemath

import "math"

// Quaternion is a rotation quaternion (X, Y, Z imaginary, W real).
type Quaternion struct {
	X, Y, Z, W float64
}

// IdentityQuaternion is the zero rotation.
var IdentityQuaternion = Quaternion{W: 1}

// AxisAngle builds a rotation of angle radians about axis.
// A zero-length axis yields the identity rotation.
func AxisAngle(axis [3]float64, angle float64) Quaternion {
	n := math.Sqrt(axis[0]*axis[0] + axis[1]*axis[1] + axis[2]*axis[2])
	if n == 0 {
		return IdentityQuaternion
	}
	s := math.Sin(angle/2) / n
	return Quaternion{X: axis[0] * s, Y: axis[1] * s, Z: axis[2] * s, W: math.Cos(angle / 2)}
}

// Normalize returns q scaled to unit length.
func (q Quaternion) Normalize() Quaternion {
	n := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	if n == 0 {
		return IdentityQuaternion
	}
	return Quaternion{X: q.X / n, Y: q.Y / n, Z: q.Z / n, W: q.W / n}
}

// Conjugate returns the inverse rotation of a unit quaternion.
func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{X: -q.X, Y: -q.Y, Z: -q.Z, W: q.W}
}

// Mul returns the Hamilton product q*o (apply o, then q).
func (q Quaternion) Mul(o Quaternion) Quaternion {
	return Quaternion{
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

// Rotate applies q to vector v.
func (q Quaternion) Rotate(v [3]float64) [3]float64 {
	// v' = v + 2w(u x v) + 2u x (u x v)
	ux, uy, uz := q.X, q.Y, q.Z
	cx := uy*v[2] - uz*v[1]
	cy := uz*v[0] - ux*v[2]
	cz := ux*v[1] - uy*v[0]
	ccx := uy*cz - uz*cy
	ccy := uz*cx - ux*cz
	ccz := ux*cy - uy*cx
	return [3]float64{
		v[0] + 2*(q.W*cx+ccx),
		v[1] + 2*(q.W*cy+ccy),
		v[2] + 2*(q.W*cz+ccz),
	}
}

// Pose is a rigid transform from a local frame into world space: a unit
// rotation followed by a translation.
type Pose struct {
	Translation [3]float64
	Rotation    Quaternion
}

// IdentityPose is the world origin with no rotation.
var IdentityPose = Pose{Rotation: IdentityQuaternion}

// NewPose builds a pose, normalising the rotation.
func NewPose(translation [3]float64, rotation Quaternion) Pose {
	return Pose{Translation: translation, Rotation: rotation.Normalize()}
}

// Translate returns a pose at (x, y, z) with no rotation.
func Translate(x, y, z float64) Pose {
	return Pose{Translation: [3]float64{x, y, z}, Rotation: IdentityQuaternion}
}

// Tx returns the X translation.
func (p Pose) Tx() float64 { return p.Translation[0] }

// Ty returns the Y translation.
func (p Pose) Ty() float64 { return p.Translation[1] }

// Tz returns the Z translation.
func (p Pose) Tz() float64 { return p.Translation[2] }

// Matrix returns the pose as a row-major 4x4 model matrix.
func (p Pose) Matrix() Mat4 {
	q := p.Rotation
	xx, yy, zz := q.X*q.X, q.Y*q.Y, q.Z*q.Z
	xy, xz, yz := q.X*q.Y, q.X*q.Z, q.Y*q.Z
	wx, wy, wz := q.W*q.X, q.W*q.Y, q.W*q.Z
	return Mat4{
		1 - 2*(yy+zz), 2 * (xy - wz), 2 * (xz + wy), p.Translation[0],
		2 * (xy + wz), 1 - 2*(xx+zz), 2 * (yz - wx), p.Translation[1],
		2 * (xz - wy), 2 * (yz + wx), 1 - 2*(xx+yy), p.Translation[2],
		0, 0, 0, 1,
	}
}

// TransformPoint maps a point from the pose's local frame into world space.
func (p Pose) TransformPoint(v [3]float64) [3]float64 {
	r := p.Rotation.Rotate(v)
	return [3]float64{r[0] + p.Translation[0], r[1] + p.Translation[1], r[2] + p.Translation[2]}
}

// Axis returns local axis i (0=X, 1=Y, 2=Z) expressed in world space.
func (p Pose) Axis(i int) [3]float64 {
	var unit [3]float64
	unit[i] = 1
	return p.Rotation.Rotate(unit)
}

// Inverse returns the pose that maps world space back into this pose's
// local frame.
func (p Pose) Inverse() Pose {
	inv := p.Rotation.Conjugate()
	t := inv.Rotate(p.Translation)
	return Pose{Translation: [3]float64{-t[0], -t[1], -t[2]}, Rotation: inv}
}

// Compose returns p∘o: o is applied first, then p.
func (p Pose) Compose(o Pose) Pose {
	return Pose{
		Translation: p.TransformPoint(o.Translation),
		Rotation:    p.Rotation.Mul(o.Rotation).Normalize(),
	}
}

// DistanceToPlane returns the signed distance from the plane through
// planePose (whose local +Y axis is the plane normal) to the camera
// position. Positive means the camera is on the side the normal faces.
func DistanceToPlane(planePose, cameraPose Pose) float64 {
	n := planePose.Axis(1)
	dx := cameraPose.Translation[0] - planePose.Translation[0]
	dy := cameraPose.Translation[1] - planePose.Translation[1]
	dz := cameraPose.Translation[2] - planePose.Translation[2]
	return dx*n[0] + dy*n[1] + dz*n[2]
}
