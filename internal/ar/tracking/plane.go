package tracking

import "github.com/banshee-data/arpositioning/internal/ar/posemath"

// PlaneType is the orientation class of a detected plane.
type PlaneType int

const (
	HorizontalUpwardFacing PlaneType = iota
	HorizontalDownwardFacing
	Vertical
)

// Plane is the variant data of a KindPlane trackable. Polygon is the
// boundary in the plane's local XZ coordinates, relative to CenterPose.
type Plane struct {
	Type       PlaneType
	CenterPose posemath.Pose
	Polygon    [][2]float64
	// SubsumedBy is set when the tracker merged this plane into another.
	SubsumedBy *Trackable
}

// IsPoseInPolygon reports whether the pose's position, projected onto the
// plane, falls inside the boundary polygon.
func (p *Plane) IsPoseInPolygon(pose posemath.Pose) bool {
	if p == nil || len(p.Polygon) < 3 {
		return false
	}
	local := p.CenterPose.Inverse().TransformPoint(pose.Translation)
	x, z := local[0], local[2]

	inside := false
	n := len(p.Polygon)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, zi := p.Polygon[i][0], p.Polygon[i][1]
		xj, zj := p.Polygon[j][0], p.Polygon[j][1]
		if (zi > z) != (zj > z) && x < (xj-xi)*(z-zi)/(zj-zi)+xi {
			inside = !inside
		}
	}
	return inside
}
