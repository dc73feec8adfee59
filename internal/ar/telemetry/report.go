// Package telemetry carries per-frame pose reports out of the render loop.
//
// The render loop hands a FrameReport to a Publisher and moves on. The
// publisher delivers reports to its handlers on its own goroutine; when the
// handlers fall behind, reports are dropped rather than delaying the next
// frame. FileLog is the handler that appends the reports to the project's
// text logs.
package telemetry

import (
	"fmt"
	"strings"

	"github.com/banshee-data/arpositioning/internal/ar/posemath"
)

// FrameReport is the camera and drawn-anchor positions for one frame.
type FrameReport struct {
	Timestamp int64
	Camera    posemath.Pose
	Anchors   []posemath.Pose
}

// CameraText formats the camera position.
func (r FrameReport) CameraText() string {
	return fmt.Sprintf("Camera x=%.3f y=%.3f z=%.3f\n", r.Camera.Tx(), r.Camera.Ty(), r.Camera.Tz())
}

// AnchorLines formats one line per anchor, without trailing newlines.
func (r FrameReport) AnchorLines() []string {
	out := make([]string, len(r.Anchors))
	for i, a := range r.Anchors {
		out[i] = fmt.Sprintf("x=%.3f y=%.3f z=%.3f", a.Tx(), a.Ty(), a.Tz())
	}
	return out
}

// Text is the multi-line pose summary shown to the user.
func (r FrameReport) Text() string {
	var b strings.Builder
	b.WriteString(r.CameraText())
	for _, line := range r.AnchorLines() {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
