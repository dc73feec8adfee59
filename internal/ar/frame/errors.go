package frame

import "fmt"

// TransientSensorError reports a frame skipped because the camera was busy.
// Nothing changed; the next frame may succeed.
type TransientSensorError struct {
	Err error
}

func (e *TransientSensorError) Error() string {
	return fmt.Sprintf("frame skipped: %v", e.Err)
}

func (e *TransientSensorError) Unwrap() error { return e.Err }

// StatusText is the short message shown to the user.
func (e *TransientSensorError) StatusText() string {
	return "Camera not available. Try restarting the app."
}
