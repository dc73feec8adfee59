package pipeline

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by control calls after Teardown.
var ErrClosed = errors.New("pipeline: runtime torn down")

// AssetMissingError reports that the renderer could not load a required
// asset. Initialization stops and is not retried.
type AssetMissingError struct {
	Err error
}

func (e *AssetMissingError) Error() string {
	return fmt.Sprintf("prepare renderer: %v", e.Err)
}

func (e *AssetMissingError) Unwrap() error { return e.Err }

// StatusText is the short message shown to the user.
func (e *AssetMissingError) StatusText() string {
	return "Failed to read a required asset file"
}
