package session

import (
	"errors"
	"fmt"
)

// ErrInvalidState is returned when an operation is not allowed in the
// controller's current state. Nothing is changed.
var ErrInvalidState = errors.New("session: operation not allowed in current state")

// ConfigurationRejectedError reports a recording or playback transition the
// tracker refused. The controller remains in the state it was in.
type ConfigurationRejectedError struct {
	Op  string
	Err error
}

func (e *ConfigurationRejectedError) Error() string {
	return fmt.Sprintf("%s rejected: %v", e.Op, e.Err)
}

func (e *ConfigurationRejectedError) Unwrap() error { return e.Err }

// StatusText is the short message shown to the user.
func (e *ConfigurationRejectedError) StatusText() string {
	return "Failed to " + e.Op
}

// SessionUnrecoverableError reports that a tracker session could not be
// created or restarted. The controller is Idle with no usable tracker until
// a later Resume succeeds in creating one.
type SessionUnrecoverableError struct {
	Err error
}

func (e *SessionUnrecoverableError) Error() string {
	return fmt.Sprintf("tracker session unrecoverable: %v", e.Err)
}

func (e *SessionUnrecoverableError) Unwrap() error { return e.Err }

// StatusText is the short message shown to the user.
func (e *SessionUnrecoverableError) StatusText() string {
	return "Failed to create AR session"
}

func rejected(op string, err error) error {
	opsf("%s rejected: %v", op, err)
	return &ConfigurationRejectedError{Op: op, Err: err}
}

func unrecoverable(err error) error {
	opsf("tracker session unrecoverable: %v", err)
	return &SessionUnrecoverableError{Err: err}
}
