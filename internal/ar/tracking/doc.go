// Package tracking defines the boundary between the frame pipeline and the
// external tracking subsystem: the per-frame snapshot, trackables, hits,
// anchors, and the Tracker interface itself.
//
// Nothing in this package does tracking. The concrete tracker lives outside
// the core; internal/ar/simtracker provides a deterministic one for tests
// and the CLI.
package tracking
