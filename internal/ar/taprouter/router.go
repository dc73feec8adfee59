// Package taprouter turns queued screen taps into anchors.
//
// Taps arrive from the control goroutine through a bounded Queue and are
// consumed by the render loop, at most one per frame. For each consumed tap
// the router asks the tracker for depth-sorted hits and creates an anchor on
// the first hit whose trackable variant accepts it. This is the only place
// anchors are created.
package taprouter

import (
	"fmt"

	"github.com/banshee-data/arpositioning/internal/ar/anchors"
	"github.com/banshee-data/arpositioning/internal/ar/posemath"
	"github.com/banshee-data/arpositioning/internal/ar/tracking"
)

// DefaultQueueSize bounds the number of taps waiting for a frame.
const DefaultQueueSize = 16

// Tap is a screen coordinate in pixels.
type Tap struct {
	X, Y float64
}

// Queue is a bounded, non-blocking hand-off of taps from the input
// goroutine to the render loop.
type Queue struct {
	ch chan Tap
}

// NewQueue returns a queue holding up to size taps.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan Tap, size)}
}

// Offer enqueues a tap. It never blocks; when the queue is full the tap is
// dropped and Offer returns false.
func (q *Queue) Offer(t Tap) bool {
	select {
	case q.ch <- t:
		return true
	default:
		return false
	}
}

// Poll removes the oldest tap, if any.
func (q *Queue) Poll() (Tap, bool) {
	select {
	case t := <-q.ch:
		return t, true
	default:
		return Tap{}, false
	}
}

// Len returns the number of queued taps.
func (q *Queue) Len() int {
	return len(q.ch)
}

// acceptFunc decides whether a hit on a given trackable variant may carry an
// anchor.
type acceptFunc func(hit tracking.Hit, camera posemath.Pose) bool

var accept = map[tracking.TrackableKind]acceptFunc{
	tracking.KindPlane: func(hit tracking.Hit, camera posemath.Pose) bool {
		return hit.Trackable.Plane.IsPoseInPolygon(hit.Pose) &&
			posemath.DistanceToPlane(hit.Pose, camera) > 0
	},
	tracking.KindPoint: func(hit tracking.Hit, _ posemath.Pose) bool {
		return hit.Trackable.Orientation == tracking.OrientationEstimatedSurfaceNormal
	},
	tracking.KindInstantPlacementPoint: func(tracking.Hit, posemath.Pose) bool { return true },
	tracking.KindDepthPoint:            func(tracking.Hit, posemath.Pose) bool { return true },
}

// SelectHit returns the index of the first hit that qualifies for an anchor,
// or -1. Hits must already be ordered nearest first.
func SelectHit(hits []tracking.Hit, camera posemath.Pose) int {
	for i, hit := range hits {
		if hit.Trackable == nil {
			continue
		}
		if fn, ok := accept[hit.Trackable.Kind]; ok && fn(hit, camera) {
			return i
		}
	}
	return -1
}

// Config controls hit testing.
type Config struct {
	// InstantPlacement switches hit testing to the instant placement
	// variant, which succeeds before any plane is detected.
	InstantPlacement bool
	// ApproximateDistance is the initial depth in metres for instant
	// placement hits.
	ApproximateDistance float64
}

// HitTester is the subset of the tracker the router needs.
type HitTester interface {
	HitTest(x, y float64) ([]tracking.Hit, error)
	HitTestInstantPlacement(x, y, approximateDistance float64) ([]tracking.Hit, error)
	CreateAnchor(hit tracking.Hit) (tracking.Anchor, error)
}

// Result describes what Route did with a frame's tap.
type Result struct {
	Consumed bool
	Tap      Tap
	Anchor   *anchors.Entry
	Evicted  *anchors.Entry
}

// Router consumes taps and creates anchors in a store.
type Router struct {
	queue *Queue
	store *anchors.Store
	cfg   Config

	// OnAnchorCreated is called for each anchor the router adds.
	OnAnchorCreated func(entry anchors.Entry, hit tracking.Hit)
}

// NewRouter returns a router reading from queue and writing to store.
func NewRouter(queue *Queue, store *anchors.Store, cfg Config) *Router {
	return &Router{queue: queue, store: store, cfg: cfg}
}

// Route consumes at most one tap. Taps are left queued unless the camera is
// tracking. A tap with no qualifying hit is consumed without an anchor.
func (r *Router) Route(tracker HitTester, camera tracking.Camera) (Result, error) {
	if camera.TrackingState != tracking.Tracking {
		return Result{}, nil
	}
	tap, ok := r.queue.Poll()
	if !ok {
		return Result{}, nil
	}
	res := Result{Consumed: true, Tap: tap}

	var (
		hits []tracking.Hit
		err  error
	)
	if r.cfg.InstantPlacement {
		hits, err = tracker.HitTestInstantPlacement(tap.X, tap.Y, r.cfg.ApproximateDistance)
	} else {
		hits, err = tracker.HitTest(tap.X, tap.Y)
	}
	if err != nil {
		return res, fmt.Errorf("hit test at (%.1f, %.1f): %w", tap.X, tap.Y, err)
	}

	i := SelectHit(hits, camera.Pose)
	if i < 0 {
		tracef("tap (%.1f, %.1f): %d hits, none qualified", tap.X, tap.Y, len(hits))
		return res, nil
	}
	hit := hits[i]
	anchor, err := tracker.CreateAnchor(hit)
	if err != nil {
		return res, fmt.Errorf("create anchor on %s: %w", hit.Trackable.Kind, err)
	}
	res.Evicted = r.store.Add(anchor, hit.Trackable)
	res.Anchor = &anchors.Entry{Anchor: anchor, Trackable: hit.Trackable}
	if res.Evicted != nil {
		diagf("anchor %s evicted to make room for %s", res.Evicted.Anchor.ID(), anchor.ID())
	}
	if r.OnAnchorCreated != nil {
		r.OnAnchorCreated(*res.Anchor, hit)
	}
	return res, nil
}
