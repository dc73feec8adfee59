// Package anchors holds the bounded, insertion-ordered set of live anchors.
package anchors

import (
	"iter"

	"github.com/banshee-data/arpositioning/internal/ar/tracking"
)

// DefaultCapacity is the maximum number of live anchors.
const DefaultCapacity = 20

// EvictionPolicy chooses which entry makes room when the store is full.
type EvictionPolicy int

const (
	// EvictStoppedFirst removes the oldest Stopped anchor if there is one,
	// otherwise the oldest anchor. Stopped anchors can never draw again, so
	// they do not hold a slot against live ones.
	EvictStoppedFirst EvictionPolicy = iota
	// StrictFIFO always removes the oldest anchor.
	StrictFIFO
)

// Entry pairs an anchor with the trackable it was created on. The
// trackable link is fixed at creation.
type Entry struct {
	Anchor    tracking.Anchor
	Trackable *tracking.Trackable
}

// UsesApproximateDistance reports whether the anchor sits on an instant
// placement point that is still tracked at an approximate distance.
func (e Entry) UsesApproximateDistance() bool {
	return e.Trackable != nil &&
		e.Trackable.Kind == tracking.KindInstantPlacementPoint &&
		e.Trackable.Method == tracking.MethodScreenspaceWithApproximateDistance
}

// Store is a bounded FIFO of anchors. It is owned by the render loop and is
// not safe for concurrent use.
type Store struct {
	capacity int
	policy   EvictionPolicy
	entries  []Entry
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity overrides DefaultCapacity. Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithPolicy selects the eviction policy.
func WithPolicy(p EvictionPolicy) Option {
	return func(s *Store) { s.policy = p }
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{capacity: DefaultCapacity, policy: EvictStoppedFirst}
	for _, opt := range opts {
		opt(s)
	}
	s.entries = make([]Entry, 0, s.capacity)
	return s
}

// Add appends a new anchor. When the store is full one entry is detached and
// removed first, according to the eviction policy; it is returned so the
// caller can log it.
func (s *Store) Add(anchor tracking.Anchor, trackable *tracking.Trackable) (evicted *Entry) {
	if len(s.entries) >= s.capacity {
		i := s.victim()
		e := s.entries[i]
		e.Anchor.Detach()
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
		evicted = &e
	}
	s.entries = append(s.entries, Entry{Anchor: anchor, Trackable: trackable})
	return evicted
}

func (s *Store) victim() int {
	if s.policy == EvictStoppedFirst {
		for i, e := range s.entries {
			if e.Anchor.TrackingState() == tracking.Stopped {
				return i
			}
		}
	}
	return 0
}

// Len returns the number of stored anchors, including stopped ones.
func (s *Store) Len() int {
	return len(s.entries)
}

// Capacity returns the maximum number of anchors.
func (s *Store) Capacity() int {
	return s.capacity
}

// All yields every entry, oldest first.
func (s *Store) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range s.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Tracking yields the entries whose anchor is currently Tracking, oldest
// first. States are read lazily as the sequence advances.
func (s *Store) Tracking() iter.Seq2[tracking.Anchor, *tracking.Trackable] {
	return func(yield func(tracking.Anchor, *tracking.Trackable) bool) {
		for _, e := range s.entries {
			if e.Anchor.TrackingState() != tracking.Tracking {
				continue
			}
			if !yield(e.Anchor, e.Trackable) {
				return
			}
		}
	}
}

// Clear detaches and removes every anchor.
func (s *Store) Clear() {
	for _, e := range s.entries {
		e.Anchor.Detach()
	}
	clear(s.entries)
	s.entries = s.entries[:0]
}
