package anchors

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/arpositioning/internal/ar/posemath"
	"github.com/banshee-data/arpositioning/internal/ar/tracking"
)

type fakeAnchor struct {
	n        int
	id       uuid.UUID
	state    tracking.TrackingState
	detached bool
}

func newFake(n int) *fakeAnchor {
	return &fakeAnchor{n: n, id: uuid.New(), state: tracking.Tracking}
}

func (a *fakeAnchor) ID() uuid.UUID                         { return a.id }
func (a *fakeAnchor) Pose() posemath.Pose                   { return posemath.Translate(float64(a.n), 0, 0) }
func (a *fakeAnchor) TrackingState() tracking.TrackingState { return a.state }
func (a *fakeAnchor) Detach()                               { a.detached = true; a.state = tracking.Stopped }

func numbers(s *Store) []int {
	var out []int
	for e := range s.All() {
		out = append(out, e.Anchor.(*fakeAnchor).n)
	}
	return out
}

func seq(from, to int) []int {
	var out []int
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestStore_KeepsLastTwentyInOrder(t *testing.T) {
	t.Parallel()

	for _, policy := range []EvictionPolicy{EvictStoppedFirst, StrictFIFO} {
		s := NewStore(WithPolicy(policy))
		var all []*fakeAnchor
		for i := 1; i <= 45; i++ {
			a := newFake(i)
			all = append(all, a)
			s.Add(a, nil)
			if i <= DefaultCapacity {
				assert.Equal(t, i, s.Len())
			} else {
				assert.Equal(t, DefaultCapacity, s.Len())
			}
		}
		assert.Equal(t, seq(26, 45), numbers(s))
		for _, a := range all[:25] {
			assert.True(t, a.detached, "anchor %d should be detached", a.n)
		}
		for _, a := range all[25:] {
			assert.False(t, a.detached, "anchor %d should be live", a.n)
		}
	}
}

func TestStore_TwentyFirstEvictsFirst(t *testing.T) {
	t.Parallel()

	s := NewStore()
	first := newFake(1)
	s.Add(first, nil)
	for i := 2; i <= 20; i++ {
		assert.Nil(t, s.Add(newFake(i), nil))
	}

	evicted := s.Add(newFake(21), nil)
	require.NotNil(t, evicted)
	assert.Same(t, first, evicted.Anchor.(*fakeAnchor))
	assert.True(t, first.detached)
	assert.Equal(t, seq(2, 21), numbers(s))
}

func TestStore_EvictStoppedFirst(t *testing.T) {
	t.Parallel()

	s := NewStore(WithCapacity(3))
	a1, a2, a3 := newFake(1), newFake(2), newFake(3)
	s.Add(a1, nil)
	s.Add(a2, nil)
	s.Add(a3, nil)
	a2.state = tracking.Stopped

	evicted := s.Add(newFake(4), nil)
	require.NotNil(t, evicted)
	assert.Equal(t, 2, evicted.Anchor.(*fakeAnchor).n)
	assert.Equal(t, []int{1, 3, 4}, numbers(s))
}

func TestStore_StrictFIFOIgnoresStopped(t *testing.T) {
	t.Parallel()

	s := NewStore(WithCapacity(3), WithPolicy(StrictFIFO))
	a1, a2, a3 := newFake(1), newFake(2), newFake(3)
	s.Add(a1, nil)
	s.Add(a2, nil)
	s.Add(a3, nil)
	a2.state = tracking.Stopped

	s.Add(newFake(4), nil)
	assert.Equal(t, []int{2, 3, 4}, numbers(s))
	assert.True(t, a1.detached)
}

func TestStore_TrackingFiltersAndKeepsOrder(t *testing.T) {
	t.Parallel()

	s := NewStore()
	plane := &tracking.Trackable{Kind: tracking.KindPlane}
	for i := 1; i <= 5; i++ {
		s.Add(newFake(i), plane)
	}
	var entries []*fakeAnchor
	for e := range s.All() {
		entries = append(entries, e.Anchor.(*fakeAnchor))
	}
	entries[1].state = tracking.Paused
	entries[3].state = tracking.Stopped

	var got []int
	for a, tr := range s.Tracking() {
		assert.Same(t, plane, tr)
		got = append(got, a.(*fakeAnchor).n)
	}
	assert.Equal(t, []int{1, 3, 5}, got)
	// Stopped anchors are skipped, not removed.
	assert.Equal(t, 5, s.Len())

	// Early break.
	var first int
	for a := range s.Tracking() {
		first = a.(*fakeAnchor).n
		break
	}
	assert.Equal(t, 1, first)
}

func TestStore_Clear(t *testing.T) {
	t.Parallel()

	s := NewStore()
	a, b := newFake(1), newFake(2)
	s.Add(a, nil)
	s.Add(b, nil)
	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.True(t, a.detached)
	assert.True(t, b.detached)
	assert.Equal(t, DefaultCapacity, s.Capacity())
}

func TestEntry_UsesApproximateDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tr   *tracking.Trackable
		want bool
	}{
		{"nil", nil, false},
		{"plane", &tracking.Trackable{Kind: tracking.KindPlane}, false},
		{"instant approximate", &tracking.Trackable{Kind: tracking.KindInstantPlacementPoint, Method: tracking.MethodScreenspaceWithApproximateDistance}, true},
		{"instant full", &tracking.Trackable{Kind: tracking.KindInstantPlacementPoint, Method: tracking.MethodFullTracking}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Entry{Trackable: tt.tr}.UsesApproximateDistance())
		})
	}
}
