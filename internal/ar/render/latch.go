package render

import "sync/atomic"

// TextureNameLatch records whether camera texture names need to be bound
// for the current texture-identity epoch. The zero value is not pending;
// use NewTextureNameLatch for a latch that starts armed.
type TextureNameLatch struct {
	pending atomic.Bool
}

// NewTextureNameLatch returns a latch armed for the first epoch.
func NewTextureNameLatch() *TextureNameLatch {
	l := &TextureNameLatch{}
	l.pending.Store(true)
	return l
}

// Invalidate starts a new epoch. Call it whenever the tracker session is
// recreated or its camera image source changes.
func (l *TextureNameLatch) Invalidate() {
	l.pending.Store(true)
}

// TakePending reports whether names must be bound now and clears the flag.
// It returns true at most once per epoch.
func (l *TextureNameLatch) TakePending() bool {
	return l.pending.CompareAndSwap(true, false)
}

// Pending reports whether the current epoch still needs binding.
func (l *TextureNameLatch) Pending() bool {
	return l.pending.Load()
}
