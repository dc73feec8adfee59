package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/arpositioning/internal/db"
)

// anchorJournalBuffer is the number of anchor events that may wait for the
// database.
const anchorJournalBuffer = 256

var errAnchorJournalFull = errors.New("pipeline: anchor journal queue full")

// anchorJournal writes anchor events on its own goroutine so a busy
// database never holds up a frame. Recording rows and mark points pass
// straight through to the wrapped journal.
type anchorJournal struct {
	Journal

	ch chan db.AnchorEvent

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	written atomic.Uint64
	dropped atomic.Uint64
}

func newAnchorJournal(j Journal, buffer int) *anchorJournal {
	if buffer <= 0 {
		buffer = anchorJournalBuffer
	}
	a := &anchorJournal{
		Journal: j,
		ch:      make(chan db.AnchorEvent, buffer),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// RecordAnchorEvent queues a copy of e. It never blocks; a full queue or a
// closed journal drops the event and returns an error for the caller to log.
func (a *anchorJournal) RecordAnchorEvent(ctx context.Context, e *db.AnchorEvent) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return ErrClosed
	}
	select {
	case a.ch <- *e:
		return nil
	default:
		a.dropped.Add(1)
		return errAnchorJournalFull
	}
}

func (a *anchorJournal) run() {
	defer close(a.done)
	for e := range a.ch {
		if err := a.Journal.RecordAnchorEvent(context.Background(), &e); err != nil {
			opsf("journal anchor %s: %v", e.AnchorID, err)
			continue
		}
		a.written.Add(1)
	}
}

// Close writes the queued events and stops the writer. Safe to call more
// than once.
func (a *anchorJournal) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()
	<-a.done
}
