package telemetry

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the number of reports that may wait for delivery.
const DefaultBuffer = 64

// Handler consumes a report. Handlers run on the publisher goroutine, one
// report at a time, in publish order.
type Handler func(FrameReport)

// Publisher fans reports out to handlers without blocking the caller.
type Publisher struct {
	ch       chan FrameReport
	handlers []Handler

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewPublisher starts a publisher with room for buffer pending reports.
func NewPublisher(buffer int, handlers ...Handler) *Publisher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	p := &Publisher{
		ch:       make(chan FrameReport, buffer),
		handlers: handlers,
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish queues r for delivery. It never blocks: if the buffer is full or
// the publisher is closed the report is dropped and Publish returns false.
func (p *Publisher) Publish(r FrameReport) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		return false
	}
	select {
	case p.ch <- r:
		p.published.Add(1)
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for r := range p.ch {
		for _, h := range p.handlers {
			p.deliver(h, r)
		}
	}
}

func (p *Publisher) deliver(h Handler, r FrameReport) {
	defer func() {
		if rec := recover(); rec != nil {
			opsf("telemetry handler panicked on frame %d: %v", r.Timestamp, rec)
		}
	}()
	h(r)
}

// Close stops accepting reports, delivers the ones already queued and waits
// for the handlers to finish. It is safe to call more than once.
func (p *Publisher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	p.mu.Unlock()
	<-p.done
}

// Published returns the number of reports accepted for delivery.
func (p *Publisher) Published() uint64 { return p.published.Load() }

// Dropped returns the number of reports discarded.
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }
