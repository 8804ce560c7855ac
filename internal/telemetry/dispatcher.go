package telemetry

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/lanternlabs/lantern/internal/metrics"
)

// Dispatcher forwards events to a sink from a single background goroutine.
// Emit never blocks: when the buffer is full the event is counted as
// dropped instead. Losing telemetry is acceptable; stalling an auth
// submission is not.
type Dispatcher struct {
	sink      Sink
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher over the given sink. A nil sink is
// replaced with NoopSink so callers never need to guard their emits.
func NewDispatcher(sink Sink, bufferSize int) *Dispatcher {
	if sink == nil {
		sink = NoopSink{}
	}
	if bufferSize <= 0 {
		bufferSize = 64
	}

	d := &Dispatcher{
		sink: sink,
		ch:   make(chan Event, bufferSize),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.record(event)
		case <-d.done:
			// Drain whatever was already buffered before exiting.
			for {
				select {
				case event := <-d.ch:
					d.record(event)
				default:
					return
				}
			}
		}
	}
}

// record shields the dispatch goroutine from a misbehaving sink.
func (d *Dispatcher) record(event Event) {
	defer func() {
		_ = recover()
	}()
	d.sink.Record(context.Background(), event)
}

// Emit enqueues an event for delivery. Safe to call on a nil or closed
// dispatcher; the event is silently dropped.
func (d *Dispatcher) Emit(event Event) {
	if d == nil || d.closed.Load() {
		return
	}

	select {
	case d.ch <- event:
	case <-d.done:
	default:
		d.dropped.Add(1)
		metrics.TelemetryDropped.Inc()
	}
}

// Close stops the dispatcher after draining buffered events.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports how many events were discarded due to a full buffer.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
