// Package telemetry delivers controller events to external sinks without
// blocking the tick loop.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/intersection-twin/internal/controller"
)

// Sink receives controller events.
type Sink interface {
	Publish(ctx context.Context, ev controller.Event) error
}

// Topic returns the log topic for a unit.
func Topic(unitID string) string {
	return fmt.Sprintf("traffic/%s/logs", unitID)
}

// LogSink writes every event to the structured log.
type LogSink struct {
	UnitID string
}

// Publish logs ev.
func (s LogSink) Publish(_ context.Context, ev controller.Event) error {
	log.WithFields(log.Fields{
		"unit_id": s.UnitID,
		"topic":   Topic(s.UnitID),
		"kind":    ev.Kind,
	}).Info(ev.Message())
	return nil
}

// Dispatcher buffers events and hands them to every sink from its own
// goroutine. When the buffer is full new events are dropped and counted.
type Dispatcher struct {
	events  chan controller.Event
	timeout time.Duration
	dropped atomic.Uint64

	mu    sync.RWMutex
	sinks []Sink
}

// NewDispatcher creates a dispatcher with room for buffer pending events.
func NewDispatcher(buffer int, sinks ...Sink) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	return &Dispatcher{
		events:  make(chan controller.Event, buffer),
		sinks:   sinks,
		timeout: 5 * time.Second,
	}
}

// AddSink registers another sink. Events already delivered are not replayed.
func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// Emit queues ev and never blocks. It reports whether ev was accepted.
func (d *Dispatcher) Emit(ev controller.Event) bool {
	select {
	case d.events <- ev:
		return true
	default:
		d.dropped.Add(1)
		log.WithField("kind", ev.Kind).Warn("Telemetry buffer full, dropping event")
		return false
	}
}

// Dropped returns how many events were discarded.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Run delivers events until ctx is cancelled, then flushes what is left.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case ev := <-d.events:
			d.deliver(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-d.events:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ev controller.Event) {
	d.mu.RLock()
	sinks := d.sinks
	d.mu.RUnlock()

	for _, s := range sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := s.Publish(ctx, ev)
		cancel()
		if err != nil {
			log.WithError(err).WithField("kind", ev.Kind).Error("Failed to publish event")
		}
	}
}
