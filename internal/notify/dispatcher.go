// Package notify delivers engine events to observers: websocket clients,
// a Redis channel and a Telegram announcement chat.
//
// Delivery is best effort. The engine enqueues without waiting, a full queue
// drops the event, and a failing sink never affects the others.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"geez-bingo/internal/engine"
)

// DefaultQueueSize is used when NewDispatcher gets a non-positive size.
const DefaultQueueSize = 256

// sinkTimeout bounds a single sink delivery.
const sinkTimeout = 5 * time.Second

// Sink receives events for a topic (session id).
type Sink interface {
	Name() string
	Publish(ctx context.Context, topic int64, ev engine.Event) error
}

type envelope struct {
	topic int64
	ev    engine.Event
}

// Dispatcher is an engine.Notifier that queues events and fans them out to
// its sinks from a single worker goroutine, preserving publish order.
type Dispatcher struct {
	sinks []Sink
	queue chan envelope

	mu     sync.RWMutex
	closed bool

	dropped atomic.Int64
	done    chan struct{}
}

var _ engine.Notifier = (*Dispatcher)(nil)

// NewDispatcher starts a dispatcher delivering to sinks.
func NewDispatcher(queueSize int, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	d := &Dispatcher{
		sinks: sinks,
		queue: make(chan envelope, queueSize),
		done:  make(chan struct{}),
	}
	go d.loop()
	return d
}

// Publish enqueues ev. It never blocks; when the queue is full the event is dropped.
func (d *Dispatcher) Publish(_ context.Context, topic int64, ev engine.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return
	}

	select {
	case d.queue <- envelope{topic: topic, ev: ev}:
	default:
		d.dropped.Add(1)
		log.Warn().
			Int64("session_id", topic).
			Str("event", string(ev.Type)).
			Msg("Notification queue full, event dropped")
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close stops accepting events, delivers what is already queued and waits
// for the worker to exit.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for env := range d.queue {
		for _, s := range d.sinks {
			d.deliver(s, env)
		}
	}
}

func (d *Dispatcher) deliver(s Sink, env envelope) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("sink", s.Name()).
				Msg("Notification sink panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	if err := s.Publish(ctx, env.topic, env.ev); err != nil {
		log.Warn().Err(err).
			Str("sink", s.Name()).
			Int64("session_id", env.topic).
			Str("event", string(env.ev.Type)).
			Msg("Failed to deliver notification")
	}
}
