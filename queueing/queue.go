// Package queueing provides the bounded event queues that feed the telemetry
// transmit loops.
package queueing

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/sarchlab/uavlink/hooking"
	"github.com/sarchlab/uavlink/uavobj"
)

// HookPosQueuePush marks when an event is pushed into the queue.
var HookPosQueuePush = &hooking.HookPos{Name: "Queue Push"}

// HookPosQueuePop marks when an event is popped from the queue.
var HookPosQueuePop = &hooking.HookPos{Name: "Queue Pop"}

// HookPosQueueDrop marks when an event is refused by the queue.
var HookPosQueueDrop = &hooking.HookPos{Name: "Queue Drop"}

// A Queue is a bounded FIFO of dispatch events. Any number of goroutines may
// offer events; a single consumer pops them. A full queue never overwrites.
type Queue interface {
	hooking.Hookable
	uavobj.EventSink

	Name() string

	// TryPop returns the oldest event without blocking.
	TryPop() (uavobj.Event, bool)

	// PopWait waits up to timeout for an event.
	PopWait(ctx context.Context, timeout time.Duration) (uavobj.Event, bool)

	Size() int
	Capacity() int

	// Dropped counts the events that were refused.
	Dropped() uint64
}

// QueueBuilder builds queues.
type QueueBuilder struct {
	capacity int
}

// MakeQueueBuilder creates a QueueBuilder with default parameters.
func MakeQueueBuilder() QueueBuilder {
	return QueueBuilder{
		capacity: 20,
	}
}

// WithCapacity sets the number of events the queue holds.
func (b QueueBuilder) WithCapacity(capacity int) QueueBuilder {
	b.capacity = capacity
	return b
}

// Build creates a queue with the given name.
func (b QueueBuilder) Build(name string) Queue {
	if b.capacity <= 0 {
		log.Panicf("queue %s must have a positive capacity", name)
	}

	return &queueImpl{
		name:   name,
		events: make(chan uavobj.Event, b.capacity),
	}
}

type queueImpl struct {
	hooking.HookableBase

	name    string
	events  chan uavobj.Event
	dropped atomic.Uint64
}

func (q *queueImpl) Name() string {
	return q.name
}

// Offer pushes without blocking. Low-priority events are refused once the
// queue is half full so that change events still find room.
func (q *queueImpl) Offer(ev uavobj.Event) bool {
	if ev.LowPriority && len(q.events) >= cap(q.events)/2 {
		q.drop(ev)
		return false
	}

	select {
	case q.events <- ev:
	default:
		q.drop(ev)
		return false
	}

	if q.NumHooks() > 0 {
		q.InvokeHook(hooking.HookCtx{
			Domain: q,
			Pos:    HookPosQueuePush,
			Item:   ev,
		})
	}

	return true
}

func (q *queueImpl) drop(ev uavobj.Event) {
	q.dropped.Add(1)

	if q.NumHooks() > 0 {
		q.InvokeHook(hooking.HookCtx{
			Domain: q,
			Pos:    HookPosQueueDrop,
			Item:   ev,
		})
	}
}

func (q *queueImpl) TryPop() (uavobj.Event, bool) {
	select {
	case ev := <-q.events:
		q.popped(ev)
		return ev, true
	default:
		return uavobj.Event{}, false
	}
}

func (q *queueImpl) PopWait(
	ctx context.Context,
	timeout time.Duration,
) (uavobj.Event, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-q.events:
		q.popped(ev)
		return ev, true
	case <-timer.C:
		return uavobj.Event{}, false
	case <-ctx.Done():
		return uavobj.Event{}, false
	}
}

func (q *queueImpl) popped(ev uavobj.Event) {
	if q.NumHooks() > 0 {
		q.InvokeHook(hooking.HookCtx{
			Domain: q,
			Pos:    HookPosQueuePop,
			Item:   ev,
		})
	}
}

func (q *queueImpl) Size() int {
	return len(q.events)
}

func (q *queueImpl) Capacity() int {
	return cap(q.events)
}

func (q *queueImpl) Dropped() uint64 {
	return q.dropped.Load()
}
