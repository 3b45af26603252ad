// Package eventsys fires dispatch events periodically into event sinks.
package eventsys

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/sarchlab/uavlink/hooking"
	"github.com/sarchlab/uavlink/uavobj"
)

// HookPosTimerFire marks when a timer pushes its event. The Detail field of
// the hook context tells whether the sink accepted the event.
var HookPosTimerFire = &hooking.HookPos{Name: "Timer Fire"}

const idleWait = time.Second

// An Engine maintains all the periodic timers and fires them when they are
// due.
type Engine struct {
	hooking.HookableBase

	lock   sync.Mutex
	timers map[timerKey]*timer
	queue  timerHeap
	wake   chan struct{}
	now    func() time.Time
}

// NewEngine creates a new periodic event engine.
func NewEngine() *Engine {
	e := &Engine{
		timers: make(map[timerKey]*timer),
		queue:  make(timerHeap, 0, 64),
		wake:   make(chan struct{}, 1),
		now:    time.Now,
	}
	heap.Init(&e.queue)

	return e
}

// Arm creates the timer of the (event, sink) pair, or updates its period in
// place if it already exists. A zero period removes the timer. The first fire
// after creating or changing the period happens one period from now. Arming
// again with the same period keeps the timer's phase.
func (e *Engine) Arm(ev uavobj.Event, sink uavobj.EventSink, period time.Duration) {
	key := keyOf(ev, sink)

	e.lock.Lock()
	t, found := e.timers[key]

	switch {
	case found && period <= 0:
		heap.Remove(&e.queue, t.index)
		delete(e.timers, key)
	case found && t.period != period:
		t.ev = ev
		t.period = period
		t.due = e.now().Add(period)
		heap.Fix(&e.queue, t.index)
	case found:
		t.ev = ev
	case period > 0:
		t = &timer{
			key:    key,
			ev:     ev,
			sink:   sink,
			period: period,
			due:    e.now().Add(period),
		}
		e.timers[key] = t
		heap.Push(&e.queue, t)
	}
	e.lock.Unlock()

	e.signal()
}

// Period returns the period of the (event, sink) timer, or 0 if there is no
// such timer.
func (e *Engine) Period(ev uavobj.Event, sink uavobj.EventSink) time.Duration {
	e.lock.Lock()
	defer e.lock.Unlock()

	t, found := e.timers[keyOf(ev, sink)]
	if !found {
		return 0
	}

	return t.period
}

// NumTimers returns the number of armed timers.
func (e *Engine) NumTimers() int {
	e.lock.Lock()
	defer e.lock.Unlock()

	return len(e.timers)
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Run fires timers until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	for {
		wait := e.FireDue(e.now())

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-e.wake:
		case <-t.C:
		}
		t.Stop()
	}
}

// FireDue pushes every event due at the given time and returns how long until
// the next timer is due.
func (e *Engine) FireDue(now time.Time) time.Duration {
	due, wait := e.collectDue(now)

	for _, t := range due {
		accepted := t.sink.Offer(t.ev)

		if e.NumHooks() > 0 {
			e.InvokeHook(hooking.HookCtx{
				Domain: e,
				Pos:    HookPosTimerFire,
				Item:   t.ev,
				Detail: accepted,
			})
		}
	}

	return wait
}

func (e *Engine) collectDue(now time.Time) ([]timer, time.Duration) {
	e.lock.Lock()
	defer e.lock.Unlock()

	var due []timer

	for len(e.queue) > 0 {
		t := e.queue[0]
		if t.due.After(now) {
			return due, t.due.Sub(now)
		}

		due = append(due, *t)

		t.due = t.due.Add(t.period)
		if !t.due.After(now) {
			t.due = now.Add(t.period)
		}

		heap.Fix(&e.queue, 0)
	}

	return due, idleWait
}
