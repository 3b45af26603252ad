package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/sarchlab/uavlink/queueing"
	"github.com/sarchlab/uavlink/uavobj"
)

// A Scheduler subscribes the objects of one channel to the channel's lanes
// and arms their periodic timers according to their update modes.
type Scheduler struct {
	reg    Registry
	timers TimerArmer
	lanes  *queueing.Lanes

	lock      sync.Mutex
	telemetry map[uavobj.ObjectID]*throttle
	logging   map[uavobj.ObjectID]*throttle
	pins      map[uavobj.ObjectID]pin
}

// pin is a subscription that survives every reconcile of its object.
type pin struct {
	sink uavobj.EventSink
	mask uavobj.EventMask
}

// NewScheduler creates a scheduler that routes into the given lanes.
func NewScheduler(
	reg Registry,
	timers TimerArmer,
	lanes *queueing.Lanes,
) *Scheduler {
	return &Scheduler{
		reg:       reg,
		timers:    timers,
		lanes:     lanes,
		telemetry: make(map[uavobj.ObjectID]*throttle),
		logging:   make(map[uavobj.ObjectID]*throttle),
		pins:      make(map[uavobj.ObjectID]pin),
	}
}

// Pin subscribes an object to a sink with a fixed mask. Later reconciles of
// the object keep the mask when they connect it to the same sink.
func (s *Scheduler) Pin(
	obj uavobj.ObjectID,
	sink uavobj.EventSink,
	mask uavobj.EventMask,
) {
	s.lock.Lock()
	s.pins[obj] = pin{sink: sink, mask: mask}
	s.lock.Unlock()

	if sink == uavobj.EventSink(s.lanes.Route(s.reg.IsPriority(obj))) {
		s.Reconcile(obj, uavobj.EventNone)
		return
	}

	s.reg.ConnectQueue(obj, sink, mask)
}

// Reconcile recomputes the subscription and timers of an object. The trigger
// is EventNone at start-up and after a metadata change, or the kind of the
// event just processed for throttled objects.
func (s *Scheduler) Reconcile(obj uavobj.ObjectID, trigger uavobj.EventKind) {
	if s.reg.IsMetaObject(obj) {
		log.Panicf("meta-object %s cannot have periodic updates",
			s.reg.Name(obj))
	}

	md := s.reg.Metadata(obj)
	sink := s.lanes.Route(s.reg.IsPriority(obj))

	s.lock.Lock()
	mask := s.apply(obj, sink, telemetryVocabulary, s.telemetry,
		md.TelemetryMode, md.TelemetryPeriod, trigger)
	mask |= s.apply(obj, sink, loggingVocabulary, s.logging,
		md.LoggingMode, md.LoggingPeriod, trigger)
	if p, found := s.pins[obj]; found && p.sink == uavobj.EventSink(sink) {
		mask |= p.mask
	}
	s.lock.Unlock()

	s.reg.ConnectQueue(obj, sink, mask)
}

func (s *Scheduler) apply(
	obj uavobj.ObjectID,
	sink uavobj.EventSink,
	vocab vocabulary,
	throttles map[uavobj.ObjectID]*throttle,
	mode uavobj.UpdateMode,
	period time.Duration,
	trigger uavobj.EventKind,
) uavobj.EventMask {
	tick := uavobj.Event{
		Obj:         obj,
		Instance:    uavobj.AllInstances,
		Kind:        vocab.periodic,
		LowPriority: true,
	}

	if mode != uavobj.UpdateModeThrottled {
		delete(throttles, obj)
	}

	switch mode {
	case uavobj.UpdateModePeriodic:
		s.timers.Arm(tick, sink, period)
		return uavobj.MaskOf(vocab.periodic, vocab.manual, vocab.request)
	case uavobj.UpdateModeOnChange:
		s.timers.Arm(tick, sink, 0)
		return uavobj.MaskOf(uavobj.EventUpdated, vocab.manual, vocab.request)
	case uavobj.UpdateModeThrottled:
		t, found := throttles[obj]
		if !found {
			t = newThrottle(vocab)
			throttles[obj] = t
		}

		if t.fire(trigger) {
			s.timers.Arm(tick, sink, period)
		}

		return t.mask()
	default:
		s.timers.Arm(tick, sink, 0)
		return uavobj.MaskOf(vocab.manual, vocab.request)
	}
}

// throttleState reports the state of an object's throttle, for inspection.
func (s *Scheduler) throttleState(
	obj uavobj.ObjectID,
	vocab vocabulary,
) (throttleState, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	throttles := s.telemetry
	if vocab.name == loggingVocabulary.name {
		throttles = s.logging
	}

	t, found := throttles[obj]
	if !found {
		return throttleOpen, false
	}

	return t.state, true
}
