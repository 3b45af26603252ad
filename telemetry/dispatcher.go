package telemetry

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/sarchlab/uavlink/hooking"
	"github.com/sarchlab/uavlink/protocol"
	"github.com/sarchlab/uavlink/uavobj"
)

// HookPosDispatch marks when the dispatcher finishes an event. The hook
// context carries the event as Item and a DispatchResult as Detail.
var HookPosDispatch = &hooking.HookPos{Name: "Dispatch"}

// Action is what the dispatcher did on the link for an event.
type Action uint8

// Actions of the dispatcher.
const (
	ActionNone Action = iota
	ActionSend
	ActionRequest
	ActionStats
	ActionPeerStatus
)

func (a Action) String() string {
	switch a {
	case ActionSend:
		return "send"
	case ActionRequest:
		return "request"
	case ActionStats:
		return "stats"
	case ActionPeerStatus:
		return "peer-status"
	default:
		return "none"
	}
}

// DispatchResult describes the outcome of one event.
type DispatchResult struct {
	Action  Action
	Retries int
	Err     error
	Logged  int
}

// txCounters are the per-channel error and retry counters. The transmit
// goroutine adds to them and the link monitor swaps them to zero.
type txCounters struct {
	errors  atomic.Uint32
	retries atomic.Uint32
}

// A Dispatcher processes the events of one channel.
type Dispatcher struct {
	hooking.HookableBase

	name      string
	reg       Registry
	scheduler *Scheduler
	session   protocol.Session
	counters  *txCounters
	monitor   *LinkMonitor

	requestTimeout time.Duration
	maxRetries     int

	processed   atomic.Uint64
	logFailures atomic.Uint64
}

// Name returns the name of the dispatcher.
func (d *Dispatcher) Name() string {
	return d.name
}

// Process handles one event.
func (d *Dispatcher) Process(ev uavobj.Event) {
	result := d.process(ev)

	d.processed.Add(1)

	if d.NumHooks() > 0 {
		d.InvokeHook(hooking.HookCtx{
			Domain: d,
			Pos:    HookPosDispatch,
			Item:   ev,
			Detail: result,
		})
	}
}

func (d *Dispatcher) process(ev uavobj.Event) DispatchResult {
	if ev.IsStats() {
		if d.monitor != nil {
			d.monitor.Update()
		}

		return DispatchResult{Action: ActionStats}
	}

	if ev.Obj == d.reg.PeerStatsObject() {
		if d.monitor != nil {
			d.monitor.PeerStatusUpdated()
		}

		return DispatchResult{Action: ActionPeerStatus}
	}

	md := d.reg.Metadata(ev.Obj)
	isMeta := d.reg.IsMetaObject(ev.Obj)

	// Changes queued before the throttle went quiet are stale.
	sendQuiet := d.throttled(ev, md.TelemetryMode, telemetryVocabulary)
	logQuiet := d.throttled(ev, md.LoggingMode, loggingVocabulary)

	var result DispatchResult
	if !sendQuiet {
		result = d.transmit(ev, md)
	}

	if isMeta {
		d.scheduler.Reconcile(d.reg.LinkedObject(ev.Obj), uavobj.EventNone)
	} else if md.TelemetryMode == uavobj.UpdateModeThrottled {
		d.scheduler.Reconcile(ev.Obj, ev.Kind)
	}

	if !logQuiet {
		result.Logged = d.log(ev, md)
	}

	if !isMeta && md.LoggingMode == uavobj.UpdateModeThrottled {
		d.scheduler.Reconcile(ev.Obj, ev.Kind)
	}

	return result
}

// throttled tells if a content change hits a throttle that is already quiet.
func (d *Dispatcher) throttled(
	ev uavobj.Event,
	mode uavobj.UpdateMode,
	vocab vocabulary,
) bool {
	if ev.Kind != uavobj.EventUpdated || mode != uavobj.UpdateModeThrottled {
		return false
	}

	state, _ := d.scheduler.throttleState(ev.Obj, vocab)

	return state == throttleQuiet
}

func shouldSend(kind uavobj.EventKind, mode uavobj.UpdateMode) bool {
	switch kind {
	case uavobj.EventUpdated:
		return mode == uavobj.UpdateModeOnChange ||
			mode == uavobj.UpdateModeThrottled
	case uavobj.EventUpdatedManual:
		return true
	case uavobj.EventUpdatedPeriodic:
		return mode != uavobj.UpdateModeThrottled
	default:
		return false
	}
}

func shouldLog(kind uavobj.EventKind, mode uavobj.UpdateMode) bool {
	switch kind {
	case uavobj.EventUpdated:
		return mode == uavobj.UpdateModeOnChange ||
			mode == uavobj.UpdateModeThrottled
	case uavobj.EventLoggingManual:
		return true
	case uavobj.EventLoggingPeriodic:
		return mode != uavobj.UpdateModeThrottled
	default:
		return false
	}
}

func (d *Dispatcher) transmit(ev uavobj.Event, md uavobj.Metadata) DispatchResult {
	var result DispatchResult

	switch {
	case shouldSend(ev.Kind, md.TelemetryMode):
		result.Action = ActionSend
		result.Retries, result.Err = d.withRetries(func() error {
			return d.session.SendObject(ev.Obj, ev.Instance,
				md.TelemetryAcked, d.requestTimeout)
		})
	case ev.Kind == uavobj.EventUpdateRequested:
		result.Action = ActionRequest
		result.Retries, result.Err = d.withRetries(func() error {
			return d.session.RequestObject(ev.Obj, ev.Instance,
				d.requestTimeout)
		})
	default:
		return result
	}

	d.counters.retries.Add(uint32(result.Retries))
	if result.Err != nil {
		d.counters.errors.Add(1)
	}

	return result
}

// withRetries runs op until it succeeds or the retry ceiling is reached. It
// returns the number of retries performed and the last error.
func (d *Dispatcher) withRetries(op func() error) (int, error) {
	retries := 0

	for {
		err := op()
		if err == nil || retries >= d.maxRetries {
			return retries, err
		}

		retries++
	}
}

func (d *Dispatcher) log(ev uavobj.Event, md uavobj.Metadata) int {
	if !shouldLog(ev.Kind, md.LoggingMode) {
		return 0
	}

	if ev.Instance != uavobj.AllInstances {
		d.writeToLog(ev.Obj, ev.Instance)
		return 1
	}

	n := d.reg.NumInstances(ev.Obj)
	for i := 0; i < n; i++ {
		d.writeToLog(ev.Obj, uavobj.InstanceID(i))
	}

	return n
}

func (d *Dispatcher) writeToLog(obj uavobj.ObjectID, inst uavobj.InstanceID) {
	err := d.reg.WriteInstanceToLog(obj, inst)
	if err != nil {
		d.logFailures.Add(1)
		log.Printf("%s: cannot log %s[%d]: %v",
			d.name, d.reg.Name(obj), inst, err)
	}
}

// Processed counts the events handled so far.
func (d *Dispatcher) Processed() uint64 {
	return d.processed.Load()
}

// LogFailures counts the log writes that failed.
func (d *Dispatcher) LogFailures() uint64 {
	return d.logFailures.Load()
}
