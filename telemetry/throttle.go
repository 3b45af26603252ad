package telemetry

import "github.com/sarchlab/uavlink/uavobj"

// vocabulary is the set of event kinds one update policy reacts to. Telemetry
// and logging use different periodic and manual kinds but share UPDATED as
// the content-change kind.
type vocabulary struct {
	name     string
	periodic uavobj.EventKind
	manual   uavobj.EventKind
	request  uavobj.EventKind
}

var (
	telemetryVocabulary = vocabulary{
		name:     "telemetry",
		periodic: uavobj.EventUpdatedPeriodic,
		manual:   uavobj.EventUpdatedManual,
		request:  uavobj.EventUpdateRequested,
	}
	loggingVocabulary = vocabulary{
		name:     "logging",
		periodic: uavobj.EventLoggingPeriodic,
		manual:   uavobj.EventLoggingManual,
		request:  uavobj.EventNone,
	}
)

type throttleState uint8

const (
	// throttleOpen reacts to the next content change.
	throttleOpen throttleState = iota

	// throttleQuiet ignores content changes until the cooldown tick.
	throttleQuiet
)

func (s throttleState) String() string {
	if s == throttleQuiet {
		return "quiet"
	}

	return "open"
}

// A throttle is the two-state machine behind the THROTTLED update mode. A
// content change moves it to quiet, the periodic tick of its own vocabulary
// moves it back to open. Triggers of the other vocabulary leave it alone.
type throttle struct {
	vocab vocabulary
	state throttleState
}

func newThrottle(vocab vocabulary) *throttle {
	return &throttle{vocab: vocab}
}

// fire applies a trigger. It returns true when the cooldown timer must be
// (re)armed, which only happens on the initial trigger.
func (t *throttle) fire(trigger uavobj.EventKind) bool {
	switch trigger {
	case uavobj.EventNone:
		t.state = throttleOpen
		return true
	case t.vocab.periodic:
		t.state = throttleOpen
	case uavobj.EventUpdated, t.vocab.manual:
		t.state = throttleQuiet
	}

	return false
}

func (t *throttle) mask() uavobj.EventMask {
	if t.state == throttleQuiet {
		return uavobj.MaskOf(t.vocab.periodic, t.vocab.manual, t.vocab.request)
	}

	return uavobj.MaskOf(uavobj.EventUpdated, t.vocab.manual, t.vocab.request)
}
