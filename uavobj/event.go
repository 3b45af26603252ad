// Package uavobj defines the object model shared by the telemetry pipeline and
// the object registry: object and instance identifiers, dispatch events,
// update modes, metadata, and the link statistics records.
package uavobj

import (
	"fmt"
	"strings"
)

// ObjectID identifies an object in the registry. It is a non-owning lookup
// key; holding one never keeps an object alive.
type ObjectID uint32

// StatsSentinel is the object id carried by the periodic statistics event. No
// registry object ever uses it.
const StatsSentinel ObjectID = 0

// InstanceID identifies one instance of a multi-instance object.
type InstanceID uint16

// AllInstances is the wildcard instance id.
const AllInstances InstanceID = 0xFFFF

// EventKind tells why an object needs attention. Kinds are single bits so that
// they can be combined into an EventMask.
type EventKind uint8

// The event kinds. EventNone is only used as the initial reconcile trigger and
// is never queued.
const (
	EventNone            EventKind = 0
	EventUpdated         EventKind = 1 << 0
	EventUpdatedManual   EventKind = 1 << 1
	EventUpdatedPeriodic EventKind = 1 << 2
	EventUpdateRequested EventKind = 1 << 3
	EventLoggingManual   EventKind = 1 << 4
	EventLoggingPeriodic EventKind = 1 << 5
)

var eventKindNames = []struct {
	kind EventKind
	name string
}{
	{EventUpdated, "UPDATED"},
	{EventUpdatedManual, "UPDATED_MANUAL"},
	{EventUpdatedPeriodic, "UPDATED_PERIODIC"},
	{EventUpdateRequested, "UPDATE_REQUESTED"},
	{EventLoggingManual, "LOGGING_MANUAL"},
	{EventLoggingPeriodic, "LOGGING_PERIODIC"},
}

func (k EventKind) String() string {
	if k == EventNone {
		return "NONE"
	}

	for _, n := range eventKindNames {
		if n.kind == k {
			return n.name
		}
	}

	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// EventMask is a set of event kinds an object is subscribed to.
type EventMask uint8

// MaskAllUpdates covers every telemetry kind an object can be raised with.
const MaskAllUpdates = EventMask(EventUpdated | EventUpdatedManual |
	EventUpdatedPeriodic | EventUpdateRequested)

// MaskOf builds a mask from kinds.
func MaskOf(kinds ...EventKind) EventMask {
	var m EventMask
	for _, k := range kinds {
		m |= EventMask(k)
	}

	return m
}

// Has tells if the mask contains the kind.
func (m EventMask) Has(kind EventKind) bool {
	return kind != EventNone && m&EventMask(kind) != 0
}

func (m EventMask) String() string {
	names := []string{}
	for _, n := range eventKindNames {
		if m.Has(n.kind) {
			names = append(names, n.name)
		}
	}

	return "{" + strings.Join(names, ",") + "}"
}

// Event is a dispatch event. It is a small value that is copied into queues.
type Event struct {
	Obj      ObjectID
	Instance InstanceID
	Kind     EventKind

	// LowPriority marks events that may be refused by a queue that is filling
	// up. Periodic timer events carry it.
	LowPriority bool
}

// IsStats tells if the event asks for a statistics update.
func (e Event) IsStats() bool {
	return e.Obj == StatsSentinel
}

// An EventSink accepts events without blocking. Offer returns false if the
// event was dropped.
type EventSink interface {
	Offer(ev Event) bool
}
