// Package telemetry decides when objects are sent to the ground station and
// logged, retries lost acknowledgements, and tracks the state of the link.
//
// A Module runs two channels, primary and secondary. Each channel owns a pair
// of event lanes, a protocol session, a scheduler that subscribes objects to
// the lanes, and a dispatcher that turns events into sends, requests and log
// writes. Only the primary channel drives the LinkMonitor.
package telemetry

import (
	"time"

	"github.com/sarchlab/uavlink/uavobj"
)

// Default timing of the telemetry link.
const (
	DefaultRequestTimeout    = 250 * time.Millisecond
	DefaultMaxRetries        = 2
	DefaultStatsPeriod       = 4 * time.Second
	DefaultConnectionTimeout = 8 * time.Second
	DefaultQueueSize         = 20
)

const (
	rxWait       = 500 * time.Millisecond
	rxIdle       = 5 * time.Millisecond
	txWait       = 2 * time.Millisecond
	rxBufferSize = 64
)

// Registry is the part of the object registry the telemetry module reads and
// subscribes to.
type Registry interface {
	Objects() []uavobj.ObjectID
	Name(id uavobj.ObjectID) string
	IsMetaObject(id uavobj.ObjectID) bool
	IsPriority(id uavobj.ObjectID) bool
	LinkedObject(id uavobj.ObjectID) uavobj.ObjectID
	Metadata(id uavobj.ObjectID) uavobj.Metadata
	ConnectQueue(id uavobj.ObjectID, sink uavobj.EventSink, mask uavobj.EventMask)
	NumInstances(id uavobj.ObjectID) int
	WriteInstanceToLog(id uavobj.ObjectID, inst uavobj.InstanceID) error
	PeerStatsObject() uavobj.ObjectID
}

// StatsStore holds the local and peer link statistics records.
type StatsStore interface {
	LinkStats() uavobj.LinkStats
	SetLinkStats(s uavobj.LinkStats)
	PublishLinkStats()
	PeerStats() uavobj.LinkStats
}

// AlarmClearer clears system alarms.
type AlarmClearer interface {
	ClearAlarm(a uavobj.Alarm)
}

// Store is everything the module needs from the registry.
type Store interface {
	Registry
	StatsStore
	AlarmClearer
}

// TimerArmer arms, re-arms and removes periodic event timers. A zero period
// removes the timer.
type TimerArmer interface {
	Arm(ev uavobj.Event, sink uavobj.EventSink, period time.Duration)
}

// A Clock tells the current time.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time {
	return time.Now()
}
