package uavobj

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Names of the two link statistics objects every registry carries.
const (
	FlightTelemetryStatsName = "FlightTelemetryStats"
	GCSTelemetryStatsName    = "GCSTelemetryStats"
)

// LogRecord is one object instance written to the flight log.
type LogRecord struct {
	Obj       ObjectID
	Name      string
	Instance  InstanceID
	Timestamp time.Time
	Payload   []byte
}

// A LogSink stores log records. The storage engine behind it is not the
// registry's concern.
type LogSink interface {
	WriteLogRecord(rec LogRecord) error
}

type connection struct {
	sink EventSink
	mask EventMask
}

type objectEntry struct {
	id       ObjectID
	name     string
	isMeta   bool
	linked   ObjectID
	priority bool

	metadata  Metadata
	instances [][]byte
	conns     []connection
}

// MemRegistry is an in-memory object registry. All methods are safe for
// concurrent use.
type MemRegistry struct {
	lock    sync.RWMutex
	objects map[ObjectID]*objectEntry
	order   []ObjectID
	nextID  ObjectID

	flightStatsID ObjectID
	gcsStatsID    ObjectID
	flightStats   LinkStats
	gcsStats      LinkStats

	alarms  map[Alarm]AlarmSeverity
	logSink LogSink

	dropped atomic.Uint64
}

// NewMemRegistry creates a registry that already holds the flight and ground
// link statistics objects.
func NewMemRegistry() *MemRegistry {
	r := &MemRegistry{
		objects: make(map[ObjectID]*objectEntry),
		nextID:  2,
		alarms:  make(map[Alarm]AlarmSeverity),
	}

	r.flightStatsID = r.Register(FlightTelemetryStatsName, Metadata{
		TelemetryMode:   UpdateModePeriodic,
		TelemetryPeriod: 5 * time.Second,
		LoggingMode:     UpdateModePeriodic,
		LoggingPeriod:   5 * time.Second,
	}, true, 1)
	r.gcsStatsID = r.Register(GCSTelemetryStatsName, Metadata{
		TelemetryMode: UpdateModeManual,
		LoggingMode:   UpdateModeManual,
	}, true, 1)

	return r
}

// WithLogSink sets where WriteInstanceToLog stores records.
func (r *MemRegistry) WithLogSink(sink LogSink) *MemRegistry {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.logSink = sink

	return r
}

// Register adds a data object together with its meta-object and returns the
// data object's id. The meta-object always uses the following id.
func (r *MemRegistry) Register(
	name string,
	md Metadata,
	priority bool,
	numInstances int,
) ObjectID {
	if numInstances < 1 {
		log.Panicf("object %s must have at least one instance", name)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	id := r.nextID
	r.nextID += 2

	obj := &objectEntry{
		id:        id,
		name:      name,
		linked:    id + 1,
		priority:  priority,
		metadata:  md,
		instances: make([][]byte, numInstances),
	}
	meta := &objectEntry{
		id:        id + 1,
		name:      name + "Meta",
		isMeta:    true,
		linked:    id,
		priority:  true,
		metadata:  MetaObjectMetadata,
		instances: make([][]byte, 1),
	}

	r.objects[obj.id] = obj
	r.objects[meta.id] = meta
	r.order = append(r.order, obj.id, meta.id)

	return id
}

func (r *MemRegistry) mustFind(id ObjectID) *objectEntry {
	obj, found := r.objects[id]
	if !found {
		log.Panicf("object %d is not registered", id)
	}

	return obj
}

// Objects lists every object, meta-objects included, in registration order.
func (r *MemRegistry) Objects() []ObjectID {
	r.lock.RLock()
	defer r.lock.RUnlock()

	ids := make([]ObjectID, len(r.order))
	copy(ids, r.order)

	return ids
}

// Lookup finds an object by name.
func (r *MemRegistry) Lookup(name string) (ObjectID, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	for _, id := range r.order {
		if r.objects[id].name == name {
			return id, true
		}
	}

	return 0, false
}

// Name returns the name of an object.
func (r *MemRegistry) Name(id ObjectID) string {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.mustFind(id).name
}

// IsMetaObject tells if the object describes another object's metadata.
func (r *MemRegistry) IsMetaObject(id ObjectID) bool {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.mustFind(id).isMeta
}

// IsPriority tells if the object's events go to the priority lane.
func (r *MemRegistry) IsPriority(id ObjectID) bool {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.mustFind(id).priority
}

// LinkedObject returns the data object a meta-object describes, or the
// meta-object of a data object.
func (r *MemRegistry) LinkedObject(id ObjectID) ObjectID {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.mustFind(id).linked
}

// Metadata returns the object's update policy.
func (r *MemRegistry) Metadata(id ObjectID) Metadata {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.mustFind(id).metadata
}

// SetMetadata replaces a data object's update policy and raises UPDATED on its
// meta-object.
func (r *MemRegistry) SetMetadata(id ObjectID, md Metadata) {
	r.lock.Lock()
	obj := r.mustFind(id)
	if obj.isMeta {
		r.lock.Unlock()
		log.Panicf("cannot set the metadata of meta-object %s", obj.name)
	}

	obj.metadata = md
	r.lock.Unlock()

	r.raise(obj.linked, 0, EventUpdated)
}

// ConnectQueue subscribes a sink to an object's events. Connecting the same
// sink again replaces its mask.
func (r *MemRegistry) ConnectQueue(id ObjectID, sink EventSink, mask EventMask) {
	r.lock.Lock()
	defer r.lock.Unlock()

	obj := r.mustFind(id)
	for i := range obj.conns {
		if obj.conns[i].sink == sink {
			obj.conns[i].mask = mask
			return
		}
	}

	obj.conns = append(obj.conns, connection{sink: sink, mask: mask})
}

// Subscription returns the mask a sink is connected with, or an empty mask.
func (r *MemRegistry) Subscription(id ObjectID, sink EventSink) EventMask {
	r.lock.RLock()
	defer r.lock.RUnlock()

	for _, c := range r.mustFind(id).conns {
		if c.sink == sink {
			return c.mask
		}
	}

	return 0
}

// NumInstances returns how many instances the object has.
func (r *MemRegistry) NumInstances(id ObjectID) int {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return len(r.mustFind(id).instances)
}

// CreateInstance appends an instance and returns its id.
func (r *MemRegistry) CreateInstance(id ObjectID) InstanceID {
	r.lock.Lock()
	defer r.lock.Unlock()

	obj := r.mustFind(id)
	obj.instances = append(obj.instances, nil)

	return InstanceID(len(obj.instances) - 1)
}

// InstanceData returns a copy of an instance's payload.
func (r *MemRegistry) InstanceData(id ObjectID, inst InstanceID) ([]byte, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if id == r.flightStatsID {
		return encodeLinkStats(r.flightStats), nil
	}

	if id == r.gcsStatsID {
		return encodeLinkStats(r.gcsStats), nil
	}

	obj := r.mustFind(id)
	if int(inst) >= len(obj.instances) {
		return nil, fmt.Errorf("object %s has no instance %d", obj.name, inst)
	}

	return append([]byte(nil), obj.instances[inst]...), nil
}

// Set stores an instance's payload and raises UPDATED.
func (r *MemRegistry) Set(id ObjectID, inst InstanceID, payload []byte) error {
	r.lock.Lock()
	obj := r.mustFind(id)
	if int(inst) >= len(obj.instances) {
		r.lock.Unlock()
		return fmt.Errorf("object %s has no instance %d", obj.name, inst)
	}

	obj.instances[inst] = append([]byte(nil), payload...)
	r.lock.Unlock()

	r.raise(id, inst, EventUpdated)

	return nil
}

// Updated raises UPDATED_MANUAL, asking for the object to be sent now.
func (r *MemRegistry) Updated(id ObjectID, inst InstanceID) {
	r.raise(id, inst, EventUpdatedManual)
}

// RequestUpdate raises UPDATE_REQUESTED, asking the peer for a fresh copy.
func (r *MemRegistry) RequestUpdate(id ObjectID, inst InstanceID) {
	r.raise(id, inst, EventUpdateRequested)
}

// LogNow raises LOGGING_MANUAL, asking for the object to be logged now.
func (r *MemRegistry) LogNow(id ObjectID, inst InstanceID) {
	r.raise(id, inst, EventLoggingManual)
}

func (r *MemRegistry) raise(id ObjectID, inst InstanceID, kind EventKind) {
	r.lock.RLock()
	obj := r.mustFind(id)
	conns := make([]connection, len(obj.conns))
	copy(conns, obj.conns)
	r.lock.RUnlock()

	ev := Event{Obj: id, Instance: inst, Kind: kind}
	for _, c := range conns {
		if !c.mask.Has(kind) {
			continue
		}

		if !c.sink.Offer(ev) {
			r.dropped.Add(1)
		}
	}
}

// DroppedEvents counts events that could not be delivered because a queue was
// full.
func (r *MemRegistry) DroppedEvents() uint64 {
	return r.dropped.Load()
}

// WriteInstanceToLog hands one instance to the log sink.
func (r *MemRegistry) WriteInstanceToLog(id ObjectID, inst InstanceID) error {
	payload, err := r.InstanceData(id, inst)
	if err != nil {
		return err
	}

	r.lock.RLock()
	sink := r.logSink
	name := r.mustFind(id).name
	r.lock.RUnlock()

	if sink == nil {
		return nil
	}

	return sink.WriteLogRecord(LogRecord{
		Obj:       id,
		Name:      name,
		Instance:  inst,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

// FlightStatsObject returns the id of the local link statistics object.
func (r *MemRegistry) FlightStatsObject() ObjectID {
	return r.flightStatsID
}

// PeerStatsObject returns the id of the peer's link statistics object.
func (r *MemRegistry) PeerStatsObject() ObjectID {
	return r.gcsStatsID
}

// LinkStats returns the local link statistics record.
func (r *MemRegistry) LinkStats() LinkStats {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.flightStats
}

// SetLinkStats stores the local record. UPDATED is raised only when the
// record changed.
func (r *MemRegistry) SetLinkStats(s LinkStats) {
	r.lock.Lock()
	changed := r.flightStats != s
	r.flightStats = s
	r.lock.Unlock()

	if changed {
		r.raise(r.flightStatsID, 0, EventUpdated)
	}
}

// PublishLinkStats forces the local record out even if it did not change.
func (r *MemRegistry) PublishLinkStats() {
	r.raise(r.flightStatsID, 0, EventUpdatedManual)
}

// PeerStats returns the record most recently received from the peer.
func (r *MemRegistry) PeerStats() LinkStats {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.gcsStats
}

// SetPeerStats stores the peer's record and raises UPDATED on it. The
// protocol layer calls it when the record arrives.
func (r *MemRegistry) SetPeerStats(s LinkStats) {
	r.lock.Lock()
	r.gcsStats = s
	r.lock.Unlock()

	r.raise(r.gcsStatsID, 0, EventUpdated)
}

// SetAlarm raises an alarm to a severity.
func (r *MemRegistry) SetAlarm(a Alarm, severity AlarmSeverity) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.alarms[a] = severity
}

// ClearAlarm sets an alarm back to OK.
func (r *MemRegistry) ClearAlarm(a Alarm) {
	r.SetAlarm(a, AlarmOK)
}

// AlarmSeverity reports the current severity of an alarm.
func (r *MemRegistry) AlarmSeverity(a Alarm) AlarmSeverity {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.alarms[a]
}

func encodeLinkStats(s LinkStats) []byte {
	buf := new(bytes.Buffer)

	err := binary.Write(buf, binary.LittleEndian, s)
	if err != nil {
		log.Panic(err)
	}

	return buf.Bytes()
}
