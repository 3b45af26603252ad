package telemetry

import (
	"sync"
	"time"

	"github.com/sarchlab/uavlink/hooking"
	"github.com/sarchlab/uavlink/uavobj"
)

// HookPosLinkUpdate marks the end of a statistics period. The hook context
// carries the new local record as Item and a LinkTransition as Detail.
var HookPosLinkUpdate = &hooking.HookPos{Name: "Link Update"}

// LinkTransition describes one run of the connection state machine.
type LinkTransition struct {
	From      uavobj.LinkStatus
	To        uavobj.LinkStatus
	Peer      uavobj.LinkStatus
	TimedOut  bool
	Published bool
}

// counterSource supplies the counters of one statistics period.
type counterSource interface {
	takeCounters() channelCounters
}

// A LinkMonitor folds the channel counters into the local link statistics
// record and runs the connection handshake with the ground station.
type LinkMonitor struct {
	hooking.HookableBase

	store   StatsStore
	alarms  AlarmClearer
	clock   Clock
	sources []counterSource

	period  time.Duration
	timeout time.Duration

	lock   sync.Mutex
	lastRx time.Time
}

// NewLinkMonitor creates a monitor. The last reception time starts at the
// current time so the link does not time out right after start-up.
func NewLinkMonitor(
	store StatsStore,
	alarms AlarmClearer,
	clock Clock,
	period, timeout time.Duration,
) *LinkMonitor {
	return &LinkMonitor{
		store:   store,
		alarms:  alarms,
		clock:   clock,
		period:  period,
		timeout: timeout,
		lastRx:  clock.Now(),
	}
}

// Name returns the name of the monitor.
func (m *LinkMonitor) Name() string {
	return "LinkMonitor"
}

func (m *LinkMonitor) addSource(src counterSource) {
	m.sources = append(m.sources, src)
}

// LastRx returns when an object was last received from the peer.
func (m *LinkMonitor) LastRx() time.Time {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.lastRx
}

// PeerStatusUpdated runs the state machine right away while the handshake is
// in progress on either side.
func (m *LinkMonitor) PeerStatusUpdated() {
	local := m.store.LinkStats()
	peer := m.store.PeerStats()

	if local.Status != uavobj.LinkConnected ||
		peer.Status != uavobj.LinkConnected {
		m.Update()
	}
}

// Update closes a statistics period.
func (m *LinkMonitor) Update() {
	var sum channelCounters
	for _, src := range m.sources {
		sum.add(src.takeCounters())
	}

	local := m.store.LinkStats()
	peer := m.store.PeerStats()

	if local.Status == uavobj.LinkConnected {
		m.fold(&local, sum)
	}

	timedOut := m.checkTimeout(sum.session.RxObjects)

	tr := LinkTransition{
		From:     local.Status,
		Peer:     peer.Status,
		TimedOut: timedOut,
	}
	local.Status, tr.Published = nextStatus(local.Status, peer.Status, timedOut)
	tr.To = local.Status

	if local.Status == uavobj.LinkConnected {
		m.alarms.ClearAlarm(uavobj.AlarmTelemetry)
	} else {
		local.ClearCounters()
	}

	m.store.SetLinkStats(local)
	if tr.Published {
		m.store.PublishLinkStats()
	}

	if m.NumHooks() > 0 {
		m.InvokeHook(hooking.HookCtx{
			Domain: m,
			Pos:    HookPosLinkUpdate,
			Item:   local,
			Detail: tr,
		})
	}
}

// fold adds the counters of a connected period to the record.
func (m *LinkMonitor) fold(local *uavobj.LinkStats, sum channelCounters) {
	seconds := float32(m.period.Seconds())

	local.TxDataRate = float32(sum.session.TxBytes) / seconds
	local.TxBytes += sum.session.TxBytes
	local.TxFailures += sum.txErrors
	local.TxRetries += sum.txRetries

	local.RxDataRate = float32(sum.session.RxBytes) / seconds
	local.RxBytes += sum.session.RxBytes
	local.RxFailures += sum.session.RxErrors
	local.RxSyncErrors += sum.session.RxSyncErrors
	local.RxCRCErrors += sum.session.RxCRCErrors
}

func (m *LinkMonitor) checkTimeout(rxObjects uint32) bool {
	now := m.clock.Now()

	m.lock.Lock()
	defer m.lock.Unlock()

	if rxObjects > 0 {
		m.lastRx = now
	}

	return now.Sub(m.lastRx) > m.timeout
}

// nextStatus is the connection state machine. It returns the new local status
// and whether the record must be published even if it did not change.
func nextStatus(
	local, peer uavobj.LinkStatus,
	timedOut bool,
) (uavobj.LinkStatus, bool) {
	switch local {
	case uavobj.LinkDisconnected:
		if peer == uavobj.LinkHandshakeReq {
			return uavobj.LinkHandshakeAck, true
		}

		return local, true
	case uavobj.LinkHandshakeAck:
		switch peer {
		case uavobj.LinkConnected:
			return uavobj.LinkConnected, true
		case uavobj.LinkDisconnected:
			return uavobj.LinkDisconnected, true
		}

		return local, true
	case uavobj.LinkConnected:
		if peer != uavobj.LinkConnected || timedOut {
			return uavobj.LinkDisconnected, true
		}

		return local, false
	default:
		return uavobj.LinkDisconnected, true
	}
}
