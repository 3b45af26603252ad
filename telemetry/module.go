package telemetry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sarchlab/uavlink/eventsys"
	"github.com/sarchlab/uavlink/transport"
	"github.com/sarchlab/uavlink/uavobj"
)

// A Module is the telemetry subsystem: two channels, a timer engine and the
// link monitor.
type Module struct {
	name        string
	store       Store
	sw          PortSwitch
	engine      *eventsys.Engine
	baud        int
	statsPeriod time.Duration

	primary   *Channel
	secondary *Channel
	monitor   *LinkMonitor

	wg      sync.WaitGroup
	started bool
}

// Name returns the name of the module.
func (m *Module) Name() string {
	return m.name
}

// Primary returns the primary channel.
func (m *Module) Primary() *Channel {
	return m.primary
}

// Secondary returns the secondary channel.
func (m *Module) Secondary() *Channel {
	return m.secondary
}

// Channels returns both channels.
func (m *Module) Channels() []*Channel {
	return []*Channel{m.primary, m.secondary}
}

// Monitor returns the link monitor.
func (m *Module) Monitor() *LinkMonitor {
	return m.monitor
}

// Engine returns the periodic timer engine.
func (m *Module) Engine() *eventsys.Engine {
	return m.engine
}

// Register sets up the subscriptions of every object, arms the statistics
// timer and applies the line speed. Start calls it; it is exported so that
// tests can drive the channels without goroutines.
func (m *Module) Register() {
	for _, c := range m.Channels() {
		for _, obj := range m.store.Objects() {
			m.registerObject(c, obj)
		}
	}

	m.primary.scheduler.Pin(m.store.PeerStatsObject(),
		m.primary.lanes.High(), uavobj.MaskAllUpdates)

	m.engine.Arm(uavobj.Event{Obj: uavobj.StatsSentinel},
		m.primary.lanes.High(), m.statsPeriod)

	m.applyBaud()
}

func (m *Module) registerObject(c *Channel, obj uavobj.ObjectID) {
	if m.store.IsMetaObject(obj) {
		m.store.ConnectQueue(obj, c.lanes.High(), uavobj.MaskAllUpdates)
		return
	}

	c.scheduler.Reconcile(obj, uavobj.EventNone)
}

func (m *Module) applyBaud() {
	if m.baud == 0 || m.primary.defaultPort == transport.NoPort {
		return
	}

	err := m.sw.ChangeBaud(m.primary.defaultPort, m.baud)
	if err != nil {
		log.Printf("%s: cannot set baud rate %d: %v", m.name, m.baud, err)
	}
}

// Start registers the objects and launches the timer engine and the transmit
// and receive loops of both channels. They stop when ctx is cancelled.
func (m *Module) Start(ctx context.Context) {
	if m.started {
		log.Panicf("%s is already started", m.name)
	}
	m.started = true

	m.Register()

	m.goRun(func() { m.engine.Run(ctx) })

	for _, c := range m.Channels() {
		c := c
		m.goRun(func() { c.transmitLoop(ctx) })
		m.goRun(func() { c.receiveLoop(ctx) })
	}
}

func (m *Module) goRun(f func()) {
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		f()
	}()
}

// Wait blocks until every goroutine has stopped.
func (m *Module) Wait() {
	m.wg.Wait()
}

// Status is a snapshot of the module.
type Status struct {
	Link     uavobj.LinkStats `json:"link"`
	Peer     uavobj.LinkStats `json:"peer"`
	LastRx   time.Time        `json:"last_rx"`
	Channels []ChannelStatus  `json:"channels"`
}

// Status takes a snapshot of the module.
func (m *Module) Status() Status {
	s := Status{
		Link:   m.store.LinkStats(),
		Peer:   m.store.PeerStats(),
		LastRx: m.monitor.LastRx(),
	}

	for _, c := range m.Channels() {
		s.Channels = append(s.Channels, c.Status())
	}

	return s
}
