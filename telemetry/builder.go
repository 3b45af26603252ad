package telemetry

import (
	"log"
	"time"

	"github.com/sarchlab/uavlink/eventsys"
	"github.com/sarchlab/uavlink/protocol"
	"github.com/sarchlab/uavlink/queueing"
	"github.com/sarchlab/uavlink/transport"
)

// Builder can build telemetry modules.
type Builder struct {
	store  Store
	sw     PortSwitch
	opener protocol.Opener
	engine *eventsys.Engine
	clock  Clock

	primaryPort   transport.Port
	secondaryPort transport.Port
	overridePort  transport.Port
	baud          int

	queueSize    int
	priorityLane bool

	requestTimeout    time.Duration
	maxRetries        int
	statsPeriod       time.Duration
	connectionTimeout time.Duration
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		clock:             wallClock{},
		queueSize:         DefaultQueueSize,
		priorityLane:      true,
		requestTimeout:    DefaultRequestTimeout,
		maxRetries:        DefaultMaxRetries,
		statsPeriod:       DefaultStatsPeriod,
		connectionTimeout: DefaultConnectionTimeout,
	}
}

// WithStore sets the object registry.
func (b Builder) WithStore(store Store) Builder {
	b.store = store
	return b
}

// WithSwitch sets the transport switch.
func (b Builder) WithSwitch(sw PortSwitch) Builder {
	b.sw = sw
	return b
}

// WithOpener sets how protocol sessions are created.
func (b Builder) WithOpener(opener protocol.Opener) Builder {
	b.opener = opener
	return b
}

// WithEngine sets the periodic timer engine. A new engine is created if not
// set.
func (b Builder) WithEngine(engine *eventsys.Engine) Builder {
	b.engine = engine
	return b
}

// WithClock sets the clock used for the connection timeout.
func (b Builder) WithClock(clock Clock) Builder {
	b.clock = clock
	return b
}

// WithPrimaryPort sets the port of the primary channel.
func (b Builder) WithPrimaryPort(p transport.Port) Builder {
	b.primaryPort = p
	return b
}

// WithSecondaryPort sets the default port of the secondary channel.
func (b Builder) WithSecondaryPort(p transport.Port) Builder {
	b.secondaryPort = p
	return b
}

// WithOverridePort sets the port that takes over the secondary channel
// whenever it is available.
func (b Builder) WithOverridePort(p transport.Port) Builder {
	b.overridePort = p
	return b
}

// WithBaud sets the line speed applied to the primary port at start. Zero
// leaves the port alone.
func (b Builder) WithBaud(rate int) Builder {
	b.baud = rate
	return b
}

// WithQueueSize sets the capacity of every event queue.
func (b Builder) WithQueueSize(n int) Builder {
	b.queueSize = n
	return b
}

// WithPriorityLane enables or disables the separate priority queue.
func (b Builder) WithPriorityLane(enabled bool) Builder {
	b.priorityLane = enabled
	return b
}

// WithRequestTimeout sets how long one send or request attempt waits.
func (b Builder) WithRequestTimeout(d time.Duration) Builder {
	b.requestTimeout = d
	return b
}

// WithMaxRetries sets how many times a failed attempt is repeated.
func (b Builder) WithMaxRetries(n int) Builder {
	b.maxRetries = n
	return b
}

// WithStatsPeriod sets the statistics period.
func (b Builder) WithStatsPeriod(d time.Duration) Builder {
	b.statsPeriod = d
	return b
}

// WithConnectionTimeout sets how long the link may stay silent before it is
// considered lost.
func (b Builder) WithConnectionTimeout(d time.Duration) Builder {
	b.connectionTimeout = d
	return b
}

// Build creates the module.
func (b Builder) Build(name string) *Module {
	b.mustBeValid()

	engine := b.engine
	if engine == nil {
		engine = eventsys.NewEngine()
	}

	m := &Module{
		name:        name,
		store:       b.store,
		sw:          b.sw,
		engine:      engine,
		baud:        b.baud,
		statsPeriod: b.statsPeriod,
	}

	m.monitor = NewLinkMonitor(b.store, b.store, b.clock,
		b.statsPeriod, b.connectionTimeout)

	m.primary = b.buildChannel(name+".Primary",
		b.primaryPort, transport.NoPort, engine, m.monitor)
	m.secondary = b.buildChannel(name+".Secondary",
		b.secondaryPort, b.overridePort, engine, nil)

	m.monitor.addSource(m.primary)
	m.monitor.addSource(m.secondary)

	return m
}

func (b Builder) buildChannel(
	name string,
	defaultPort, overridePort transport.Port,
	timers TimerArmer,
	monitor *LinkMonitor,
) *Channel {
	lanes := queueing.NewLanes(name, b.queueSize, b.priorityLane)
	c := newChannel(name, b.sw, defaultPort, overridePort, lanes)

	c.session = b.opener(c.send)
	c.scheduler = NewScheduler(b.store, timers, lanes)
	c.dispatcher = &Dispatcher{
		name:           name + ".Dispatcher",
		reg:            b.store,
		scheduler:      c.scheduler,
		session:        c.session,
		counters:       &c.counters,
		monitor:        monitor,
		requestTimeout: b.requestTimeout,
		maxRetries:     b.maxRetries,
	}

	return c
}

func (b Builder) mustBeValid() {
	if b.store == nil {
		log.Panic("telemetry module needs a store")
	}

	if b.sw == nil {
		log.Panic("telemetry module needs a port switch")
	}

	if b.opener == nil {
		log.Panic("telemetry module needs a protocol opener")
	}

	if b.queueSize <= 0 {
		log.Panicf("queue size %d is not positive", b.queueSize)
	}

	if b.maxRetries < 0 {
		log.Panicf("max retries %d is negative", b.maxRetries)
	}

	if b.statsPeriod <= 0 || b.requestTimeout <= 0 {
		log.Panic("telemetry periods and timeouts must be positive")
	}
}
