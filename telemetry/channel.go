package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sarchlab/uavlink/protocol"
	"github.com/sarchlab/uavlink/queueing"
	"github.com/sarchlab/uavlink/transport"
	"github.com/sarchlab/uavlink/uavobj"
)

// PortSwitch moves bytes to and from transport ports.
type PortSwitch interface {
	SendBytes(p transport.Port, buf []byte) (int, error)
	ReceiveBytes(p transport.Port, buf []byte, timeout time.Duration) int
	ChangeBaud(p transport.Port, rate int) error
	Available(p transport.Port) bool
}

// A Channel is one link to the ground station.
type Channel struct {
	name string
	sw   PortSwitch

	defaultPort  transport.Port
	overridePort transport.Port
	activePort   atomic.Uint32

	lanes      *queueing.Lanes
	session    protocol.Session
	scheduler  *Scheduler
	dispatcher *Dispatcher
	counters   txCounters
}

func newChannel(
	name string,
	sw PortSwitch,
	defaultPort, overridePort transport.Port,
	lanes *queueing.Lanes,
) *Channel {
	c := &Channel{
		name:         name,
		sw:           sw,
		defaultPort:  defaultPort,
		overridePort: overridePort,
		lanes:        lanes,
	}
	c.selectPort()

	return c
}

// Name returns the name of the channel.
func (c *Channel) Name() string {
	return c.name
}

// Lanes returns the event lanes of the channel.
func (c *Channel) Lanes() *queueing.Lanes {
	return c.lanes
}

// Dispatcher returns the channel's dispatcher.
func (c *Channel) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// Scheduler returns the channel's scheduler.
func (c *Channel) Scheduler() *Scheduler {
	return c.scheduler
}

// ActivePort returns the port the channel last transmitted on.
func (c *Channel) ActivePort() transport.Port {
	return transport.Port(c.activePort.Load())
}

// selectPort picks the override port when it is available and the default
// port otherwise. The choice is remembered for the receive loop.
func (c *Channel) selectPort() transport.Port {
	p := c.defaultPort
	if c.overridePort != transport.NoPort && c.sw.Available(c.overridePort) {
		p = c.overridePort
	}

	c.activePort.Store(uint32(p))

	return p
}

// send is the byte writer handed to the protocol session.
func (c *Channel) send(buf []byte) (int, error) {
	p := c.selectPort()
	if p == transport.NoPort {
		return 0, transport.ErrNoPort
	}

	return c.sw.SendBytes(p, buf)
}

// channelCounters is what a channel contributes to one statistics period.
type channelCounters struct {
	session   protocol.Stats
	txErrors  uint32
	txRetries uint32
}

func (cc *channelCounters) add(o channelCounters) {
	cc.session.TxBytes += o.session.TxBytes
	cc.session.RxBytes += o.session.RxBytes
	cc.session.RxObjects += o.session.RxObjects
	cc.session.RxErrors += o.session.RxErrors
	cc.session.RxSyncErrors += o.session.RxSyncErrors
	cc.session.RxCRCErrors += o.session.RxCRCErrors
	cc.txErrors += o.txErrors
	cc.txRetries += o.txRetries
}

// takeCounters returns the counters of the period and resets them.
func (c *Channel) takeCounters() channelCounters {
	return channelCounters{
		session:   c.session.GetAndResetStats(),
		txErrors:  c.counters.errors.Swap(0),
		txRetries: c.counters.retries.Swap(0),
	}
}

func (c *Channel) process(ev uavobj.Event) {
	c.dispatcher.Process(ev)
}

// transmitOnce drains the priority lane, then handles at most one normal
// event. When both lanes are empty it waits briefly on the priority lane.
func (c *Channel) transmitOnce(ctx context.Context) {
	if c.lanes.Single() {
		if ev, ok := c.lanes.Low().PopWait(ctx, txWait); ok {
			c.process(ev)
		}

		return
	}

	for {
		ev, ok := c.lanes.High().TryPop()
		if !ok {
			break
		}

		c.process(ev)
	}

	if ev, ok := c.lanes.Low().TryPop(); ok {
		c.process(ev)
		return
	}

	if ev, ok := c.lanes.High().PopWait(ctx, txWait); ok {
		c.process(ev)
	}
}

func (c *Channel) transmitLoop(ctx context.Context) {
	for ctx.Err() == nil {
		c.transmitOnce(ctx)
	}
}

// receiveOnce feeds the bytes of one bounded read to the session. Without a
// usable port it idles instead.
func (c *Channel) receiveOnce(ctx context.Context, buf []byte) {
	p := c.ActivePort()
	if p == transport.NoPort || !c.sw.Available(p) {
		sleep(ctx, rxIdle)
		return
	}

	n := c.sw.ReceiveBytes(p, buf, rxWait)
	for _, b := range buf[:n] {
		c.session.ProcessByte(b)
	}
}

func (c *Channel) receiveLoop(ctx context.Context) {
	buf := make([]byte, rxBufferSize)

	for ctx.Err() == nil {
		c.receiveOnce(ctx, buf)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// QueueStatus is a snapshot of one event queue.
type QueueStatus struct {
	Name     string `json:"name"`
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
	Dropped  uint64 `json:"dropped"`
}

// ChannelStatus is a snapshot of one channel.
type ChannelStatus struct {
	Name        string         `json:"name"`
	ActivePort  transport.Port `json:"active_port"`
	Queues      []QueueStatus  `json:"queues"`
	Processed   uint64         `json:"processed"`
	LogFailures uint64         `json:"log_failures"`
	TxErrors    uint32         `json:"pending_tx_errors"`
	TxRetries   uint32         `json:"pending_tx_retries"`
}

// Status takes a snapshot of the channel.
func (c *Channel) Status() ChannelStatus {
	s := ChannelStatus{
		Name:        c.name,
		ActivePort:  c.ActivePort(),
		Processed:   c.dispatcher.Processed(),
		LogFailures: c.dispatcher.LogFailures(),
		TxErrors:    c.counters.errors.Load(),
		TxRetries:   c.counters.retries.Load(),
	}

	for _, q := range c.lanes.Queues() {
		s.Queues = append(s.Queues, QueueStatus{
			Name:     q.Name(),
			Size:     q.Size(),
			Capacity: q.Capacity(),
			Dropped:  q.Dropped(),
		})
	}

	return s
}
