package telemetry

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/uavlink/hooking"
	"github.com/sarchlab/uavlink/protocol"
	"github.com/sarchlab/uavlink/uavobj"
)

var _ = Describe("LinkMonitor", func() {
	var (
		reg       *uavobj.MemRegistry
		clock     *fakeClock
		primary   *fakeSource
		secondary *fakeSource
		published *sliceSink
		monitor   *LinkMonitor
	)

	BeforeEach(func() {
		reg = uavobj.NewMemRegistry()
		reg.SetAlarm(uavobj.AlarmTelemetry, uavobj.AlarmError)
		clock = newFakeClock()
		primary = &fakeSource{}
		secondary = &fakeSource{}

		published = &sliceSink{}
		reg.ConnectQueue(reg.FlightStatsObject(), published,
			uavobj.MaskOf(uavobj.EventUpdatedManual))

		monitor = NewLinkMonitor(reg, reg, clock,
			DefaultStatsPeriod, DefaultConnectionTimeout)
		monitor.addSource(primary)
		monitor.addSource(secondary)
	})

	tick := func() {
		clock.Advance(DefaultStatsPeriod)
		monitor.Update()
	}

	peer := func(s uavobj.LinkStatus) {
		reg.SetPeerStats(uavobj.LinkStats{Status: s})
	}

	It("should run the handshake and drop the link on silence", func() {
		peer(uavobj.LinkHandshakeReq)
		tick()

		Expect(reg.LinkStats().Status).To(Equal(uavobj.LinkHandshakeAck))
		Expect(published.kinds()).To(HaveLen(1))

		primary.next = channelCounters{
			session: protocol.Stats{TxBytes: 100, RxObjects: 1},
		}
		peer(uavobj.LinkConnected)
		tick()

		Expect(reg.LinkStats()).To(Equal(uavobj.LinkStats{
			Status: uavobj.LinkConnected,
		}))
		Expect(published.kinds()).To(HaveLen(2))
		Expect(reg.AlarmSeverity(uavobj.AlarmTelemetry)).
			To(Equal(uavobj.AlarmOK))

		primary.next = channelCounters{
			session:   protocol.Stats{TxBytes: 400, RxBytes: 80, RxObjects: 2},
			txErrors:  1,
			txRetries: 3,
		}
		secondary.next = channelCounters{
			session: protocol.Stats{TxBytes: 400, RxCRCErrors: 1},
		}
		tick()

		stats := reg.LinkStats()
		Expect(stats.Status).To(Equal(uavobj.LinkConnected))
		Expect(stats.TxBytes).To(Equal(uint32(800)))
		Expect(stats.TxDataRate).To(BeNumerically("~", 200.0))
		Expect(stats.RxBytes).To(Equal(uint32(80)))
		Expect(stats.RxDataRate).To(BeNumerically("~", 20.0))
		Expect(stats.TxFailures).To(Equal(uint32(1)))
		Expect(stats.TxRetries).To(Equal(uint32(3)))
		Expect(stats.RxCRCErrors).To(Equal(uint32(1)))
		Expect(published.kinds()).To(HaveLen(2))

		tick()
		tick()
		Expect(reg.LinkStats().Status).To(Equal(uavobj.LinkConnected))
		Expect(reg.LinkStats().TxBytes).To(Equal(uint32(800)))

		tick()

		Expect(reg.LinkStats()).To(Equal(uavobj.LinkStats{
			Status: uavobj.LinkDisconnected,
		}))
		Expect(published.kinds()).To(HaveLen(3))
	})

	It("should go back to disconnected when the peer gives up", func() {
		peer(uavobj.LinkHandshakeReq)
		tick()

		peer(uavobj.LinkDisconnected)
		tick()

		Expect(reg.LinkStats().Status).To(Equal(uavobj.LinkDisconnected))
	})

	It("should wait in handshake ack while the peer keeps asking", func() {
		peer(uavobj.LinkHandshakeReq)
		tick()
		tick()

		Expect(reg.LinkStats().Status).To(Equal(uavobj.LinkHandshakeAck))
		Expect(published.kinds()).To(HaveLen(2))
	})

	It("should correct an unknown local state", func() {
		reg.SetLinkStats(uavobj.LinkStats{Status: uavobj.LinkHandshakeReq})

		tick()

		Expect(reg.LinkStats().Status).To(Equal(uavobj.LinkDisconnected))
	})

	It("should hold the counters at zero while disconnected", func() {
		primary.next = channelCounters{
			session: protocol.Stats{TxBytes: 400, RxBytes: 400},
		}

		tick()

		Expect(reg.LinkStats()).To(Equal(uavobj.LinkStats{}))
	})

	It("should drop the link when the peer stops reporting connected", func() {
		peer(uavobj.LinkHandshakeReq)
		tick()
		peer(uavobj.LinkConnected)
		tick()

		primary.next = channelCounters{session: protocol.Stats{RxObjects: 1}}
		peer(uavobj.LinkHandshakeReq)
		tick()

		Expect(reg.LinkStats().Status).To(Equal(uavobj.LinkDisconnected))
	})

	It("should run immediately on peer changes only during the handshake", func() {
		peer(uavobj.LinkHandshakeReq)
		monitor.PeerStatusUpdated()
		Expect(reg.LinkStats().Status).To(Equal(uavobj.LinkHandshakeAck))

		peer(uavobj.LinkConnected)
		monitor.PeerStatusUpdated()
		Expect(reg.LinkStats().Status).To(Equal(uavobj.LinkConnected))

		n := len(published.kinds())
		monitor.PeerStatusUpdated()
		Expect(published.kinds()).To(HaveLen(n))
	})

	It("should track the last reception independently of the state", func() {
		primary.next = channelCounters{session: protocol.Stats{RxObjects: 3}}

		tick()

		Expect(monitor.LastRx()).To(Equal(clock.Now()))
	})

	It("should report transitions to hooks", func() {
		var tr LinkTransition
		monitor.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			tr = ctx.Detail.(LinkTransition)
		}))

		peer(uavobj.LinkHandshakeReq)
		tick()

		Expect(tr.From).To(Equal(uavobj.LinkDisconnected))
		Expect(tr.To).To(Equal(uavobj.LinkHandshakeAck))
		Expect(tr.Peer).To(Equal(uavobj.LinkHandshakeReq))
		Expect(tr.Published).To(BeTrue())
	})

	DescribeTable("nextStatus",
		func(local, peer uavobj.LinkStatus, timedOut bool,
			want uavobj.LinkStatus, force bool,
		) {
			got, published := nextStatus(local, peer, timedOut)

			Expect(got).To(Equal(want))
			Expect(published).To(Equal(force))
		},
		Entry(nil, uavobj.LinkDisconnected, uavobj.LinkDisconnected, false,
			uavobj.LinkDisconnected, true),
		Entry(nil, uavobj.LinkDisconnected, uavobj.LinkHandshakeReq, true,
			uavobj.LinkHandshakeAck, true),
		Entry(nil, uavobj.LinkHandshakeAck, uavobj.LinkConnected, false,
			uavobj.LinkConnected, true),
		Entry(nil, uavobj.LinkConnected, uavobj.LinkConnected, false,
			uavobj.LinkConnected, false),
		Entry(nil, uavobj.LinkConnected, uavobj.LinkConnected, true,
			uavobj.LinkDisconnected, true),
	)
})

var _ = Describe("LinkMonitor timing", func() {
	It("should start the silence window at construction", func() {
		clock := newFakeClock()
		reg := uavobj.NewMemRegistry()
		monitor := NewLinkMonitor(reg, reg, clock, time.Second, time.Minute)

		Expect(monitor.LastRx()).To(Equal(clock.Now()))
	})
})
