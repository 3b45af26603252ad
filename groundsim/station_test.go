package groundsim

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/uavlink/protocol"
	"github.com/sarchlab/uavlink/telemetry"
	"github.com/sarchlab/uavlink/transport"
	"github.com/sarchlab/uavlink/uavobj"
)

var _ = Describe("Station", func() {
	var (
		reg     *uavobj.MemRegistry
		written [][]byte
		send    protocol.SendFunc
	)

	BeforeEach(func() {
		reg = uavobj.NewMemRegistry()
		written = nil
		send = func(buf []byte) (int, error) {
			written = append(written, append([]byte(nil), buf...))
			return len(buf), nil
		}
	})

	It("should frame and acknowledge objects", func() {
		obj := reg.Register("Attitude", uavobj.Metadata{}, false, 1)
		Expect(reg.Set(obj, 0, []byte{9, 9, 9})).To(Succeed())

		st := MakeBuilder().WithRegistry(reg).Build()
		s := st.Open(send)

		Expect(s.SendObject(obj, 0, true, time.Second)).To(Succeed())

		Expect(written).To(HaveLen(1))
		Expect(written[0]).To(HaveLen(headerSize + 3))
		Expect(s.GetAndResetStats()).To(Equal(protocol.Stats{
			TxBytes:   headerSize + 3,
			RxBytes:   ackSize,
			RxObjects: 1,
		}))
		Expect(s.GetAndResetStats()).To(Equal(protocol.Stats{}))
	})

	It("should time out when the acknowledgement is lost", func() {
		obj := reg.Register("Attitude", uavobj.Metadata{}, false, 1)
		st := MakeBuilder().
			WithRegistry(reg).
			WithLossRate(1).
			WithLossDelay(time.Millisecond).
			Build()
		s := st.Open(send)

		Expect(s.SendObject(obj, 0, true, time.Second)).
			To(MatchError(protocol.ErrTimeout))
		Expect(s.SendObject(obj, 0, false, time.Second)).To(Succeed())

		sent, acked, lost := st.Counts()
		Expect(sent).To(Equal(uint64(2)))
		Expect(acked).To(BeZero())
		Expect(lost).To(Equal(uint64(1)))
	})

	It("should pass transport errors through", func() {
		obj := reg.Register("Attitude", uavobj.Metadata{}, false, 1)
		st := MakeBuilder().WithRegistry(reg).Build()
		s := st.Open(func([]byte) (int, error) {
			return 0, transport.ErrNoPort
		})

		Expect(s.SendObject(obj, 0, false, time.Second)).
			To(MatchError(transport.ErrNoPort))
	})

	It("should answer requests", func() {
		obj := reg.Register("Settings", uavobj.Metadata{}, true, 1)
		st := MakeBuilder().WithRegistry(reg).Build()
		s := st.Open(send)

		Expect(s.RequestObject(obj, 0, time.Second)).To(Succeed())
		Expect(s.GetAndResetStats().RxObjects).To(Equal(uint32(1)))
	})

	It("should ignore requests when told so", func() {
		obj := reg.Register("Settings", uavobj.Metadata{}, true, 1)
		st := MakeBuilder().
			WithRegistry(reg).
			WithAnswerRate(0).
			WithLossDelay(0).
			Build()
		s := st.Open(send)

		Expect(s.RequestObject(obj, 0, time.Second)).
			To(MatchError(protocol.ErrTimeout))
	})

	It("should run the ground side of the handshake", func() {
		st := MakeBuilder().WithRegistry(reg).Build()
		s := st.Open(send)
		flight := reg.FlightStatsObject()

		Expect(s.SendObject(flight, 0, false, time.Second)).To(Succeed())
		Expect(reg.PeerStats().Status).To(Equal(uavobj.LinkHandshakeReq))

		reg.SetLinkStats(uavobj.LinkStats{Status: uavobj.LinkHandshakeAck})
		Expect(s.SendObject(flight, 0, false, time.Second)).To(Succeed())
		Expect(reg.PeerStats().Status).To(Equal(uavobj.LinkConnected))

		reg.SetLinkStats(uavobj.LinkStats{Status: uavobj.LinkDisconnected})
		Expect(s.SendObject(flight, 0, false, time.Second)).To(Succeed())
		Expect(reg.PeerStats().Status).To(Equal(uavobj.LinkDisconnected))

		Expect(s.GetAndResetStats().RxObjects).To(Equal(uint32(3)))
	})

	It("should count received bytes", func() {
		st := MakeBuilder().WithRegistry(reg).Build()
		s := st.Open(send)

		s.ProcessByte(1)
		s.ProcessByte(2)

		Expect(s.GetAndResetStats().RxBytes).To(Equal(uint32(2)))
	})

	It("should refuse bad rates", func() {
		Expect(func() {
			MakeBuilder().WithRegistry(reg).WithLossRate(2).Build()
		}).To(Panic())
	})
})

var _ = Describe("Telemetry against the station", func() {
	It("should connect and keep the link up", func() {
		reg := uavobj.NewMemRegistry()
		gyro := reg.Register("Gyro", uavobj.Metadata{
			TelemetryMode:   uavobj.UpdateModePeriodic,
			TelemetryPeriod: 20 * time.Millisecond,
			TelemetryAcked:  true,
		}, false, 1)
		Expect(reg.Set(gyro, 0, []byte{1, 2, 3, 4})).To(Succeed())

		sw := transport.NewSwitch()
		sw.Attach(1, transport.NewPipeDevice(256))

		st := MakeBuilder().
			WithRegistry(reg).
			WithLossRate(0.2).
			WithLossDelay(time.Millisecond).
			Build()

		module := telemetry.MakeBuilder().
			WithStore(reg).
			WithSwitch(sw).
			WithOpener(st.Open).
			WithPrimaryPort(1).
			WithRequestTimeout(10 * time.Millisecond).
			WithStatsPeriod(50 * time.Millisecond).
			WithConnectionTimeout(time.Second).
			Build("Telemetry")

		ctx, cancel := context.WithCancel(context.Background())
		defer func() {
			cancel()
			module.Wait()
		}()
		module.Start(ctx)

		Eventually(func() uavobj.LinkStatus {
			return reg.LinkStats().Status
		}, 3*time.Second).Should(Equal(uavobj.LinkConnected))

		Eventually(func() uint32 {
			return reg.LinkStats().TxBytes
		}, 3*time.Second).Should(BeNumerically(">", 0))

		Consistently(func() uavobj.LinkStatus {
			return reg.LinkStats().Status
		}, 300*time.Millisecond).Should(Equal(uavobj.LinkConnected))
	})
})
