package uavobj

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type sliceSink struct {
	events []Event
	full   bool
}

func (s *sliceSink) Offer(ev Event) bool {
	if s.full {
		return false
	}

	s.events = append(s.events, ev)

	return true
}

type memLogSink struct {
	records []LogRecord
}

func (s *memLogSink) WriteLogRecord(rec LogRecord) error {
	s.records = append(s.records, rec)
	return nil
}

var _ = Describe("MemRegistry", func() {
	var (
		r    *MemRegistry
		gyro ObjectID
		sink *sliceSink
	)

	BeforeEach(func() {
		r = NewMemRegistry()
		gyro = r.Register("Gyro", Metadata{
			TelemetryMode:   UpdateModePeriodic,
			TelemetryPeriod: 100 * time.Millisecond,
		}, false, 1)
		sink = &sliceSink{}
	})

	It("should create the link statistics objects", func() {
		ids := r.Objects()
		Expect(ids).To(HaveLen(6))
		Expect(r.Name(r.FlightStatsObject())).To(Equal(FlightTelemetryStatsName))
		Expect(r.Name(r.PeerStatsObject())).To(Equal(GCSTelemetryStatsName))
	})

	It("should pair each object with a meta-object", func() {
		meta := r.LinkedObject(gyro)

		Expect(meta).To(Equal(gyro + 1))
		Expect(r.IsMetaObject(meta)).To(BeTrue())
		Expect(r.IsMetaObject(gyro)).To(BeFalse())
		Expect(r.LinkedObject(meta)).To(Equal(gyro))
		Expect(r.Metadata(meta)).To(Equal(MetaObjectMetadata))
	})

	It("should deliver only subscribed kinds", func() {
		r.ConnectQueue(gyro, sink, MaskOf(EventUpdatedManual))

		Expect(r.Set(gyro, 0, []byte{1})).To(Succeed())
		r.Updated(gyro, 0)

		Expect(sink.events).To(ConsistOf(
			Event{Obj: gyro, Instance: 0, Kind: EventUpdatedManual}))
	})

	It("should replace the mask when reconnecting", func() {
		r.ConnectQueue(gyro, sink, MaskOf(EventUpdatedManual))
		r.ConnectQueue(gyro, sink, MaskOf(EventUpdated))

		Expect(r.Subscription(gyro, sink)).To(Equal(MaskOf(EventUpdated)))
	})

	It("should count dropped events", func() {
		sink.full = true
		r.ConnectQueue(gyro, sink, MaskAllUpdates)

		r.Updated(gyro, 0)

		Expect(r.DroppedEvents()).To(Equal(uint64(1)))
	})

	It("should raise UPDATED on the meta-object when metadata changes", func() {
		meta := r.LinkedObject(gyro)
		r.ConnectQueue(meta, sink, MaskAllUpdates)

		r.SetMetadata(gyro, Metadata{TelemetryMode: UpdateModeManual})

		Expect(sink.events).To(ConsistOf(Event{Obj: meta, Kind: EventUpdated}))
		Expect(r.Metadata(gyro).TelemetryMode).To(Equal(UpdateModeManual))
	})

	It("should panic when setting metadata of a meta-object", func() {
		Expect(func() {
			r.SetMetadata(r.LinkedObject(gyro), Metadata{})
		}).To(Panic())
	})

	It("should write instances to the log sink", func() {
		logSink := &memLogSink{}
		r.WithLogSink(logSink)
		inst := r.CreateInstance(gyro)
		Expect(r.Set(gyro, inst, []byte{7, 8})).To(Succeed())

		Expect(r.WriteInstanceToLog(gyro, inst)).To(Succeed())

		Expect(logSink.records).To(HaveLen(1))
		Expect(logSink.records[0].Name).To(Equal("Gyro"))
		Expect(logSink.records[0].Instance).To(Equal(InstanceID(1)))
		Expect(logSink.records[0].Payload).To(Equal([]byte{7, 8}))
	})

	It("should refuse to log a missing instance", func() {
		Expect(r.WriteInstanceToLog(gyro, 4)).NotTo(Succeed())
	})

	It("should raise UPDATED on link stats only when they change", func() {
		r.ConnectQueue(r.FlightStatsObject(), sink, MaskAllUpdates)

		r.SetLinkStats(LinkStats{Status: LinkHandshakeAck})
		r.SetLinkStats(LinkStats{Status: LinkHandshakeAck})
		r.PublishLinkStats()

		Expect(sink.events).To(Equal([]Event{
			{Obj: r.FlightStatsObject(), Kind: EventUpdated},
			{Obj: r.FlightStatsObject(), Kind: EventUpdatedManual},
		}))
	})

	It("should clear alarms", func() {
		r.SetAlarm(AlarmTelemetry, AlarmError)
		Expect(r.AlarmSeverity(AlarmTelemetry)).To(Equal(AlarmError))

		r.ClearAlarm(AlarmTelemetry)
		Expect(r.AlarmSeverity(AlarmTelemetry)).To(Equal(AlarmOK))
	})
})

var _ = Describe("EventMask", func() {
	It("should never contain EventNone", func() {
		Expect(MaskAllUpdates.Has(EventNone)).To(BeFalse())
	})

	It("should print its kinds", func() {
		m := MaskOf(EventUpdated, EventLoggingManual)
		Expect(m.String()).To(Equal("{UPDATED,LOGGING_MANUAL}"))
	})
})
