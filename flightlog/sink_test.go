package flightlog

import (
	"context"
	"database/sql"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/uavlink/datarecording"
	"github.com/sarchlab/uavlink/uavobj"
)

var _ = Describe("Sink", func() {
	var (
		db       *sql.DB
		recorder datarecording.DataRecorder
		sink     *Sink
	)

	BeforeEach(func() {
		var err error
		db, err = sql.Open("sqlite3",
			filepath.Join(GinkgoT().TempDir(), "log.sqlite3"))
		Expect(err).NotTo(HaveOccurred())

		recorder = datarecording.NewWithDB(db)
		sink = NewSink(recorder)
	})

	AfterEach(func() {
		db.Close()
	})

	It("should create the flight log table", func() {
		Expect(recorder.ListTables()).To(ConsistOf(TableName))
	})

	It("should read back what it wrote", func() {
		t0 := time.Unix(100, 0)

		Expect(sink.WriteLogRecord(uavobj.LogRecord{
			Obj: 4, Name: "Attitude", Instance: 1,
			Timestamp: t0, Payload: []byte{0xde, 0xad},
		})).To(Succeed())
		Expect(sink.WriteLogRecord(uavobj.LogRecord{
			Obj: 6, Name: "GPS", Instance: 0,
			Timestamp: t0.Add(time.Second), Payload: []byte{},
		})).To(Succeed())
		recorder.Flush()

		records, total, err := Read(context.Background(),
			datarecording.NewReaderWithDB(db), Filter{})

		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(2))
		Expect(sink.Written()).To(Equal(uint64(2)))
		Expect(records[0].Name).To(Equal("Attitude"))
		Expect(records[0].Obj).To(Equal(uavobj.ObjectID(4)))
		Expect(records[0].Instance).To(Equal(uavobj.InstanceID(1)))
		Expect(records[0].Payload).To(Equal([]byte{0xde, 0xad}))
		Expect(records[0].Timestamp.Equal(t0)).To(BeTrue())
		Expect(records[1].Payload).To(BeEmpty())
	})

	It("should filter by object name", func() {
		for i := 0; i < 3; i++ {
			Expect(sink.WriteLogRecord(uavobj.LogRecord{
				Name: "Attitude", Timestamp: time.Unix(int64(i), 0),
			})).To(Succeed())
			Expect(sink.WriteLogRecord(uavobj.LogRecord{
				Name: "GPS", Timestamp: time.Unix(int64(i), 0),
			})).To(Succeed())
		}
		recorder.Flush()

		records, total, err := Read(context.Background(),
			datarecording.NewReaderWithDB(db),
			Filter{Name: "GPS", Limit: 2})

		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(3))
		Expect(records).To(HaveLen(2))
		for _, r := range records {
			Expect(r.Name).To(Equal("GPS"))
		}
	})

	It("should serve as the registry's log sink", func() {
		reg := uavobj.NewMemRegistry().WithLogSink(sink)
		id := reg.Register("Baro", uavobj.Metadata{}, false, 1)
		Expect(reg.Set(id, 0, []byte{1, 2, 3})).To(Succeed())

		Expect(reg.WriteInstanceToLog(id, 0)).To(Succeed())
		recorder.Flush()

		records, _, err := Read(context.Background(),
			datarecording.NewReaderWithDB(db), Filter{Name: "Baro"})
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
		Expect(records[0].Payload).To(Equal([]byte{1, 2, 3}))
	})
})
