// Package flightlog stores the object instances the telemetry module logs.
package flightlog

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sarchlab/uavlink/datarecording"
	"github.com/sarchlab/uavlink/uavobj"
)

// TableName is the table that holds the flight log.
const TableName = "flight_log"

type entry struct {
	Obj       uint32
	Name      string
	Instance  uint16
	Timestamp int64
	Payload   string
}

// Sink writes log records into a DataRecorder.
type Sink struct {
	recorder datarecording.DataRecorder
	written  atomic.Uint64
}

// NewSink creates the flight log table in the recorder.
func NewSink(recorder datarecording.DataRecorder) *Sink {
	recorder.CreateTable(TableName, entry{})

	return &Sink{recorder: recorder}
}

// WriteLogRecord buffers one record. Records reach the database when the
// recorder flushes.
func (s *Sink) WriteLogRecord(rec uavobj.LogRecord) error {
	s.recorder.InsertData(TableName, entry{
		Obj:       uint32(rec.Obj),
		Name:      rec.Name,
		Instance:  uint16(rec.Instance),
		Timestamp: rec.Timestamp.UnixNano(),
		Payload:   hex.EncodeToString(rec.Payload),
	})

	s.written.Add(1)

	return nil
}

// Written returns the number of records accepted so far.
func (s *Sink) Written() uint64 {
	return s.written.Load()
}

// Filter selects records when reading the flight log back.
type Filter struct {
	// Name restricts the records to one object. Empty means all objects.
	Name   string
	Limit  int
	Offset int
}

// Read returns the records that match the filter in the order they were
// logged, together with the number of matches before pagination.
func Read(
	ctx context.Context,
	reader datarecording.DataReader,
	filter Filter,
) ([]uavobj.LogRecord, int, error) {
	reader.MapTable(TableName, entry{})

	params := datarecording.QueryParams{
		OrderBy: "Timestamp ASC",
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}

	if filter.Name != "" {
		params.Where = "Name = ?"
		params.Args = []any{filter.Name}
	}

	rows, total, err := reader.Query(ctx, TableName, params)
	if err != nil {
		return nil, 0, fmt.Errorf("read flight log: %w", err)
	}

	records := make([]uavobj.LogRecord, 0, len(rows))
	for _, row := range rows {
		e := row.(entry)

		payload, err := hex.DecodeString(e.Payload)
		if err != nil {
			return nil, 0, fmt.Errorf("decode payload of %s: %w", e.Name, err)
		}

		records = append(records, uavobj.LogRecord{
			Obj:       uavobj.ObjectID(e.Obj),
			Name:      e.Name,
			Instance:  uavobj.InstanceID(e.Instance),
			Timestamp: time.Unix(0, e.Timestamp),
			Payload:   payload,
		})
	}

	return records, total, nil
}
