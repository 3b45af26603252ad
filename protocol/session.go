// Package protocol defines the boundary between the telemetry engine and the
// object wire protocol. Framing, encoding and checksums live behind Session.
package protocol

import (
	"errors"
	"time"

	"github.com/sarchlab/uavlink/uavobj"
)

// ErrTimeout is returned when an acknowledgement or a requested object does
// not arrive in time.
var ErrTimeout = errors.New("protocol: timeout")

// SendFunc writes raw bytes to the link. It returns the number of bytes
// written.
type SendFunc func(buf []byte) (int, error)

// Stats are the counters a session accumulates between two reads.
type Stats struct {
	TxBytes      uint32
	RxBytes      uint32
	RxObjects    uint32
	RxErrors     uint32
	RxSyncErrors uint32
	RxCRCErrors  uint32
}

// A Session is one protocol endpoint. SendObject, RequestObject and
// GetAndResetStats are called from the transmit side, ProcessByte from the
// receive side.
type Session interface {
	// SendObject transmits an instance. When acked is set it blocks until
	// the peer acknowledges or the timeout passes.
	SendObject(
		obj uavobj.ObjectID,
		inst uavobj.InstanceID,
		acked bool,
		timeout time.Duration,
	) error

	// RequestObject asks the peer for an instance and waits for it.
	RequestObject(
		obj uavobj.ObjectID,
		inst uavobj.InstanceID,
		timeout time.Duration,
	) error

	// ProcessByte feeds one received byte to the session.
	ProcessByte(b byte)

	// GetAndResetStats returns the counters and zeroes them.
	GetAndResetStats() Stats
}

// An Opener creates a session that writes through send.
type Opener func(send SendFunc) Session
