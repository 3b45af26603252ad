// Package groundsim simulates a ground control station on the far end of the
// telemetry link. It acknowledges objects, answers requests and runs the
// ground side of the connection handshake.
package groundsim

import (
	"encoding/binary"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/sarchlab/uavlink/protocol"
	"github.com/sarchlab/uavlink/uavobj"
)

// Registry is what the station reads and writes on the vehicle side.
type Registry interface {
	FlightStatsObject() uavobj.ObjectID
	LinkStats() uavobj.LinkStats
	PeerStats() uavobj.LinkStats
	SetPeerStats(s uavobj.LinkStats)
	InstanceData(id uavobj.ObjectID, inst uavobj.InstanceID) ([]byte, error)
}

const (
	headerSize = 8
	ackSize    = headerSize
)

// A Station is one simulated ground station. Every channel that opens a
// session talks to the same station.
type Station struct {
	reg        Registry
	lossRate   float64
	answerRate float64
	lossDelay  time.Duration

	lock  sync.Mutex
	rng   *rand.Rand
	sent  uint64
	acked uint64
	lost  uint64
}

// Builder builds stations.
type Builder struct {
	reg        Registry
	lossRate   float64
	answerRate float64
	lossDelay  time.Duration
	seed       int64
}

// MakeBuilder creates a builder for a lossless station.
func MakeBuilder() Builder {
	return Builder{
		answerRate: 1,
		lossDelay:  -1,
		seed:       1,
	}
}

// WithRegistry sets the vehicle-side registry.
func (b Builder) WithRegistry(reg Registry) Builder {
	b.reg = reg
	return b
}

// WithLossRate sets the probability that an acknowledgement is lost.
func (b Builder) WithLossRate(p float64) Builder {
	b.lossRate = p
	return b
}

// WithAnswerRate sets the probability that a request is answered.
func (b Builder) WithAnswerRate(p float64) Builder {
	b.answerRate = p
	return b
}

// WithLossDelay caps how long a lost acknowledgement is waited for. By
// default the full attempt timeout is waited.
func (b Builder) WithLossDelay(d time.Duration) Builder {
	b.lossDelay = d
	return b
}

// WithSeed sets the seed of the loss generator.
func (b Builder) WithSeed(seed int64) Builder {
	b.seed = seed
	return b
}

// Build creates the station.
func (b Builder) Build() *Station {
	if b.reg == nil {
		log.Panic("ground station needs a registry")
	}

	if b.lossRate < 0 || b.lossRate > 1 || b.answerRate < 0 || b.answerRate > 1 {
		log.Panicf("rates must be within [0, 1], got loss %f answer %f",
			b.lossRate, b.answerRate)
	}

	return &Station{
		reg:        b.reg,
		lossRate:   b.lossRate,
		answerRate: b.answerRate,
		lossDelay:  b.lossDelay,
		rng:        rand.New(rand.NewSource(b.seed)),
	}
}

// Open creates a session bound to a channel's send function. It satisfies
// protocol.Opener.
func (st *Station) Open(send protocol.SendFunc) protocol.Session {
	return &session{
		station: st,
		send:    send,
	}
}

// Counts reports how many objects were sent to the station, acknowledged and
// lost.
func (st *Station) Counts() (sent, acked, lost uint64) {
	st.lock.Lock()
	defer st.lock.Unlock()

	return st.sent, st.acked, st.lost
}

func (st *Station) roll(p float64) bool {
	st.lock.Lock()
	defer st.lock.Unlock()

	return st.rng.Float64() < p
}

func (st *Station) count(acked, lost bool) {
	st.lock.Lock()
	defer st.lock.Unlock()

	st.sent++
	if acked {
		st.acked++
	}
	if lost {
		st.lost++
	}
}

func (st *Station) waitLost(timeout time.Duration) {
	d := timeout
	if st.lossDelay >= 0 && st.lossDelay < d {
		d = st.lossDelay
	}

	time.Sleep(d)
}

// observe runs the ground side of the handshake after the vehicle's link
// record arrived. The station always answers with its own record.
func (st *Station) observe() {
	st.lock.Lock()
	defer st.lock.Unlock()

	flight := st.reg.LinkStats().Status
	gcs := st.reg.PeerStats()

	next := gcs.Status
	switch gcs.Status {
	case uavobj.LinkDisconnected:
		next = uavobj.LinkHandshakeReq
	case uavobj.LinkHandshakeReq:
		if flight == uavobj.LinkHandshakeAck || flight == uavobj.LinkConnected {
			next = uavobj.LinkConnected
		}
	case uavobj.LinkConnected:
		if flight == uavobj.LinkDisconnected {
			next = uavobj.LinkDisconnected
		}
	}

	gcs.Status = next
	st.reg.SetPeerStats(gcs)
}

func frame(obj uavobj.ObjectID, inst uavobj.InstanceID, payload []byte) []byte {
	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(obj))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(inst))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(len(payload)))
	copy(buf[headerSize:], payload)

	return buf
}
