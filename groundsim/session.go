package groundsim

import (
	"sync"
	"time"

	"github.com/sarchlab/uavlink/protocol"
	"github.com/sarchlab/uavlink/uavobj"
)

type session struct {
	station *Station
	send    protocol.SendFunc

	lock  sync.Mutex
	stats protocol.Stats
}

func (s *session) addStats(f func(st *protocol.Stats)) {
	s.lock.Lock()
	defer s.lock.Unlock()

	f(&s.stats)
}

func (s *session) SendObject(
	obj uavobj.ObjectID,
	inst uavobj.InstanceID,
	acked bool,
	timeout time.Duration,
) error {
	if inst == uavobj.AllInstances {
		inst = 0
	}

	payload, err := s.station.reg.InstanceData(obj, inst)
	if err != nil {
		return err
	}

	n, err := s.send(frame(obj, inst, payload))
	if err != nil {
		return err
	}

	s.addStats(func(st *protocol.Stats) { st.TxBytes += uint32(n) })

	if acked && s.station.roll(s.station.lossRate) {
		s.station.count(false, true)
		s.station.waitLost(timeout)

		return protocol.ErrTimeout
	}

	s.station.count(acked, false)

	if acked {
		s.addStats(func(st *protocol.Stats) {
			st.RxObjects++
			st.RxBytes += ackSize
		})
	}

	if obj == s.station.reg.FlightStatsObject() {
		s.station.observe()
		s.addStats(func(st *protocol.Stats) {
			st.RxObjects++
			st.RxBytes += headerSize + uint32(len(payload))
		})
	}

	return nil
}

func (s *session) RequestObject(
	obj uavobj.ObjectID,
	inst uavobj.InstanceID,
	timeout time.Duration,
) error {
	if _, err := s.send(frame(obj, inst, nil)); err != nil {
		return err
	}

	s.addStats(func(st *protocol.Stats) { st.TxBytes += headerSize })

	if !s.station.roll(s.station.answerRate) {
		s.station.waitLost(timeout)
		return protocol.ErrTimeout
	}

	s.addStats(func(st *protocol.Stats) {
		st.RxObjects++
		st.RxBytes += headerSize
	})

	return nil
}

func (s *session) ProcessByte(byte) {
	s.addStats(func(st *protocol.Stats) { st.RxBytes++ })
}

func (s *session) GetAndResetStats() protocol.Stats {
	s.lock.Lock()
	defer s.lock.Unlock()

	stats := s.stats
	s.stats = protocol.Stats{}

	return stats
}
