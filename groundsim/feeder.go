package groundsim

import (
	"context"
	"encoding/binary"
	"log"
	"sync"
	"time"

	"github.com/sarchlab/uavlink/uavobj"
)

// Setter stores object payloads.
type Setter interface {
	Set(id uavobj.ObjectID, inst uavobj.InstanceID, payload []byte) error
}

type feed struct {
	obj       uavobj.ObjectID
	instances int
	every     time.Duration
}

// A Feeder plays the vehicle's sensors and controllers. It writes a fresh
// payload into every instance of its objects at a fixed interval.
type Feeder struct {
	reg   Setter
	feeds []feed

	lock    sync.Mutex
	updates uint64
}

// NewFeeder creates a Feeder that writes into reg.
func NewFeeder(reg Setter) *Feeder {
	return &Feeder{reg: reg}
}

// Add schedules updates of an object. A zero interval never updates it.
func (f *Feeder) Add(obj uavobj.ObjectID, instances int, every time.Duration) {
	if every <= 0 {
		return
	}

	f.feeds = append(f.feeds, feed{obj: obj, instances: instances, every: every})
}

// Updates returns the number of payloads written so far.
func (f *Feeder) Updates() uint64 {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.updates
}

// Run writes payloads until ctx is cancelled.
func (f *Feeder) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for _, fd := range f.feeds {
		wg.Add(1)

		go func(fd feed) {
			defer wg.Done()
			f.run(ctx, fd)
		}(fd)
	}

	wg.Wait()
}

func (f *Feeder) run(ctx context.Context, fd feed) {
	ticker := time.NewTicker(fd.every)
	defer ticker.Stop()

	var seq uint32

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		seq++

		for i := 0; i < fd.instances; i++ {
			err := f.reg.Set(fd.obj, uavobj.InstanceID(i), payloadOf(seq, i))
			if err != nil {
				log.Printf("feeder: %v", err)
				continue
			}

			f.lock.Lock()
			f.updates++
			f.lock.Unlock()
		}
	}
}

func payloadOf(seq uint32, inst int) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf, seq)
	binary.LittleEndian.PutUint32(buf[4:], uint32(inst))

	return buf
}
