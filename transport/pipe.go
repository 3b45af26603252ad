package transport

import (
	"sync"
	"sync/atomic"
	"time"
)

// A PipeDevice is an in-memory link. Bytes written to it are handed to the
// OnWrite callback, and bytes injected into it are returned by Read. It can be
// marked unavailable to model a cable being unplugged.
type PipeDevice struct {
	rx        chan byte
	available atomic.Bool
	baud      atomic.Int64

	lock    sync.Mutex
	onWrite func(buf []byte)
	written int
}

// NewPipeDevice creates an available pipe that buffers up to rxSize received
// bytes.
func NewPipeDevice(rxSize int) *PipeDevice {
	d := &PipeDevice{
		rx: make(chan byte, rxSize),
	}
	d.available.Store(true)
	d.baud.Store(57600)

	return d
}

// OnWrite sets the callback that receives written bytes. The callback must not
// keep buf.
func (d *PipeDevice) OnWrite(f func(buf []byte)) {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.onWrite = f
}

// SetAvailable plugs or unplugs the pipe.
func (d *PipeDevice) SetAvailable(available bool) {
	d.available.Store(available)
}

// Inject queues bytes to be read. Bytes beyond the buffer are dropped. It
// returns the number of bytes queued.
func (d *PipeDevice) Inject(buf []byte) int {
	for i, b := range buf {
		select {
		case d.rx <- b:
		default:
			return i
		}
	}

	return len(buf)
}

// Written returns the total number of bytes written.
func (d *PipeDevice) Written() int {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.written
}

// Baud returns the current line speed.
func (d *PipeDevice) Baud() int {
	return int(d.baud.Load())
}

func (d *PipeDevice) Write(buf []byte) (int, error) {
	if !d.available.Load() {
		return 0, ErrUnavailable
	}

	d.lock.Lock()
	d.written += len(buf)
	f := d.onWrite
	d.lock.Unlock()

	if f != nil {
		f(buf)
	}

	return len(buf), nil
}

func (d *PipeDevice) Read(buf []byte, timeout time.Duration) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case b := <-d.rx:
		buf[0] = b
	case <-t.C:
		return 0, nil
	}

	n := 1
	for n < len(buf) {
		select {
		case b := <-d.rx:
			buf[n] = b
			n++
		default:
			return n, nil
		}
	}

	return n, nil
}

func (d *PipeDevice) SetBaud(rate int) error {
	d.baud.Store(int64(rate))
	return nil
}

func (d *PipeDevice) Available() bool {
	return d.available.Load()
}

func (d *PipeDevice) Close() error {
	d.available.Store(false)
	return nil
}
