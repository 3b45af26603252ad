// Package transport maps logical port ids to byte devices.
package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Port identifies a transport. The zero Port means no transport.
type Port uint32

// NoPort is the absent transport.
const NoPort Port = 0

var (
	// ErrNoPort is returned when no device is attached to the port.
	ErrNoPort = errors.New("transport: no such port")

	// ErrUnavailable is returned when the device exists but is not usable,
	// for example a USB cable that is not plugged in.
	ErrUnavailable = errors.New("transport: port unavailable")
)

// BaudRates lists the line speeds a port can be switched to.
var BaudRates = []int{2400, 4800, 9600, 19200, 38400, 57600, 115200}

// ValidBaud tells if rate is one of BaudRates.
func ValidBaud(rate int) bool {
	for _, r := range BaudRates {
		if r == rate {
			return true
		}
	}

	return false
}

// A Device moves bytes over one physical or virtual link.
type Device interface {
	Write(buf []byte) (int, error)

	// Read waits up to timeout for at least one byte.
	Read(buf []byte, timeout time.Duration) (int, error)

	SetBaud(rate int) error
	Available() bool
	Close() error
}

// A Switch owns the attached devices and routes byte traffic by port id.
type Switch struct {
	lock    sync.RWMutex
	devices map[Port]Device
}

// NewSwitch creates an empty switch.
func NewSwitch() *Switch {
	return &Switch{
		devices: make(map[Port]Device),
	}
}

// Attach connects a device to a port. Attaching to NoPort panics.
func (s *Switch) Attach(p Port, d Device) {
	if p == NoPort {
		panic("cannot attach a device to NoPort")
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.devices[p] = d
}

// Detach disconnects the device of a port without closing it.
func (s *Switch) Detach(p Port) {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.devices, p)
}

func (s *Switch) device(p Port) (Device, error) {
	if p == NoPort {
		return nil, ErrNoPort
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	d, found := s.devices[p]
	if !found {
		return nil, ErrNoPort
	}

	return d, nil
}

// Available tells if the port has a usable device.
func (s *Switch) Available(p Port) bool {
	d, err := s.device(p)
	if err != nil {
		return false
	}

	return d.Available()
}

// SendBytes writes buf to the port.
func (s *Switch) SendBytes(p Port, buf []byte) (int, error) {
	d, err := s.device(p)
	if err != nil {
		return 0, err
	}

	if !d.Available() {
		return 0, ErrUnavailable
	}

	return d.Write(buf)
}

// ReceiveBytes waits up to timeout for bytes from the port. It returns the
// number of bytes read; errors count as nothing received.
func (s *Switch) ReceiveBytes(p Port, buf []byte, timeout time.Duration) int {
	d, err := s.device(p)
	if err != nil || !d.Available() {
		return 0
	}

	n, err := d.Read(buf, timeout)
	if err != nil {
		return 0
	}

	return n
}

// ChangeBaud switches the line speed of the port.
func (s *Switch) ChangeBaud(p Port, rate int) error {
	if !ValidBaud(rate) {
		return fmt.Errorf("transport: unsupported baud rate %d", rate)
	}

	d, err := s.device(p)
	if err != nil {
		return err
	}

	return d.SetBaud(rate)
}

// Close closes every attached device.
func (s *Switch) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	var errs []error
	for p, d := range s.devices {
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("port %d: %w", p, err))
		}
		delete(s.devices, p)
	}

	return errors.Join(errs...)
}
