package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
)

const serialPollTimeout = 50 * time.Millisecond

// A SerialDevice is a UART opened through the operating system.
type SerialDevice struct {
	lock sync.RWMutex
	name string
	baud int
	port io.ReadWriteCloser
}

// OpenSerial opens the named serial port at the given line speed.
func OpenSerial(name string, baud int) (*SerialDevice, error) {
	if name == "" {
		return nil, errors.New("transport: serial port name is empty")
	}

	d := &SerialDevice{name: name}
	if err := d.open(baud); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *SerialDevice) open(baud int) error {
	config := &serial.Config{
		Name:        d.name,
		Baud:        baud,
		Parity:      serial.ParityNone,
		ReadTimeout: serialPollTimeout,
	}

	port, err := serial.OpenPort(config)
	if err != nil {
		return fmt.Errorf("transport: open %s: %w", d.name, err)
	}

	d.port = port
	d.baud = baud

	return nil
}

// Name returns the device path.
func (d *SerialDevice) Name() string {
	return d.name
}

// Baud returns the current line speed.
func (d *SerialDevice) Baud() int {
	d.lock.RLock()
	defer d.lock.RUnlock()

	return d.baud
}

func (d *SerialDevice) Write(buf []byte) (int, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	if d.port == nil {
		return 0, ErrUnavailable
	}

	return d.port.Write(buf)
}

// Read polls the port until at least one byte arrives or the timeout passes.
// A poll that times out with nothing to read reports io.EOF, which only means
// the line was quiet.
func (d *SerialDevice) Read(buf []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)

	for {
		n, err := d.readOnce(buf)
		if errors.Is(err, io.EOF) {
			err = nil
		}

		if err != nil || n > 0 {
			return n, err
		}

		if !time.Now().Before(deadline) {
			return 0, nil
		}
	}
}

func (d *SerialDevice) readOnce(buf []byte) (int, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()

	if d.port == nil {
		return 0, ErrUnavailable
	}

	return d.port.Read(buf)
}

// SetBaud reopens the port at a new line speed.
func (d *SerialDevice) SetBaud(rate int) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.port != nil && d.baud == rate {
		return nil
	}

	if d.port != nil {
		if err := d.port.Close(); err != nil {
			return fmt.Errorf("transport: close %s: %w", d.name, err)
		}
		d.port = nil
	}

	return d.open(rate)
}

// Available tells if the port is open.
func (d *SerialDevice) Available() bool {
	d.lock.RLock()
	defer d.lock.RUnlock()

	return d.port != nil
}

// Close closes the port.
func (d *SerialDevice) Close() error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.port == nil {
		return nil
	}

	err := d.port.Close()
	d.port = nil

	return err
}
