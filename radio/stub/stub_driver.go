// Package stub provides an in-memory radio driver for host-side testing.
package stub

import (
	"bytes"
	"sync"

	"github.com/ystepanoff/otplat/radio"
)

// Driver implements radio.Driver without hardware. Received frames are
// injected by the test; transmitted PSDUs are logged.
type Driver struct {
	mu       sync.Mutex
	rxBuf    radio.Ring
	txLog    [][]byte
	settings radio.Settings
	configs  int
	txDone   func()
	txErr    error
}

var _ radio.Driver = (*Driver)(nil)

func New() *Driver { return &Driver{} }

func (d *Driver) Configure(s radio.Settings) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settings = s
	d.configs++
	return nil
}

func (d *Driver) Transmit(psdu []byte) error {
	d.mu.Lock()
	if d.txErr != nil {
		err := d.txErr
		d.mu.Unlock()
		return err
	}
	frame := bytes.Clone(psdu)
	radio.SealFCS(frame)
	d.txLog = append(d.txLog, frame)
	done := d.txDone
	d.mu.Unlock()

	if done != nil {
		done()
	}
	return nil
}

func (d *Driver) SetTxDoneCallback(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.txDone = fn
}

func (d *Driver) RawReceived() (radio.RawFrame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rxBuf.Pop()
}

// InjectRx buffers psdu as if received on channel with the given RSSI.
func (d *Driver) InjectRx(psdu []byte, channel uint8, rssi int8) error {
	f, err := radio.NewRawFrame(psdu, channel, rssi)
	if err != nil {
		return err
	}
	d.InjectRaw(f)
	return nil
}

// InjectRaw buffers f unchanged.
func (d *Driver) InjectRaw(f radio.RawFrame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rxBuf.Push(f)
}

// Pending reports how many frames wait in the receive buffer.
func (d *Driver) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rxBuf.Len()
}

// GetTxLog returns a copy of every transmitted PSDU, FCS sealed.
func (d *Driver) GetTxLog() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.txLog))
	for i, f := range d.txLog {
		out[i] = bytes.Clone(f)
	}
	return out
}

func (d *Driver) ClearTxLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.txLog = d.txLog[:0]
}

// Settings returns the last configuration and how many times Configure ran.
func (d *Driver) Settings() (radio.Settings, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings, d.configs
}

// FailTransmit makes subsequent transmits return err (nil restores).
func (d *Driver) FailTransmit(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.txErr = err
}
