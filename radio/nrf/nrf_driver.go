//go:build tinygo || baremetal

// Package nrf drives the nRF52840 radio peripheral in IEEE 802.15.4 mode.
// Receive and transmit completion are handled in the RADIO interrupt; the
// cooperative loop only pops buffered frames.
package nrf

import (
	"errors"
	"runtime/interrupt"
	"unsafe"

	"device/nrf"

	"github.com/ystepanoff/otplat/internal/critical"
	"github.com/ystepanoff/otplat/radio"
)

const (
	maxPSDU    = radio.MaxPSDU
	minChannel = 11
	maxChannel = 26
)

var (
	ErrInvalidChannel = errors.New("nrf: invalid channel (valid range: 11-26)")
	ErrBusy           = errors.New("nrf: transmit in progress")
	ErrInUse          = errors.New("nrf: radio already claimed")
)

// Driver implements radio.Driver on the on-chip radio. Only one may exist.
type Driver struct {
	// buf holds PHR followed by the PSDU, the layout the radio's DMA
	// expects. It is shared by receive and transmit.
	buf [maxPSDU + 1]byte

	mu       critical.Mutex
	rx       radio.Ring
	settings radio.Settings
	txDone   func()
	txActive bool
}

var _ radio.Driver = (*Driver)(nil)

// active is the driver the RADIO interrupt serves.
var active *Driver

// New powers up the radio and starts receiving on channel 11.
func New() (*Driver, error) {
	if active != nil {
		return nil, ErrInUse
	}
	d := &Driver{settings: radio.Settings{Channel: minChannel}}
	active = d

	startHFCLK()
	configureRadio()
	nrf.RADIO.FREQUENCY.Set(frequency(minChannel))

	nrf.RADIO.INTENSET.Set(nrf.RADIO_INTENSET_END)
	intr := interrupt.New(nrf.IRQ_RADIO, handleInterrupt)
	intr.SetPriority(0xc0)
	intr.Enable()

	d.startRx()
	return d, nil
}

func (d *Driver) Configure(s radio.Settings) error {
	if s.Channel < minChannel || s.Channel > maxChannel {
		return ErrInvalidChannel
	}
	var retune bool
	d.mu.With(func() {
		retune = s.Channel != d.settings.Channel
		d.settings = s
	})
	if retune {
		d.mu.With(func() {
			if d.txActive {
				return
			}
			disable()
			nrf.RADIO.FREQUENCY.Set(frequency(s.Channel))
			d.startRx()
		})
	}
	return nil
}

// Transmit copies psdu into the DMA buffer and starts sending. Completion
// is reported through the tx-done callback from the interrupt.
func (d *Driver) Transmit(psdu []byte) error {
	if len(psdu) > maxPSDU {
		return radio.ErrFrameTooLong
	}
	var err error
	d.mu.With(func() {
		if d.txActive {
			err = ErrBusy
			return
		}
		d.txActive = true
		disable()
		d.buf[0] = byte(len(psdu))
		copy(d.buf[1:], psdu)
		nrf.RADIO.PACKETPTR.Set(uint32(uintptr(unsafe.Pointer(&d.buf[0]))))
		nrf.RADIO.EVENTS_END.Set(0)
		nrf.RADIO.TASKS_TXEN.Set(1)
	})
	return err
}

func (d *Driver) SetTxDoneCallback(fn func()) {
	d.mu.With(func() { d.txDone = fn })
}

func (d *Driver) RawReceived() (f radio.RawFrame, ok bool) {
	d.mu.With(func() { f, ok = d.rx.Pop() })
	return f, ok
}

func (d *Driver) startRx() {
	nrf.RADIO.PACKETPTR.Set(uint32(uintptr(unsafe.Pointer(&d.buf[0]))))
	nrf.RADIO.EVENTS_END.Set(0)
	nrf.RADIO.TASKS_RXEN.Set(1)
}

func handleInterrupt(interrupt.Interrupt) {
	if d := active; d != nil && nrf.RADIO.EVENTS_END.Get() != 0 {
		nrf.RADIO.EVENTS_END.Set(0)
		d.onEnd()
	}
}

// onEnd runs in interrupt context.
func (d *Driver) onEnd() {
	if d.txActive {
		d.txActive = false
		disable()
		done := d.txDone
		d.startRx()
		if done != nil {
			done()
		}
		return
	}

	if nrf.RADIO.CRCSTATUS.Get() == nrf.RADIO_CRCSTATUS_CRCSTATUS_CRCOk {
		l := int(d.buf[0])
		if l >= radio.FCSSize && l <= maxPSDU {
			psdu := d.buf[1 : 1+l]
			if d.settings.Promiscuous || radio.AcceptsPAN(psdu, d.settings.PanID) {
				rssi := -int8(nrf.RADIO.RSSISAMPLE.Get())
				if f, err := radio.NewRawFrame(psdu, d.settings.Channel, rssi); err == nil {
					d.rx.Push(f)
				}
			}
		}
	}
	nrf.RADIO.TASKS_START.Set(1)
}
