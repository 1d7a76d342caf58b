// Package radio adapts an IEEE 802.15.4 radio driver to the protocol
// engine: the driver contract, the raw frame layout and the receive
// pipeline that feeds frames to the engine.
package radio

import "errors"

// MaxPSDU is the largest 802.15.4 PHY payload, FCS included.
const MaxPSDU = 127

// FCSSize is the length of the frame check sequence closing every PSDU.
const FCSSize = 2

var (
	ErrFrameTooLong = errors.New("radio: frame exceeds 127 bytes")
	ErrNoRadio      = errors.New("radio: no radio registered")
)

// Settings is the last-known addressing state of the radio. The zero
// value is the default until the engine configures it.
type Settings struct {
	Promiscuous  bool
	ExtAddress   uint64
	ShortAddress uint16
	PanID        uint16
	Channel      uint8
}

// RawFrame is a received frame as buffered by the driver.
//
//	Data[0]        PSDU length L (FCS included)
//	Data[1..L]     PSDU
//	Data[L-1]      RSSI in dBm (the radio overwrites the FCS)
//	Data[L]        hardware status byte
type RawFrame struct {
	Data    [MaxPSDU + 1]byte
	Channel uint8
}

// Len returns the PSDU length.
func (f *RawFrame) Len() int { return int(f.Data[0]) }

// PSDU returns the PSDU bytes.
func (f *RawFrame) PSDU() []byte { return f.Data[1 : 1+f.Len()] }

// Driver is the interface that wraps the radio operations the adaptation
// layer needs. RawReceived and the transmit-done callback are the only
// paths used from interrupt context.
type Driver interface {
	// Configure applies addressing and channel settings.
	Configure(s Settings) error
	// Transmit sends psdu; the last FCSSize bytes are filled by the radio.
	Transmit(psdu []byte) error
	// SetTxDoneCallback installs fn, called once per completed transmit.
	SetTxDoneCallback(fn func())
	// RawReceived pops the next buffered frame, if any.
	RawReceived() (RawFrame, bool)
}

// NewRawFrame builds a raw frame as a radio would buffer it, replacing the
// FCS with rssi and a status byte.
func NewRawFrame(psdu []byte, channel uint8, rssi int8) (RawFrame, error) {
	var f RawFrame
	if len(psdu) > MaxPSDU {
		return f, ErrFrameTooLong
	}
	f.Channel = channel
	f.Data[0] = byte(len(psdu))
	copy(f.Data[1:], psdu)
	if n := len(psdu); n >= FCSSize {
		f.Data[n-1] = byte(rssi)
		f.Data[n] = 0x80
	}
	return f, nil
}
