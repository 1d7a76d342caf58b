package sim

import (
	"encoding/binary"
	"errors"

	"github.com/ystepanoff/otplat/engine"
)

// Frame is one UDP datagram carried in a single 802.15.4 data frame.
// Layout (multi-byte MAC fields little-endian, ports big-endian):
//
//	FCF(2) | Seq(1) | DstPAN(2) | DstShort(2) | SrcExt(8) |
//	Dispatch(1) | Src(16) | Dst(16) | SrcPort(2) | DstPort(2) | Payload | FCS(2)
//
// The dispatch byte sits in the 6LoWPAN "not a LoWPAN frame" range so
// real stacks ignore these frames.
type Frame struct {
	Seq      uint8
	PanID    uint16
	DstShort uint16
	SrcExt   uint64
	Src      [16]byte
	Dst      [16]byte
	SrcPort  uint16
	DstPort  uint16
	Payload  []byte
}

const (
	// Data frame, PAN ID compression, short dst, 2006 version, extended src.
	frameControl uint16 = 0x0001 | 0x0040 | 2<<10 | 1<<12 | 3<<14

	dispatchUDP = 0x3F

	macHeaderSize   = 15
	frameHeaderSize = macHeaderSize + 1 + 16 + 16 + 2 + 2
	fcsSize         = 2

	// MaxFramePayload is the largest datagram one frame carries.
	MaxFramePayload = engine.MaxPSDU - frameHeaderSize - fcsSize

	broadcastShort uint16 = 0xFFFF
)

var ErrFrameTooLarge = errors.New("sim: datagram does not fit one frame")

// EncodeFrame writes f into buf, which must hold engine.MaxPSDU bytes,
// and returns the PSDU length. The FCS bytes are left for the radio.
func EncodeFrame(f *Frame, buf []byte) (int, error) {
	if len(f.Payload) > MaxFramePayload {
		return 0, ErrFrameTooLarge
	}
	n := frameHeaderSize + len(f.Payload) + fcsSize

	binary.LittleEndian.PutUint16(buf[0:2], frameControl)
	buf[2] = f.Seq
	binary.LittleEndian.PutUint16(buf[3:5], f.PanID)
	binary.LittleEndian.PutUint16(buf[5:7], f.DstShort)
	binary.LittleEndian.PutUint64(buf[7:15], f.SrcExt)
	buf[15] = dispatchUDP
	copy(buf[16:32], f.Src[:])
	copy(buf[32:48], f.Dst[:])
	binary.BigEndian.PutUint16(buf[48:50], f.SrcPort)
	binary.BigEndian.PutUint16(buf[50:52], f.DstPort)
	copy(buf[frameHeaderSize:], f.Payload)
	buf[n-2], buf[n-1] = 0, 0
	return n, nil
}

// DecodeFrame parses a received PSDU. It returns nil for frames that are
// not simulated UDP frames. Payload aliases psdu.
func DecodeFrame(psdu []byte) *Frame {
	if len(psdu) < frameHeaderSize+fcsSize {
		return nil
	}
	if binary.LittleEndian.Uint16(psdu[0:2]) != frameControl || psdu[15] != dispatchUDP {
		return nil
	}

	f := &Frame{
		Seq:      psdu[2],
		PanID:    binary.LittleEndian.Uint16(psdu[3:5]),
		DstShort: binary.LittleEndian.Uint16(psdu[5:7]),
		SrcExt:   binary.LittleEndian.Uint64(psdu[7:15]),
		SrcPort:  binary.BigEndian.Uint16(psdu[48:50]),
		DstPort:  binary.BigEndian.Uint16(psdu[50:52]),
		Payload:  psdu[frameHeaderSize : len(psdu)-fcsSize],
	}
	copy(f.Src[:], psdu[16:32])
	copy(f.Dst[:], psdu[32:48])
	return f
}
