package radio

import "encoding/binary"

// BroadcastPAN accepts frames on any PAN.
const BroadcastPAN = 0xFFFF

const (
	fcfDstModeShift = 10
	fcfAddrModeMask = 0x3
)

// DestinationPAN extracts the destination PAN id from a MAC header. ok is
// false when the frame carries no destination address or is truncated.
func DestinationPAN(psdu []byte) (pan uint16, ok bool) {
	if len(psdu) < 5 {
		return 0, false
	}
	fcf := binary.LittleEndian.Uint16(psdu[0:2])
	if (fcf>>fcfDstModeShift)&fcfAddrModeMask == 0 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(psdu[3:5]), true
}

// AcceptsPAN reports whether a radio filtering on own should keep psdu.
func AcceptsPAN(psdu []byte, own uint16) bool {
	pan, ok := DestinationPAN(psdu)
	if !ok {
		return true
	}
	return pan == BroadcastPAN || pan == own
}
