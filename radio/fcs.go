package radio

// FCS computes the 802.15.4 frame check sequence (CRC-16/KERMIT, reflected
// polynomial 0x8408, zero initial value) over data.
func FCS(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// SealFCS writes the FCS of psdu[:len-2] into its last two bytes, little
// endian. PSDUs shorter than the FCS are left untouched.
func SealFCS(psdu []byte) {
	n := len(psdu) - FCSSize
	if n < 0 {
		return
	}
	crc := FCS(psdu[:n])
	psdu[n] = byte(crc)
	psdu[n+1] = byte(crc >> 8)
}

// CheckFCS reports whether the trailing FCS of psdu is valid.
func CheckFCS(psdu []byte) bool {
	n := len(psdu) - FCSSize
	if n < 0 {
		return false
	}
	crc := FCS(psdu[:n])
	return psdu[n] == byte(crc) && psdu[n+1] == byte(crc>>8)
}
