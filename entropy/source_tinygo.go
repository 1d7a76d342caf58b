//go:build tinygo || baremetal

package entropy

import (
	"encoding/binary"
	"io"
	"machine"
)

// DefaultSource returns the chip's hardware RNG.
func DefaultSource() io.Reader { return rngReader{} }

type rngReader struct{}

func (rngReader) Read(p []byte) (int, error) {
	var word [4]byte
	n := 0
	for n < len(p) {
		v, err := machine.GetRNG()
		if err != nil {
			return n, err
		}
		binary.LittleEndian.PutUint32(word[:], v)
		n += copy(p[n:], word[:])
	}
	return n, nil
}
