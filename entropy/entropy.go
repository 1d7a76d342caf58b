// Package entropy fills engine buffers from a random source.
package entropy

import (
	"encoding/binary"
	"io"
	mrand "math/rand"
	"time"

	"github.com/ystepanoff/otplat/engine"
)

// Adapter serves the engine's entropy requests from src.
type Adapter struct {
	src io.Reader
}

// New returns an adapter reading from src, or from the platform's
// hardware source when src is nil.
func New(src io.Reader) *Adapter {
	if src == nil {
		src = DefaultSource()
	}
	return &Adapter{src: src}
}

// Fill fills buf completely. A short or failed read is StatusFailed.
func (a *Adapter) Fill(buf []byte) engine.Status {
	if _, err := io.ReadFull(a.src, buf); err != nil {
		return engine.StatusFailed
	}
	return engine.StatusNone
}

// Uint64 returns 64 random bits. If the source fails it falls back to
// math/rand seeded from the clock.
func (a *Adapter) Uint64() uint64 {
	var b [8]byte
	if a.Fill(b[:]) == engine.StatusNone {
		return binary.LittleEndian.Uint64(b[:])
	}
	src := mrand.NewSource(time.Now().UnixNano())
	return mrand.New(src).Uint64()
}
