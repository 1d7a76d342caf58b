package radio

import (
	"github.com/rs/zerolog"

	"github.com/ystepanoff/otplat/engine"
)

// FrameSource yields buffered raw frames; ok is false once drained.
type FrameSource interface {
	NextFrame() (frame RawFrame, ok bool)
}

// FrameSink consumes converted frames.
type FrameSink interface {
	RadioReceiveDone(frame *engine.RadioFrame, status engine.Status)
}

// Pipeline converts raw frames into the engine representation. It owns a
// single scratch frame that is overwritten on every iteration, so it
// must be drained from one execution context only and sinks must not
// retain the frame beyond the call.
type Pipeline struct {
	psdu  [engine.MaxPSDU]byte
	frame engine.RadioFrame
	now   func() uint64
	log   zerolog.Logger
}

// NewPipeline returns a pipeline stamping frames with now(), in ms.
func NewPipeline(now func() uint64, log zerolog.Logger) *Pipeline {
	p := &Pipeline{now: now, log: log.With().Str("component", "radio-rx").Logger()}
	p.frame.PSDU = p.psdu[:]
	return p
}

// Drain forwards every frame currently buffered in src to sink and
// returns how many were forwarded.
func (p *Pipeline) Drain(src FrameSource, sink FrameSink) int {
	n := 0
	for {
		raw, ok := src.NextFrame()
		if !ok {
			return n
		}
		if !p.load(&raw) {
			continue
		}
		sink.RadioReceiveDone(&p.frame, engine.StatusNone)
		n++
	}
}

func (p *Pipeline) load(raw *RawFrame) bool {
	l := raw.Len()
	if l < FCSSize || l > MaxPSDU {
		p.log.Warn().Int("len", l).Msg("dropping malformed frame")
		return false
	}
	rssi := int8(raw.Data[l-1])

	copy(p.psdu[:], raw.Data[1:1+l])
	p.frame.Length = uint16(l)
	p.frame.Channel = raw.Channel
	p.frame.RxInfo = engine.RxInfo{
		Timestamp: p.now() * 1000,
		RSSI:      rssi,
		LQI:       RSSIToLQI(rssi),
	}

	if e := p.log.Trace(); e.Enabled() {
		e.Hex("psdu", p.psdu[:l]).Uint8("channel", raw.Channel).Int8("rssi", rssi).Msg("rcv")
	}
	return true
}
