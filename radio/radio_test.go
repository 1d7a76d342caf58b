package radio

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ystepanoff/otplat/engine"
)

type sliceSource struct {
	frames []RawFrame
}

func (s *sliceSource) NextFrame() (RawFrame, bool) {
	if len(s.frames) == 0 {
		return RawFrame{}, false
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, true
}

type receivedFrame struct {
	psdu    []byte
	channel uint8
	info    engine.RxInfo
}

type recordingSink struct {
	got    []receivedFrame
	frames []*engine.RadioFrame
}

func (s *recordingSink) RadioReceiveDone(f *engine.RadioFrame, status engine.Status) {
	s.got = append(s.got, receivedFrame{
		psdu:    bytes.Clone(f.Payload()),
		channel: f.Channel,
		info:    f.RxInfo,
	})
	s.frames = append(s.frames, f)
}

func TestRSSIToLQI(t *testing.T) {
	tests := []struct {
		rssi int8
		want uint8
	}{
		{-100, 0},
		{-81, 0},
		{-80, 0},
		{-55, 127},
		{-30, 255},
		{-29, 255},
		{10, 255},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RSSIToLQI(tt.rssi), "rssi %d", tt.rssi)
	}
}

func TestFCS(t *testing.T) {
	// CRC-16/KERMIT check value.
	assert.Equal(t, uint16(0x2189), FCS([]byte("123456789")))

	psdu := []byte{0x41, 0xd8, 0x01, 0xcd, 0xab, 0, 0}
	SealFCS(psdu)
	assert.True(t, CheckFCS(psdu))

	psdu[2] ^= 0xFF
	assert.False(t, CheckFCS(psdu))
	assert.False(t, CheckFCS([]byte{1}))
}

func TestNewRawFrame(t *testing.T) {
	f, err := NewRawFrame([]byte{1, 2, 3, 4, 0, 0}, 15, -42)
	require.NoError(t, err)

	assert.Equal(t, 6, f.Len())
	assert.Equal(t, uint8(15), f.Channel)
	assert.Equal(t, int8(-42), int8(f.Data[5]))

	_, err = NewRawFrame(make([]byte, MaxPSDU+1), 11, 0)
	assert.ErrorIs(t, err, ErrFrameTooLong)
}

func TestPipelineDrain(t *testing.T) {
	a, _ := NewRawFrame([]byte{0x41, 0x88, 0x07, 0xaa, 0xbb, 0, 0}, 15, -55)
	b, _ := NewRawFrame([]byte{0x01, 0x02, 0, 0}, 26, -90)
	src := &sliceSource{frames: []RawFrame{a, b}}
	sink := &recordingSink{}

	p := NewPipeline(func() uint64 { return 1234 }, zerolog.Nop())
	n := p.Drain(src, sink)

	require.Equal(t, 2, n)
	require.Len(t, sink.got, 2)

	first := sink.got[0]
	assert.Equal(t, a.PSDU(), first.psdu)
	assert.Equal(t, uint8(15), first.channel)
	assert.Equal(t, int8(-55), first.info.RSSI)
	assert.Equal(t, uint8(127), first.info.LQI)
	assert.Equal(t, uint64(1234000), first.info.Timestamp)

	second := sink.got[1]
	assert.Equal(t, uint8(26), second.channel)
	assert.Equal(t, uint8(0), second.info.LQI)

	// The scratch frame is reused, never reallocated.
	assert.Same(t, sink.frames[0], sink.frames[1])
}

func TestPipelineDropsMalformed(t *testing.T) {
	var empty, huge RawFrame
	huge.Data[0] = 200
	good, _ := NewRawFrame([]byte{9, 9, 0, 0}, 11, -60)
	src := &sliceSource{frames: []RawFrame{empty, huge, good}}
	sink := &recordingSink{}

	n := NewPipeline(func() uint64 { return 0 }, zerolog.Nop()).Drain(src, sink)

	assert.Equal(t, 1, n)
	require.Len(t, sink.got, 1)
	assert.Equal(t, []byte{9, 9, byte(0xc4), 0x80}, sink.got[0].psdu)
}

func TestPipelineIdle(t *testing.T) {
	sink := &recordingSink{}
	n := NewPipeline(func() uint64 { return 0 }, zerolog.Nop()).Drain(&sliceSource{}, sink)

	assert.Zero(t, n)
	assert.Empty(t, sink.got)
}

func TestRing(t *testing.T) {
	var rb Ring
	for i := 0; i < RingCapacity; i++ {
		f, _ := NewRawFrame([]byte{byte(i), 0, 0}, 11, 0)
		assert.False(t, rb.Push(f))
	}
	f, _ := NewRawFrame([]byte{0xEE, 0, 0}, 11, 0)
	assert.True(t, rb.Push(f))
	assert.Equal(t, RingCapacity, rb.Len())

	got, ok := rb.Pop()
	require.True(t, ok)
	assert.Equal(t, byte(1), got.PSDU()[0])
}

func TestAcceptsPAN(t *testing.T) {
	// Data frame, short dst addressing, dst PAN 0x1234.
	psdu := []byte{0x41, 0x08, 0x01, 0x34, 0x12, 0xff, 0xff, 0, 0}
	pan, ok := DestinationPAN(psdu)
	require.True(t, ok)
	assert.Equal(t, uint16(0x1234), pan)

	assert.True(t, AcceptsPAN(psdu, 0x1234))
	assert.False(t, AcceptsPAN(psdu, 0x4321))

	psdu[3], psdu[4] = 0xff, 0xff
	assert.True(t, AcceptsPAN(psdu, 0x4321))

	// No destination address: always accepted.
	assert.True(t, AcceptsPAN([]byte{0x01, 0x00, 0x01, 0, 0}, 0x4321))
}
