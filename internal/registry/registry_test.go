package registry

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ystepanoff/otplat/engine"
	"github.com/ystepanoff/otplat/radio"
	"github.com/ystepanoff/otplat/radio/stub"
)

func TestWithRadioAbsent(t *testing.T) {
	r := New(zerolog.Nop())
	called := false
	v, ok := WithRadio(r, func(radio.Driver) int { called = true; return 1 })

	assert.False(t, ok)
	assert.Zero(t, v)
	assert.False(t, called)

	_, ok = r.NextFrame()
	assert.False(t, ok)
}

func TestAttachAndTeardown(t *testing.T) {
	r := New(zerolog.Nop())
	d := stub.New()
	require.NoError(t, r.Attach(d))
	assert.ErrorIs(t, r.Attach(stub.New()), ErrRadioAttached)

	v, ok := WithRadio(r, func(got radio.Driver) bool { return got == d })
	assert.True(t, ok)
	assert.True(t, v)

	r.SetSettings(radio.Settings{PanID: 1})
	r.SetCallback(func(engine.ChangedFlags) {})
	r.Teardown()

	_, ok = WithRadio(r, func(radio.Driver) int { return 0 })
	assert.False(t, ok)
	assert.Equal(t, radio.Settings{}, r.Settings())
	require.NoError(t, r.Attach(d))
}

func TestNextFrame(t *testing.T) {
	r := New(zerolog.Nop())
	d := stub.New()
	require.NoError(t, r.Attach(d))
	require.NoError(t, d.InjectRx([]byte{7, 0, 0}, 20, -60))

	f, ok := r.NextFrame()
	require.True(t, ok)
	assert.Equal(t, uint8(20), f.Channel)

	_, ok = r.NextFrame()
	assert.False(t, ok)
}

func TestSettings(t *testing.T) {
	r := New(zerolog.Nop())
	assert.Equal(t, radio.Settings{}, r.Settings())

	r.SetSettings(radio.Settings{Channel: 11})
	got := r.UpdateSettings(func(s *radio.Settings) { s.PanID = 0xabcd })

	assert.Equal(t, radio.Settings{Channel: 11, PanID: 0xabcd}, got)
	assert.Equal(t, got, r.Settings())
}

func TestDispatch(t *testing.T) {
	r := New(zerolog.Nop())
	r.Dispatch(uint32(engine.ThreadRoleChanged))

	var calls []engine.ChangedFlags
	r.SetCallback(func(f engine.ChangedFlags) { calls = append(calls, f) })
	r.Dispatch(uint32(engine.ThreadRoleChanged | engine.ThreadNetworkDataChanged))

	require.Len(t, calls, 1)
	assert.Equal(t, engine.ThreadRoleChanged|engine.ThreadNetworkDataChanged, calls[0])
}

func TestDispatchReplacesCallback(t *testing.T) {
	r := New(zerolog.Nop())
	first, second := 0, 0
	r.SetCallback(func(engine.ChangedFlags) { first++ })
	r.SetCallback(func(engine.ChangedFlags) { second++ })
	r.Dispatch(1)

	assert.Zero(t, first)
	assert.Equal(t, 1, second)

	r.SetCallback(nil)
	r.Dispatch(1)
	assert.Equal(t, 1, second)
}

func TestDispatchMasksUnknownBits(t *testing.T) {
	var buf bytes.Buffer
	r := New(zerolog.New(&buf))

	var got engine.ChangedFlags
	r.SetCallback(func(f engine.ChangedFlags) { got = f })
	r.Dispatch(uint32(engine.ActiveDatasetChanged) | 1<<31)

	assert.Equal(t, engine.ActiveDatasetChanged, got)
	assert.Contains(t, buf.String(), "ignoring unknown change flags")
}
