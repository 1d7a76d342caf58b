// Package registry holds the state shared between the cooperative loop
// and interrupt context: the radio driver, the radio settings and the
// user's change callback. Every access runs inside one critical section.
package registry

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/ystepanoff/otplat/engine"
	"github.com/ystepanoff/otplat/internal/critical"
	"github.com/ystepanoff/otplat/radio"
)

var ErrRadioAttached = errors.New("registry: radio already attached")

// Registry is owned by one OpenThread instance. The zero value is not
// usable; call New.
type Registry struct {
	mu critical.Mutex

	radio    radio.Driver
	settings radio.Settings
	callback func(engine.ChangedFlags)

	log zerolog.Logger
}

func New(log zerolog.Logger) *Registry {
	return &Registry{log: log.With().Str("component", "registry").Logger()}
}

// Attach registers d as the radio.
func (r *Registry) Attach(d radio.Driver) error {
	var err error
	r.mu.With(func() {
		if r.radio != nil {
			err = ErrRadioAttached
			return
		}
		r.radio = d
	})
	return err
}

// Teardown clears every slot.
func (r *Registry) Teardown() {
	r.mu.With(func() {
		r.radio = nil
		r.settings = radio.Settings{}
		r.callback = nil
	})
}

// WithRadio runs f on the registered radio inside the critical section.
// ok is false when no radio is registered. f must be short and must not
// call back into r.
func WithRadio[T any](r *Registry, f func(radio.Driver) T) (result T, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.radio == nil {
		return result, false
	}
	return f(r.radio), true
}

// NextFrame pops the next raw frame buffered by the radio.
func (r *Registry) NextFrame() (radio.RawFrame, bool) {
	type popped struct {
		frame radio.RawFrame
		ok    bool
	}
	p, ok := WithRadio(r, func(d radio.Driver) popped {
		f, ok := d.RawReceived()
		return popped{f, ok}
	})
	return p.frame, ok && p.ok
}

var _ radio.FrameSource = (*Registry)(nil)

func (r *Registry) Settings() radio.Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

func (r *Registry) SetSettings(s radio.Settings) {
	r.mu.With(func() { r.settings = s })
}

// UpdateSettings applies f to the settings slot and returns the result.
func (r *Registry) UpdateSettings(f func(*radio.Settings)) radio.Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	f(&r.settings)
	return r.settings
}

// SetCallback replaces the change callback; nil clears it.
func (r *Registry) SetCallback(cb func(engine.ChangedFlags)) {
	r.mu.With(func() { r.callback = cb })
}

// Dispatch decodes a native flags word and hands it to the callback.
// Unknown bits are dropped and logged. The callback runs inside the
// critical section and must not call back into r.
func (r *Registry) Dispatch(bits uint32) {
	flags, unknown := engine.DecodeChangedFlags(bits)
	if unknown != 0 {
		r.log.Warn().Str("bits", flags.String()).Uint32("unknown", unknown).Msg("ignoring unknown change flags")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.callback != nil {
		r.callback(flags)
	}
}
