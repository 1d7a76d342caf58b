package otplat

import (
	"errors"

	"github.com/ystepanoff/otplat/engine"
	"github.com/ystepanoff/otplat/internal/registry"
	"github.com/ystepanoff/otplat/radio"
	"github.com/ystepanoff/otplat/settings"
)

// platform serves the engine's callbacks. Every method runs inside an
// engine call made from the cooperative loop.
type platform struct {
	ot *OpenThread
}

var _ engine.Platform = (*platform)(nil)

func (p *platform) AlarmMilliGetNow() uint32        { return p.ot.timer.Now32() }
func (p *platform) AlarmMilliStartAt(t0, dt uint32) { p.ot.timer.StartAt(t0, dt) }
func (p *platform) AlarmMilliStop()                 { p.ot.timer.Stop() }

func (p *platform) RadioTransmit(frame *engine.RadioFrame) engine.Status {
	p.ot.txFrame = frame
	err, ok := registry.WithRadio(p.ot.reg, func(d radio.Driver) error {
		return d.Transmit(frame.Payload())
	})
	switch {
	case !ok:
		p.ot.txFrame = nil
		return engine.StatusInvalidState
	case errors.Is(err, radio.ErrFrameTooLong):
		p.ot.txFrame = nil
		return engine.StatusInvalidArgs
	case err != nil:
		p.ot.txFrame = nil
		p.ot.log.Warn().Err(err).Msg("radio transmit")
		return engine.StatusFailed
	}
	return engine.StatusNone
}

func (p *platform) RadioReceive(channel uint8) engine.Status {
	if !p.configure(func(s *radio.Settings) { s.Channel = channel }) {
		return engine.StatusFailed
	}
	return engine.StatusNone
}

func (p *platform) RadioSetPanID(panID uint16) {
	p.configure(func(s *radio.Settings) { s.PanID = panID })
}

func (p *platform) RadioSetShortAddress(addr uint16) {
	p.configure(func(s *radio.Settings) { s.ShortAddress = addr })
}

func (p *platform) RadioSetExtendedAddress(ext uint64) {
	p.configure(func(s *radio.Settings) { s.ExtAddress = ext })
}

func (p *platform) RadioSetPromiscuous(enabled bool) {
	p.configure(func(s *radio.Settings) { s.Promiscuous = enabled })
}

func (p *platform) RadioGetPromiscuous() bool { return p.ot.reg.Settings().Promiscuous }

// configure updates the settings slot and pushes the result to the
// driver. It reports whether the driver accepted it.
func (p *platform) configure(update func(*radio.Settings)) bool {
	s := p.ot.reg.UpdateSettings(update)
	err, ok := registry.WithRadio(p.ot.reg, func(d radio.Driver) error {
		return d.Configure(s)
	})
	if !ok {
		return false
	}
	if err != nil {
		p.ot.log.Warn().Err(err).Msg("radio configure")
		return false
	}
	return true
}

func (p *platform) EntropyGet(buf []byte) engine.Status { return p.ot.rng.Fill(buf) }

func (p *platform) SettingsGet(key uint16, index int) ([]byte, engine.Status) {
	v, err := p.ot.store.Get(key, index)
	return v, p.settingsStatus(err)
}

func (p *platform) SettingsSet(key uint16, value []byte) engine.Status {
	return p.settingsStatus(p.ot.store.Set(key, value))
}

func (p *platform) SettingsAdd(key uint16, value []byte) engine.Status {
	return p.settingsStatus(p.ot.store.Add(key, value))
}

func (p *platform) SettingsDelete(key uint16, index int) engine.Status {
	return p.settingsStatus(p.ot.store.Delete(key, index))
}

func (p *platform) SettingsWipe() {
	if err := p.ot.store.Wipe(); err != nil {
		p.ot.log.Error().Err(err).Msg("settings wipe")
	}
}

func (p *platform) settingsStatus(err error) engine.Status {
	switch {
	case err == nil:
		return engine.StatusNone
	case errors.Is(err, settings.ErrNotFound):
		return engine.StatusNotFound
	default:
		p.ot.log.Error().Err(err).Msg("settings")
		return engine.StatusFailed
	}
}
