package sim

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ystepanoff/otplat/engine"
	"github.com/ystepanoff/otplat/settings"
)

const (
	minChannel = 11
	maxChannel = 26
)

func (e *Engine) DatasetGetActive(ds *engine.RawDataset) engine.Status {
	if !e.hasActive {
		return engine.StatusNotFound
	}
	*ds = e.active
	return engine.StatusNone
}

func (e *Engine) DatasetSetActive(ds *engine.RawDataset) engine.Status {
	if st := validateDataset(ds); st != engine.StatusNone {
		return st
	}

	old, had := e.active, e.hasActive
	e.active, e.hasActive = *ds, true
	e.persistDataset()

	changed := engine.ActiveDatasetChanged
	if had {
		changed |= datasetChanges(&old, ds)
	}
	e.notify(changed)

	if e.threadUp {
		e.programRadio()
	}
	return engine.StatusNone
}

func validateDataset(ds *engine.RawDataset) engine.Status {
	c := ds.Components
	if c&^engine.AllComponents != 0 {
		return engine.StatusInvalidArgs
	}
	if c.Has(engine.ComponentChannel) && (ds.Channel < minChannel || ds.Channel > maxChannel) {
		return engine.StatusInvalidArgs
	}
	if c.Has(engine.ComponentPanID) && ds.PanID == 0xFFFF {
		return engine.StatusInvalidArgs
	}
	if c.Has(engine.ComponentNetworkName) && bytes.IndexByte(ds.NetworkName[:], 0) < 0 {
		return engine.StatusInvalidArgs
	}
	return engine.StatusNone
}

func datasetChanges(old, cur *engine.RawDataset) engine.ChangedFlags {
	var f engine.ChangedFlags
	if old.Channel != cur.Channel {
		f |= engine.ThreadNetworkChannelChanged
	}
	if old.PanID != cur.PanID {
		f |= engine.ThreadPanIdChanged
	}
	if old.NetworkName != cur.NetworkName {
		f |= engine.ThreadNetworkNameChanged
	}
	if old.ExtendedPanID != cur.ExtendedPanID {
		f |= engine.ThreadExtendedPanIdChanged
	}
	if old.NetworkKey != cur.NetworkKey {
		f |= engine.ThreadNetworkKeyChanged
	}
	if old.PSKc != cur.PSKc {
		f |= engine.ThreadPskcChanged
	}
	if old.SecurityPolicy != cur.SecurityPolicy {
		f |= engine.ThreadSecurityPolicyChanged
	}
	if old.ChannelMask != cur.ChannelMask {
		f |= engine.SupportedChannelMaskChanged
	}
	return f
}

func (e *Engine) persistDataset() {
	data, err := settings.Marshal(&e.active)
	if err != nil {
		e.log.Error().Err(err).Msg("encode dataset")
		return
	}
	if st := e.p.SettingsSet(KeyActiveDataset, data); st != engine.StatusNone {
		e.log.Warn().Stringer("status", st).Msg("persist dataset")
	}
}

func (e *Engine) restoreDataset() {
	data, st := e.p.SettingsGet(KeyActiveDataset, 0)
	if st != engine.StatusNone {
		return
	}
	var ds engine.RawDataset
	if err := settings.Unmarshal(data, &ds); err != nil {
		e.log.Warn().Err(err).Msg("discarding stored dataset")
		return
	}
	if validateDataset(&ds) != engine.StatusNone {
		e.log.Warn().Msg("discarding invalid stored dataset")
		return
	}
	e.active, e.hasActive = ds, true
}

// loadExtAddress returns the stored extended address, generating and
// storing one on first start.
func (e *Engine) loadExtAddress() uint64 {
	if data, st := e.p.SettingsGet(KeyExtAddress, 0); st == engine.StatusNone && len(data) == 8 {
		return binary.LittleEndian.Uint64(data)
	}

	var b [8]byte
	if st := e.p.EntropyGet(b[:]); st != engine.StatusNone {
		e.log.Warn().Stringer("status", st).Msg("entropy unavailable for extended address")
	}
	b[7] &^= 0x01 // unicast
	b[7] |= 0x02  // locally administered
	if st := e.p.SettingsSet(KeyExtAddress, b[:]); st != engine.StatusNone {
		e.log.Warn().Stringer("status", st).Msg("persist extended address")
	}
	return binary.LittleEndian.Uint64(b[:])
}

func formatExt(ext uint64) string {
	return fmt.Sprintf("%016x", ext)
}
