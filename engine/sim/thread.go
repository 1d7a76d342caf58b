package sim

import (
	"encoding/binary"
	"net/netip"
	"slices"
	"time"

	"github.com/ystepanoff/otplat/engine"
)

var defaultMeshLocalPrefix = [8]byte{0xfd, 0xde, 0xad, 0x00, 0xbe, 0xef, 0x00, 0x00}

const shortAddrUnassigned uint16 = 0xFFFE

func (e *Engine) IP6SetEnabled(enabled bool) engine.Status {
	if enabled == e.ip6Up {
		return engine.StatusNone
	}
	if !enabled {
		if e.threadUp {
			return engine.StatusInvalidState
		}
		e.ip6Up = false
		e.addrs = nil
		e.notify(engine.Ipv6AddressRemoved | engine.ThreadNetworkInterfaceStateChanged)
		return engine.StatusNone
	}

	e.ip6Up = true
	e.addAddress(e.linkLocal(), engine.AddressOriginThread)
	e.notify(engine.Ipv6AddressAdded | engine.ThreadLlAddressChanged | engine.ThreadNetworkInterfaceStateChanged)
	return engine.StatusNone
}

func (e *Engine) ThreadSetEnabled(enabled bool) engine.Status {
	if enabled == e.threadUp {
		return engine.StatusNone
	}
	if !enabled {
		e.threadUp = false
		e.role = engine.RoleDisabled
		e.rloc16 = shortAddrUnassigned
		e.p.AlarmMilliStop()
		e.txQueue = nil
		e.dropMeshAddresses()
		e.notify(engine.ThreadRoleChanged | engine.ThreadRlocRemoved | engine.Ipv6AddressRemoved)
		return engine.StatusNone
	}

	if !e.ip6Up || !e.hasActive {
		return engine.StatusInvalidState
	}
	e.threadUp = true
	e.role = engine.RoleDetached
	e.rloc16 = shortAddrUnassigned
	e.programRadio()
	e.p.AlarmMilliStartAt(e.p.AlarmMilliGetNow(), uint32(e.attachDelay/time.Millisecond))
	e.notify(engine.ThreadRoleChanged)
	e.log.Info().Dur("attach_delay", e.attachDelay).Msg("thread started, detached")
	return engine.StatusNone
}

func (e *Engine) ThreadDeviceRole() uint32 { return uint32(e.role) }

func (e *Engine) IP6UnicastAddresses() []engine.UnicastAddress {
	return slices.Clone(e.addrs)
}

// AlarmFired completes the attach: with nobody to join, the node forms
// its own partition and becomes leader.
func (e *Engine) AlarmFired() {
	if !e.threadUp || e.role != engine.RoleDetached {
		return
	}

	e.role = engine.RoleLeader
	e.rloc16 = uint16(e.extAddr%63) << 10
	e.p.RadioSetShortAddress(e.rloc16)

	prefix := e.meshLocalPrefix()
	var iid [8]byte
	binary.BigEndian.PutUint64(iid[:], 0x000000fffe000000|uint64(e.rloc16))
	e.addAddress(withIID(prefix, iid), engine.AddressOriginThread)

	if st := e.p.EntropyGet(iid[:]); st != engine.StatusNone {
		binary.BigEndian.PutUint64(iid[:], e.extAddr)
	}
	e.addAddress(withIID(prefix, iid), engine.AddressOriginThread)

	e.notify(engine.ThreadRoleChanged | engine.ThreadRlocAdded | engine.ThreadMeshLocalAddressChanged |
		engine.Ipv6AddressAdded | engine.ThreadPartitionIdChanged | engine.ThreadNetworkDataChanged)
	e.log.Info().Uint16("rloc16", e.rloc16).Msg("became leader")
}

func (e *Engine) programRadio() {
	ds := &e.active
	if ds.Components.Has(engine.ComponentPanID) {
		e.p.RadioSetPanID(ds.PanID)
	}
	e.p.RadioSetExtendedAddress(e.extAddr)
	e.p.RadioSetShortAddress(e.rloc16)
	channel := uint8(minChannel)
	if ds.Components.Has(engine.ComponentChannel) {
		channel = uint8(ds.Channel)
	}
	if st := e.p.RadioReceive(channel); st != engine.StatusNone {
		e.log.Warn().Stringer("status", st).Uint8("channel", channel).Msg("radio receive")
	}
}

func (e *Engine) meshLocalPrefix() [8]byte {
	if e.active.Components.Has(engine.ComponentMeshLocalPrefix) {
		return e.active.MeshLocalPrefix
	}
	return defaultMeshLocalPrefix
}

func (e *Engine) linkLocal() netip.Addr {
	var iid [8]byte
	binary.BigEndian.PutUint64(iid[:], e.extAddr)
	iid[0] ^= 0x02
	return withIID([8]byte{0xfe, 0x80}, iid)
}

func withIID(prefix, iid [8]byte) netip.Addr {
	var a [16]byte
	copy(a[:8], prefix[:])
	copy(a[8:], iid[:])
	return netip.AddrFrom16(a)
}

func (e *Engine) addAddress(addr netip.Addr, origin uint8) {
	e.addrs = append(e.addrs, engine.UnicastAddress{Address: addr, PrefixLength: 64, Origin: origin})
}

func (e *Engine) dropMeshAddresses() {
	e.addrs = slices.DeleteFunc(e.addrs, func(a engine.UnicastAddress) bool {
		return !a.Address.IsLinkLocalUnicast()
	})
}

func (e *Engine) isOwnAddress(a [16]byte) bool {
	addr := netip.AddrFrom16(a)
	if addr == netip.IPv6Loopback() {
		return true
	}
	for _, u := range e.addrs {
		if u.Address == addr {
			return true
		}
	}
	return false
}

// sourceFor picks the source address for dst.
func (e *Engine) sourceFor(dst [16]byte) [16]byte {
	d := netip.AddrFrom16(dst)
	var src netip.Addr
	for _, u := range e.addrs {
		ll := u.Address.IsLinkLocalUnicast()
		if d.IsLinkLocalUnicast() || d.IsLinkLocalMulticast() || d.IsLoopback() {
			if ll {
				return u.Address.As16()
			}
			continue
		}
		if !ll {
			src = u.Address
		} else if !src.IsValid() {
			src = u.Address
		}
	}
	if !src.IsValid() {
		return [16]byte{}
	}
	return src.As16()
}
