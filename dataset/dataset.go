// Package dataset converts between the operational dataset exposed to
// applications, where every field is optional, and the engine's
// fixed-layout form with its presence bitmap.
package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/ystepanoff/otplat/engine"
)

// MaxNetworkNameLength is the longest network name in bytes.
const MaxNetworkNameLength = engine.NetworkNameSize - 1

var (
	ErrNetworkNameTooLong = errors.New("dataset: network name exceeds 16 bytes")
	ErrVersionThreshold   = errors.New("dataset: version threshold exceeds 7")
)

// Timestamp is an active or pending dataset timestamp.
type Timestamp = engine.Timestamp

// SecurityPolicy is the Thread security policy.
type SecurityPolicy struct {
	// RotationTime is thrKeyRotation in hours.
	RotationTime uint16

	ObtainNetworkKey        bool
	NativeCommissioning     bool
	Routers                 bool
	ExternalCommissioning   bool
	CommercialCommissioning bool
	AutonomousEnrollment    bool
	NetworkKeyProvisioning  bool
	TobleLink               bool
	NonCcmRouters           bool

	// VersionThresholdForRouting occupies three bits.
	VersionThresholdForRouting uint8
}

var policyBits = [...]struct {
	flag engine.SecurityPolicyFlags
	get  func(*SecurityPolicy) *bool
}{
	{engine.PolicyObtainNetworkKey, func(p *SecurityPolicy) *bool { return &p.ObtainNetworkKey }},
	{engine.PolicyNativeCommissioning, func(p *SecurityPolicy) *bool { return &p.NativeCommissioning }},
	{engine.PolicyRouters, func(p *SecurityPolicy) *bool { return &p.Routers }},
	{engine.PolicyExternalCommissioning, func(p *SecurityPolicy) *bool { return &p.ExternalCommissioning }},
	{engine.PolicyCommercialCommissioning, func(p *SecurityPolicy) *bool { return &p.CommercialCommissioning }},
	{engine.PolicyAutonomousEnrollment, func(p *SecurityPolicy) *bool { return &p.AutonomousEnrollment }},
	{engine.PolicyNetworkKeyProvisioning, func(p *SecurityPolicy) *bool { return &p.NetworkKeyProvisioning }},
	{engine.PolicyTobleLink, func(p *SecurityPolicy) *bool { return &p.TobleLink }},
	{engine.PolicyNonCcmRouters, func(p *SecurityPolicy) *bool { return &p.NonCcmRouters }},
}

// ToRaw packs p into the native layout.
func (p SecurityPolicy) ToRaw() (engine.SecurityPolicy, error) {
	if p.VersionThresholdForRouting > 7 {
		return engine.SecurityPolicy{}, ErrVersionThreshold
	}
	var flags engine.SecurityPolicyFlags
	for _, b := range policyBits {
		if *b.get(&p) {
			flags |= b.flag
		}
	}
	return engine.SecurityPolicy{
		RotationTime: p.RotationTime,
		Flags:        flags.WithVersionThreshold(p.VersionThresholdForRouting),
	}, nil
}

// PolicyFromRaw unpacks a native security policy.
func PolicyFromRaw(raw engine.SecurityPolicy) SecurityPolicy {
	p := SecurityPolicy{
		RotationTime:               raw.RotationTime,
		VersionThresholdForRouting: raw.Flags.VersionThreshold(),
	}
	for _, b := range policyBits {
		*b.get(&p) = raw.Flags&b.flag != 0
	}
	return p
}

// OperationalDataset is an active or pending dataset. A nil field is
// absent.
type OperationalDataset struct {
	ActiveTimestamp  *Timestamp
	PendingTimestamp *Timestamp
	NetworkKey       *[16]byte
	NetworkName      *string
	ExtendedPanID    *[8]byte
	MeshLocalPrefix  *[8]byte
	Delay            *uint32
	PanID            *uint16
	Channel          *uint16
	PSKc             *[16]byte
	SecurityPolicy   *SecurityPolicy
	ChannelMask      *uint32
}

// Ptr returns a pointer to v, for filling optional fields.
func Ptr[T any](v T) *T { return &v }

// Components returns the presence bitmap of d.
func (d *OperationalDataset) Components() engine.Components {
	var c engine.Components
	set := func(present bool, bit engine.Components) {
		if present {
			c |= bit
		}
	}
	set(d.ActiveTimestamp != nil, engine.ComponentActiveTimestamp)
	set(d.PendingTimestamp != nil, engine.ComponentPendingTimestamp)
	set(d.NetworkKey != nil, engine.ComponentNetworkKey)
	set(d.NetworkName != nil, engine.ComponentNetworkName)
	set(d.ExtendedPanID != nil, engine.ComponentExtendedPanID)
	set(d.MeshLocalPrefix != nil, engine.ComponentMeshLocalPrefix)
	set(d.Delay != nil, engine.ComponentDelay)
	set(d.PanID != nil, engine.ComponentPanID)
	set(d.Channel != nil, engine.ComponentChannel)
	set(d.PSKc != nil, engine.ComponentPSKc)
	set(d.SecurityPolicy != nil, engine.ComponentSecurityPolicy)
	set(d.ChannelMask != nil, engine.ComponentChannelMask)
	return c
}

// ToRaw builds the native dataset. Absent slots are left zeroed.
func (d *OperationalDataset) ToRaw() (engine.RawDataset, error) {
	var raw engine.RawDataset

	if d.NetworkName != nil {
		if len(*d.NetworkName) > MaxNetworkNameLength {
			return engine.RawDataset{}, fmt.Errorf("%w: %q", ErrNetworkNameTooLong, *d.NetworkName)
		}
		copy(raw.NetworkName[:], *d.NetworkName)
	}
	if d.SecurityPolicy != nil {
		sp, err := d.SecurityPolicy.ToRaw()
		if err != nil {
			return engine.RawDataset{}, err
		}
		raw.SecurityPolicy = sp
	}
	if d.ActiveTimestamp != nil {
		raw.ActiveTimestamp = *d.ActiveTimestamp
	}
	if d.PendingTimestamp != nil {
		raw.PendingTimestamp = *d.PendingTimestamp
	}
	if d.NetworkKey != nil {
		raw.NetworkKey = *d.NetworkKey
	}
	if d.ExtendedPanID != nil {
		raw.ExtendedPanID = *d.ExtendedPanID
	}
	if d.MeshLocalPrefix != nil {
		raw.MeshLocalPrefix = *d.MeshLocalPrefix
	}
	if d.Delay != nil {
		raw.Delay = *d.Delay
	}
	if d.PanID != nil {
		raw.PanID = *d.PanID
	}
	if d.Channel != nil {
		raw.Channel = *d.Channel
	}
	if d.PSKc != nil {
		raw.PSKc = *d.PSKc
	}
	if d.ChannelMask != nil {
		raw.ChannelMask = *d.ChannelMask
	}
	raw.Components = d.Components()
	return raw, nil
}

// FromRaw reports exactly the fields whose presence bit is set. A
// network name that is not valid UTF-8 is reported absent.
func FromRaw(raw *engine.RawDataset) OperationalDataset {
	var d OperationalDataset
	c := raw.Components

	if c.Has(engine.ComponentActiveTimestamp) {
		d.ActiveTimestamp = Ptr(raw.ActiveTimestamp)
	}
	if c.Has(engine.ComponentPendingTimestamp) {
		d.PendingTimestamp = Ptr(raw.PendingTimestamp)
	}
	if c.Has(engine.ComponentNetworkKey) {
		d.NetworkKey = Ptr(raw.NetworkKey)
	}
	if c.Has(engine.ComponentNetworkName) {
		if name, ok := decodeName(raw.NetworkName); ok {
			d.NetworkName = &name
		}
	}
	if c.Has(engine.ComponentExtendedPanID) {
		d.ExtendedPanID = Ptr(raw.ExtendedPanID)
	}
	if c.Has(engine.ComponentMeshLocalPrefix) {
		d.MeshLocalPrefix = Ptr(raw.MeshLocalPrefix)
	}
	if c.Has(engine.ComponentDelay) {
		d.Delay = Ptr(raw.Delay)
	}
	if c.Has(engine.ComponentPanID) {
		d.PanID = Ptr(raw.PanID)
	}
	if c.Has(engine.ComponentChannel) {
		d.Channel = Ptr(raw.Channel)
	}
	if c.Has(engine.ComponentPSKc) {
		d.PSKc = Ptr(raw.PSKc)
	}
	if c.Has(engine.ComponentSecurityPolicy) {
		d.SecurityPolicy = Ptr(PolicyFromRaw(raw.SecurityPolicy))
	}
	if c.Has(engine.ComponentChannelMask) {
		d.ChannelMask = Ptr(raw.ChannelMask)
	}
	return d
}

// decodeName stops at the first NUL and trims trailing padding.
func decodeName(buf [engine.NetworkNameSize]byte) (string, bool) {
	b := buf[:MaxNetworkNameLength]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	b = bytes.TrimRight(b, " ")
	if !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}

// MarshalZerologObject logs the non-secret fields of d.
func (d *OperationalDataset) MarshalZerologObject(e *zerolog.Event) {
	if d.NetworkName != nil {
		e.Str("network_name", *d.NetworkName)
	}
	if d.Channel != nil {
		e.Uint16("channel", *d.Channel)
	}
	if d.PanID != nil {
		e.Str("pan_id", fmt.Sprintf("0x%04x", *d.PanID))
	}
	if d.ExtendedPanID != nil {
		e.Hex("ext_pan_id", d.ExtendedPanID[:])
	}
	if d.ActiveTimestamp != nil {
		e.Uint64("active_ts", d.ActiveTimestamp.Seconds)
	}
	e.Str("components", fmt.Sprintf("%#03x", uint32(d.Components())))
}
