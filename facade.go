// Package otplat runs a Thread protocol engine on a radio-equipped
// device, or on a host simulating one. It bridges an interrupt-driven
// IEEE 802.15.4 radio and a periodic alarm to an engine driven by
// explicit RunTasklets and Process calls.
package otplat

import (
	"errors"

	"github.com/ystepanoff/otplat/dataset"
	"github.com/ystepanoff/otplat/engine"
	"github.com/ystepanoff/otplat/udp"
)

// The hardware-specific constructors are split by build tag:
// - constructors_tinygo.go - for devices (//go:build tinygo || baremetal)
// - constructors_host.go - for simulation on a host (//go:build !tinygo && !baremetal)

type (
	ChangedFlags       = engine.ChangedFlags
	Role               = engine.Role
	UnicastAddress     = engine.UnicastAddress
	InternalError      = engine.InternalError
	OperationalDataset = dataset.OperationalDataset
	SecurityPolicy     = dataset.SecurityPolicy
	Timestamp          = dataset.Timestamp
	UDPSocket          = udp.Socket
)

var (
	ErrAlreadyInitialized = errors.New("otplat: engine already initialized")
	ErrVersionMismatch    = errors.New("otplat: engine API version mismatch")
	ErrClosed             = errors.New("otplat: closed")

	ErrNetworkNameTooLong = dataset.ErrNetworkNameTooLong
	ErrVersionThreshold   = dataset.ErrVersionThreshold
)

const (
	RoleDisabled = engine.RoleDisabled
	RoleDetached = engine.RoleDetached
	RoleChild    = engine.RoleChild
	RoleRouter   = engine.RoleRouter
	RoleLeader   = engine.RoleLeader
)
