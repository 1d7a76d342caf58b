package engine

import "net/netip"

// Role is the engine's device role encoding.
type Role uint32

const (
	RoleDisabled Role = 0
	RoleDetached Role = 1
	RoleChild    Role = 2
	RoleRouter   Role = 3
	RoleLeader   Role = 4
)

// ParseRole validates a native role value.
func ParseRole(v uint32) (Role, bool) {
	if v > uint32(RoleLeader) {
		return 0, false
	}
	return Role(v), true
}

func (r Role) String() string {
	switch r {
	case RoleDisabled:
		return "disabled"
	case RoleDetached:
		return "detached"
	case RoleChild:
		return "child"
	case RoleRouter:
		return "router"
	case RoleLeader:
		return "leader"
	default:
		return "invalid"
	}
}

// Address origins reported with unicast addresses.
const (
	AddressOriginThread uint8 = 0
	AddressOriginSLAAC  uint8 = 1
	AddressOriginDHCPv6 uint8 = 2
	AddressOriginManual uint8 = 3
)

// UnicastAddress is one entry of the interface's unicast address list.
type UnicastAddress struct {
	Address      netip.Addr
	PrefixLength uint8
	Origin       uint8
}

// Timestamp is the native dataset timestamp.
type Timestamp struct {
	Seconds       uint64
	Ticks         uint16
	Authoritative bool
}

// Components is the dataset presence bitmap. Bit order matches the
// engine's otOperationalDatasetComponents bit-field.
type Components uint32

const (
	ComponentActiveTimestamp Components = 1 << iota
	ComponentPendingTimestamp
	ComponentNetworkKey
	ComponentNetworkName
	ComponentExtendedPanID
	ComponentMeshLocalPrefix
	ComponentDelay
	ComponentPanID
	ComponentChannel
	ComponentPSKc
	ComponentSecurityPolicy
	ComponentChannelMask
)

// AllComponents is every presence bit defined by this API version.
const AllComponents = ComponentChannelMask<<1 - 1

// Has reports whether every bit in c is present.
func (p Components) Has(c Components) bool { return p&c == c }

// SecurityPolicyFlags packs the security policy bit-field. Positions
// follow the engine's otSecurityPolicy declaration order; a one-bit shift
// silently corrupts an unrelated flag.
type SecurityPolicyFlags uint16

const (
	PolicyObtainNetworkKey        SecurityPolicyFlags = 1 << 0
	PolicyNativeCommissioning     SecurityPolicyFlags = 1 << 1
	PolicyRouters                 SecurityPolicyFlags = 1 << 2
	PolicyExternalCommissioning   SecurityPolicyFlags = 1 << 3
	PolicyCommercialCommissioning SecurityPolicyFlags = 1 << 4
	PolicyAutonomousEnrollment    SecurityPolicyFlags = 1 << 5
	PolicyNetworkKeyProvisioning  SecurityPolicyFlags = 1 << 6
	PolicyTobleLink               SecurityPolicyFlags = 1 << 7
	PolicyNonCcmRouters           SecurityPolicyFlags = 1 << 8

	policyVersionShift = 9
	policyVersionMask  = 0x7
)

// VersionThreshold returns the 3-bit version-threshold-for-routing field.
func (f SecurityPolicyFlags) VersionThreshold() uint8 {
	return uint8(f>>policyVersionShift) & policyVersionMask
}

// WithVersionThreshold returns f with the threshold field replaced. Values
// wider than three bits are truncated.
func (f SecurityPolicyFlags) WithVersionThreshold(v uint8) SecurityPolicyFlags {
	f &^= policyVersionMask << policyVersionShift
	return f | SecurityPolicyFlags(v&policyVersionMask)<<policyVersionShift
}

// SecurityPolicy is the native security policy.
type SecurityPolicy struct {
	RotationTime uint16
	Flags        SecurityPolicyFlags
}

// NetworkNameSize is the native name buffer: 16 bytes plus terminator.
const NetworkNameSize = 17

// RawDataset is the fixed-layout operational dataset exchanged with the
// engine. Slots whose Components bit is clear carry no meaning.
type RawDataset struct {
	ActiveTimestamp  Timestamp
	PendingTimestamp Timestamp
	NetworkKey       [16]byte
	NetworkName      [NetworkNameSize]byte
	ExtendedPanID    [8]byte
	MeshLocalPrefix  [8]byte
	Delay            uint32
	PanID            uint16
	Channel          uint16
	PSKc             [16]byte
	SecurityPolicy   SecurityPolicy
	ChannelMask      uint32
	Components       Components
}

// MaxPSDU is the 802.15.4 maximum PHY payload length.
const MaxPSDU = 127

// RxInfo carries receive metadata.
type RxInfo struct {
	Timestamp       uint64 // microseconds
	AckFrameCounter uint32
	AckKeyID        uint8
	RSSI            int8
	LQI             uint8
}

// RadioFrame is the engine's frame representation. PSDU is caller-owned
// storage with capacity MaxPSDU; only PSDU[:Length] is meaningful.
type RadioFrame struct {
	PSDU    []byte
	Length  uint16
	Channel uint8
	RxInfo  RxInfo
}

// Payload returns the valid PSDU bytes.
func (f *RadioFrame) Payload() []byte { return f.PSDU[:f.Length] }

// NetifID selects the network interface for UDP binds.
type NetifID uint8

const (
	NetifUnspecified NetifID = 0
	NetifThread      NetifID = 1
	NetifBackbone    NetifID = 2
)

// SockAddr is an IPv6 socket address.
type SockAddr struct {
	Address [16]byte
	Port    uint16
}

// MessageInfo describes the addressing of one UDP datagram.
type MessageInfo struct {
	SockAddr [16]byte
	PeerAddr [16]byte
	SockPort uint16
	PeerPort uint16
	HopLimit uint8
}

// Message is an engine-managed message buffer. Ownership passes to the
// engine on a successful send; otherwise the caller must Free it.
type Message interface {
	Append(data []byte) Status
	Length() uint16
	Read(offset uint16, buf []byte) int
	Free()
}

// UDPHandler receives datagrams for an open socket. Context is the value
// given to UDPOpen.
type UDPHandler func(context uint32, msg Message, info *MessageInfo)

// UDPSocket is caller-owned socket storage. The engine keeps a pointer to
// it from UDPOpen until UDPClose, so it must not be copied or freed while
// open.
type UDPSocket struct {
	SockName SockAddr
	PeerName SockAddr
	Handler  UDPHandler
	Context  uint32

	// Handle is engine-private; nil while closed.
	Handle any
}

// IsOpen reports whether the engine currently holds the socket.
func (s *UDPSocket) IsOpen() bool { return s.Handle != nil }
