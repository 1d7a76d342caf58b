package engine

import (
	"fmt"
	"strings"
)

// ChangedFlags describes which facets of protocol state changed. Bit
// values are the engine's native encoding and must never be reordered.
type ChangedFlags uint32

const (
	Ipv6AddressAdded                   ChangedFlags = 1 << 0
	Ipv6AddressRemoved                 ChangedFlags = 1 << 1
	ThreadRoleChanged                  ChangedFlags = 1 << 2
	ThreadLlAddressChanged             ChangedFlags = 1 << 3
	ThreadMeshLocalAddressChanged      ChangedFlags = 1 << 4
	ThreadRlocAdded                    ChangedFlags = 1 << 5
	ThreadRlocRemoved                  ChangedFlags = 1 << 6
	ThreadPartitionIdChanged           ChangedFlags = 1 << 7
	ThreadKeySequenceChanged           ChangedFlags = 1 << 8
	ThreadNetworkDataChanged           ChangedFlags = 1 << 9
	ThreadChildAdded                   ChangedFlags = 1 << 10
	ThreadChildRemoved                 ChangedFlags = 1 << 11
	Ipv6MulticastSubscribed            ChangedFlags = 1 << 12
	Ipv6MulticastUnsubscribed          ChangedFlags = 1 << 13
	ThreadNetworkChannelChanged        ChangedFlags = 1 << 14
	ThreadPanIdChanged                 ChangedFlags = 1 << 15
	ThreadNetworkNameChanged           ChangedFlags = 1 << 16
	ThreadExtendedPanIdChanged         ChangedFlags = 1 << 17
	ThreadNetworkKeyChanged            ChangedFlags = 1 << 18
	ThreadPskcChanged                  ChangedFlags = 1 << 19
	ThreadSecurityPolicyChanged        ChangedFlags = 1 << 20
	ChannelManagerNewChannelChanged    ChangedFlags = 1 << 21
	SupportedChannelMaskChanged        ChangedFlags = 1 << 22
	CommissionerStateChanged           ChangedFlags = 1 << 23
	ThreadNetworkInterfaceStateChanged ChangedFlags = 1 << 24
	ThreadBackboneRouterStateChanged   ChangedFlags = 1 << 25
	ThreadBackboneRouterLocalChanged   ChangedFlags = 1 << 26
	JoinerStateChanged                 ChangedFlags = 1 << 27
	ActiveDatasetChanged               ChangedFlags = 1 << 28
	PendingDatasetChanged              ChangedFlags = 1 << 29
)

// KnownChangedFlags is the union of every bit this package names.
const KnownChangedFlags ChangedFlags = 1<<30 - 1

var changedFlagNames = [...]string{
	"Ipv6AddressAdded",
	"Ipv6AddressRemoved",
	"ThreadRoleChanged",
	"ThreadLlAddressChanged",
	"ThreadMeshLocalAddressChanged",
	"ThreadRlocAdded",
	"ThreadRlocRemoved",
	"ThreadPartitionIdChanged",
	"ThreadKeySequenceChanged",
	"ThreadNetworkDataChanged",
	"ThreadChildAdded",
	"ThreadChildRemoved",
	"Ipv6MulticastSubscribed",
	"Ipv6MulticastUnsubscribed",
	"ThreadNetworkChannelChanged",
	"ThreadPanIdChanged",
	"ThreadNetworkNameChanged",
	"ThreadExtendedPanIdChanged",
	"ThreadNetworkKeyChanged",
	"ThreadPskcChanged",
	"ThreadSecurityPolicyChanged",
	"ChannelManagerNewChannelChanged",
	"SupportedChannelMaskChanged",
	"CommissionerStateChanged",
	"ThreadNetworkInterfaceStateChanged",
	"ThreadBackboneRouterStateChanged",
	"ThreadBackboneRouterLocalChanged",
	"JoinerStateChanged",
	"ActiveDatasetChanged",
	"PendingDatasetChanged",
}

// DecodeChangedFlags splits a native flag word into the bits this package
// knows and the remainder. Unknown bits never fail the decode; callers
// decide whether to log them.
func DecodeChangedFlags(bits uint32) (flags ChangedFlags, unknown uint32) {
	return ChangedFlags(bits) & KnownChangedFlags, bits &^ uint32(KnownChangedFlags)
}

// Bits returns the native encoding.
func (f ChangedFlags) Bits() uint32 { return uint32(f) }

// Has reports whether every bit in other is set in f.
func (f ChangedFlags) Has(other ChangedFlags) bool { return f&other == other }

func (f ChangedFlags) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	for i, name := range changedFlagNames {
		if f&(1<<uint(i)) != 0 {
			names = append(names, name)
		}
	}
	if rest := f &^ KnownChangedFlags; rest != 0 {
		names = append(names, fmt.Sprintf("%#x", uint32(rest)))
	}
	return strings.Join(names, "|")
}
