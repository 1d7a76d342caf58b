// Package engine describes the boundary to the Thread protocol engine: the
// fixed function table the adaptation layer consumes, the platform
// callbacks the engine consumes in return, and the native data layouts
// that cross between them.
package engine

// APIVersion is the function table version this layer was built against.
const APIVersion uint32 = 1

// Engine is the protocol engine function table. Every method must be
// called from the cooperative context only (never from an interrupt).
type Engine interface {
	// Version reports the implemented function table version.
	Version() uint32

	// Init brings up the single engine instance on top of p.
	Init(p Platform) Status
	// Finalize tears the instance down.
	Finalize()

	SetStateChangedCallback(cb func(flags uint32)) Status

	DatasetGetActive(ds *RawDataset) Status
	DatasetSetActive(ds *RawDataset) Status

	IP6SetEnabled(enabled bool) Status
	ThreadSetEnabled(enabled bool) Status
	ThreadDeviceRole() uint32
	IP6UnicastAddresses() []UnicastAddress

	TaskletsArePending() bool
	TaskletsProcess()

	// AlarmFired notifies that the milli alarm set via the platform expired.
	AlarmFired()
	// RadioReceiveDone hands over one received frame. The frame storage is
	// only valid for the duration of the call.
	RadioReceiveDone(frame *RadioFrame, status Status)
	// RadioTxDone reports completion of the last RadioTransmit.
	RadioTxDone(frame *RadioFrame, status Status)

	UDPOpen(sock *UDPSocket, handler UDPHandler, context uint32) Status
	UDPBind(sock *UDPSocket, addr SockAddr, netif NetifID) Status
	UDPClose(sock *UDPSocket) Status
	// UDPNewMessage returns nil when the message pool is exhausted.
	UDPNewMessage() Message
	UDPSend(sock *UDPSocket, msg Message, info *MessageInfo) Status
}

// Platform is implemented by the adaptation layer and called by the
// engine, always from inside an Engine method.
type Platform interface {
	AlarmMilliGetNow() uint32
	AlarmMilliStartAt(t0, dt uint32)
	AlarmMilliStop()

	RadioTransmit(frame *RadioFrame) Status
	RadioReceive(channel uint8) Status
	RadioSetPanID(panID uint16)
	RadioSetShortAddress(addr uint16)
	RadioSetExtendedAddress(ext uint64)
	RadioSetPromiscuous(enabled bool)
	RadioGetPromiscuous() bool

	EntropyGet(buf []byte) Status

	SettingsGet(key uint16, index int) ([]byte, Status)
	SettingsSet(key uint16, value []byte) Status
	SettingsAdd(key uint16, value []byte) Status
	SettingsDelete(key uint16, index int) Status
	SettingsWipe()
}
