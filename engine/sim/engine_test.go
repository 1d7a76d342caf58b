package sim

import (
	"bytes"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ystepanoff/otplat/engine"
	"github.com/ystepanoff/otplat/settings"
)

type fakePlatform struct {
	now      uint32
	alarmAt  uint32
	alarmDt  uint32
	armed    bool
	panID    uint16
	short    uint16
	ext      uint64
	channel  uint8
	promisc  bool
	txErr    engine.Status
	tx       [][]byte
	store    *settings.Memory
	entropyB byte
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{store: settings.NewMemory(), entropyB: 0x10}
}

func (p *fakePlatform) AlarmMilliGetNow() uint32 { return p.now }
func (p *fakePlatform) AlarmMilliStartAt(t0, dt uint32) {
	p.alarmAt, p.alarmDt, p.armed = t0, dt, true
}
func (p *fakePlatform) AlarmMilliStop() { p.armed = false }

func (p *fakePlatform) RadioTransmit(f *engine.RadioFrame) engine.Status {
	if p.txErr != engine.StatusNone {
		return p.txErr
	}
	p.tx = append(p.tx, bytes.Clone(f.Payload()))
	return engine.StatusNone
}
func (p *fakePlatform) RadioReceive(channel uint8) engine.Status {
	p.channel = channel
	return engine.StatusNone
}
func (p *fakePlatform) RadioSetPanID(id uint16)          { p.panID = id }
func (p *fakePlatform) RadioSetShortAddress(addr uint16) { p.short = addr }
func (p *fakePlatform) RadioSetExtendedAddress(e uint64) { p.ext = e }
func (p *fakePlatform) RadioSetPromiscuous(enabled bool) { p.promisc = enabled }
func (p *fakePlatform) RadioGetPromiscuous() bool        { return p.promisc }

func (p *fakePlatform) EntropyGet(buf []byte) engine.Status {
	for i := range buf {
		buf[i] = p.entropyB
		p.entropyB++
	}
	return engine.StatusNone
}

func (p *fakePlatform) SettingsGet(key uint16, index int) ([]byte, engine.Status) {
	v, err := p.store.Get(key, index)
	if errors.Is(err, settings.ErrNotFound) {
		return nil, engine.StatusNotFound
	}
	return v, engine.StatusNone
}
func (p *fakePlatform) SettingsSet(key uint16, v []byte) engine.Status {
	_ = p.store.Set(key, v)
	return engine.StatusNone
}
func (p *fakePlatform) SettingsAdd(key uint16, v []byte) engine.Status {
	_ = p.store.Add(key, v)
	return engine.StatusNone
}
func (p *fakePlatform) SettingsDelete(key uint16, index int) engine.Status {
	if p.store.Delete(key, index) != nil {
		return engine.StatusNotFound
	}
	return engine.StatusNone
}
func (p *fakePlatform) SettingsWipe() { _ = p.store.Wipe() }

func testDataset() engine.RawDataset {
	ds := engine.RawDataset{
		Channel:         15,
		PanID:           0x1234,
		MeshLocalPrefix: [8]byte{0xfd, 0x11, 0x22, 0x33},
		Components:      engine.ComponentChannel | engine.ComponentPanID | engine.ComponentMeshLocalPrefix | engine.ComponentNetworkName,
	}
	copy(ds.NetworkName[:], "sim-net")
	return ds
}

func runTasklets(e *Engine) {
	for e.TaskletsArePending() {
		e.TaskletsProcess()
	}
}

// leader brings a fresh engine up to leader role.
func leader(t *testing.T) (*Engine, *fakePlatform) {
	t.Helper()
	e := New(WithAttachDelay(100 * time.Millisecond))
	p := newFakePlatform()
	require.Equal(t, engine.StatusNone, e.Init(p))
	ds := testDataset()
	require.Equal(t, engine.StatusNone, e.DatasetSetActive(&ds))
	require.Equal(t, engine.StatusNone, e.IP6SetEnabled(true))
	require.Equal(t, engine.StatusNone, e.ThreadSetEnabled(true))
	e.AlarmFired()
	runTasklets(e)
	require.Equal(t, uint32(engine.RoleLeader), e.ThreadDeviceRole())
	return e, p
}

func TestInitTwice(t *testing.T) {
	e := New()
	p := newFakePlatform()
	assert.Equal(t, engine.StatusNone, e.Init(p))
	assert.Equal(t, engine.StatusAlready, e.Init(p))
	assert.Equal(t, engine.APIVersion, e.Version())
	assert.Equal(t, uint32(engine.RoleDisabled), e.ThreadDeviceRole())
}

func TestExtAddressPersists(t *testing.T) {
	p := newFakePlatform()
	e := New()
	require.Equal(t, engine.StatusNone, e.Init(p))
	ext := e.ExtAddress()
	assert.NotZero(t, ext)
	assert.Equal(t, uint64(0x02), ext>>56&0x03, "locally administered unicast")

	e.Finalize()
	require.Equal(t, engine.StatusNone, e.Init(p))
	assert.Equal(t, ext, e.ExtAddress())
}

func TestDataset(t *testing.T) {
	e := New()
	p := newFakePlatform()
	require.Equal(t, engine.StatusNone, e.Init(p))

	var got engine.RawDataset
	assert.Equal(t, engine.StatusNotFound, e.DatasetGetActive(&got))

	ds := testDataset()
	require.Equal(t, engine.StatusNone, e.DatasetSetActive(&ds))
	require.Equal(t, engine.StatusNone, e.DatasetGetActive(&got))
	assert.Equal(t, ds, got)

	// Restored from settings after restart.
	e.Finalize()
	require.Equal(t, engine.StatusNone, e.Init(p))
	got = engine.RawDataset{}
	require.Equal(t, engine.StatusNone, e.DatasetGetActive(&got))
	assert.Equal(t, ds, got)
}

func TestDatasetValidation(t *testing.T) {
	e := New()
	require.Equal(t, engine.StatusNone, e.Init(newFakePlatform()))

	tests := []struct {
		name   string
		modify func(*engine.RawDataset)
	}{
		{"channel too low", func(ds *engine.RawDataset) { ds.Channel = 10 }},
		{"channel too high", func(ds *engine.RawDataset) { ds.Channel = 27 }},
		{"broadcast pan", func(ds *engine.RawDataset) { ds.PanID = 0xFFFF }},
		{"unterminated name", func(ds *engine.RawDataset) {
			copy(ds.NetworkName[:], "01234567890123456")
		}},
		{"unknown component", func(ds *engine.RawDataset) { ds.Components |= 1 << 20 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := testDataset()
			tt.modify(&ds)
			assert.Equal(t, engine.StatusInvalidArgs, e.DatasetSetActive(&ds))
		})
	}

	// Channel outside range is fine when absent.
	ds := engine.RawDataset{Channel: 99, Components: engine.ComponentPanID, PanID: 1}
	assert.Equal(t, engine.StatusNone, e.DatasetSetActive(&ds))
}

func TestChangeNotificationsCoalesce(t *testing.T) {
	e := New()
	require.Equal(t, engine.StatusNone, e.Init(newFakePlatform()))

	var calls []uint32
	e.SetStateChangedCallback(func(f uint32) { calls = append(calls, f) })

	ds := testDataset()
	require.Equal(t, engine.StatusNone, e.DatasetSetActive(&ds))
	require.Equal(t, engine.StatusNone, e.IP6SetEnabled(true))
	assert.Empty(t, calls, "delivered from a tasklet")
	assert.True(t, e.TaskletsArePending())

	e.TaskletsProcess()
	require.Len(t, calls, 1)
	want := engine.ActiveDatasetChanged | engine.Ipv6AddressAdded | engine.ThreadLlAddressChanged | engine.ThreadNetworkInterfaceStateChanged
	assert.Equal(t, uint32(want), calls[0])
	assert.False(t, e.TaskletsArePending())
}

func TestDatasetChangeFlags(t *testing.T) {
	e := New()
	require.Equal(t, engine.StatusNone, e.Init(newFakePlatform()))
	ds := testDataset()
	require.Equal(t, engine.StatusNone, e.DatasetSetActive(&ds))
	runTasklets(e)

	var got uint32
	e.SetStateChangedCallback(func(f uint32) { got = f })
	ds.Channel = 20
	require.Equal(t, engine.StatusNone, e.DatasetSetActive(&ds))
	runTasklets(e)

	assert.Equal(t, uint32(engine.ActiveDatasetChanged|engine.ThreadNetworkChannelChanged), got)
}

func TestThreadRequiresIPv6AndDataset(t *testing.T) {
	e := New()
	require.Equal(t, engine.StatusNone, e.Init(newFakePlatform()))
	assert.Equal(t, engine.StatusInvalidState, e.ThreadSetEnabled(true))

	require.Equal(t, engine.StatusNone, e.IP6SetEnabled(true))
	assert.Equal(t, engine.StatusInvalidState, e.ThreadSetEnabled(true))
}

func TestAttachFlow(t *testing.T) {
	e := New(WithAttachDelay(250 * time.Millisecond))
	p := newFakePlatform()
	p.now = 1000
	require.Equal(t, engine.StatusNone, e.Init(p))
	ds := testDataset()
	require.Equal(t, engine.StatusNone, e.DatasetSetActive(&ds))
	require.Equal(t, engine.StatusNone, e.IP6SetEnabled(true))

	var flags []engine.ChangedFlags
	e.SetStateChangedCallback(func(f uint32) { flags = append(flags, engine.ChangedFlags(f)) })
	runTasklets(e)
	flags = nil

	require.Equal(t, engine.StatusNone, e.ThreadSetEnabled(true))
	assert.Equal(t, uint32(engine.RoleDetached), e.ThreadDeviceRole())
	assert.True(t, p.armed)
	assert.Equal(t, uint32(1000), p.alarmAt)
	assert.Equal(t, uint32(250), p.alarmDt)
	assert.Equal(t, uint16(0x1234), p.panID)
	assert.Equal(t, uint8(15), p.channel)
	assert.Equal(t, e.ExtAddress(), p.ext)
	runTasklets(e)

	e.AlarmFired()
	runTasklets(e)
	assert.Equal(t, uint32(engine.RoleLeader), e.ThreadDeviceRole())
	assert.NotEqual(t, shortAddrUnassigned, p.short)

	require.Len(t, flags, 2)
	assert.True(t, flags[1].Has(engine.ThreadRoleChanged|engine.ThreadRlocAdded|engine.ThreadNetworkDataChanged))

	addrs := e.IP6UnicastAddresses()
	require.Len(t, addrs, 3)
	assert.True(t, addrs[0].Address.IsLinkLocalUnicast())
	prefix := netip.PrefixFrom(netip.AddrFrom16([16]byte{0xfd, 0x11, 0x22, 0x33}), 64)
	assert.True(t, prefix.Contains(addrs[1].Address))
	assert.True(t, prefix.Contains(addrs[2].Address))

	require.Equal(t, engine.StatusNone, e.ThreadSetEnabled(false))
	assert.Equal(t, uint32(engine.RoleDisabled), e.ThreadDeviceRole())
	assert.False(t, p.armed)
	assert.Len(t, e.IP6UnicastAddresses(), 1)
}

func TestIPv6DisableWhileThreadUp(t *testing.T) {
	e, _ := leader(t)
	assert.Equal(t, engine.StatusInvalidState, e.IP6SetEnabled(false))
}

type received struct {
	data []byte
	info engine.MessageInfo
}

func openSocket(t *testing.T, e *Engine, port uint16, got *[]received) *engine.UDPSocket {
	t.Helper()
	sock := &engine.UDPSocket{}
	handler := func(ctx uint32, msg engine.Message, info *engine.MessageInfo) {
		buf := make([]byte, msg.Length())
		msg.Read(0, buf)
		*got = append(*got, received{buf, *info})
	}
	require.Equal(t, engine.StatusNone, e.UDPOpen(sock, handler, 7))
	require.Equal(t, engine.StatusNone, e.UDPBind(sock, engine.SockAddr{Port: port}, engine.NetifThread))
	return sock
}

func send(t *testing.T, e *Engine, sock *engine.UDPSocket, dst netip.Addr, port uint16, data []byte) engine.Status {
	t.Helper()
	msg := e.UDPNewMessage()
	require.NotNil(t, msg)
	require.Equal(t, engine.StatusNone, msg.Append(data))
	st := e.UDPSend(sock, msg, &engine.MessageInfo{PeerAddr: dst.As16(), PeerPort: port})
	if st != engine.StatusNone {
		msg.Free()
	}
	return st
}

func TestUDPLoopback(t *testing.T) {
	e := New()
	require.Equal(t, engine.StatusNone, e.Init(newFakePlatform()))
	require.Equal(t, engine.StatusNone, e.IP6SetEnabled(true))

	var got []received
	sock := openSocket(t, e, 1212, &got)
	ll := e.IP6UnicastAddresses()[0].Address

	require.Equal(t, engine.StatusNone, send(t, e, sock, ll, 1212, []byte("echo")))
	assert.Empty(t, got)
	runTasklets(e)

	require.Len(t, got, 1)
	assert.Equal(t, "echo", string(got[0].data))
	assert.Equal(t, ll.As16(), got[0].info.PeerAddr)
	assert.Equal(t, uint16(1212), got[0].info.PeerPort)
	assert.Equal(t, uint16(1212), got[0].info.SockPort)
	assert.Zero(t, e.LiveMessages())
}

func TestUDPBindConflicts(t *testing.T) {
	e := New()
	require.Equal(t, engine.StatusNone, e.Init(newFakePlatform()))
	var got []received
	openSocket(t, e, 5000, &got)

	other := &engine.UDPSocket{}
	require.Equal(t, engine.StatusNone, e.UDPOpen(other, nil, 0))
	assert.Equal(t, engine.StatusAlready, e.UDPOpen(other, nil, 0))
	assert.Equal(t, engine.StatusAlready, e.UDPBind(other, engine.SockAddr{Port: 5000}, engine.NetifThread))
	require.Equal(t, engine.StatusNone, e.UDPBind(other, engine.SockAddr{}, engine.NetifThread))
	assert.GreaterOrEqual(t, other.SockName.Port, uint16(49152))

	assert.Equal(t, engine.StatusInvalidState, e.UDPBind(&engine.UDPSocket{}, engine.SockAddr{Port: 1}, engine.NetifThread))

	require.Equal(t, engine.StatusNone, e.UDPClose(other))
	assert.False(t, other.IsOpen())
	assert.Equal(t, engine.StatusNone, e.UDPClose(other))
}

func TestMessagePool(t *testing.T) {
	e := New(WithMessagePool(2))
	require.Equal(t, engine.StatusNone, e.Init(newFakePlatform()))

	a := e.UDPNewMessage()
	b := e.UDPNewMessage()
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Nil(t, e.UDPNewMessage())

	a.Free()
	a.Free()
	assert.Equal(t, 1, e.LiveMessages())
	assert.NotNil(t, e.UDPNewMessage())

	assert.Equal(t, engine.StatusNoBufs, b.Append(make([]byte, MaxMessageSize+1)))
}

func TestUDPOverRadio(t *testing.T) {
	e, p := leader(t)
	var got []received
	sock := openSocket(t, e, 1212, &got)

	dst := netip.MustParseAddr("ff03::1")
	require.Equal(t, engine.StatusNone, send(t, e, sock, dst, 1212, []byte("one")))
	require.Equal(t, engine.StatusNone, send(t, e, sock, dst, 1212, []byte("two")))

	// Second frame waits for tx-done of the first.
	require.Len(t, p.tx, 1)
	e.RadioTxDone(nil, engine.StatusNone)
	require.Len(t, p.tx, 2)
	e.RadioTxDone(nil, engine.StatusNone)
	assert.Equal(t, uint64(2), e.Stats().TxFrames)
	assert.Zero(t, e.LiveMessages())

	f := DecodeFrame(p.tx[0])
	require.NotNil(t, f)
	assert.Equal(t, "one", string(f.Payload))
	assert.Equal(t, uint16(0x1234), f.PanID)
	assert.Equal(t, e.ExtAddress(), f.SrcExt)
	assert.Equal(t, dst.As16(), f.Dst)
	assert.Equal(t, uint8(1), DecodeFrame(p.tx[1]).Seq-f.Seq)
}

func TestUDPTooLargeForFrame(t *testing.T) {
	e, _ := leader(t)
	var got []received
	sock := openSocket(t, e, 1212, &got)

	msg := e.UDPNewMessage()
	require.Equal(t, engine.StatusNone, msg.Append(make([]byte, MaxFramePayload+1)))
	st := e.UDPSend(sock, msg, &engine.MessageInfo{PeerAddr: netip.MustParseAddr("ff03::1").As16(), PeerPort: 1})
	assert.Equal(t, engine.StatusNoBufs, st)
	assert.Equal(t, 1, e.LiveMessages(), "caller still owns the message")
	msg.Free()
}

func TestRadioReceiveDelivers(t *testing.T) {
	e, _ := leader(t)
	var got []received
	openSocket(t, e, 1212, &got)

	peer := netip.MustParseAddr("fe80::99")
	buf := make([]byte, engine.MaxPSDU)
	n, err := EncodeFrame(&Frame{
		PanID:   0x1234,
		SrcExt:  0x99,
		Src:     peer.As16(),
		Dst:     netip.MustParseAddr("ff02::1").As16(),
		SrcPort: 4000,
		DstPort: 1212,
		Payload: []byte("hi"),
	}, buf)
	require.NoError(t, err)

	frame := engine.RadioFrame{PSDU: buf, Length: uint16(n), Channel: 15}
	e.RadioReceiveDone(&frame, engine.StatusNone)

	require.Len(t, got, 1)
	assert.Equal(t, "hi", string(got[0].data))
	assert.Equal(t, peer.As16(), got[0].info.PeerAddr)
	assert.Equal(t, uint16(4000), got[0].info.PeerPort)
	assert.Equal(t, uint64(1), e.Stats().RxFrames)
}

func TestRadioReceiveFilters(t *testing.T) {
	e, _ := leader(t)
	var got []received
	openSocket(t, e, 1212, &got)

	encode := func(f Frame) engine.RadioFrame {
		buf := make([]byte, engine.MaxPSDU)
		n, err := EncodeFrame(&f, buf)
		require.NoError(t, err)
		return engine.RadioFrame{PSDU: buf, Length: uint16(n)}
	}
	mcast := netip.MustParseAddr("ff02::1").As16()
	frames := []engine.RadioFrame{
		encode(Frame{PanID: 0x9999, SrcExt: 1, Dst: mcast, DstPort: 1212}),
		encode(Frame{PanID: 0x1234, SrcExt: e.ExtAddress(), Dst: mcast, DstPort: 1212}),
		encode(Frame{PanID: 0x1234, SrcExt: 1, Dst: netip.MustParseAddr("fd00::5").As16(), DstPort: 1212}),
		{PSDU: []byte{1, 2, 3}, Length: 3},
	}
	for i := range frames {
		e.RadioReceiveDone(&frames[i], engine.StatusNone)
	}
	e.RadioReceiveDone(&frames[0], engine.StatusFCS)

	assert.Empty(t, got)
	assert.Equal(t, uint64(5), e.Stats().RxDropped)
}

func TestTransmitFailureMovesOn(t *testing.T) {
	e, p := leader(t)
	var got []received
	sock := openSocket(t, e, 1212, &got)
	p.txErr = engine.StatusChannelAccessFailure

	require.Equal(t, engine.StatusNone, send(t, e, sock, netip.MustParseAddr("ff03::1"), 1, []byte("x")))
	assert.Equal(t, uint64(1), e.Stats().TxFailures)
	assert.Empty(t, p.tx)
}
