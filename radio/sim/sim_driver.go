// Package sim implements a simulated 802.15.4 radio on top of IPv4
// multicast, so several host processes tuned to the same channel hear
// each other's frames.
//
// Each datagram on the group is an envelope:
//
//	+----------+---------+-------------+
//	| Token    | Channel | PSDU        |
//	+----------+---------+-------------+
//	| 4 bytes  | 1 byte  | 2-127 bytes |
//	+----------+---------+-------------+
//
// The token identifies the sending driver so it can drop its own echo.
package sim

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"

	"github.com/ystepanoff/otplat/radio"
)

const (
	DefaultGroup = "224.0.0.116"
	DefaultPort  = 9000
	DefaultRSSI  = -40

	envelopeHeaderSize = 5
)

var ErrClosed = errors.New("sim radio: closed")

// Config selects the multicast group shared by simulated nodes.
type Config struct {
	Group     string
	Port      int
	Interface string // empty selects the system default
	RSSI      int8   // reported for every received frame
}

func (c Config) withDefaults() Config {
	if c.Group == "" {
		c.Group = DefaultGroup
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.RSSI == 0 {
		c.RSSI = DefaultRSSI
	}
	return c
}

// Driver implements radio.Driver over a multicast socket. The read
// goroutine plays the part of the receive interrupt: it only filters and
// queues frames.
type Driver struct {
	conn  *ipv4.PacketConn
	pc    net.PacketConn
	group *net.UDPAddr
	token uint32
	rssi  int8
	log   zerolog.Logger

	mu       sync.Mutex
	rx       radio.Ring
	settings radio.Settings
	txDone   func()

	closed atomic.Bool
	wg     sync.WaitGroup

	received atomic.Uint64
	dropped  atomic.Uint64
}

var _ radio.Driver = (*Driver)(nil)

// Open joins the group described by cfg and starts receiving.
func Open(ctx context.Context, cfg Config, log zerolog.Logger) (*Driver, error) {
	cfg = cfg.withDefaults()

	ip := net.ParseIP(cfg.Group)
	if ip == nil || ip.To4() == nil || !ip.IsMulticast() {
		return nil, fmt.Errorf("sim radio: %q is not an IPv4 multicast group", cfg.Group)
	}
	group := &net.UDPAddr{IP: ip, Port: cfg.Port}

	var ifi *net.Interface
	if cfg.Interface != "" {
		var err error
		if ifi, err = net.InterfaceByName(cfg.Interface); err != nil {
			return nil, fmt.Errorf("sim radio: interface %s: %w", cfg.Interface, err)
		}
	}

	lc := net.ListenConfig{Control: reuseControl}
	pc, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf("0.0.0.0:%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("sim radio: listen :%d: %w", cfg.Port, err)
	}

	conn := ipv4.NewPacketConn(pc)
	if err := conn.JoinGroup(ifi, group); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("sim radio: join %s: %w", group, err)
	}
	if ifi != nil {
		if err := conn.SetMulticastInterface(ifi); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("sim radio: multicast interface: %w", err)
		}
	}
	if err := conn.SetMulticastLoopback(true); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("sim radio: multicast loopback: %w", err)
	}
	_ = conn.SetMulticastTTL(1)

	var tok [4]byte
	if _, err := crand.Read(tok[:]); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("sim radio: token: %w", err)
	}

	d := &Driver{
		conn:  conn,
		pc:    pc,
		group: group,
		token: binary.LittleEndian.Uint32(tok[:]),
		rssi:  cfg.RSSI,
		log:   log.With().Str("component", "sim-radio").Logger(),
	}
	d.wg.Add(1)
	go d.readLoop()

	d.log.Info().Str("group", group.String()).Msg("sim radio up")
	return d, nil
}

func (d *Driver) Configure(s radio.Settings) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settings = s
	return nil
}

func (d *Driver) Transmit(psdu []byte) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if len(psdu) > radio.MaxPSDU {
		return radio.ErrFrameTooLong
	}

	d.mu.Lock()
	channel := d.settings.Channel
	done := d.txDone
	d.mu.Unlock()

	pkt := encodeEnvelope(d.token, channel, psdu)
	if _, err := d.conn.WriteTo(pkt, nil, d.group); err != nil {
		return fmt.Errorf("sim radio: transmit: %w", err)
	}
	if done != nil {
		done()
	}
	return nil
}

func (d *Driver) SetTxDoneCallback(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.txDone = fn
}

func (d *Driver) RawReceived() (radio.RawFrame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rx.Pop()
}

// Stats reports frames queued and frames filtered or overwritten.
func (d *Driver) Stats() (received, dropped uint64) {
	return d.received.Load(), d.dropped.Load()
}

// Close leaves the group and stops the read goroutine.
func (d *Driver) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	err := d.pc.Close()
	d.wg.Wait()
	return err
}

func (d *Driver) readLoop() {
	defer d.wg.Done()
	buf := make([]byte, envelopeHeaderSize+radio.MaxPSDU+1)
	for {
		n, _, _, err := d.conn.ReadFrom(buf)
		if err != nil {
			if d.closed.Load() {
				return
			}
			d.log.Warn().Err(err).Msg("read failed")
			continue
		}
		d.handle(buf[:n])
	}
}

func (d *Driver) handle(pkt []byte) {
	token, channel, psdu, ok := decodeEnvelope(pkt)
	if !ok || token == d.token {
		return
	}

	d.mu.Lock()
	s := d.settings
	d.mu.Unlock()

	if !accept(s, channel, psdu) {
		d.dropped.Add(1)
		return
	}

	f, err := radio.NewRawFrame(psdu, channel, d.rssi)
	if err != nil {
		d.dropped.Add(1)
		return
	}

	d.mu.Lock()
	overwritten := d.rx.Push(f)
	d.mu.Unlock()

	d.received.Add(1)
	if overwritten {
		d.dropped.Add(1)
	}
}

// accept applies the filtering a real transceiver does in hardware.
func accept(s radio.Settings, channel uint8, psdu []byte) bool {
	if channel != s.Channel {
		return false
	}
	if !radio.CheckFCS(psdu) {
		return false
	}
	return s.Promiscuous || radio.AcceptsPAN(psdu, s.PanID)
}

func encodeEnvelope(token uint32, channel uint8, psdu []byte) []byte {
	pkt := make([]byte, envelopeHeaderSize+len(psdu))
	binary.LittleEndian.PutUint32(pkt[0:4], token)
	pkt[4] = channel
	copy(pkt[envelopeHeaderSize:], psdu)
	radio.SealFCS(pkt[envelopeHeaderSize:])
	return pkt
}

func decodeEnvelope(pkt []byte) (token uint32, channel uint8, psdu []byte, ok bool) {
	if len(pkt) < envelopeHeaderSize+radio.FCSSize || len(pkt) > envelopeHeaderSize+radio.MaxPSDU {
		return 0, 0, nil, false
	}
	token = binary.LittleEndian.Uint32(pkt[0:4])
	return token, pkt[4], bytes.Clone(pkt[envelopeHeaderSize:]), true
}
