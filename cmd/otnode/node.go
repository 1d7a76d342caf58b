package main

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ystepanoff/otplat"
	"github.com/ystepanoff/otplat/dataset"
	"github.com/ystepanoff/otplat/engine"
	enginesim "github.com/ystepanoff/otplat/engine/sim"
	"github.com/ystepanoff/otplat/internal/config"
)

const pollInterval = time.Millisecond

// radioStats is the part of the simulated radio the shell reports on.
type radioStats interface {
	Stats() (received, dropped uint64)
}

// request carries one shell line to the loop goroutine.
type request struct {
	line  string
	reply chan<- string
}

// node owns the OpenThread instance. Every method runs on the loop
// goroutine.
type node struct {
	ot    *otplat.OpenThread
	eng   *enginesim.Engine
	radio radioStats
	out   io.Writer
	log   zerolog.Logger

	sock  *otplat.UDPSocket
	rxBuf []byte
}

func newNode(ot *otplat.OpenThread, eng *enginesim.Engine, radio radioStats, out io.Writer, log zerolog.Logger) *node {
	n := &node{
		ot:    ot,
		eng:   eng,
		radio: radio,
		out:   out,
		log:   log.With().Str("component", "node").Logger(),
		rxBuf: make([]byte, 1024),
	}
	ot.SetChangeCallback(func(f otplat.ChangedFlags) {
		n.log.Debug().Stringer("flags", f).Msg("state changed")
		if f.Has(engine.ThreadRoleChanged) {
			role, _ := n.ot.Role()
			n.log.Info().Stringer("role", role).Msg("role changed")
		}
	})
	return n
}

// bootstrap applies the configured dataset unless one was restored from
// settings, then starts the interfaces when asked to.
func (n *node) bootstrap(cfg config.Config) error {
	if _, err := n.ot.ActiveDataset(); err != nil && cfg.HasDataset() {
		ds, err := cfg.ToDataset()
		if err != nil {
			return err
		}
		if err := n.ot.SetActiveDataset(&ds); err != nil {
			return err
		}
	}
	if !cfg.Node.AutoStart {
		return nil
	}
	if err := n.ot.IPv6SetEnabled(true); err != nil {
		return err
	}
	return n.ot.ThreadSetEnabled(true)
}

func (n *node) run(ctx context.Context, cmds <-chan request) {
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-cmds:
			req.reply <- n.exec(req.line)
		case <-tick.C:
		}
		n.poll()
	}
}

func (n *node) poll() {
	n.ot.Process()
	n.ot.RunTasklets()
	n.drainSocket()
}

func (n *node) drainSocket() {
	if n.sock == nil {
		return
	}
	for {
		got, from, port, err := n.sock.Receive(n.rxBuf)
		if err != nil || got == 0 {
			return
		}
		fmt.Fprintf(n.out, "udp: %d bytes from [%s]:%d: %q\n", got, from, port, n.rxBuf[:got])
	}
}

// exec runs one shell command and returns its output.
func (n *node) exec(line string) string {
	args := strings.Fields(line)
	if len(args) == 0 {
		return ""
	}
	var (
		out string
		err error
	)
	switch strings.ToLower(args[0]) {
	case "help", "?":
		out = helpText
	case "state":
		out, err = n.cmdState()
	case "dataset":
		out, err = n.cmdDataset(args[1:])
	case "ifconfig":
		err = n.cmdEnable(args[1:], n.ot.IPv6SetEnabled)
	case "thread":
		err = n.cmdThread(args[1:])
	case "ipaddr":
		out = n.cmdIPAddr()
	case "udp":
		out, err = n.cmdUDP(args[1:])
	case "stats":
		out = n.cmdStats()
	default:
		err = fmt.Errorf("unknown command %q (type 'help')", args[0])
	}
	if err != nil {
		return "Error: " + err.Error()
	}
	if out == "" {
		return "Done"
	}
	return out
}

const helpText = `Commands:
  state                       device role
  dataset                     show the active dataset
  dataset set <field> <value> update one field (channel, panid, networkname)
  ifconfig up|down            IPv6 interface
  thread start|stop           Thread protocol
  ipaddr                      unicast addresses
  udp open <port>             bind the shell socket
  udp send <addr> <port> <text>
  udp close
  stats                       radio and engine counters
  quit`

func (n *node) cmdState() (string, error) {
	role, ok := n.ot.Role()
	if !ok {
		return "", fmt.Errorf("engine reported an unknown role")
	}
	return role.String(), nil
}

func (n *node) cmdDataset(args []string) (string, error) {
	if len(args) == 0 {
		ds, err := n.ot.ActiveDataset()
		if err != nil {
			return "", err
		}
		return formatDataset(&ds), nil
	}
	if len(args) != 3 || args[0] != "set" {
		return "", fmt.Errorf("usage: dataset set <field> <value>")
	}

	ds, _ := n.ot.ActiveDataset()
	field, value := strings.ToLower(args[1]), args[2]
	switch field {
	case "channel":
		v, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return "", err
		}
		ds.Channel = dataset.Ptr(uint16(v))
	case "panid":
		v, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return "", err
		}
		ds.PanID = dataset.Ptr(uint16(v))
	case "networkname":
		ds.NetworkName = dataset.Ptr(value)
	default:
		return "", fmt.Errorf("unknown dataset field %q", field)
	}
	return "", n.ot.SetActiveDataset(&ds)
}

func formatDataset(ds *dataset.OperationalDataset) string {
	var b strings.Builder
	if ds.ActiveTimestamp != nil {
		fmt.Fprintf(&b, "Active Timestamp: %d\n", ds.ActiveTimestamp.Seconds)
	}
	if ds.Channel != nil {
		fmt.Fprintf(&b, "Channel: %d\n", *ds.Channel)
	}
	if ds.ChannelMask != nil {
		fmt.Fprintf(&b, "Channel Mask: 0x%08x\n", *ds.ChannelMask)
	}
	if ds.ExtendedPanID != nil {
		fmt.Fprintf(&b, "Ext PAN ID: %x\n", ds.ExtendedPanID[:])
	}
	if ds.MeshLocalPrefix != nil {
		var a [16]byte
		copy(a[:], ds.MeshLocalPrefix[:])
		fmt.Fprintf(&b, "Mesh Local Prefix: %s/64\n", netip.AddrFrom16(a))
	}
	if ds.NetworkName != nil {
		fmt.Fprintf(&b, "Network Name: %s\n", *ds.NetworkName)
	}
	if ds.PanID != nil {
		fmt.Fprintf(&b, "PAN ID: 0x%04x\n", *ds.PanID)
	}
	if ds.NetworkKey != nil {
		b.WriteString("Network Key: [set]\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (n *node) cmdEnable(args []string, set func(bool) error) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: up|down")
	}
	switch args[0] {
	case "up":
		return set(true)
	case "down":
		return set(false)
	default:
		return fmt.Errorf("usage: up|down")
	}
}

func (n *node) cmdThread(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: thread start|stop")
	}
	switch args[0] {
	case "start":
		return n.ot.ThreadSetEnabled(true)
	case "stop":
		return n.ot.ThreadSetEnabled(false)
	default:
		return fmt.Errorf("usage: thread start|stop")
	}
}

func (n *node) cmdIPAddr() string {
	var lines []string
	for _, a := range n.ot.UnicastAddresses() {
		lines = append(lines, a.Address.String())
	}
	return strings.Join(lines, "\n")
}

func (n *node) cmdUDP(args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("usage: udp open|send|close")
	}
	switch args[0] {
	case "open":
		if len(args) != 2 {
			return "", fmt.Errorf("usage: udp open <port>")
		}
		port, err := strconv.ParseUint(args[1], 10, 16)
		if err != nil {
			return "", err
		}
		if n.sock == nil {
			if n.sock, err = n.ot.NewUDPSocket(len(n.rxBuf)); err != nil {
				return "", err
			}
		}
		return "", n.sock.Bind(uint16(port))
	case "send":
		if len(args) < 4 {
			return "", fmt.Errorf("usage: udp send <addr> <port> <text>")
		}
		if n.sock == nil {
			return "", fmt.Errorf("no socket, run 'udp open <port>' first")
		}
		dst, err := netip.ParseAddr(args[1])
		if err != nil {
			return "", err
		}
		port, err := strconv.ParseUint(args[2], 10, 16)
		if err != nil {
			return "", err
		}
		return "", n.sock.Send(dst, uint16(port), []byte(strings.Join(args[3:], " ")))
	case "close":
		if n.sock == nil {
			return "", nil
		}
		err := n.sock.Close()
		n.sock = nil
		return "", err
	default:
		return "", fmt.Errorf("unknown udp command %q", args[0])
	}
}

func (n *node) cmdStats() string {
	s := n.eng.Stats()
	out := fmt.Sprintf("ext addr: %016x\ntx frames: %d (failed %d)\nrx frames: %d (dropped %d)\ndelivered: %d",
		n.eng.ExtAddress(), s.TxFrames, s.TxFailures, s.RxFrames, s.RxDropped, s.Delivered)
	if n.radio != nil {
		rx, dropped := n.radio.Stats()
		out += fmt.Sprintf("\nradio rx: %d (filtered %d)", rx, dropped)
	}
	return out
}
