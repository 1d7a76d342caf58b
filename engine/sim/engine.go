// Package sim is a small protocol engine for host runs and tests. It
// implements the engine function table with just enough Thread behaviour
// to exercise the adaptation layer: tasklets, state-change notification,
// an active dataset persisted through platform settings, an attach
// sequence driven by the platform alarm, and UDP carried one datagram per
// 802.15.4 frame.
package sim

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/ystepanoff/otplat/engine"
)

const (
	DefaultAttachDelay = 2 * time.Second
	DefaultMessagePool = 16
	txQueueSize        = 8
)

// Settings keys used by the engine.
const (
	KeyActiveDataset uint16 = 1
	KeyExtAddress    uint16 = 2
)

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log.With().Str("component", "sim-engine").Logger() }
}

// WithAttachDelay sets how long the node stays detached before it forms
// its own partition as leader.
func WithAttachDelay(d time.Duration) Option {
	return func(e *Engine) { e.attachDelay = d }
}

// WithMessagePool bounds the number of live messages.
func WithMessagePool(n int) Option {
	return func(e *Engine) { e.poolSize = n }
}

// Engine implements engine.Engine. Like the real engine it is not safe
// for concurrent use: every call comes from the cooperative loop.
type Engine struct {
	log         zerolog.Logger
	attachDelay time.Duration
	poolSize    int

	p           engine.Platform
	initialized bool

	tasklets []func()
	pending  engine.ChangedFlags
	stateCb  func(uint32)

	active    engine.RawDataset
	hasActive bool

	ip6Up    bool
	threadUp bool
	role     engine.Role
	extAddr  uint64
	rloc16   uint16
	addrs    []engine.UnicastAddress

	sockets   []*engine.UDPSocket
	liveMsgs  int
	ephemeral uint16

	seq     uint8
	txBuf   [engine.MaxPSDU]byte
	txFrame engine.RadioFrame
	txBusy  bool
	txQueue [][]byte

	stats Stats
}

// Stats counts radio traffic seen by the engine.
type Stats struct {
	TxFrames   uint64
	TxFailures uint64
	RxFrames   uint64
	RxDropped  uint64
	Delivered  uint64
}

var _ engine.Engine = (*Engine)(nil)

func New(opts ...Option) *Engine {
	e := &Engine{
		log:         zerolog.Nop(),
		attachDelay: DefaultAttachDelay,
		poolSize:    DefaultMessagePool,
		ephemeral:   49152,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.txFrame.PSDU = e.txBuf[:]
	return e
}

func (e *Engine) Version() uint32 { return engine.APIVersion }

func (e *Engine) Init(p engine.Platform) engine.Status {
	if e.initialized {
		return engine.StatusAlready
	}
	e.p = p
	e.initialized = true
	e.role = engine.RoleDisabled
	e.rloc16 = shortAddrUnassigned

	e.extAddr = e.loadExtAddress()
	e.restoreDataset()

	e.log.Info().Str("ext_addr", formatExt(e.extAddr)).Bool("dataset", e.hasActive).Msg("engine initialized")
	return engine.StatusNone
}

func (e *Engine) Finalize() {
	if !e.initialized {
		return
	}
	for _, s := range e.sockets {
		s.Handle = nil
	}
	e.sockets = nil
	e.p.AlarmMilliStop()

	*e = Engine{
		log:         e.log,
		attachDelay: e.attachDelay,
		poolSize:    e.poolSize,
		ephemeral:   49152,
	}
	e.txFrame.PSDU = e.txBuf[:]
}

func (e *Engine) SetStateChangedCallback(cb func(flags uint32)) engine.Status {
	e.stateCb = cb
	return engine.StatusNone
}

func (e *Engine) TaskletsArePending() bool { return len(e.tasklets) > 0 }

// TaskletsProcess runs the tasklets queued so far. Tasklets posted while
// running wait for the next call.
func (e *Engine) TaskletsProcess() {
	run := e.tasklets
	e.tasklets = nil
	for _, t := range run {
		t()
	}
}

// Stats returns traffic counters.
func (e *Engine) Stats() Stats { return e.stats }

// ExtAddress returns the node's IEEE extended address.
func (e *Engine) ExtAddress() uint64 { return e.extAddr }

func (e *Engine) post(t func()) { e.tasklets = append(e.tasklets, t) }

// notify accumulates flags and delivers them from one tasklet.
func (e *Engine) notify(flags engine.ChangedFlags) {
	if flags == 0 {
		return
	}
	if e.pending == 0 {
		e.post(e.deliverChanges)
	}
	e.pending |= flags
}

func (e *Engine) deliverChanges() {
	flags := e.pending
	e.pending = 0
	e.log.Debug().Stringer("flags", flags).Msg("state changed")
	if e.stateCb != nil {
		e.stateCb(uint32(flags))
	}
}
