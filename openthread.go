package otplat

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ystepanoff/otplat/dataset"
	"github.com/ystepanoff/otplat/engine"
	"github.com/ystepanoff/otplat/entropy"
	"github.com/ystepanoff/otplat/internal/registry"
	"github.com/ystepanoff/otplat/radio"
	"github.com/ystepanoff/otplat/settings"
	"github.com/ystepanoff/otplat/timer"
	"github.com/ystepanoff/otplat/udp"
)

// DefaultSocketCapacity is the number of UDP sockets a node can hold.
const DefaultSocketCapacity = 8

// claimed enforces the engine's single instance per process.
var claimed atomic.Bool

type options struct {
	log            zerolog.Logger
	store          settings.Store
	entropy        io.Reader
	socketCapacity int
}

// Option configures New.
type Option func(*options)

func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithSettingsStore sets the engine's non-volatile storage. The default
// is a volatile settings.Memory.
func WithSettingsStore(s settings.Store) Option {
	return func(o *options) { o.store = s }
}

// WithEntropySource replaces the platform random source.
func WithEntropySource(r io.Reader) Option {
	return func(o *options) { o.entropy = r }
}

func WithSocketCapacity(n int) Option {
	return func(o *options) { o.socketCapacity = n }
}

// OpenThread runs one protocol engine on top of a radio driver and an
// alarm. RunTasklets and Process must be called regularly from a single
// goroutine; every other method must be called from that same goroutine.
type OpenThread struct {
	eng      engine.Engine
	reg      *registry.Registry
	timer    *timer.Adapter
	rng      *entropy.Adapter
	store    settings.Store
	pipeline *radio.Pipeline
	sockets  *udp.Table
	log      zerolog.Logger

	txDone  atomic.Bool
	txFrame *engine.RadioFrame

	onClose []func() error
	closed  bool
}

// New initializes eng on top of drv and alarm. Only one OpenThread may
// exist at a time; Close releases it.
func New(eng engine.Engine, drv radio.Driver, alarm timer.Alarm, opts ...Option) (*OpenThread, error) {
	o := options{
		log:            zerolog.Nop(),
		socketCapacity: DefaultSocketCapacity,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.store == nil {
		o.store = settings.NewMemory()
	}

	if !claimed.CompareAndSwap(false, true) {
		return nil, ErrAlreadyInitialized
	}
	ok := false
	defer func() {
		if !ok {
			claimed.Store(false)
		}
	}()

	if v := eng.Version(); v != engine.APIVersion {
		return nil, fmt.Errorf("%w: engine %d, want %d", ErrVersionMismatch, v, engine.APIVersion)
	}

	ot := &OpenThread{
		eng:   eng,
		reg:   registry.New(o.log),
		timer: timer.NewAdapter(),
		rng:   entropy.New(o.entropy),
		store: o.store,
		log:   o.log.With().Str("component", "openthread").Logger(),
	}
	ot.pipeline = radio.NewPipeline(ot.timer.Millis, o.log)

	if err := ot.reg.Attach(drv); err != nil {
		return nil, err
	}
	drv.SetTxDoneCallback(func() { ot.txDone.Store(true) })

	if err := ot.timer.Install(alarm); err != nil {
		ot.detach()
		return nil, fmt.Errorf("otplat: install alarm: %w", err)
	}

	if err := engine.Check(eng.Init(&platform{ot: ot})); err != nil {
		ot.timer.Uninstall()
		ot.detach()
		return nil, fmt.Errorf("otplat: engine init: %w", err)
	}
	if err := engine.Check(eng.SetStateChangedCallback(ot.reg.Dispatch)); err != nil {
		eng.Finalize()
		ot.timer.Uninstall()
		ot.detach()
		return nil, fmt.Errorf("otplat: state callback: %w", err)
	}

	ot.sockets = udp.NewTable(eng, o.socketCapacity, o.log)

	ok = true
	ot.log.Info().Uint32("api", engine.APIVersion).Msg("engine up")
	return ot, nil
}

func (ot *OpenThread) detach() {
	WithRadioDriver(ot, func(d radio.Driver) struct{} {
		d.SetTxDoneCallback(nil)
		return struct{}{}
	})
	ot.reg.Teardown()
}

// Close finalizes the engine and releases the radio, the alarm and the
// single-instance claim. Sockets still open are closed.
func (ot *OpenThread) Close() error {
	if ot.closed {
		return nil
	}
	ot.closed = true

	ot.sockets.CloseAll()
	ot.eng.Finalize()
	ot.timer.Uninstall()
	ot.detach()
	claimed.Store(false)

	var errs []error
	for _, fn := range ot.onClose {
		errs = append(errs, fn())
	}
	ot.log.Info().Msg("engine down")
	return errors.Join(errs...)
}

// RunTasklets runs the engine's queued work, if any.
func (ot *OpenThread) RunTasklets() {
	if ot.closed {
		return
	}
	if ot.eng.TaskletsArePending() {
		ot.eng.TaskletsProcess()
	}
}

// Process runs due timers, reports a finished transmit, closes sockets
// that were dropped without Close and forwards every buffered frame to
// the engine, in that order. It never blocks and does nothing when idle.
func (ot *OpenThread) Process() {
	if ot.closed {
		return
	}
	ot.timer.RunIfDue(ot.eng.AlarmFired)

	if ot.txDone.Swap(false) {
		if f := ot.txFrame; f != nil {
			ot.txFrame = nil
			ot.eng.RadioTxDone(f, engine.StatusNone)
		}
	}

	if ot.sockets.HasOrphans() {
		ot.sockets.Reap()
	}

	ot.pipeline.Drain(ot.reg, ot.eng)
}

// SetActiveDataset submits ds as the active operational dataset.
func (ot *OpenThread) SetActiveDataset(ds *dataset.OperationalDataset) error {
	raw, err := ds.ToRaw()
	if err != nil {
		return err
	}
	if err := engine.Check(ot.eng.DatasetSetActive(&raw)); err != nil {
		return fmt.Errorf("otplat: set active dataset: %w", err)
	}
	ot.log.Info().Object("dataset", ds).Msg("active dataset set")
	return nil
}

// ActiveDataset returns the active dataset. Only fields the engine
// reports present are set.
func (ot *OpenThread) ActiveDataset() (dataset.OperationalDataset, error) {
	var raw engine.RawDataset
	if err := engine.Check(ot.eng.DatasetGetActive(&raw)); err != nil {
		return dataset.OperationalDataset{}, fmt.Errorf("otplat: get active dataset: %w", err)
	}
	return dataset.FromRaw(&raw), nil
}

// SetChangeCallback registers cb for state changes, replacing any
// previous callback; nil clears it. cb runs inside a critical section
// from RunTasklets or Process and must not call SetChangeCallback.
func (ot *OpenThread) SetChangeCallback(cb func(engine.ChangedFlags)) {
	ot.reg.SetCallback(cb)
}

func (ot *OpenThread) IPv6SetEnabled(enabled bool) error {
	if err := engine.Check(ot.eng.IP6SetEnabled(enabled)); err != nil {
		return fmt.Errorf("otplat: ipv6 enable=%t: %w", enabled, err)
	}
	return nil
}

func (ot *OpenThread) ThreadSetEnabled(enabled bool) error {
	if err := engine.Check(ot.eng.ThreadSetEnabled(enabled)); err != nil {
		return fmt.Errorf("otplat: thread enable=%t: %w", enabled, err)
	}
	return nil
}

// Role returns the device role; ok is false for a value outside the
// known encoding.
func (ot *OpenThread) Role() (role engine.Role, ok bool) {
	return engine.ParseRole(ot.eng.ThreadDeviceRole())
}

// UnicastAddresses lists the interface's unicast addresses.
func (ot *OpenThread) UnicastAddresses() []engine.UnicastAddress {
	return ot.eng.IP6UnicastAddresses()
}

// NewUDPSocket returns a closed socket with a receive buffer of size
// bytes.
func (ot *OpenThread) NewUDPSocket(size int) (*udp.Socket, error) {
	if ot.closed {
		return nil, ErrClosed
	}
	s, err := ot.sockets.NewSocket(size)
	if errors.Is(err, udp.ErrTableFull) {
		return nil, fmt.Errorf("otplat: %w (capacity %d)", err, ot.sockets.Capacity())
	}
	return s, err
}

// RadioSettings returns the settings the engine last programmed.
func (ot *OpenThread) RadioSettings() radio.Settings { return ot.reg.Settings() }

// Millis returns the platform clock in milliseconds.
func (ot *OpenThread) Millis() uint64 { return ot.timer.Millis() }

// WithRadioDriver runs f on the node's radio driver inside the registry
// critical section. ok is false once the node is closed.
func WithRadioDriver[T any](ot *OpenThread, f func(radio.Driver) T) (T, bool) {
	return registry.WithRadio(ot.reg, f)
}
