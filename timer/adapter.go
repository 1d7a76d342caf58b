// Package timer adapts a periodic hardware alarm to the engine's
// millisecond alarm API. The interrupt only records that the deadline
// passed; the engine callback runs later from the cooperative loop.
package timer

import (
	"errors"
	"sync/atomic"
	"time"
)

// TickPeriod is the period of the alarm interrupt.
const TickPeriod = time.Millisecond

var (
	ErrAlreadyInstalled = errors.New("timer: alarm already installed")
	ErrNotInstalled     = errors.New("timer: no alarm installed")
)

// Adapter owns one Alarm. Every method except the interrupt handler runs
// on the cooperative loop.
type Adapter struct {
	alarm Alarm

	deadline atomic.Uint32
	armed    atomic.Bool
	due      atomic.Bool
}

func NewAdapter() *Adapter { return &Adapter{} }

// Install claims alarm and starts the 1 ms interrupt.
func (a *Adapter) Install(alarm Alarm) error {
	if a.alarm != nil {
		return ErrAlreadyInstalled
	}
	if err := alarm.SetPeriodic(TickPeriod, a.isr); err != nil {
		return err
	}
	a.alarm = alarm
	return nil
}

// Uninstall stops the interrupt and releases the alarm.
func (a *Adapter) Uninstall() {
	if a.alarm == nil {
		return
	}
	a.alarm.Stop()
	a.alarm = nil
	a.armed.Store(false)
	a.due.Store(false)
}

// Millis returns monotonic milliseconds since the alarm started, or 0
// when none is installed.
func (a *Adapter) Millis() uint64 {
	if a.alarm == nil {
		return 0
	}
	return uint64(a.alarm.Now() / time.Millisecond)
}

// Now32 is Millis truncated to the engine's 32-bit clock.
func (a *Adapter) Now32() uint32 { return uint32(a.Millis()) }

// StartAt arms the alarm to fire dt ms after t0. Both are on the
// wrapping 32-bit clock.
func (a *Adapter) StartAt(t0, dt uint32) {
	a.deadline.Store(t0 + dt)
	a.due.Store(false)
	a.armed.Store(true)
}

func (a *Adapter) Stop() {
	a.armed.Store(false)
	a.due.Store(false)
}

// Armed reports whether a deadline is pending.
func (a *Adapter) Armed() bool { return a.armed.Load() }

// RunIfDue calls fire when the armed deadline has elapsed, disarming
// first so fire may re-arm. It reports whether fire ran.
func (a *Adapter) RunIfDue(fire func()) bool {
	if !a.armed.Load() {
		return false
	}
	if !a.due.Load() && !elapsed(a.Now32(), a.deadline.Load()) {
		return false
	}
	a.armed.Store(false)
	a.due.Store(false)
	fire()
	return true
}

func (a *Adapter) isr() {
	if a.armed.Load() && elapsed(a.Now32(), a.deadline.Load()) {
		a.due.Store(true)
	}
}

func elapsed(now, deadline uint32) bool {
	return int32(now-deadline) >= 0
}
