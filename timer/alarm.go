package timer

import (
	"errors"
	"sync"
	"time"
)

var ErrAlarmRunning = errors.New("timer: alarm already running")

// Alarm is the hardware timer boundary: a monotonic clock plus a
// periodic interrupt.
type Alarm interface {
	// Now returns the time elapsed since the alarm was created.
	Now() time.Duration
	// SetPeriodic calls isr every period until Stop.
	SetPeriodic(period time.Duration, isr func()) error
	// Stop cancels the periodic interrupt.
	Stop()
}

// TickerAlarm drives the interrupt from a time.Ticker goroutine.
type TickerAlarm struct {
	start time.Time

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ Alarm = (*TickerAlarm)(nil)

func NewTickerAlarm() *TickerAlarm {
	return &TickerAlarm{start: time.Now()}
}

func (a *TickerAlarm) Now() time.Duration { return time.Since(a.start) }

func (a *TickerAlarm) SetPeriodic(period time.Duration, isr func()) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stop != nil {
		return ErrAlarmRunning
	}
	a.stop = make(chan struct{})
	a.done = make(chan struct{})

	go func(stop, done chan struct{}) {
		defer close(done)
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				isr()
			}
		}
	}(a.stop, a.done)
	return nil
}

func (a *TickerAlarm) Stop() {
	a.mu.Lock()
	stop, done := a.stop, a.done
	a.stop, a.done = nil, nil
	a.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// ManualAlarm is a deterministic Alarm for tests. Time moves only through
// Advance, which raises the interrupt once per elapsed period.
type ManualAlarm struct {
	mu      sync.Mutex
	now     time.Duration
	period  time.Duration
	next    time.Duration
	isr     func()
	running bool
}

var _ Alarm = (*ManualAlarm)(nil)

func NewManualAlarm() *ManualAlarm { return &ManualAlarm{} }

func (a *ManualAlarm) Now() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.now
}

func (a *ManualAlarm) SetPeriodic(period time.Duration, isr func()) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return ErrAlarmRunning
	}
	a.period, a.isr, a.running = period, isr, true
	a.next = a.now + period
	return nil
}

func (a *ManualAlarm) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	a.isr = nil
}

// Advance moves the clock forward by d.
func (a *ManualAlarm) Advance(d time.Duration) {
	a.mu.Lock()
	a.now += d
	ticks := 0
	if a.running && a.period > 0 {
		for a.next <= a.now {
			a.next += a.period
			ticks++
		}
	}
	isr := a.isr
	a.mu.Unlock()

	for i := 0; i < ticks; i++ {
		isr()
	}
}
