//go:build tinygo || baremetal

// This file is built only for embedded targets (using real radio hardware).
package otplat

import (
	"github.com/ystepanoff/otplat/engine"
	"github.com/ystepanoff/otplat/radio"
	"github.com/ystepanoff/otplat/timer"
)

// NewOnDevice runs eng on the board's 802.15.4 driver. The alarm is the
// runtime ticker and entropy comes from the hardware RNG.
func NewOnDevice(eng engine.Engine, drv radio.Driver, opts ...Option) (*OpenThread, error) {
	return New(eng, drv, timer.NewTickerAlarm(), opts...)
}
