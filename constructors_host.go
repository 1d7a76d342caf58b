//go:build !tinygo && !baremetal

// This file is built only for non-embedded targets (host simulation and testing).
package otplat

import (
	"context"

	"github.com/ystepanoff/otplat/engine"
	"github.com/ystepanoff/otplat/radio/sim"
	"github.com/ystepanoff/otplat/radio/stub"
	"github.com/ystepanoff/otplat/timer"
)

// NewSimulated runs eng on a multicast simulated radio and a ticker
// alarm. The radio is closed with the node.
func NewSimulated(ctx context.Context, eng engine.Engine, cfg sim.Config, opts ...Option) (*OpenThread, *sim.Driver, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	drv, err := sim.Open(ctx, cfg, o.log)
	if err != nil {
		return nil, nil, err
	}
	ot, err := New(eng, drv, timer.NewTickerAlarm(), opts...)
	if err != nil {
		_ = drv.Close()
		return nil, nil, err
	}
	ot.onClose = append(ot.onClose, drv.Close)
	return ot, drv, nil
}

// NewWithStub runs eng on an in-memory radio and a manual alarm, for
// tests that drive time and traffic by hand.
func NewWithStub(eng engine.Engine, opts ...Option) (*OpenThread, *stub.Driver, *timer.ManualAlarm, error) {
	drv := stub.New()
	alarm := timer.NewManualAlarm()
	ot, err := New(eng, drv, alarm, opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	return ot, drv, alarm, nil
}
