package espif

import (
	fx "github.com/robotalks/espnic/pkg/framework"
)

type loopWaker struct {
	loop fx.LoopControl
}

// AddToLoop implements framework.LoopAdder. The loop polls the receive ring
// on every iteration and runs the health tick every TickInterval. Received
// bytes wake the loop early.
func (b *Bridge) AddToLoop(loop *fx.Loop) {
	b.loop.Store(&loopWaker{loop: loop})
	interval := b.opts.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	loop.AddController(fx.PrLvReceive, fx.ControlFunc(func(fx.ControlContext) error {
		b.Poll()
		return nil
	}))
	loop.AddController(fx.PrLvHealth, fx.Every(interval, fx.ControlFunc(func(fx.ControlContext) error {
		b.Tick()
		return nil
	})))
}

func (b *Bridge) wake() {
	if w := b.loop.Load(); w != nil {
		w.loop.TriggerNext()
	}
}
