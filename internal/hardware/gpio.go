package hardware

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// edgePoll bounds each WaitForEdge call so cancellation is noticed.
const edgePoll = 500 * time.Millisecond

// ReedSwitch is a cup anemometer wired to a pulled-up GPIO input.
type ReedSwitch struct {
	pin gpio.PinIO
}

func NewReedSwitch(name string) (*ReedSwitch, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio %q not found", name)
	}
	if err := p.In(gpio.PullUp, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("gpio %s input: %w", name, err)
	}
	return &ReedSwitch{pin: p}, nil
}

func (r *ReedSwitch) OnEdge(ctx context.Context, handler func()) error {
	for {
		if r.pin.WaitForEdge(edgePoll) {
			handler()
		}
		if err := ctx.Err(); err != nil {
			_ = r.pin.Halt()
			return err
		}
	}
}

// PinLED drives a status LED on a GPIO output.
type PinLED struct {
	pin gpio.PinIO
}

func NewPinLED(name string) (*PinLED, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio %q not found", name)
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("gpio %s output: %w", name, err)
	}
	return &PinLED{pin: p}, nil
}

func (l *PinLED) Set(on bool) error {
	return l.pin.Out(gpio.Level(on))
}
