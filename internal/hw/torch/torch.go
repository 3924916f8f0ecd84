package torch

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/CamKit/internal/debug"
	"github.com/cjeanneret/CamKit/internal/hw/gpio"
)

// Torch is the illumination used while filming, regardless of how it's
// driven (GPIO lamp, USB light, phone flash, etc.).
type Torch interface {
	// Toggle flips the torch and returns the new on/off state.
	Toggle() (bool, error)
	IsOn() bool
}

// GPIOTorch drives a lamp or LED wired to a single GPIO pin.
//
// Wiring:
// - active-high (default): pin HIGH lights the lamp
// - active-low: pin LOW lights the lamp (typical relay boards)
//
// The lamp starts switched off.
type GPIOTorch struct {
	gpio      gpio.Driver
	pin       int
	activeLow bool

	mu sync.Mutex
	on bool
}

// NewGPIOTorch configures pin as an output and switches the lamp off.
func NewGPIOTorch(g gpio.Driver, pin int, activeLow bool) (*GPIOTorch, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("torch pin must be > 0, got %d", pin)
	}
	if err := g.SetupPin(pin, gpio.Output); err != nil {
		return nil, fmt.Errorf("setup torch pin %d: %w", pin, err)
	}
	t := &GPIOTorch{gpio: g, pin: pin, activeLow: activeLow}
	if err := g.WritePin(pin, t.levelFor(false)); err != nil {
		return nil, fmt.Errorf("switch torch off: %w", err)
	}
	return t, nil
}

func (t *GPIOTorch) levelFor(on bool) gpio.Level {
	if t.activeLow {
		return gpio.Level(!on)
	}
	return gpio.Level(on)
}

// Toggle flips the lamp. On a write error the recorded state is unchanged.
func (t *GPIOTorch) Toggle() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := !t.on
	debug.Verbose("Torch: pin %d -> %v (on=%t)", t.pin, t.levelFor(next), next)
	if err := t.gpio.WritePin(t.pin, t.levelFor(next)); err != nil {
		return t.on, fmt.Errorf("toggle torch: %w", err)
	}
	t.on = next
	return t.on, nil
}

// IsOn reports whether the lamp is lit.
func (t *GPIOTorch) IsOn() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.on
}
