package torch

import (
	"errors"
	"testing"

	"github.com/cjeanneret/CamKit/internal/hw/gpio"
)

// recordingDriver records GPIO calls for verification.
type recordingDriver struct {
	calls    []gpioCall
	failNext bool
}

type gpioCall struct {
	op    string
	pin   int
	level gpio.Level
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	if d.failNext {
		d.failNext = false
		return errors.New("bus error")
	}
	d.calls = append(d.calls, gpioCall{op: "write", pin: pin, level: level})
	return nil
}

func (d *recordingDriver) ReadPin(pin int) (gpio.Level, error) {
	return gpio.Low, nil
}

func (d *recordingDriver) Close() error { return nil }

func (d *recordingDriver) writeCalls() []gpioCall {
	var result []gpioCall
	for _, c := range d.calls {
		if c.op == "write" {
			result = append(result, c)
		}
	}
	return result
}

func TestGPIOTorch_StartsOff(t *testing.T) {
	cases := []struct {
		name      string
		activeLow bool
		want      gpio.Level
	}{
		{"active_high", false, gpio.Low},
		{"active_low", true, gpio.High},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			drv := &recordingDriver{}
			tr, err := NewGPIOTorch(drv, 18, tc.activeLow)
			if err != nil {
				t.Fatalf("NewGPIOTorch: %v", err)
			}
			if tr.IsOn() {
				t.Error("torch should start off")
			}
			writes := drv.writeCalls()
			if len(writes) != 1 || writes[0].pin != 18 || writes[0].level != tc.want {
				t.Errorf("init writes = %v, want single write pin=18 level=%v", writes, tc.want)
			}
		})
	}
}

func TestGPIOTorch_ToggleSequence(t *testing.T) {
	drv := &recordingDriver{}
	tr, err := NewGPIOTorch(drv, 18, false)
	if err != nil {
		t.Fatalf("NewGPIOTorch: %v", err)
	}
	drv.calls = nil // reset after init

	for i, want := range []bool{true, false, true} {
		on, err := tr.Toggle()
		if err != nil {
			t.Fatalf("toggle %d: %v", i, err)
		}
		if on != want {
			t.Errorf("toggle %d: on = %t, want %t", i, on, want)
		}
	}

	expected := []gpio.Level{gpio.High, gpio.Low, gpio.High}
	writes := drv.writeCalls()
	if len(writes) != len(expected) {
		t.Fatalf("expected %d writes, got %d: %v", len(expected), len(writes), writes)
	}
	for i, lvl := range expected {
		if writes[i].level != lvl {
			t.Errorf("write %d: level=%v, want %v", i, writes[i].level, lvl)
		}
	}
}

func TestGPIOTorch_WriteErrorKeepsState(t *testing.T) {
	drv := &recordingDriver{}
	tr, err := NewGPIOTorch(drv, 18, false)
	if err != nil {
		t.Fatalf("NewGPIOTorch: %v", err)
	}

	drv.failNext = true
	on, err := tr.Toggle()
	if err == nil {
		t.Fatal("expected error from failing driver")
	}
	if on || tr.IsOn() {
		t.Error("torch state should be unchanged after a failed write")
	}
}

func TestGPIOTorch_InvalidPin(t *testing.T) {
	if _, err := NewGPIOTorch(&recordingDriver{}, 0, false); err == nil {
		t.Error("expected error for pin 0")
	}
}

func TestGPIOTorch_WithMockDriver(t *testing.T) {
	drv := &gpio.MockDriver{}
	tr, err := NewGPIOTorch(drv, 27, true)
	if err != nil {
		t.Fatalf("NewGPIOTorch: %v", err)
	}
	if _, err := tr.Toggle(); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if lvl, _ := drv.ReadPin(27); lvl != gpio.Low {
		t.Errorf("active-low lit pin = %v, want LOW", lvl)
	}
	var _ Torch = tr
}
