package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned by Start while a capture is already running.
	ErrBusy = errors.New("engine: capture already in progress")
	// ErrNotRecording is returned by Stop when no capture is running.
	ErrNotRecording = errors.New("engine: no capture in progress")
	// ErrNoTorch is returned by SwitchTorch when no torch is wired.
	ErrNoTorch = errors.New("engine: no torch available")
)

// Engine is the capture engine seen by the coordinator: it owns the camera
// session, encoding and filtering, and reports back through a Delegate.
// Commands are fire-and-forget: they return once the request is accepted,
// and progress arrives later as delegate callbacks.
type Engine interface {
	// Start begins a capture. The delegate receives OnCaptureStarted once
	// frames flow, or OnCaptureFailed.
	Start(opts Options) error
	// Stop finishes the current capture; the artifact is reported via
	// OnCaptureFinished.
	Stop() error
	// Cancel aborts the current capture and discards any partial artifact.
	// No callback follows.
	Cancel() error
	SwitchCamera() error
	SwitchTorch() error
}

// Delegate receives capture lifecycle events. Engines may call it from any
// goroutine.
type Delegate interface {
	OnCaptureStarted()
	OnCaptureProgress(tick int)
	OnCaptureFinished(location string)
	OnCaptureFailed(reason string)
}

// Facing selects the camera direction.
type Facing string

const (
	FacingFront Facing = "front"
	FacingBack  Facing = "back"
)

// Opposite returns the other camera direction.
func (f Facing) Opposite() Facing {
	if f == FacingBack {
		return FacingFront
	}
	return FacingBack
}

// VideoFilter selects an effect applied by the engine.
type VideoFilter string

const (
	FilterNone             VideoFilter = "none"
	FilterRemoveBackground VideoFilter = "remove_background"
)

// Resolution is the target frame size in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Options configure a capture. They are passed through to the engine as-is.
type Options struct {
	Resolution Resolution  `json:"resolution"`
	FrameRate  int         `json:"frame_rate"`
	Facing     Facing      `json:"facing"`
	MicEnabled bool        `json:"mic_enabled"`
	Filter     VideoFilter `json:"filter"`
}

// DefaultOptions returns the demo screen's setup: a 480x480 square at 60 fps
// from the front camera, microphone off, background removed.
func DefaultOptions() Options {
	return Options{
		Resolution: Resolution{Width: 480, Height: 480},
		FrameRate:  60,
		Facing:     FacingFront,
		MicEnabled: false,
		Filter:     FilterRemoveBackground,
	}
}

// Validate checks ranges and enum values.
func (o Options) Validate() error {
	if o.Resolution.Width <= 0 || o.Resolution.Height <= 0 {
		return fmt.Errorf("resolution must be positive, got %dx%d", o.Resolution.Width, o.Resolution.Height)
	}
	if o.FrameRate <= 0 || o.FrameRate > 240 {
		return fmt.Errorf("frame_rate must be between 1 and 240, got %d", o.FrameRate)
	}
	switch o.Facing {
	case FacingFront, FacingBack:
	default:
		return fmt.Errorf("unknown camera facing %q", o.Facing)
	}
	switch o.Filter {
	case FilterNone, FilterRemoveBackground:
	default:
		return fmt.Errorf("unknown video filter %q", o.Filter)
	}
	return nil
}
