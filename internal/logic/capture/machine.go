package capture

import (
	"errors"
	"fmt"
)

// EventKind identifies an intent from the presentation layer or a callback
// from the capture engine.
type EventKind string

const (
	// Intents
	EventStartRequested     EventKind = "start_requested"
	EventStopRequested      EventKind = "stop_requested"
	EventCancelRequested    EventKind = "cancel_requested"
	EventDismissRequested   EventKind = "dismiss_requested"
	EventNavigationConsumed EventKind = "navigation_consumed"
	EventSwitchCamera       EventKind = "switch_camera"
	EventSwitchTorch        EventKind = "switch_torch"

	// Engine callbacks
	EventCaptureStarted  EventKind = "capture_started"
	EventCaptureProgress EventKind = "capture_progress"
	EventCaptureFinished EventKind = "capture_finished"
	EventCaptureFailed   EventKind = "capture_failed"
)

// Event is one input to the state machine.
type Event struct {
	Kind     EventKind
	Tick     int    // capture_progress
	Location string // capture_finished
	Reason   string // capture_failed
}

// Effect is a side effect the coordinator performs after a transition.
type Effect string

const (
	EffectStartEngine  Effect = "start_engine"
	EffectStopEngine   Effect = "stop_engine"
	EffectCancelEngine Effect = "cancel_engine"
	EffectSwitchCamera Effect = "switch_camera"
	EffectSwitchTorch  Effect = "switch_torch"
	EffectStartTicker  Effect = "start_ticker"
	EffectStopTicker   Effect = "stop_ticker"
)

// ErrInvalidTransition is returned by Apply when the current phase does not
// accept the event. The snapshot is returned unchanged.
var ErrInvalidTransition = errors.New("invalid transition")

const missingArtifactReason = "capture finished without an artifact"

// Apply computes the snapshot that follows s after ev, and the effects to
// run. It never mutates its input.
func Apply(s Snapshot, ev Event) (Snapshot, []Effect, error) {
	// Accepted in every phase.
	switch ev.Kind {
	case EventSwitchCamera:
		return s, []Effect{EffectSwitchCamera}, nil
	case EventSwitchTorch:
		return s, []Effect{EffectSwitchTorch}, nil
	case EventNavigationConsumed:
		s.Navigate = false
		return s, nil, nil
	}

	switch s.State.Phase {
	case PhaseReadyToRecord:
		if ev.Kind == EventStartRequested {
			// A new attempt drops the previous clip and any pending navigation.
			return Snapshot{State: Preparing()}, []Effect{EffectStartEngine}, nil
		}

	case PhasePreparing:
		switch ev.Kind {
		case EventCaptureStarted:
			s.State = Recording(0)
			return s, []Effect{EffectStartTicker}, nil
		case EventCaptureFinished:
			return finish(ev.Location)
		case EventCaptureFailed:
			return fail(ev.Reason)
		case EventCancelRequested:
			return Snapshot{State: ReadyToRecord()}, []Effect{EffectCancelEngine}, nil
		}

	case PhaseRecording:
		switch ev.Kind {
		case EventCaptureProgress:
			s.State = Recording(s.State.Elapsed + 1)
			return s, nil, nil
		case EventCaptureFinished:
			return finish(ev.Location)
		case EventCaptureFailed:
			return fail(ev.Reason)
		case EventStopRequested:
			return s, []Effect{EffectStopEngine}, nil
		case EventCancelRequested:
			return Snapshot{State: ReadyToRecord()}, []Effect{EffectStopTicker, EffectCancelEngine}, nil
		}

	case PhaseFailed:
		if ev.Kind == EventDismissRequested {
			return Snapshot{State: ReadyToRecord()}, nil, nil
		}

	default:
		return s, nil, fmt.Errorf("unknown phase %q", s.State.Phase)
	}

	return s, nil, fmt.Errorf("%w: %s --(%s)--> ?", ErrInvalidTransition, s.State, ev.Kind)
}

func finish(location string) (Snapshot, []Effect, error) {
	if location == "" {
		return fail(missingArtifactReason)
	}
	return Snapshot{
		State:    ReadyToRecord(),
		Artifact: location,
		Navigate: true,
	}, []Effect{EffectStopTicker}, nil
}

func fail(reason string) (Snapshot, []Effect, error) {
	st := Failed(reason)
	return Snapshot{State: st, Error: st.Reason}, []Effect{EffectStopTicker}, nil
}
