package capture

import "fmt"

// Phase names the variant of a RecordingState.
type Phase string

const (
	PhaseReadyToRecord Phase = "ready_to_record"
	PhasePreparing     Phase = "preparing"
	PhaseRecording     Phase = "recording"
	PhaseFailed        Phase = "failed"
)

// DefaultFailureMessage is shown when the engine fails without a reason.
const DefaultFailureMessage = "camera capture failed"

// RecordingState drives the record button. Elapsed is only meaningful in
// PhaseRecording and Reason only in PhaseFailed; use the constructors so the
// other fields stay zero.
type RecordingState struct {
	Phase   Phase  `json:"phase"`
	Elapsed int    `json:"elapsed,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func ReadyToRecord() RecordingState { return RecordingState{Phase: PhaseReadyToRecord} }

func Preparing() RecordingState { return RecordingState{Phase: PhasePreparing} }

func Recording(elapsed int) RecordingState {
	if elapsed < 0 {
		elapsed = 0
	}
	return RecordingState{Phase: PhaseRecording, Elapsed: elapsed}
}

func Failed(reason string) RecordingState {
	if reason == "" {
		reason = DefaultFailureMessage
	}
	return RecordingState{Phase: PhaseFailed, Reason: reason}
}

func (s RecordingState) String() string {
	switch s.Phase {
	case PhaseRecording:
		return fmt.Sprintf("recording(%d)", s.Elapsed)
	case PhaseFailed:
		return fmt.Sprintf("failed(%q)", s.Reason)
	default:
		return string(s.Phase)
	}
}

// Snapshot is what the presentation layer observes.
type Snapshot struct {
	State RecordingState `json:"state"`
	// Artifact is the location of the last successful clip; empty when absent.
	Artifact string `json:"artifact,omitempty"`
	// Error is set iff State is failed.
	Error string `json:"error,omitempty"`
	// Navigate is a one-shot request to show the playback screen. It stays
	// set until ConsumeNavigation.
	Navigate bool `json:"navigate"`
}

// InitialSnapshot is the state of a freshly opened screen.
func InitialSnapshot() Snapshot {
	return Snapshot{State: ReadyToRecord()}
}

// HasArtifact reports whether a clip location is available.
func (s Snapshot) HasArtifact() bool { return s.Artifact != "" }
