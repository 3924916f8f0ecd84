package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Phases lists every recording phase label, so the state gauge can be
// zeroed for all but the current one.
var Phases = []string{"ready_to_record", "preparing", "recording", "failed"}

var (
	recordingState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "camkit_recording_state",
		Help: "Current recording phase (1 for the active phase, 0 otherwise)",
	}, []string{"phase"})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camkit_state_transitions_total",
		Help: "Recording state transitions by source and target phase",
	}, []string{"from", "to"})

	ignoredEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camkit_ignored_events_total",
		Help: "Intents and engine callbacks absorbed because the current phase does not accept them",
	}, []string{"phase", "event"})

	recordingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camkit_recordings_total",
		Help: "Recording attempts by outcome",
	}, []string{"outcome"}) // outcome=finished|failed|cancelled

	recordingElapsed = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "camkit_recording_elapsed_seconds",
		Help:    "Elapsed counter value when a recording finished",
		Buckets: []float64{1, 2, 5, 10, 15, 30, 60, 120, 300},
	})

	engineCommandErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camkit_engine_command_errors_total",
		Help: "Engine commands that returned an error",
	}, []string{"command"})

	unattachedCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camkit_unattached_commands_total",
		Help: "Commands dropped because no capture engine was attached yet",
	}, []string{"command"})
)

// SetPhase marks phase as the active one.
func SetPhase(phase string) {
	for _, p := range Phases {
		v := 0.0
		if p == phase {
			v = 1
		}
		recordingState.WithLabelValues(p).Set(v)
	}
}

// RecordTransition counts a phase change.
func RecordTransition(from, to string) {
	transitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordIgnored counts an absorbed event.
func RecordIgnored(phase, event string) {
	ignoredEventsTotal.WithLabelValues(phase, event).Inc()
}

// RecordOutcome counts a finished attempt.
func RecordOutcome(outcome string) {
	recordingsTotal.WithLabelValues(outcome).Inc()
}

// ObserveElapsed records the elapsed counter of a completed recording.
func ObserveElapsed(seconds int) {
	recordingElapsed.Observe(float64(seconds))
}

// RecordEngineError counts a failed engine command.
func RecordEngineError(command string) {
	engineCommandErrors.WithLabelValues(command).Inc()
}

// RecordUnattached counts a command dropped before an engine was attached.
func RecordUnattached(command string) {
	unattachedCommands.WithLabelValues(command).Inc()
}
