package web

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"time"

	"github.com/cjeanneret/CamKit/internal/debug"
	"github.com/cjeanneret/CamKit/internal/logic/capture"
)

// Coordinator is the recording session the page drives. Intents return
// immediately; their outcome shows up in later snapshots.
type Coordinator interface {
	Snapshot() capture.Snapshot
	StartRecording()
	StopRecording()
	CancelRecording()
	SwitchCamera()
	SwitchTorch()
	ConsumeNavigation()
	DismissError()
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Coordinator Coordinator
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *StatusBroadcaster, coordinator Coordinator, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Coordinator: coordinator,
		staticFS:    staticFS,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.Verbose("web: encode response: %v", err)
	}
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleSnapshot returns the current coordinator snapshot as JSON.
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Coordinator.Snapshot())
}

// Intent returns a handler that forwards one user intent to the coordinator
// and answers 202 with the snapshot at acceptance time.
func (h *Handlers) Intent(name string, fn func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		debug.At(debug.LevelVerbose).Str("intent", name).Str("remote", r.RemoteAddr).Msg("web: intent")
		fn()
		writeJSON(w, http.StatusAccepted, h.Coordinator.Snapshot())
	}
}

// HandleArtifact serves the last produced clip to the playback page.
func (h *Handlers) HandleArtifact(w http.ResponseWriter, r *http.Request) {
	s := h.Coordinator.Snapshot()
	if !s.HasArtifact() {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no_artifact"})
		return
	}
	http.ServeFile(w, r, s.Artifact)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection, then the current state
	w.Write([]byte(": connected\n\n"))
	if payload, ok := encodeEvent(snapshotEvent(h.Coordinator.Snapshot())); ok {
		w.Write([]byte("data: " + payload + "\n\n"))
	}
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
