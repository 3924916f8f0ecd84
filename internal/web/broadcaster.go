package web

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/CamKit/internal/logic/capture"
)

// Event kinds carried on the status stream.
const (
	KindLog      = "log"
	KindSnapshot = "snapshot"
)

// StatusEvent represents a single status message for SSE.
type StatusEvent struct {
	Time     string            `json:"t"`
	Kind     string            `json:"kind"`
	Level    string            `json:"l,omitempty"`
	Msg      string            `json:"msg,omitempty"`
	Snapshot *capture.Snapshot `json:"snapshot,omitempty"`
}

// StatusBroadcaster distributes status messages to multiple SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

func encodeEvent(evt StatusEvent) (string, bool) {
	if evt.Time == "" {
		evt.Time = time.Now().Format(time.RFC3339)
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return "", false
	}
	return string(data), true
}

func snapshotEvent(s capture.Snapshot) StatusEvent {
	return StatusEvent{Kind: KindSnapshot, Snapshot: &s}
}

func (b *StatusBroadcaster) send(evt StatusEvent) {
	payload, ok := encodeEvent(evt)
	if !ok {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// Broadcast sends a log line to all subscribed clients.
// Messages are sent as JSON: {"t":"...","kind":"log","l":"info","msg":"..."}
// Slow clients may miss messages (non-blocking, buffered).
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.send(StatusEvent{Kind: KindLog, Level: level, Msg: msg})
}

// BroadcastMsg is a convenience for level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// BroadcastSnapshot pushes a coordinator snapshot to all clients.
func (b *StatusBroadcaster) BroadcastSnapshot(s capture.Snapshot) {
	b.send(snapshotEvent(s))
}

// ForwardSnapshots relays snapshots to the broadcaster until ctx is done or
// snaps is closed.
func ForwardSnapshots(ctx context.Context, snaps <-chan capture.Snapshot, b *StatusBroadcaster) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-snaps:
			if !ok {
				return nil
			}
			b.BroadcastSnapshot(s)
		}
	}
}

// BroadcastWriter implements io.Writer; each Write broadcasts the content to SSE clients.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

// broadcastWriter wraps StatusBroadcaster as io.Writer for use as a debug output.
// JSON log lines keep their level and message; anything else is sent as is.
type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}

	var line struct {
		Level   string `json:"level"`
		Message string `json:"message"`
	}
	if strings.HasPrefix(msg, "{") && json.Unmarshal([]byte(msg), &line) == nil && line.Message != "" {
		level := line.Level
		if level == "" {
			level = "info"
		}
		w.b.Broadcast(level, line.Message)
		return len(p), nil
	}

	w.b.BroadcastMsg(msg)
	return len(p), nil
}
