package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/cjeanneret/CamKit/internal/debug"
	"github.com/cjeanneret/CamKit/internal/hw/torch"
)

// SimulatedConfig tunes the simulated engine.
type SimulatedConfig struct {
	OutputDir        string        // where clip manifests are written
	Warmup           time.Duration // delay between Start and OnCaptureStarted
	ProgressInterval time.Duration // engine-side ticks; 0 = none
	MaxDuration      time.Duration // finish automatically after this; 0 = unlimited
	FailReason       string        // if set, every capture fails after warm-up with this reason
}

// Simulated is an Engine that produces clip manifests instead of video.
// It stands in for the camera library on machines without one and keeps
// the same asynchronous callback behavior.
type Simulated struct {
	cfg      SimulatedConfig
	delegate Delegate
	torch    torch.Torch

	mu       sync.Mutex
	switched bool // flip the configured facing
	session  *session
	wg       sync.WaitGroup
}

type session struct {
	id       uuid.UUID
	opts     Options
	facing   Facing
	cancel   context.CancelFunc
	stop     chan struct{}
	stopOnce sync.Once
}

// ClipManifest describes a simulated clip. It is the artifact handed to the
// playback collaborator.
type ClipManifest struct {
	ID         string    `json:"id"`
	Options    Options   `json:"options"`
	Facing     Facing    `json:"facing"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Frames     int64     `json:"frames"`
}

var _ Engine = (*Simulated)(nil)

// NewSimulated creates a simulated engine reporting to d. t may be nil, in
// which case SwitchTorch returns ErrNoTorch.
func NewSimulated(cfg SimulatedConfig, d Delegate, t torch.Torch) *Simulated {
	if cfg.OutputDir == "" {
		cfg.OutputDir = os.TempDir()
	}
	return &Simulated{cfg: cfg, delegate: d, torch: t}
}

// Start launches a capture goroutine and returns immediately.
func (s *Simulated) Start(opts Options) error {
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return ErrBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:     uuid.New(),
		opts:   opts,
		facing: s.resolve(opts.Facing),
		cancel: cancel,
		stop:   make(chan struct{}),
	}
	s.session = sess

	debug.At(debug.LevelLive).
		Str("capture", sess.id.String()).
		Str("facing", string(sess.facing)).
		Str("filter", string(opts.Filter)).
		Msg("engine: capture starting")

	s.wg.Add(1)
	go s.run(ctx, sess)
	return nil
}

func (s *Simulated) run(ctx context.Context, sess *session) {
	defer s.wg.Done()

	if s.cfg.Warmup > 0 {
		t := time.NewTimer(s.cfg.Warmup)
		select {
		case <-ctx.Done():
			t.Stop()
			s.release(sess)
			return
		case <-sess.stop:
			// Stopped before frames flowed: finish with an empty clip.
			t.Stop()
			s.finish(sess, time.Now())
			return
		case <-t.C:
		}
	}

	if s.cfg.FailReason != "" {
		s.emit(sess, true, func() { s.delegate.OnCaptureFailed(s.cfg.FailReason) })
		s.release(sess)
		return
	}

	started := time.Now()
	if !s.emit(sess, false, s.delegate.OnCaptureStarted) {
		s.release(sess)
		return
	}

	var tickC <-chan time.Time
	if s.cfg.ProgressInterval > 0 {
		ticker := time.NewTicker(s.cfg.ProgressInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}
	var maxC <-chan time.Time
	if s.cfg.MaxDuration > 0 {
		timer := time.NewTimer(s.cfg.MaxDuration)
		defer timer.Stop()
		maxC = timer.C
	}

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			debug.Live("engine: capture %s cancelled", sess.id)
			s.release(sess)
			return
		case <-tickC:
			ticks++
			if !s.emit(sess, false, func() { s.delegate.OnCaptureProgress(ticks) }) {
				s.release(sess)
				return
			}
		case <-maxC:
			debug.Info("engine: maximum duration %v reached", s.cfg.MaxDuration)
			s.finish(sess, started)
			return
		case <-sess.stop:
			s.finish(sess, started)
			return
		}
	}
}

func (s *Simulated) finish(sess *session, started time.Time) {
	defer s.release(sess)
	loc, err := s.writeManifest(sess, started, time.Since(started))
	if err != nil {
		debug.Error(err)
		s.emit(sess, true, func() { s.delegate.OnCaptureFailed(err.Error()) })
		return
	}
	if !s.emit(sess, true, func() { s.delegate.OnCaptureFinished(loc) }) {
		// Cancelled while writing.
		_ = os.Remove(loc)
		return
	}
	debug.Info("engine: clip written to %s", loc)
}

// emit runs cb only while sess is the active session. Holding mu across the
// callback orders it before any Cancel. When last is set the session ends
// with this callback.
func (s *Simulated) emit(sess *session, last bool, cb func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != sess {
		return false
	}
	if last {
		s.session = nil
	}
	cb()
	return true
}

func (s *Simulated) writeManifest(sess *session, started time.Time, d time.Duration) (string, error) {
	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(s.cfg.OutputDir, "clip-"+sess.id.String()+".json")

	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return "", fmt.Errorf("create pending clip file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			debug.Verbose("cleanup pending clip file: %v", err)
		}
	}()

	m := ClipManifest{
		ID:         sess.id.String(),
		Options:    sess.opts,
		Facing:     sess.facing,
		StartedAt:  started.UTC(),
		DurationMs: d.Milliseconds(),
		Frames:     int64(d.Seconds() * float64(sess.opts.FrameRate)),
	}
	enc := json.NewEncoder(pendingFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return "", fmt.Errorf("write clip manifest: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("atomically replace clip file: %w", err)
	}
	return path, nil
}

// release clears sess if it is still the active session.
func (s *Simulated) release(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == sess {
		s.session = nil
	}
	sess.cancel()
}

// Stop asks the running capture to finish.
func (s *Simulated) Stop() error {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil {
		return ErrNotRecording
	}
	sess.stopOnce.Do(func() { close(sess.stop) })
	return nil
}

// Cancel aborts the running capture without a callback. It does not wait
// for the capture goroutine; Close does.
func (s *Simulated) Cancel() error {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.mu.Unlock()
	if sess == nil {
		return ErrNotRecording
	}
	sess.cancel()
	return nil
}

// SwitchCamera flips between front and back cameras. A running capture
// keeps its direction; later ones use the configured facing flipped.
// Switching twice restores the configured direction.
func (s *Simulated) SwitchCamera() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switched = !s.switched
	debug.Live("engine: camera switched, flipped=%t", s.switched)
	return nil
}

// Facing returns the direction a capture configured with f would use.
func (s *Simulated) Facing(f Facing) Facing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolve(f)
}

func (s *Simulated) resolve(f Facing) Facing {
	if s.switched {
		return f.Opposite()
	}
	return f
}

func (s *Simulated) SwitchTorch() error {
	if s.torch == nil {
		return ErrNoTorch
	}
	on, err := s.torch.Toggle()
	if err != nil {
		return err
	}
	debug.Live("engine: torch on=%t", on)
	return nil
}

// Close cancels any running capture and waits for it to exit.
func (s *Simulated) Close() error {
	_ = s.Cancel()
	s.wg.Wait()
	return nil
}
