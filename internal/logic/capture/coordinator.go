package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/CamKit/internal/debug"
	"github.com/cjeanneret/CamKit/internal/engine"
	"github.com/cjeanneret/CamKit/internal/metrics"
)

var (
	// ErrEngineAttached is returned by Attach once an engine is already set.
	ErrEngineAttached = errors.New("capture engine already attached")
	// ErrEngineUnattached marks commands dropped before Attach.
	ErrEngineUnattached = errors.New("capture engine not attached")
	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = errors.New("coordinator already running")
)

const defaultQueueSize = 64

// Config tunes a Coordinator.
type Config struct {
	// TickInterval advances the elapsed counter while recording. Zero leaves
	// ticking to the engine's OnCaptureProgress callbacks.
	TickInterval time.Duration
	// Options are passed to the engine on every start.
	Options engine.Options
	// QueueSize bounds pending intents and callbacks.
	QueueSize int
}

// Coordinator owns the recording session of one camera screen. Intents and
// engine callbacks are queued and applied one at a time by Run, so the state
// has a single writer even though callbacks arrive from the engine's own
// goroutines. Readers get immutable snapshots.
type Coordinator struct {
	cfg    Config
	queue  chan message
	done   chan struct{}
	runs   atomic.Bool
	engine atomic.Pointer[engineRef]
	snap   atomic.Pointer[Snapshot]

	// attempt advances on every engine cancel; callbacks stamped with an
	// older value belong to the cancelled capture.
	attempt atomic.Uint64

	subMu sync.Mutex
	subs  map[chan Snapshot]struct{}

	// Owned by the Run goroutine.
	options engine.Options
	ticker  *time.Ticker
}

type engineRef struct{ e engine.Engine }

type message struct {
	event    Event
	options  *engine.Options
	callback bool
	attempt  uint64
}

var _ engine.Delegate = (*Coordinator)(nil)

// NewCoordinator returns a coordinator in ReadyToRecord with no engine.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Options == (engine.Options{}) {
		cfg.Options = engine.DefaultOptions()
	}
	c := &Coordinator{
		cfg:     cfg,
		queue:   make(chan message, cfg.QueueSize),
		done:    make(chan struct{}),
		subs:    make(map[chan Snapshot]struct{}),
		options: cfg.Options,
	}
	initial := InitialSnapshot()
	c.snap.Store(&initial)
	metrics.SetPhase(string(initial.State.Phase))
	return c
}

// Attach sets the capture engine. It can be called once, before or after Run.
func (c *Coordinator) Attach(e engine.Engine) error {
	if e == nil {
		return errors.New("attach: nil engine")
	}
	if !c.engine.CompareAndSwap(nil, &engineRef{e: e}) {
		return ErrEngineAttached
	}
	debug.Verbose("coordinator: capture engine attached (%T)", e)
	return nil
}

func (c *Coordinator) attached() engine.Engine {
	if ref := c.engine.Load(); ref != nil {
		return ref.e
	}
	return nil
}

// Snapshot returns the current state for rendering.
func (c *Coordinator) Snapshot() Snapshot {
	return *c.snap.Load()
}

// Done is closed when Run returns.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Subscribe returns a channel that receives the current snapshot and then
// every change. Only the latest undelivered snapshot is kept, so a slow
// reader skips intermediate states but never misses the final one. The
// channel is closed by the returned cleanup or when Run exits.
func (c *Coordinator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	// Reading under subMu orders the first value before any later publish.
	c.subMu.Lock()
	ch <- c.Snapshot()
	select {
	case <-c.done:
		c.subMu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()

	unsub := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
	}
	return ch, unsub
}

func (c *Coordinator) publish(s Snapshot) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- s:
		default:
			// Replace the stale snapshot.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// --- Intents ---

// StartRecording asks the engine to start capturing. It is ignored unless
// the state is exactly ReadyToRecord.
func (c *Coordinator) StartRecording() { c.post(Event{Kind: EventStartRequested}) }

// StopRecording asks the engine to finish the current clip.
func (c *Coordinator) StopRecording() { c.post(Event{Kind: EventStopRequested}) }

// CancelRecording aborts the current attempt and discards the partial clip.
func (c *Coordinator) CancelRecording() { c.post(Event{Kind: EventCancelRequested}) }

// SwitchCamera forwards to the engine without changing state.
func (c *Coordinator) SwitchCamera() { c.post(Event{Kind: EventSwitchCamera}) }

// SwitchTorch forwards to the engine without changing state.
func (c *Coordinator) SwitchTorch() { c.post(Event{Kind: EventSwitchTorch}) }

// ConsumeNavigation acknowledges the navigation request. Idempotent.
func (c *Coordinator) ConsumeNavigation() { c.post(Event{Kind: EventNavigationConsumed}) }

// DismissError returns from Failed to ReadyToRecord.
func (c *Coordinator) DismissError() { c.post(Event{Kind: EventDismissRequested}) }

// SetOptions replaces the capture options used by the next start.
func (c *Coordinator) SetOptions(opts engine.Options) {
	c.enqueue(message{options: &opts})
}

// --- engine.Delegate ---

func (c *Coordinator) OnCaptureStarted() { c.callback(Event{Kind: EventCaptureStarted}) }

// OnCaptureProgress is ignored while the coordinator runs its own ticker.
func (c *Coordinator) OnCaptureProgress(tick int) {
	if c.cfg.TickInterval > 0 {
		return
	}
	c.callback(Event{Kind: EventCaptureProgress, Tick: tick})
}

func (c *Coordinator) OnCaptureFinished(location string) {
	c.callback(Event{Kind: EventCaptureFinished, Location: location})
}

func (c *Coordinator) OnCaptureFailed(reason string) {
	c.callback(Event{Kind: EventCaptureFailed, Reason: reason})
}

func (c *Coordinator) post(ev Event) { c.enqueue(message{event: ev}) }

func (c *Coordinator) callback(ev Event) {
	c.enqueue(message{event: ev, callback: true, attempt: c.attempt.Load()})
}

func (c *Coordinator) enqueue(m message) {
	select {
	case c.queue <- m:
	case <-c.done:
		debug.Verbose("coordinator: stopped, dropping %s", m.event.Kind)
	}
}

// Run applies queued events until ctx is cancelled. It returns nil on
// cancellation.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.runs.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.shutdown()

	for {
		var tickC <-chan time.Time
		if c.ticker != nil {
			tickC = c.ticker.C
		}

		select {
		case <-ctx.Done():
			return nil
		case m := <-c.queue:
			if m.options != nil {
				c.options = *m.options
				debug.PrintStruct("coordinator: options for next capture", c.options)
				continue
			}
			if m.callback && m.attempt != c.attempt.Load() {
				metrics.RecordIgnored(string(c.Snapshot().State.Phase), string(m.event.Kind))
				debug.At(debug.LevelVerbose).
					Str("event", string(m.event.Kind)).
					Msg("coordinator: callback from cancelled capture dropped")
				continue
			}
			c.dispatch(m.event)
		case <-tickC:
			c.dispatch(Event{Kind: EventCaptureProgress})
		}
	}
}

func (c *Coordinator) shutdown() {
	c.stopTicker()
	c.subMu.Lock()
	close(c.done)
	for ch := range c.subs {
		delete(c.subs, ch)
		close(ch)
	}
	c.subMu.Unlock()
}

func needsEngine(k EventKind) bool {
	switch k {
	case EventStartRequested, EventSwitchCamera, EventSwitchTorch:
		return true
	}
	return false
}

func (c *Coordinator) dispatch(ev Event) {
	cur := c.Snapshot()

	if needsEngine(ev.Kind) && c.attached() == nil {
		metrics.RecordUnattached(string(ev.Kind))
		debug.At(debug.LevelVerbose).
			Err(ErrEngineUnattached).
			Str("event", string(ev.Kind)).
			Msg("coordinator: command dropped")
		return
	}

	next, effects, err := Apply(cur, ev)
	if err != nil {
		metrics.RecordIgnored(string(cur.State.Phase), string(ev.Kind))
		debug.At(debug.LevelVerbose).Err(err).Msg("coordinator: event ignored")
		return
	}

	c.commit(cur, next, ev)
	for _, eff := range effects {
		c.execute(eff)
	}
}

func (c *Coordinator) commit(cur, next Snapshot, ev Event) {
	if next == cur {
		return
	}
	c.snap.Store(&next)

	if cur.State.Phase != next.State.Phase {
		from, to := string(cur.State.Phase), string(next.State.Phase)
		metrics.RecordTransition(from, to)
		metrics.SetPhase(to)
		debug.At(debug.LevelLive).
			Str("event", string(ev.Kind)).
			Str("from", cur.State.String()).
			Str("to", next.State.String()).
			Msg("coordinator: state transition")

		switch {
		case next.State.Phase == PhaseFailed:
			metrics.RecordOutcome("failed")
			debug.Info("coordinator: capture failed: %s", next.Error)
		case ev.Kind == EventCaptureFinished:
			metrics.RecordOutcome("finished")
			metrics.ObserveElapsed(cur.State.Elapsed)
			debug.Info("coordinator: clip ready at %s", next.Artifact)
		case ev.Kind == EventCancelRequested:
			metrics.RecordOutcome("cancelled")
		}
	} else if ev.Kind == EventCaptureProgress {
		debug.Live("coordinator: elapsed %ds", next.State.Elapsed)
	}

	c.publish(next)
}

func (c *Coordinator) execute(eff Effect) {
	switch eff {
	case EffectStartTicker:
		if c.cfg.TickInterval > 0 {
			c.stopTicker()
			c.ticker = time.NewTicker(c.cfg.TickInterval)
		}
	case EffectStopTicker:
		c.stopTicker()
	case EffectStartEngine:
		if err := c.attached().Start(c.options); err != nil {
			metrics.RecordEngineError("start")
			// A start command rejected outright is an engine failure like any other.
			c.dispatch(Event{Kind: EventCaptureFailed, Reason: err.Error()})
		}
	case EffectStopEngine:
		c.command("stop", func(e engine.Engine) error { return e.Stop() })
	case EffectCancelEngine:
		c.command("cancel", func(e engine.Engine) error { return e.Cancel() })
		// The engine sends nothing for this capture once Cancel returns.
		c.attempt.Add(1)
	case EffectSwitchCamera:
		c.command("switch_camera", func(e engine.Engine) error { return e.SwitchCamera() })
	case EffectSwitchTorch:
		c.command("switch_torch", func(e engine.Engine) error { return e.SwitchTorch() })
	}
}

// command runs an engine command whose failure is logged, not surfaced.
func (c *Coordinator) command(name string, fn func(engine.Engine) error) {
	e := c.attached()
	if e == nil {
		metrics.RecordUnattached(name)
		return
	}
	if err := fn(e); err != nil {
		metrics.RecordEngineError(name)
		debug.At(debug.LevelInfo).Err(err).Str("command", name).Msg("coordinator: engine command failed")
	}
}

func (c *Coordinator) stopTicker() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}
