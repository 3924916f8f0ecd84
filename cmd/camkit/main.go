package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/CamKit/internal/config"
	"github.com/cjeanneret/CamKit/internal/debug"
	"github.com/cjeanneret/CamKit/internal/engine"
	"github.com/cjeanneret/CamKit/internal/hw/gpio"
	"github.com/cjeanneret/CamKit/internal/hw/torch"
	"github.com/cjeanneret/CamKit/internal/logic/capture"
	"github.com/cjeanneret/CamKit/internal/web"
)

// overrides holds CLI values that replace config defaults. Zero means "use config".
type overrides struct {
	Width     int
	Height    int
	FrameRate int
}

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	width := flag.Int("width", 0, "override capture width in pixels (16-7680)")
	height := flag.Int("height", 0, "override capture height in pixels (16-7680)")
	fps := flag.Int("fps", 0, "override frame rate (1-240)")
	duration := flag.Int("duration", 3, "headless mode: stop the recording after this many elapsed seconds")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Validate CLI overrides (only non-zero values are applied; zero means "use config default")
	if err := validateCLIOverrides(*width, *height, *fps); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	if *duration <= 0 {
		log.Fatalf("invalid CLI override: duration must be > 0, got %d", *duration)
	}
	ov := overrides{Width: *width, Height: *height, FrameRate: *fps}
	applyOverrides(cfg, ov)
	if err := cfg.EngineOptions().Validate(); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}

	// Initialize debug system
	var broadcaster *web.StatusBroadcaster
	outputs := []io.Writer{debug.ConsoleWriter(os.Stdout)}
	if cfg.Defaults.LogFile != "" {
		logFile := debug.OpenLogFile(cfg.Defaults.LogFile)
		defer logFile.Close()
		outputs = append(outputs, logFile)
	}
	if webPort.port() > 0 {
		broadcaster = web.NewStatusBroadcaster()
		outputs = append(outputs, web.BroadcastWriter(broadcaster))
	}
	debug.SetOutput(io.MultiWriter(outputs...))
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	// Initialize GPIO driver
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			debug.Error(fmt.Errorf("closing GPIO driver failed: %w", err))
		}
	}()

	// Initialize torch
	debug.Step(2, "Initializing torch")
	lamp, err := newTorchFromConfig(gpioDriver, cfg)
	if err != nil {
		log.Fatalf("init torch failed: %v", err)
	}
	debug.PrintStruct("Torch config", cfg.Torch)

	// Coordinator first: the engine reports to it
	debug.Step(3, "Initializing capture coordinator")
	coord := capture.NewCoordinator(coordinatorConfig(cfg))

	debug.Step(4, "Initializing capture engine")
	eng, err := newEngineFromConfig(cfg, coord, lamp)
	if err != nil {
		log.Fatalf("init engine failed: %v", err)
	}
	defer eng.Close()
	if err := coord.Attach(eng); err != nil {
		log.Fatalf("attach engine failed: %v", err)
	}
	debug.Value("Engine type", cfg.Engine.Type)
	debug.PrintStruct("Capture options", cfg.EngineOptions())

	if port := webPort.port(); port > 0 {
		addr := fmt.Sprintf(":%d", port)
		if err := runWeb(ctx, cfg, *cfgPath, ov, coord, broadcaster, addr); err != nil {
			log.Fatalf("web server: %v", err)
		}
		return
	}

	// Run one recording with the current config (already has CLI overrides applied)
	artifact, err := runOnce(ctx, coord, *duration)
	if err != nil {
		log.Fatalf("capture failed: %v", err)
	}
	fmt.Println(artifact)
}

// runWeb serves the camera page until ctx is cancelled. The coordinator loop,
// the snapshot forwarder, the config watcher and the HTTP server share one
// errgroup: the first failure stops the others.
func runWeb(
	ctx context.Context,
	cfg *config.Config,
	cfgPath string,
	ov overrides,
	coord *capture.Coordinator,
	broadcaster *web.StatusBroadcaster,
	addr string,
) error {
	g, ctx := errgroup.WithContext(ctx)

	snaps, unsub := coord.Subscribe()
	defer unsub()

	g.Go(func() error { return coord.Run(ctx) })
	g.Go(func() error { return web.ForwardSnapshots(ctx, snaps, broadcaster) })

	if cfg.Defaults.WatchConfig {
		g.Go(func() error {
			return config.Watch(ctx, cfgPath, func(next *config.Config) {
				applyOverrides(next, ov)
				opts := next.EngineOptions()
				if err := opts.Validate(); err != nil {
					debug.Error(fmt.Errorf("reloaded options rejected: %w", err))
					return
				}
				coord.SetOptions(opts)
			})
		})
	}

	srv := web.NewServer(addr, broadcaster, coord, cfg.Web.RateLimitPerSecond)
	g.Go(func() error { return srv.Run(ctx) })

	return g.Wait()
}

// runOnce records a single clip: start, wait for the elapsed counter to reach
// seconds, stop, and return the artifact location once the engine delivers it.
func runOnce(ctx context.Context, coord *capture.Coordinator, seconds int) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	snaps, unsub := coord.Subscribe()
	defer unsub()

	debug.Section("Recording")
	coord.StartRecording()

	started, stopping := false, false
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case s, ok := <-snaps:
			if !ok {
				return "", errors.New("coordinator stopped")
			}
			switch s.State.Phase {
			case capture.PhaseFailed:
				return "", errors.New(s.Error)
			case capture.PhasePreparing:
				started = true
			case capture.PhaseRecording:
				started = true
				if !stopping && s.State.Elapsed >= seconds {
					debug.Info("Stopping after %ds", s.State.Elapsed)
					coord.StopRecording()
					stopping = true
				}
			case capture.PhaseReadyToRecord:
				if s.Navigate {
					coord.ConsumeNavigation()
					debug.Section("Recording complete")
					return s.Artifact, nil
				}
				if started {
					return "", errors.New("recording ended without a clip")
				}
			}
		}
	}
}

// coordinatorConfig derives the coordinator settings. Without engine progress
// ticks the coordinator counts seconds itself.
func coordinatorConfig(cfg *config.Config) capture.Config {
	tick := cfg.TickInterval()
	if tick == 0 && cfg.ProgressInterval() == 0 {
		tick = time.Second
	}
	return capture.Config{
		TickInterval: tick,
		Options:      cfg.EngineOptions(),
	}
}

// validateCLIOverrides checks that non-zero CLI overrides are within valid ranges.
// Zero values are ignored (they mean "use config default").
func validateCLIOverrides(width, height, fps int) error {
	if width != 0 && (width < 16 || width > 7680) {
		return fmt.Errorf("width must be between 16 and 7680, got %d", width)
	}
	if height != 0 && (height < 16 || height > 7680) {
		return fmt.Errorf("height must be between 16 and 7680, got %d", height)
	}
	if fps != 0 && (fps < 1 || fps > 240) {
		return fmt.Errorf("fps must be between 1 and 240, got %d", fps)
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only non-zero override values are applied.
func applyOverrides(cfg *config.Config, ov overrides) {
	if ov.Width > 0 {
		cfg.Engine.Width = ov.Width
	}
	if ov.Height > 0 {
		cfg.Engine.Height = ov.Height
	}
	if ov.FrameRate > 0 {
		cfg.Engine.FrameRate = ov.FrameRate
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

// closableEngine is an engine that holds goroutines or files until closed.
type closableEngine interface {
	engine.Engine
	Close() error
}

// newEngineFromConfig selects an engine implementation based on configuration.
func newEngineFromConfig(cfg *config.Config, d engine.Delegate, t torch.Torch) (closableEngine, error) {
	switch cfg.Engine.Type {
	case "simulated":
		return engine.NewSimulated(engine.SimulatedConfig{
			OutputDir:        cfg.Engine.OutputDir,
			Warmup:           cfg.Warmup(),
			ProgressInterval: cfg.ProgressInterval(),
			MaxDuration:      cfg.MaxDuration(),
			FailReason:       cfg.Engine.FailReason,
		}, d, t), nil
	default:
		return nil, fmt.Errorf("unsupported engine type: %s", cfg.Engine.Type)
	}
}

// newTorchFromConfig returns the lamp on torch.pin, or nil when none is wired.
func newTorchFromConfig(g gpio.Driver, cfg *config.Config) (torch.Torch, error) {
	if cfg.Torch.Pin == 0 {
		return nil, nil
	}
	t, err := torch.NewGPIOTorch(g, cfg.Torch.Pin, cfg.Torch.ActiveLow)
	if err != nil {
		return nil, err
	}
	return t, nil
}
