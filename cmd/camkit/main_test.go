package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/cjeanneret/CamKit/internal/config"
	"github.com/cjeanneret/CamKit/internal/engine"
	"github.com/cjeanneret/CamKit/internal/hw/gpio"
	"github.com/cjeanneret/CamKit/internal/logic/capture"
)

// ---------- validateCLIOverrides ----------

func TestValidateCLIOverrides_AllZero(t *testing.T) {
	if err := validateCLIOverrides(0, 0, 0); err != nil {
		t.Errorf("all zeros should be valid (use config defaults), got: %v", err)
	}
}

func TestValidateCLIOverrides_ValidBoundary(t *testing.T) {
	cases := []struct {
		name      string
		w, h, fps int
	}{
		{"min_width", 16, 0, 0},
		{"max_width", 7680, 0, 0},
		{"min_height", 0, 16, 0},
		{"max_height", 0, 7680, 0},
		{"min_fps", 0, 0, 1},
		{"max_fps", 0, 0, 240},
		{"demo_square", 480, 480, 60},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateCLIOverrides(tc.w, tc.h, tc.fps); err != nil {
				t.Errorf("expected valid, got: %v", err)
			}
		})
	}
}

func TestValidateCLIOverrides_OutOfRange(t *testing.T) {
	cases := []struct {
		name      string
		w, h, fps int
	}{
		{"width_too_small", 15, 0, 0},
		{"width_too_large", 7681, 0, 0},
		{"height_negative", 0, -1, 0},
		{"fps_too_large", 0, 0, 241},
		{"fps_negative", 0, 0, -30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateCLIOverrides(tc.w, tc.h, tc.fps); err == nil {
				t.Error("expected error for out-of-range value, got nil")
			}
		})
	}
}

// ---------- webPortFlag ----------

func TestWebPortFlag_EmptyString(t *testing.T) {
	w := &webPortFlag{defaultPort: 8080}
	if err := w.Set(""); err != nil {
		t.Fatalf("Set(\"\") error: %v", err)
	}
	if w.port() != 8080 {
		t.Errorf("expected default port 8080, got %d", w.port())
	}
}

func TestWebPortFlag_ValidPorts(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"8080", 8080},
		{"1", 1},
		{"65535", 65535},
		{"3000", 3000},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(tc.input); err != nil {
				t.Fatalf("Set(%q) error: %v", tc.input, err)
			}
			if w.port() != tc.want {
				t.Errorf("port() = %d, want %d", w.port(), tc.want)
			}
		})
	}
}

func TestWebPortFlag_InvalidPorts(t *testing.T) {
	cases := []string{"0", "65536", "-1", "abc", "8080.5"}
	for _, input := range cases {
		t.Run(input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(input); err == nil {
				t.Errorf("Set(%q) should fail, got nil", input)
			}
		})
	}
}

func TestWebPortFlag_String(t *testing.T) {
	w := &webPortFlag{val: 0}
	if s := w.String(); s != "0" {
		t.Errorf("String() = %q, want \"0\"", s)
	}
	w.val = 9090
	if s := w.String(); s != "9090" {
		t.Errorf("String() = %q, want \"9090\"", s)
	}
}

// ---------- applyOverrides ----------

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Engine: config.EngineConfig{
			Type:               "simulated",
			Width:              480,
			Height:             480,
			FrameRate:          60,
			Facing:             "front",
			Filter:             "remove_background",
			WarmupMs:           5,
			ProgressIntervalMs: 5,
			OutputDir:          t.TempDir(),
		},
		Defaults: config.DefaultsConfig{MockGPIO: true},
	}
}

func TestApplyOverrides_NonZero(t *testing.T) {
	cfg := newTestConfig(t)
	applyOverrides(cfg, overrides{Width: 720, Height: 1280, FrameRate: 30})

	want := engine.Resolution{Width: 720, Height: 1280}
	if got := cfg.EngineOptions(); got.Resolution != want || got.FrameRate != 30 {
		t.Errorf("options = %+v, want 720x1280@30", got)
	}
}

func TestApplyOverrides_ZeroLeavesUnchanged(t *testing.T) {
	cfg := newTestConfig(t)
	before := cfg.EngineOptions()

	applyOverrides(cfg, overrides{})

	if got := cfg.EngineOptions(); got != before {
		t.Errorf("options changed: %+v != %+v", got, before)
	}
}

func TestApplyOverrides_Partial(t *testing.T) {
	cfg := newTestConfig(t)
	applyOverrides(cfg, overrides{FrameRate: 24})

	if cfg.Engine.FrameRate != 24 {
		t.Errorf("FrameRate = %d, want 24", cfg.Engine.FrameRate)
	}
	if cfg.Engine.Width != 480 || cfg.Engine.Height != 480 {
		t.Errorf("resolution should be unchanged: %dx%d", cfg.Engine.Width, cfg.Engine.Height)
	}
}

// ---------- factories ----------

func TestNewEngineFromConfig(t *testing.T) {
	cfg := newTestConfig(t)
	eng, err := newEngineFromConfig(cfg, capture.NewCoordinator(capture.Config{}), nil)
	if err != nil {
		t.Fatalf("newEngineFromConfig: %v", err)
	}
	defer eng.Close()

	cfg.Engine.Type = "hologram"
	if _, err := newEngineFromConfig(cfg, nil, nil); err == nil {
		t.Error("expected error for unsupported engine type")
	}
}

func TestNewTorchFromConfig(t *testing.T) {
	cfg := newTestConfig(t)
	drv := &gpio.MockDriver{}

	tr, err := newTorchFromConfig(drv, cfg)
	if err != nil || tr != nil {
		t.Fatalf("pin 0: torch = %v, err = %v; want none", tr, err)
	}

	cfg.Torch.Pin = 18
	tr, err = newTorchFromConfig(drv, cfg)
	if err != nil || tr == nil {
		t.Fatalf("pin 18: torch = %v, err = %v", tr, err)
	}
	if tr.IsOn() {
		t.Error("torch should start off")
	}
}

func TestCoordinatorConfig_TickFallback(t *testing.T) {
	cfg := newTestConfig(t)
	if got := coordinatorConfig(cfg).TickInterval; got != 0 {
		t.Errorf("with engine progress, TickInterval = %v, want 0", got)
	}

	cfg.Engine.ProgressIntervalMs = 0
	if got := coordinatorConfig(cfg).TickInterval; got != time.Second {
		t.Errorf("without engine progress, TickInterval = %v, want 1s", got)
	}

	cfg.Recording.TickIntervalMs = 250
	if got := coordinatorConfig(cfg).TickInterval; got != 250*time.Millisecond {
		t.Errorf("explicit TickInterval = %v, want 250ms", got)
	}
}

// ---------- runOnce ----------

func newHeadless(t *testing.T, cfg *config.Config) *capture.Coordinator {
	t.Helper()
	coord := capture.NewCoordinator(coordinatorConfig(cfg))
	eng, err := newEngineFromConfig(cfg, coord, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { eng.Close() })
	if err := coord.Attach(eng); err != nil {
		t.Fatal(err)
	}
	return coord
}

func TestRunOnce_ProducesClip(t *testing.T) {
	cfg := newTestConfig(t)
	coord := newHeadless(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	artifact, err := runOnce(ctx, coord, 2)
	if err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if _, err := os.Stat(artifact); err != nil {
		t.Errorf("artifact %q: %v", artifact, err)
	}
	if coord.Snapshot().Navigate {
		t.Error("navigation was not consumed")
	}
}

func TestRunOnce_EngineFailure(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Engine.FailReason = "device busy"
	coord := newHeadless(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := runOnce(ctx, coord, 2)
	if err == nil || err.Error() != "device busy" {
		t.Fatalf("err = %v, want device busy", err)
	}
}
