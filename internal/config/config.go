package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/CamKit/internal/engine"
)

// MaxConfigFileBytes bounds the size of a config file read by Load.
const MaxConfigFileBytes = 1 << 20

// EngineConfig selects and tunes the capture engine.
// Type selects a concrete implementation (e.g., "simulated").
type EngineConfig struct {
	Type               string `yaml:"type"`                 // e.g., "simulated"
	Width              int    `yaml:"width"`                // capture width (px)
	Height             int    `yaml:"height"`               // capture height (px)
	FrameRate          int    `yaml:"frame_rate"`           // frames per second
	Facing             string `yaml:"facing"`               // "front" or "back"
	MicEnabled         bool   `yaml:"mic_enabled"`          // record audio
	Filter             string `yaml:"filter"`               // "none" or "remove_background"
	WarmupMs           int    `yaml:"warmup_ms"`            // delay before the engine reports started (ms)
	MaxDurationMs      int    `yaml:"max_duration_ms"`      // engine-side recording cap (ms), 0 = none
	ProgressIntervalMs int    `yaml:"progress_interval_ms"` // engine progress ticks (ms), 0 = none
	FailReason         string `yaml:"fail_reason"`          // simulated failure, empty = succeed
	OutputDir          string `yaml:"output_dir"`           // where clips are written
}

// TorchConfig describes the illumination lamp.
type TorchConfig struct {
	Pin       int  `yaml:"pin"`        // GPIO pin (BCM). 0 = no torch.
	ActiveLow bool `yaml:"active_low"` // lamp lights when the pin is LOW
}

// RecordingConfig tunes the coordinator.
type RecordingConfig struct {
	TickIntervalMs int `yaml:"tick_interval_ms"` // elapsed counter period (ms), 0 = engine-driven ticks
}

// WebConfig tunes the HTTP surface.
type WebConfig struct {
	RateLimitPerSecond int `yaml:"rate_limit_per_second"` // intent requests per client IP
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel  int    `yaml:"debug_level"`  // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO    bool   `yaml:"mock_gpio"`    // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	LogFile     string `yaml:"log_file"`     // rotating JSON log, empty = console only
	WatchConfig bool   `yaml:"watch_config"` // reload engine options when the file changes
}

// Config aggregates all application configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Torch     TorchConfig     `yaml:"torch"`
	Recording RecordingConfig `yaml:"recording"`
	Web       WebConfig       `yaml:"web"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
}

// ValidateConfigPath rejects paths that are not a .yaml file directly inside
// a "configs" directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q: extension must be .yaml", path)
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q: parent references not allowed", path)
		}
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q: must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file larger than %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// Basic validation
	if cfg.Engine.Type == "" {
		return nil, fmt.Errorf("engine.type is required")
	}
	if cfg.Engine.Width < 0 || cfg.Engine.Height < 0 {
		return nil, fmt.Errorf("engine resolution must be positive, got %dx%d", cfg.Engine.Width, cfg.Engine.Height)
	}
	if cfg.Torch.Pin < 0 {
		return nil, fmt.Errorf("torch.pin must be >= 0, got %d", cfg.Torch.Pin)
	}
	if cfg.Defaults.DebugLevel < 0 || cfg.Defaults.DebugLevel > 4 {
		return nil, fmt.Errorf("debug_level must be between 0 and 4, got %d", cfg.Defaults.DebugLevel)
	}

	// Defaults mirror engine.DefaultOptions
	def := engine.DefaultOptions()
	if cfg.Engine.Width == 0 {
		cfg.Engine.Width = def.Resolution.Width
	}
	if cfg.Engine.Height == 0 {
		cfg.Engine.Height = def.Resolution.Height
	}
	if cfg.Engine.FrameRate <= 0 {
		cfg.Engine.FrameRate = def.FrameRate
	}
	if cfg.Engine.Facing == "" {
		cfg.Engine.Facing = string(def.Facing)
	}
	if cfg.Engine.Filter == "" {
		cfg.Engine.Filter = string(def.Filter)
	}
	if cfg.Engine.WarmupMs <= 0 {
		cfg.Engine.WarmupMs = 300 // time for the session to come up
	}
	if cfg.Engine.OutputDir == "" {
		cfg.Engine.OutputDir = filepath.Join(os.TempDir(), "camkit")
	}
	if cfg.Recording.TickIntervalMs < 0 {
		cfg.Recording.TickIntervalMs = 0
	}
	// One tick source only, or elapsed advances twice per period.
	if cfg.Recording.TickIntervalMs > 0 && cfg.Engine.ProgressIntervalMs > 0 {
		return nil, fmt.Errorf("recording.tick_interval_ms and engine.progress_interval_ms are exclusive, got %d and %d",
			cfg.Recording.TickIntervalMs, cfg.Engine.ProgressIntervalMs)
	}
	if cfg.Web.RateLimitPerSecond <= 0 {
		cfg.Web.RateLimitPerSecond = 10
	}

	if err := cfg.EngineOptions().Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	return &cfg, nil
}

// EngineOptions returns the capture options handed to the engine on start.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		Resolution: engine.Resolution{Width: c.Engine.Width, Height: c.Engine.Height},
		FrameRate:  c.Engine.FrameRate,
		Facing:     engine.Facing(c.Engine.Facing),
		MicEnabled: c.Engine.MicEnabled,
		Filter:     engine.VideoFilter(c.Engine.Filter),
	}
}

// Warmup returns the simulated session start-up delay.
func (c *Config) Warmup() time.Duration {
	return time.Duration(c.Engine.WarmupMs) * time.Millisecond
}

// MaxDuration returns the engine-side recording cap, 0 when unlimited.
func (c *Config) MaxDuration() time.Duration {
	return time.Duration(c.Engine.MaxDurationMs) * time.Millisecond
}

// ProgressInterval returns the engine progress period, 0 when disabled.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Engine.ProgressIntervalMs) * time.Millisecond
}

// TickInterval returns the coordinator tick period, 0 when ticks come from
// the engine.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Recording.TickIntervalMs) * time.Millisecond
}
