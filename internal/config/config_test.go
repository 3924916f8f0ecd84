package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cjeanneret/CamKit/internal/engine"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
	if err := ValidateConfigPath("configs/default.yaml"); err != nil {
		t.Errorf("expected relative default path to be valid, got: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
		"../configs/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default.txt",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

func TestValidateConfigPath_VeryLongPath(t *testing.T) {
	long := "configs/" + strings.Repeat("a", 1000) + ".yaml"
	if err := ValidateConfigPath(long); err != nil {
		t.Errorf("long name rejected: %v", err)
	}
}

func TestValidateConfigPath_SpecialChars(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")

	for _, name := range []string{"con fig.yaml", "café.yaml"} {
		if err := ValidateConfigPath(filepath.Join(cfgDir, name)); err != nil {
			t.Errorf("unexpected error for %q: %v", name, err)
		}
	}
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
engine:
  type: "simulated"
  width: 720
  height: 1280
  frame_rate: 30
  facing: "back"
  mic_enabled: true
  filter: "none"
  warmup_ms: 100
  max_duration_ms: 15000
  progress_interval_ms: 1000
  output_dir: "/var/lib/camkit"
torch:
  pin: 18
  active_low: true
recording:
  tick_interval_ms: 0
web:
  rate_limit_per_second: 5
defaults:
  debug_level: 2
  mock_gpio: true
  log_file: "camkit.log"
  watch_config: true
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.Type != "simulated" {
		t.Errorf("engine.type = %q, want %q", cfg.Engine.Type, "simulated")
	}
	if cfg.Engine.OutputDir != "/var/lib/camkit" {
		t.Errorf("engine.output_dir = %q", cfg.Engine.OutputDir)
	}
	if cfg.Torch.Pin != 18 || !cfg.Torch.ActiveLow {
		t.Errorf("torch = %+v, want pin 18 active low", cfg.Torch)
	}
	if cfg.Web.RateLimitPerSecond != 5 {
		t.Errorf("web.rate_limit_per_second = %d, want 5", cfg.Web.RateLimitPerSecond)
	}
	if cfg.Defaults.DebugLevel != 2 || !cfg.Defaults.MockGPIO || !cfg.Defaults.WatchConfig {
		t.Errorf("defaults = %+v", cfg.Defaults)
	}
	if cfg.Defaults.LogFile != "camkit.log" {
		t.Errorf("defaults.log_file = %q", cfg.Defaults.LogFile)
	}

	want := engine.Options{
		Resolution: engine.Resolution{Width: 720, Height: 1280},
		FrameRate:  30,
		Facing:     engine.FacingBack,
		MicEnabled: true,
		Filter:     engine.FilterNone,
	}
	if got := cfg.EngineOptions(); got != want {
		t.Errorf("EngineOptions() = %+v, want %+v", got, want)
	}
}

func TestLoad_MissingEngineType(t *testing.T) {
	yaml := `
engine:
  width: 480
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for missing engine.type, got nil")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"negative width", "engine:\n  type: simulated\n  width: -1\n"},
		{"frame rate too high", "engine:\n  type: simulated\n  frame_rate: 1000\n"},
		{"unknown facing", "engine:\n  type: simulated\n  facing: sideways\n"},
		{"unknown filter", "engine:\n  type: simulated\n  filter: sepia\n"},
		{"negative torch pin", "engine:\n  type: simulated\ntorch:\n  pin: -3\n"},
		{"debug level", "engine:\n  type: simulated\ndefaults:\n  debug_level: 9\n"},
		{"two tick sources", "engine:\n  type: simulated\n  progress_interval_ms: 1000\nrecording:\n  tick_interval_ms: 1000\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.body)
			if _, err := Load(path); err == nil {
				t.Errorf("expected error, got nil")
			}
		})
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	yaml := `
engine:
  type: "simulated"
`
	path := writeConfig(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.EngineOptions(); got != engine.DefaultOptions() {
		t.Errorf("EngineOptions() = %+v, want engine defaults %+v", got, engine.DefaultOptions())
	}
	if cfg.Engine.WarmupMs != 300 {
		t.Errorf("warmup_ms default = %d, want 300", cfg.Engine.WarmupMs)
	}
	if cfg.Engine.OutputDir == "" {
		t.Error("output_dir default is empty")
	}
	if cfg.Web.RateLimitPerSecond != 10 {
		t.Errorf("rate_limit_per_second default = %d, want 10", cfg.Web.RateLimitPerSecond)
	}
	if cfg.TickInterval() != 0 {
		t.Errorf("tick interval default = %v, want engine-driven", cfg.TickInterval())
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "big.yaml")
	data := make([]byte, MaxConfigFileBytes+1)
	for i := range data {
		data[i] = '#'
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "{{{{invalid yaml!!!!")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")
	if _, err := Load(path); err == nil {
		t.Error("expected error for empty config (engine.type missing), got nil")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	yaml := `
engine:
  type: "simulated"
unknown_section:
  foo: bar
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "configs", "nonexistent.yaml")
	if _, err := Load(path); err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

func TestLoad_ShippedDefault(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "default.yaml"))
	if err != nil {
		t.Fatalf("configs/default.yaml: %v", err)
	}
	if err := cfg.EngineOptions().Validate(); err != nil {
		t.Errorf("default engine options invalid: %v", err)
	}
}

// ---------- Helper methods ----------

func TestConfig_Durations(t *testing.T) {
	cfg := &Config{
		Engine: EngineConfig{
			WarmupMs:           250,
			MaxDurationMs:      15000,
			ProgressIntervalMs: 1000,
		},
		Recording: RecordingConfig{TickIntervalMs: 500},
	}
	cases := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"Warmup", cfg.Warmup(), 250 * time.Millisecond},
		{"MaxDuration", cfg.MaxDuration(), 15 * time.Second},
		{"ProgressInterval", cfg.ProgressInterval(), time.Second},
		{"TickInterval", cfg.TickInterval(), 500 * time.Millisecond},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s() = %v, want %v", tc.name, tc.got, tc.want)
		}
	}
}
