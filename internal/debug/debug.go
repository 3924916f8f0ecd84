package debug

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (engine type, artifact produced)
	LevelLive    = 2 // Live info (state transitions, ticks)
	LevelVerbose = 3 // Verbose (options, config details, ignored events)
	LevelTrace   = 4 // Trace (GPIO, very low level)
)

var (
	mu     sync.RWMutex
	level  int
	out    io.Writer = os.Stdout
	logger           = zerolog.Nop()
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (engine, artifacts, failures)
// 2 = live info (state transitions, elapsed ticks)
// 3 = verbose (options, config, ignored events)
// 4 = trace (GPIO, very low level)
func Init(debugLevel int) {
	mu.Lock()
	defer mu.Unlock()
	level = debugLevel
	rebuild()
}

// SetOutput redirects all debug output. Events are written as JSON lines;
// wrap w with ConsoleWriter for human-readable output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	rebuild()
}

func rebuild() {
	if level <= LevelOff || out == nil {
		logger = zerolog.Nop()
		return
	}
	logger = zerolog.New(out).With().Timestamp().Str("service", "camkit").Logger()
}

// ConsoleWriter formats JSON events as plain text lines.
func ConsoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: "15:04:05.000"}
}

// OpenLogFile returns a size-rotated JSON log file.
func OpenLogFile(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
}

// Level returns the current debug level.
func Level() int {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

// At starts a structured event that is only written when the debug level
// is >= minLevel. Below that level it returns nil, on which every zerolog
// Event method is a no-op.
func At(minLevel int) *zerolog.Event {
	mu.RLock()
	l, lvl := logger, level
	mu.RUnlock()
	if lvl < minLevel {
		return nil
	}
	zl := zerolog.DebugLevel
	if minLevel <= LevelInfo {
		zl = zerolog.InfoLevel
	}
	return l.WithLevel(zl).Str("debug", tagFor(minLevel))
}

func tagFor(minLevel int) string {
	switch minLevel {
	case LevelInfo:
		return "info"
	case LevelLive:
		return "live"
	case LevelVerbose:
		return "verbose"
	default:
		return "trace"
	}
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	At(LevelInfo).Msgf(format, args...)
}

// Value prints a named value (level 1).
func Value(name string, value interface{}) {
	At(LevelInfo).Interface(name, value).Msg("value")
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	At(LevelLive).Msgf(format, args...)
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	At(LevelVerbose).Msgf(format, args...)
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	At(LevelVerbose).Msgf("%s: %+v", name, v)
}

// Section marks the start of a phase (level 3).
func Section(name string) {
	At(LevelVerbose).Str("section", name).Msg("────────")
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	At(LevelVerbose).Int("step", num).Msg(description)
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace).
func Trace(format string, args ...interface{}) {
	At(LevelTrace).Msgf(format, args...)
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	At(LevelTrace).Str("op", operation).Int("pin", pin).Interface("value", value).Msg("gpio")
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if err == nil {
		return
	}
	mu.RLock()
	l, lvl := logger, level
	mu.RUnlock()
	if lvl < LevelInfo {
		return
	}
	l.Error().Err(err).Msg("error")
}
