// Package debug provides conditional debug logging for bmo.
//
// Debug logging is enabled by setting the BMO_DEBUG environment variable
// or by installing a logger with SetLogger (the CLI does this for --verbose):
//
//	BMO_DEBUG=1 bmo kpis --module tickets
//
// Messages go through a zap sugared logger at debug level. When disabled
// (default), all debug functions are no-ops.
//
// Usage:
//
//	func refresh() {
//	    defer debug.LogEnterExit("refresh")()
//	    debug.Log("fetched %d records", n)
//	}
package debug

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	enabled atomic.Bool
	mu      sync.RWMutex
	logger  *zap.SugaredLogger = zap.NewNop().Sugar()
)

func init() {
	if os.Getenv("BMO_DEBUG") != "" {
		SetEnabled(true)
	}
}

// Enabled returns whether debug logging is enabled.
func Enabled() bool {
	return enabled.Load()
}

// SetEnabled toggles debug logging. Enabling without an installed logger
// writes to stderr.
func SetEnabled(e bool) {
	enabled.Store(e)
	if !e {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if logger.Desugar().Core().Enabled(zapcore.DebugLevel) {
		return
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	if l, err := cfg.Build(); err == nil {
		logger = l.Named("debug").Sugar()
	}
}

// SetLogger installs l as the debug sink and enables debug output when l
// accepts debug-level entries.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	logger = l.Named("debug").Sugar()
	mu.Unlock()
	enabled.Store(l.Core().Enabled(zapcore.DebugLevel))
}

func sugar() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Log writes a debug message if debug logging is enabled.
// Uses printf-style formatting.
func Log(format string, args ...any) {
	if !Enabled() {
		return
	}
	sugar().Debugf(format, args...)
}

// LogTiming writes a timing message if debug logging is enabled.
func LogTiming(name string, d time.Duration) {
	if !Enabled() {
		return
	}
	sugar().Debugw("timing", "op", name, "duration", d)
}

// LogIf writes a debug message only if the condition is true.
func LogIf(cond bool, format string, args ...any) {
	if !Enabled() || !cond {
		return
	}
	sugar().Debugf(format, args...)
}

// LogEnterExit logs function entry and exit with timing.
//
//	defer debug.LogEnterExit("myFunc")()
func LogEnterExit(name string) func() {
	if !Enabled() {
		return func() {}
	}
	l := sugar()
	l.Debugf("-> %s", name)
	start := time.Now()
	return func() {
		l.Debugf("<- %s (%v)", name, time.Since(start))
	}
}

// Dump logs a value with its type for debugging complex structures.
func Dump(name string, v any) {
	if !Enabled() {
		return
	}
	sugar().Debugf("%s: %T = %+v", name, v, v)
}
