// Package logging provides categorized file-based logging for codeloom.
// Logs are written under <data-dir>/logs/ with a separate file per
// category. Logging is controlled by logging.debug_mode in the config -
// when false, all calls are silent no-ops.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system.
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup and shutdown
	CategoryAPI      Category = "api"      // LLM provider calls
	CategoryStream   Category = "stream"   // SSE delivery
	CategoryPipeline Category = "pipeline" // Classification, fence filter, extraction
	CategoryStore    Category = "store"    // SQLite record store
	CategoryServer   Category = "server"   // HTTP request handling
)

// Logger wraps a zap sugared logger for one category. The zero value is a
// silent no-op, so callers never need a nil check.
type Logger struct {
	s *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	loggers = make(map[Category]*Logger)
	logsDir string
	enabled bool
)

// Initialize sets up per-category log files under dir/logs. When debug is
// false this is a silent no-op and every logger stays disabled.
func Initialize(dir string, debug bool) error {
	mu.Lock()
	defer mu.Unlock()

	enabled = debug
	if !debug {
		return nil
	}
	if dir == "" {
		return fmt.Errorf("log directory required")
	}

	logsDir = filepath.Join(dir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := get(CategoryBoot)
	boot.Info("logging initialized dir=%s", logsDir)
	return nil
}

// Shutdown flushes all category loggers.
func Shutdown() {
	mu.RLock()
	defer mu.RUnlock()
	for _, l := range loggers {
		if l.s != nil {
			_ = l.s.Sync()
		}
	}
}

// Get returns the logger for a category, creating it on first use.
func Get(c Category) *Logger {
	mu.Lock()
	defer mu.Unlock()
	return get(c)
}

func get(c Category) *Logger {
	if l, ok := loggers[c]; ok {
		return l
	}
	if !enabled {
		l := &Logger{}
		loggers[c] = l
		return l
	}

	path := filepath.Join(logsDir, string(c)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] failed to open %s: %v\n", path, err)
		l := &Logger{}
		loggers[c] = l
		return l
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.DebugLevel)
	l := &Logger{s: zap.New(core).Sugar().With("cat", string(c))}
	loggers[c] = l
	return l
}

// Debug logs a debug-level message with printf formatting.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l == nil || l.s == nil {
		return
	}
	l.s.Debugf(format, args...)
}

// Info logs an info-level message with printf formatting.
func (l *Logger) Info(format string, args ...interface{}) {
	if l == nil || l.s == nil {
		return
	}
	l.s.Infof(format, args...)
}

// Warn logs a warn-level message with printf formatting.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l == nil || l.s == nil {
		return
	}
	l.s.Warnf(format, args...)
}

// Error logs an error-level message with printf formatting.
func (l *Logger) Error(format string, args ...interface{}) {
	if l == nil || l.s == nil {
		return
	}
	l.s.Errorf(format, args...)
}

// Category convenience helpers, one set per subsystem.

func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

func API(format string, args ...interface{})      { Get(CategoryAPI).Info(format, args...) }
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }
func APIWarn(format string, args ...interface{})  { Get(CategoryAPI).Warn(format, args...) }
func APIError(format string, args ...interface{}) { Get(CategoryAPI).Error(format, args...) }

func Stream(format string, args ...interface{})      { Get(CategoryStream).Info(format, args...) }
func StreamDebug(format string, args ...interface{}) { Get(CategoryStream).Debug(format, args...) }
func StreamError(format string, args ...interface{}) { Get(CategoryStream).Error(format, args...) }

func Pipeline(format string, args ...interface{})      { Get(CategoryPipeline).Info(format, args...) }
func PipelineDebug(format string, args ...interface{}) { Get(CategoryPipeline).Debug(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }
func StoreError(format string, args ...interface{}) { Get(CategoryStore).Error(format, args...) }

func Server(format string, args ...interface{})      { Get(CategoryServer).Info(format, args...) }
func ServerDebug(format string, args ...interface{}) { Get(CategoryServer).Debug(format, args...) }
func ServerError(format string, args ...interface{}) { Get(CategoryServer).Error(format, args...) }
