package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

var (
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	globalConfig    Config
	globalLevelVar  = &slog.LevelVar{}
	isInitialized   bool
	mutex           sync.RWMutex
	logBuffer       *RingBuffer
	logCallback     LogCallback
)

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	// Modules maps a module name to its level.
	Modules map[string]string `toml:"-"`
}

// Initialize sets up the logging system. Loggers handed out earlier get
// their level and handler chain replaced so they also feed the log history.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	isInitialized = true

	if logBuffer == nil {
		logBuffer = NewRingBuffer(defaultBufferSize)
	}

	applyLevelsLocked()
	for module, levelVar := range moduleLevelVars {
		moduleLoggers[module] = slog.New(createHandler(config.Format, levelVar)).With("module", module)
	}

	slog.SetDefault(slog.New(createHandler(config.Format, globalLevelVar)))
}

// ApplyLevels updates the global and per-module levels of existing loggers
// in place. The output format and the log history are left untouched.
func ApplyLevels(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig.Level = config.Level
	globalConfig.Modules = config.Modules
	applyLevelsLocked()
}

func applyLevelsLocked() {
	globalLevelVar.Set(levelOr(globalConfig.Level, slog.LevelInfo))
	for module, levelVar := range moduleLevelVars {
		levelVar.Set(moduleLevelLocked(module))
	}
}

// moduleLevelLocked resolves a module's level: its own entry, then the
// global level, then info.
func moduleLevelLocked(module string) slog.Level {
	if !isInitialized {
		return slog.LevelInfo
	}
	global := levelOr(globalConfig.Level, slog.LevelInfo)
	return levelOr(globalConfig.Modules[module], global)
}

// GetBuffer returns the log ring buffer for reading historical logs.
func GetBuffer() *RingBuffer {
	mutex.RLock()
	defer mutex.RUnlock()
	return logBuffer
}

// SetLogCallback sets a callback to be called for each new log entry.
// Used for publishing log events to SSE clients.
func SetLogCallback(callback LogCallback) {
	mutex.Lock()
	defer mutex.Unlock()
	logCallback = callback
}

// GetLogger returns the logger for module, creating it on first use. The
// same logger is returned for every call with the same module.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	logger, ok := moduleLoggers[module]
	mutex.RUnlock()
	if ok {
		return logger
	}

	mutex.Lock()
	defer mutex.Unlock()
	if logger, ok := moduleLoggers[module]; ok {
		return logger
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(moduleLevelLocked(module))
	format := "text"
	if isInitialized {
		format = globalConfig.Format
	}

	logger = slog.New(createHandler(format, levelVar)).With("module", module)
	moduleLoggers[module] = logger
	moduleLevelVars[module] = levelVar
	return logger
}

// createHandler fans records out to stdout and the journal when they are
// reachable, and always to the history buffer.
func createHandler(format string, level slog.Leveler) slog.Handler {
	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stdoutHandler(format, level))
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewBufferHandler(level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

func stdoutHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.NewTextHandler(os.Stdout, opts)
}

// isStdoutAvailable reports whether stdout is attached to a character
// device, pipe, socket or regular file.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode.IsRegular() || mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0
}

// parseLevel converts a level name to a slog.Level.
func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}

// levelOr parses level, returning fallback for empty or unknown names.
func levelOr(level string, fallback slog.Level) slog.Level {
	if l, ok := parseLevel(level); ok {
		return l
	}
	return fallback
}
