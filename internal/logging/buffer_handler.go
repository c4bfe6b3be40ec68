package logging

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"
)

// LogCallback is called when a new log entry is written.
// Used to publish log events without creating import cycles.
type LogCallback func(entry LogEntry)

// BufferHandler is a slog.Handler that writes to the package ring buffer
// and calls the registered log callback for each entry. Records logged
// before Initialize are dropped. Grouped attributes get dotted keys.
type BufferHandler struct {
	state handlerState
}

// NewBufferHandler creates a handler writing to the package ring buffer.
func NewBufferHandler(level slog.Leveler) *BufferHandler {
	return &BufferHandler{state: handlerState{level: level}}
}

// Enabled implements slog.Handler.
func (h *BufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.state.enabled(level)
}

// Handle implements slog.Handler.
func (h *BufferHandler) Handle(_ context.Context, r slog.Record) error {
	mutex.RLock()
	buffer := logBuffer
	callback := logCallback
	mutex.RUnlock()
	if buffer == nil {
		return nil
	}

	entry := LogEntry{
		Timestamp: r.Time,
		Level:     levelToString(r.Level),
		Module:    "app",
		Message:   r.Message,
	}
	h.state.each(r, func(path []string, a slog.Attr) {
		if path == nil && a.Key == "module" {
			entry.Module = a.Value.String()
			return
		}
		if entry.Attributes == nil {
			entry.Attributes = make(map[string]any)
		}
		entry.Attributes[strings.Join(slices.Concat(path, []string{a.Key}), ".")] = entryValue(a.Value)
	})

	entry = buffer.Write(entry)
	if callback != nil {
		callback(entry)
	}
	return nil
}

// entryValue converts a value to something that encodes well as JSON.
func entryValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	default:
		return v.Any()
	}
}

// WithAttrs implements slog.Handler.
func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &BufferHandler{state: h.state.withAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *BufferHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &BufferHandler{state: h.state.withGroup(name)}
}

// levelToString converts slog.Level to a lowercase string.
func levelToString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

// FormatLogLine formats a LogEntry as a display string for the UI.
func FormatLogLine(entry LogEntry) string {
	var sb strings.Builder
	sb.WriteString(entry.Timestamp.Format(time.RFC3339Nano))
	sb.WriteString(" [")
	sb.WriteString(strings.ToUpper(entry.Level))
	sb.WriteString("] [")
	sb.WriteString(entry.Module)
	sb.WriteString("] ")
	sb.WriteString(entry.Message)

	// Append attributes in key=value format
	if len(entry.Attributes) > 0 {
		keys := make([]string, 0, len(entry.Attributes))
		for k := range entry.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(" ")
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(fmt.Sprint(entry.Attributes[k]))
		}
	}

	return sb.String()
}
