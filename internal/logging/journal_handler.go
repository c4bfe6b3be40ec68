package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// journalIdentifier is the SYSLOG_IDENTIFIER of every entry, for
// journalctl -t screenrec.
const journalIdentifier = "screenrec"

// JournalHandler is a slog.Handler that sends logs to systemd journal.
// Attributes become upper-case journal fields: remote_addr is REMOTE_ADDR
// and fps inside group profile is PROFILE_FPS.
type JournalHandler struct {
	state handlerState
}

// NewJournalHandler creates a new journal handler.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{state: handlerState{level: level}}
}

// Enabled reports whether the handler handles records at the given level.
func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.state.enabled(level)
}

// Handle sends the log record to systemd journal.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := map[string]string{"SYSLOG_IDENTIFIER": journalIdentifier}
	h.state.each(r, func(path []string, a slog.Attr) {
		if key := journalField(path, a.Key); key != "" {
			fields[key] = journalValue(a.Value)
		}
	})

	if err := journal.Send(r.Message, journalPriority(r.Level), fields); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to send to journal: %v\n", err)
		return err
	}
	return nil
}

// WithAttrs returns a new handler with additional attributes.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &JournalHandler{state: h.state.withAttrs(attrs)}
}

// WithGroup returns a new handler with a group prefix.
func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &JournalHandler{state: h.state.withGroup(name)}
}

// journalPriority maps slog levels to journal priorities.
func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// journalField builds a valid journal field name: upper-case letters, digits
// and underscores, not starting with an underscore. Names that end up empty
// or collide with the fields journald sets itself return "".
func journalField(path []string, key string) string {
	var sb strings.Builder
	for _, part := range slices.Concat(path, []string{key}) {
		for _, r := range part {
			switch {
			case r >= 'a' && r <= 'z':
				sb.WriteRune(r - 'a' + 'A')
			case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
				sb.WriteRune(r)
			default:
				sb.WriteByte('_')
			}
		}
		sb.WriteByte('_')
	}
	name := strings.Trim(sb.String(), "_")
	switch name {
	case "", "MESSAGE", "PRIORITY", "SYSLOG_IDENTIFIER":
		return ""
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "F_" + name
	}
	return name
}

func journalValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	default:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.String()
	}
}

// IsJournalAvailable checks if systemd journal is available.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
