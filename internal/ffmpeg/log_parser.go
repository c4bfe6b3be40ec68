package ffmpeg

import (
	"log/slog"
	"strings"
)

// ffmpegLevels maps the names printed by -loglevel level+info to slog levels.
var ffmpegLevels = map[string]slog.Level{
	"quiet":   slog.LevelError,
	"panic":   slog.LevelError,
	"fatal":   slog.LevelError,
	"error":   slog.LevelError,
	"warning": slog.LevelWarn,
	"info":    slog.LevelInfo,
	"verbose": slog.LevelDebug,
	"debug":   slog.LevelDebug,
	"trace":   slog.LevelDebug,
}

// ParseLogLine splits an ffmpeg stderr line printed with -loglevel level+info
// into its level and message. Lines look like "[info] message" or
// "[libx264 @ 0x55d] [error] message"; the level tag is removed and a
// component tag is kept. Untagged lines are info.
func ParseLogLine(line string) (slog.Level, string) {
	prefix, rest := "", line
	for range 2 {
		tag, after, ok := cutTag(rest)
		if !ok {
			break
		}
		if level, known := ffmpegLevels[tag]; known {
			return level, prefix + after
		}
		// Only a component tag may precede the level.
		if prefix != "" || !strings.Contains(tag, " @ ") {
			break
		}
		prefix, rest = "["+tag+"] ", after
	}
	return slog.LevelInfo, line
}

// cutTag splits "[tag] rest" into tag and rest.
func cutTag(s string) (tag, rest string, ok bool) {
	if !strings.HasPrefix(s, "[") {
		return "", s, false
	}
	tag, rest, ok = strings.Cut(s[1:], "] ")
	return tag, rest, ok
}

// rejectionMarkers are ffmpeg messages meaning the encoder refused the
// requested size, rate or profile.
var rejectionMarkers = []string{
	"Error while opening encoder",
	"Error initializing output stream",
	"Could not open encoder",
	"not supported by the bitstream",
	"frame size not supported",
	"height not divisible by 2",
	"width not divisible by 2",
	"Invalid argument",
}

// IsConfigurationRejection reports whether an error-level ffmpeg message
// means the encoder rejected its configuration.
func IsConfigurationRejection(msg string) bool {
	for _, m := range rejectionMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
