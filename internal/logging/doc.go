// Package logging provides module-scoped slog loggers for screenrec.
//
// Call [Initialize] once at startup, then ask for a logger per module:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"encoder": "debug"},
//	})
//	logger := logging.GetLogger("encoder")
//	logger.Debug("Sample requested", "timestamp", ts)
//
// Every logger carries a module attribute. Its level is the module override
// when one is configured and the global level otherwise. [ApplyLevels]
// changes levels in place, so loggers handed out earlier follow a reload of
// the [logging] table. Unknown level names fall back to info.
//
// Records fan out to up to three handlers:
//
//   - stdout, as text or JSON, when stdout is a terminal, pipe or file
//   - the systemd journal under the identifier "screenrec", when journald is
//     reachable; attributes become upper-case fields such as MODULE and TARGET
//   - an in-memory [RingBuffer] that backs the /api/logs endpoints
//
// Ring buffer entries carry a sequence number. [SetLogCallback] sees each
// entry after it is stored, which lets the API stream new lines without
// replaying ones a client already has.
//
// The config file uses flat keys under [logging]. level and format are
// global, any other key names a module:
//
//	[logging]
//	level = "info"
//	format = "json"
//	capture = "warn"
//	ffmpeg = "error"
//
// Useful journal queries:
//
//	journalctl -t screenrec -f
//	journalctl -t screenrec MODULE=encoder -p warning
package logging
