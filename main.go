package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smazurov/screenrec/cmd"
	"github.com/smazurov/screenrec/internal/api"
	"github.com/smazurov/screenrec/internal/capture"
	"github.com/smazurov/screenrec/internal/config"
	"github.com/smazurov/screenrec/internal/events"
	"github.com/smazurov/screenrec/internal/gpu"
	"github.com/smazurov/screenrec/internal/logging"
	"github.com/smazurov/screenrec/internal/session"
	"github.com/smazurov/screenrec/internal/settings"
	"github.com/smazurov/screenrec/internal/transcode"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Recording settings
	SettingsFile string `help:"Saved recording preferences" default:"settings.toml" toml:"recording.settings_file" env:"SETTINGS_FILE"`
	TempDir      string `help:"Directory for recordings until they are saved" default:"" toml:"recording.temp_dir" env:"TEMP_DIR"`

	// Capture settings
	CaptureSource   string `help:"Capture source (screen, test)" default:"screen" toml:"capture.source" env:"CAPTURE_SOURCE"`
	CaptureInterval string `help:"Interval between captured frames" default:"16ms" toml:"capture.interval" env:"CAPTURE_INTERVAL"`
	CaptureWidth    int    `help:"Test pattern width" default:"1280" toml:"capture.test_width" env:"CAPTURE_TEST_WIDTH"`
	CaptureHeight   int    `help:"Test pattern height" default:"720" toml:"capture.test_height" env:"CAPTURE_TEST_HEIGHT"`

	// Encoder settings
	FFmpegEncoder string `help:"ffmpeg video encoder" default:"libx264" toml:"ffmpeg.encoder" env:"FFMPEG_ENCODER"`
	FFmpegPreset  string `help:"ffmpeg encoder preset" default:"veryfast" toml:"ffmpeg.preset" env:"FFMPEG_PRESET"`

	// Observability settings
	MetricsEnabled bool `help:"Serve Prometheus metrics on /metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel     string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat    string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCapture   string `help:"Capture logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingPreview   string `help:"Preview logging level" default:"info" toml:"logging.preview" env:"LOGGING_PREVIEW"`
	LoggingEncoder   string `help:"Encoder logging level" default:"info" toml:"logging.encoder" env:"LOGGING_ENCODER"`
	LoggingFFmpeg    string `help:"ffmpeg output logging level" default:"info" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
	LoggingSurface   string `help:"Presentation surface logging level" default:"info" toml:"logging.surface" env:"LOGGING_SURFACE"`
	LoggingTranscode string `help:"Transcoder logging level" default:"info" toml:"logging.transcode" env:"LOGGING_TRANSCODE"`
	LoggingSession   string `help:"Session logging level" default:"info" toml:"logging.session" env:"LOGGING_SESSION"`
	LoggingAPI       string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Initialize logging system
		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"capture":   opts.LoggingCapture,
				"preview":   opts.LoggingPreview,
				"encoder":   opts.LoggingEncoder,
				"ffmpeg":    opts.LoggingFFmpeg,
				"surface":   opts.LoggingSurface,
				"transcode": opts.LoggingTranscode,
				"session":   opts.LoggingSession,
				"api":       opts.LoggingAPI,
			},
		})
		logger := logging.GetLogger("main")

		interval, err := time.ParseDuration(opts.CaptureInterval)
		if err != nil || interval <= 0 {
			logger.Warn("Invalid capture interval, using 16ms", "value", opts.CaptureInterval)
			interval = 16 * time.Millisecond
		}

		// Create event bus for in-process event handling
		eventBus := events.New()

		// Mirror buffered log entries onto the bus for /api/logs/stream
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(api.LogEvent(entry))
		})

		var provider capture.Provider
		var testTarget capture.Target
		switch opts.CaptureSource {
		case api.SourceTest:
			provider = capture.NewSyntheticProvider(interval)
			testTarget = capture.NewSyntheticTarget("pattern", gpu.Size{Width: opts.CaptureWidth, Height: opts.CaptureHeight})
		case api.SourceScreen:
			provider = capture.NewScreenProvider(interval)
		default:
			logger.Error("Unknown capture source", "source", opts.CaptureSource)
			os.Exit(1)
		}

		store := settings.NewStore(opts.SettingsFile)
		if loadErr := store.Load(); loadErr != nil {
			logger.Warn("Failed to load recording settings, using defaults", "error", loadErr)
		}

		transcoder := transcode.NewFFmpeg()
		transcoder.Encoder = opts.FFmpegEncoder
		transcoder.Preset = opts.FFmpegPreset

		tempDir := opts.TempDir
		if tempDir == "" {
			tempDir = filepath.Join(os.TempDir(), "screenrec")
		}

		device := gpu.NewSoftwareDevice()
		controller := session.New(session.Config{
			Device:     device,
			Provider:   provider,
			Transcoder: transcoder,
			Settings:   store,
			Bus:        eventBus,
			TempDir:    tempDir,
		})

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Session:      controller,
			EventBus:     eventBus,
			Source:       opts.CaptureSource,
			TestTarget:   testTarget,
		}
		if opts.MetricsEnabled {
			apiOpts.PrometheusHandler = promhttp.Handler()
		}
		server := api.NewServer(apiOpts)

		// Reload cursor capture and logging levels when the config file changes
		watcher := config.NewConfigWatcher(opts.Config, config.LoadRuntime, logging.GetLogger("config"),
			config.WithErrorHandler[config.Runtime](func(err error) {
				logger.Warn("Failed to reload config", "error", err)
			}),
		)
		watcher.OnReload(func(rt config.Runtime) {
			logging.ApplyLevels(rt.Logging)
			if rt.IncludeCursor != nil {
				controller.SetCursorCaptureEnabled(*rt.IncludeCursor)
			}
			logger.Info("Configuration reloaded", "path", watcher.Path())
		})

		hooks.OnStart(func() {
			if startErr := watcher.Start(); startErr != nil {
				logger.Warn("Config watcher disabled", "error", startErr)
			}

			logger.Info("Starting HTTP server", "port", opts.Port, "source", opts.CaptureSource)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			if stopErr := watcher.Stop(); stopErr != nil {
				logger.Warn("Error stopping config watcher", "error", stopErr)
			}

			// Finalizes any running recording before the device goes away
			controller.Close()
			device.Release()
		})
	})

	cli.Root().AddCommand(cmd.CreateRecordCmd())
	cli.Root().AddCommand(cmd.CreateDisplaysCmd())
	cli.Root().AddCommand(cmd.CreatePresetsCmd())

	// Run the CLI
	cli.Run()
}
