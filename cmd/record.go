package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/smazurov/screenrec/internal/capture"
	"github.com/smazurov/screenrec/internal/encoder"
	"github.com/smazurov/screenrec/internal/gpu"
	"github.com/smazurov/screenrec/internal/logging"
	"github.com/smazurov/screenrec/internal/session"
	"github.com/smazurov/screenrec/internal/transcode"
	"github.com/spf13/cobra"
)

// recordFlags holds the record command's flag values.
type recordFlags struct {
	source   string
	display  int
	duration time.Duration
	interval time.Duration
	output   string
	tempDir  string
	width    int
	height   int
	bitrate  int
	fps      int
	cursor   bool
	logJSON  bool
}

// options converts the flags to encoder options, filling unset rates from
// the defaults.
func (f recordFlags) options() encoder.Options {
	opts := encoder.DefaultOptions()
	opts.Width, opts.Height = f.width, f.height
	if f.bitrate > 0 {
		opts.Bitrate = f.bitrate
	}
	if f.fps > 0 {
		opts.FrameRate = f.fps
	}
	opts.IncludeCursor = f.cursor
	return opts
}

// target resolves the capture provider and target for the flags.
func (f recordFlags) target() (capture.Provider, capture.Target, error) {
	switch f.source {
	case "test":
		return capture.NewSyntheticProvider(f.interval), capture.NewSyntheticTarget("pattern", gpu.Size{Width: 1280, Height: 720}), nil
	case "screen":
		d, err := capture.FindDisplay(f.display)
		if err != nil {
			return nil, nil, err
		}
		return capture.NewScreenProvider(f.interval), d, nil
	default:
		return nil, nil, fmt.Errorf("unknown capture source %q", f.source)
	}
}

// CreateRecordCmd creates the record command.
func CreateRecordCmd() *cobra.Command {
	var flags recordFlags

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a display to a file",
		Long: `Captures a display (or the test pattern) and encodes it with ffmpeg until the duration ` +
			`elapses or the process is interrupted, then saves the recording to the output path.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loggingConfig := logging.Config{Level: "info", Format: "text"}
			if flags.logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("record")

			if flags.output == "" {
				return fmt.Errorf("--output is required")
			}
			provider, target, err := flags.target()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if flags.duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, flags.duration)
				defer cancel()
			}

			device := gpu.NewSoftwareDevice()
			defer device.Release()

			ctrl := session.New(session.Config{
				Device:     device,
				Provider:   provider,
				Transcoder: transcode.NewFFmpeg(),
				TempDir:    flags.tempDir,
			})
			defer ctrl.Close()

			if err := ctrl.SelectTarget(target); err != nil {
				return fmt.Errorf("failed to select %s: %w", target.DisplayName(), err)
			}
			opts := flags.options()
			r, err := ctrl.StartRecording(ctx, &opts)
			if err != nil {
				return err
			}
			logger.Info("Recording started", "target", target.DisplayName(), "temp", r.TempPath(), "duration", flags.duration)

			res := r.Wait()
			if res.State == session.StateFailed {
				if discardErr := res.Discard(); discardErr != nil {
					logger.Warn("Failed to remove temporary recording", "path", res.TempPath, "error", discardErr)
				}
				return fmt.Errorf("recording failed: %s", res.Message)
			}

			if err := res.Save(flags.output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d samples to %s (%s)\n", res.Samples, flags.output, res.Duration.Round(time.Millisecond))
			return nil
		},
	}

	defaults := encoder.DefaultOptions()
	cmd.Flags().StringVar(&flags.source, "source", "screen", "Capture source (screen, test)")
	cmd.Flags().IntVar(&flags.display, "display", 0, "Display index for the screen source")
	cmd.Flags().DurationVarP(&flags.duration, "duration", "d", 0, "Stop after this long (0 records until interrupted)")
	cmd.Flags().DurationVar(&flags.interval, "interval", 16*time.Millisecond, "Interval between captured frames")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Destination file")
	cmd.Flags().StringVar(&flags.tempDir, "temp-dir", filepath.Join(os.TempDir(), "screenrec"), "Directory for the recording until it is saved")
	cmd.Flags().IntVar(&flags.width, "width", 0, "Output width (0 for native)")
	cmd.Flags().IntVar(&flags.height, "height", 0, "Output height (0 for native)")
	cmd.Flags().IntVar(&flags.bitrate, "bitrate", defaults.Bitrate, "Bitrate in bits per second")
	cmd.Flags().IntVar(&flags.fps, "fps", defaults.FrameRate, "Output frame rate")
	cmd.Flags().BoolVar(&flags.cursor, "cursor", defaults.IncludeCursor, "Capture the mouse cursor")
	cmd.Flags().BoolVar(&flags.logJSON, "log-json", false, "Output logs in JSON format")

	return cmd
}
