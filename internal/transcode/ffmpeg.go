package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/screenrec/internal/ffmpeg"
	"github.com/smazurov/screenrec/internal/gpu"
	"github.com/smazurov/screenrec/internal/logging"
	"github.com/smazurov/screenrec/internal/metrics"
	"github.com/smazurov/screenrec/internal/process"
)

// finalizeTimeout bounds how long ffmpeg may take to flush after its input closes.
const finalizeTimeout = 15 * time.Second

// maxDuplicates caps the frames written to fill one timestamp gap.
const maxDuplicates = 120

// FFmpeg encodes samples by piping raw BGRA frames into an ffmpeg process.
type FFmpeg struct {
	Encoder string
	Preset  string
	Options []ffmpeg.OptionType
}

// NewFFmpeg creates a transcoder with libx264 and the default options.
func NewFFmpeg() *FFmpeg {
	return &FFmpeg{
		Encoder: ffmpeg.DefaultEncoder,
		Preset:  "veryfast",
		Options: ffmpeg.GetDefaultOptions(),
	}
}

// Prepare validates the profile and builds the ffmpeg command.
func (f *FFmpeg) Prepare(_ context.Context, src MediaSource, out io.Writer, profile Profile) (Job, error) {
	desc := src.Descriptor()
	if desc.Format != gpu.FormatBGRA8 {
		return nil, NewError(CodeInvalidProfile, "prepare", fmt.Sprintf("unsupported input format %s", desc.Format), nil)
	}
	if desc.Size.IsZero() {
		return nil, NewError(CodeInvalidProfile, "prepare", "input size is empty", nil)
	}
	if profile.FrameRate <= 0 || profile.Bitrate <= 0 {
		return nil, NewError(CodeInvalidProfile, "prepare", "frame rate and bitrate must be positive", nil)
	}
	if profile.Size.Width%2 != 0 || profile.Size.Height%2 != 0 {
		return nil, NewError(CodeTransformTypeNotSet, "prepare", fmt.Sprintf("output size %s is not even", profile.Size), nil)
	}

	params := &ffmpeg.Params{
		InputWidth:   desc.Size.Width,
		InputHeight:  desc.Size.Height,
		InputFormat:  ffmpeg.DefaultInputFormat,
		FPS:          profile.FrameRate,
		OutputWidth:  profile.Size.Width,
		OutputHeight: profile.Size.Height,
		Encoder:      f.Encoder,
		Bitrate:      profile.Bitrate,
		Preset:       f.Preset,
		Format:       profile.Container,
		OutputURL:    ffmpeg.DefaultOutputURL,
		Options:      f.Options,
	}
	args, err := ffmpeg.BuildArgs(params)
	if err != nil {
		return nil, NewError(CodeInvalidProfile, "prepare", "build ffmpeg command", err)
	}

	return &ffmpegJob{
		args:    args,
		src:     src,
		out:     out,
		desc:    desc,
		profile: profile,
		logger:  logging.GetLogger("transcode"),
	}, nil
}

type ffmpegJob struct {
	args    []string
	src     MediaSource
	out     io.Writer
	desc    StreamDescriptor
	profile Profile
	logger  *slog.Logger
}

// Run implements Job.
func (j *ffmpegJob) Run(ctx context.Context) error {
	stderr := &stderrWatcher{}
	p := process.New("encode", j.args, j.logger)
	p.SetLogParser(logging.GetLogger("ffmpeg"), ffmpeg.ParseLogLine)
	p.SetOutputHandler(stderr)
	p.SetStdout(j.out)

	stdin, err := p.Start()
	if err != nil {
		return NewError(CodeEncoderUnavailable, "start", "ffmpeg could not be started", err)
	}

	started := time.Now()
	w := newFrameWriter(stdin, j.desc.Size, j.profile.FrameRate)
	n, pumpErr := Pump(ctx, j.src, w.write)
	closeErr := stdin.Close()

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	code, waitErr := p.Wait(waitCtx)

	j.logger.Info("Encode finished", "samples", n, "frames_written", w.frames, "duplicated", w.duplicated, "skipped", w.skipped, "exit_code", code)
	metrics.SetLastEncode(metrics.EncodeStats{
		Samples:    int64(n),
		Frames:     w.frames,
		Duplicated: w.duplicated,
		Skipped:    w.skipped,
		Speed:      speed(w.frames, j.profile.FrameRate, time.Since(started)),
		ExitCode:   code,
	})

	if rejected := stderr.rejection(); rejected != "" {
		return NewError(CodeTransformTypeNotSet, "encode", rejected, nil)
	}
	if code != 0 || waitErr != nil {
		msg := fmt.Sprintf("ffmpeg exited with code %d", code)
		if last := stderr.lastError(); last != "" {
			msg += ": " + last
		}
		return NewError(CodeEncodeFailed, "encode", msg, waitErr)
	}
	if pumpErr != nil {
		if errors.Is(pumpErr, context.Canceled) || errors.Is(pumpErr, context.DeadlineExceeded) {
			return pumpErr
		}
		return NewError(CodeEncodeFailed, "encode", "write frame", pumpErr)
	}
	if closeErr != nil && !errors.Is(closeErr, io.ErrClosedPipe) {
		j.logger.Debug("Closing ffmpeg input failed", "error", closeErr)
	}
	return nil
}

// stderrWatcher keeps the error lines ffmpeg printed.
type stderrWatcher struct {
	mu       sync.Mutex
	errors   []string
	rejected string
}

func (s *stderrWatcher) HandleLine(source, line string) {
	if source != "stderr" {
		return
	}
	level, msg := ffmpeg.ParseLogLine(line)
	if level < slog.LevelError {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, msg)
	if s.rejected == "" && ffmpeg.IsConfigurationRejection(msg) {
		s.rejected = msg
	}
}

func (s *stderrWatcher) rejection() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejected
}

func (s *stderrWatcher) lastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errors) == 0 {
		return ""
	}
	return strings.TrimSpace(s.errors[len(s.errors)-1])
}

// speed is the ratio of encoded media time to elapsed wall time.
func speed(frames int64, fps int, elapsed time.Duration) float64 {
	if fps <= 0 || elapsed <= 0 {
		return 0
	}
	media := float64(frames) / float64(fps)
	return media / elapsed.Seconds()
}

// frameWriter converts timestamped samples into a constant-rate raw stream
// by repeating or skipping frames.
type frameWriter struct {
	w          io.Writer
	size       gpu.Size
	fps        int
	buf        []byte
	next       int64
	frames     int64
	duplicated int64
	skipped    int64
}

func newFrameWriter(w io.Writer, size gpu.Size, fps int) *frameWriter {
	return &frameWriter{
		w:    w,
		size: size,
		fps:  fps,
		buf:  make([]byte, size.Width*size.Height*gpu.FormatBGRA8.BytesPerPixel()),
	}
}

// slot returns the output frame index for a sample timestamp.
func (fw *frameWriter) slot(ts, start time.Duration) int64 {
	rel := (ts - start).Seconds()
	if rel < 0 {
		rel = 0
	}
	return int64(math.Round(rel * float64(fw.fps)))
}

func (fw *frameWriter) write(s *Sample, start time.Duration) error {
	index := fw.slot(s.Timestamp, start)
	if fw.frames == 0 {
		index = 0
	}
	if index < fw.next {
		fw.skipped++
		metrics.AddTranscodeFrames(metrics.FrameSkipped, 1)
		return nil
	}

	if err := fw.fill(s); err != nil {
		return err
	}

	copies := min(index-fw.next+1, maxDuplicates)
	for range copies {
		if _, err := fw.w.Write(fw.buf); err != nil {
			return err
		}
	}
	fw.duplicated += copies - 1
	fw.frames += copies
	metrics.AddTranscodeFrames(metrics.FrameWritten, copies)
	metrics.AddTranscodeFrames(metrics.FrameDuplicated, copies-1)
	fw.next = index + 1
	return nil
}

// fill copies the sample's content into the frame buffer, cropping or
// padding to the stream size.
func (fw *frameWriter) fill(s *Sample) error {
	m, ok := s.Surface.(gpu.Mappable)
	if !ok {
		return fmt.Errorf("sample surface is not mappable")
	}
	pix, stride, err := m.Map()
	if err != nil {
		return err
	}

	surf := s.Surface.Size()
	w := min(fw.size.Width, surf.Width, s.Size.Width)
	h := min(fw.size.Height, surf.Height, s.Size.Height)
	rowBytes := fw.size.Width * 4

	clear(fw.buf)
	for y := range h {
		copy(fw.buf[y*rowBytes:y*rowBytes+w*4], pix[y*stride:y*stride+w*4])
	}
	return nil
}
