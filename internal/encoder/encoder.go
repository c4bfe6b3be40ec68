// Package encoder feeds captured frames to a transcoder as a gap-free,
// timestamped sample stream and optionally mirrors them into a preview.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/screenrec/internal/capture"
	"github.com/smazurov/screenrec/internal/gpu"
	"github.com/smazurov/screenrec/internal/lifecycle"
	"github.com/smazurov/screenrec/internal/logging"
	"github.com/smazurov/screenrec/internal/metrics"
	"github.com/smazurov/screenrec/internal/surface"
	"github.com/smazurov/screenrec/internal/transcode"
)

// Status is the state of an Encoder.
type Status string

// Encoder states.
const (
	StatusIdle      Status = "idle"
	StatusRecording Status = "recording"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusDisposed  Status = "disposed"
)

var statusTransitions = map[Status][]Status{
	StatusIdle:      {StatusRecording, StatusDisposed},
	StatusRecording: {StatusCompleted, StatusFailed, StatusDisposed},
	StatusCompleted: {StatusDisposed},
	StatusFailed:    {StatusDisposed},
}

// ErrClosed is returned by operations on a disposed encoder.
var ErrClosed = errors.New("encoder is disposed")

// Encoder records one capture target once.
type Encoder struct {
	device     *gpu.Device
	provider   capture.Provider
	target     capture.Target
	transcoder transcode.Transcoder
	desc       transcode.StreamDescriptor
	logger     *slog.Logger
	state      *lifecycle.Machine[Status]
	samples    atomic.Int64

	mu       sync.Mutex
	source   *capture.Source
	first    *capture.Frame
	last     *transcode.Sample
	closed   bool
	tornDown bool

	// previewMu covers attaching the preview and presenting into it.
	previewMu     sync.Mutex
	preview       *surface.Surface
	previewClosed bool
}

// New creates an idle encoder for target. The encoder holds a device
// reference until it is torn down.
func New(device *gpu.Device, provider capture.Provider, target capture.Target, transcoder transcode.Transcoder) *Encoder {
	device.Retain()
	return &Encoder{
		device:     device,
		provider:   provider,
		target:     target,
		transcoder: transcoder,
		desc: transcode.StreamDescriptor{
			Size:   target.Size(),
			Format: capture.DefaultFormat,
		},
		logger: logging.GetLogger("encoder"),
		state:  lifecycle.New(StatusIdle, statusTransitions),
	}
}

// Target returns the recorded target.
func (e *Encoder) Target() capture.Target {
	return e.target
}

// Status returns the current state.
func (e *Encoder) Status() Status {
	return e.state.Current()
}

// OnStatusChange registers a callback for state transitions.
func (e *Encoder) OnStatusChange(fn func(from, to Status)) {
	e.state.OnChange(fn)
}

// Samples returns the number of samples handed to the transcoder.
func (e *Encoder) Samples() int64 {
	return e.samples.Load()
}

// Encode records into out until the stream ends, the transcoder fails or ctx
// is cancelled. Only the first call records; later calls return at once.
func (e *Encoder) Encode(ctx context.Context, out io.Writer, opts Options) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if !e.state.TransitionFrom(StatusIdle, StatusRecording) {
		e.mu.Unlock()
		return nil
	}
	src := capture.NewSource(e.device, e.provider, e.target, capture.SourceOptions{
		IncludeCursor: opts.IncludeCursor,
		Pipeline:      metrics.PipelineEncode,
	})
	e.source = src
	e.mu.Unlock()

	metrics.SetRecordingActive(true)
	defer metrics.SetRecordingActive(false)

	stop := context.AfterFunc(ctx, e.Dispose)
	defer stop()

	profile := transcode.Profile{
		Size:      opts.OutputSize(e.desc.Size),
		Bitrate:   opts.Bitrate,
		FrameRate: opts.FrameRate,
		Container: "mp4",
	}
	e.logger.Info("Recording started",
		"target", e.target.DisplayName(),
		"size", profile.Size.String(),
		"bitrate", profile.Bitrate,
		"fps", profile.FrameRate,
		"cursor", opts.IncludeCursor)

	if err := src.Start(); err != nil {
		e.finish(err)
		if e.isClosed() {
			return nil
		}
		return fmt.Errorf("start capture: %w", err)
	}

	job, err := e.transcoder.Prepare(ctx, e, out, profile)
	if err != nil {
		e.finish(err)
		return fmt.Errorf("prepare transcode: %w", err)
	}

	err = job.Run(ctx)
	e.finish(err)
	if err != nil && e.isClosed() && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// finish tears down and records the outcome of a recording.
func (e *Encoder) finish(err error) {
	e.teardown()
	if err != nil {
		if e.state.TransitionFrom(StatusRecording, StatusFailed) {
			e.logger.Error("Recording failed", "target", e.target.DisplayName(), "samples", e.Samples(), "error", err)
		}
		return
	}
	if e.state.TransitionFrom(StatusRecording, StatusCompleted) {
		e.logger.Info("Recording completed", "target", e.target.DisplayName(), "samples", e.Samples())
	}
}

func (e *Encoder) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Descriptor implements transcode.MediaSource.
func (e *Encoder) Descriptor() transcode.StreamDescriptor {
	return e.desc
}

// Starting implements transcode.MediaSource. The frame it waits for is kept
// and returned as the first sample.
func (e *Encoder) Starting() (time.Duration, bool) {
	e.mu.Lock()
	src := e.source
	e.mu.Unlock()
	if src == nil {
		return 0, false
	}

	f, ok := src.WaitForNextFrame()
	if !ok {
		e.teardown()
		return 0, false
	}

	e.mu.Lock()
	if e.tornDown {
		e.mu.Unlock()
		f.Close()
		return 0, false
	}
	e.first = f
	e.mu.Unlock()
	return f.Timestamp, true
}

// SampleRequested implements transcode.MediaSource. A nil sample ends the
// stream and releases the encoder's resources.
func (e *Encoder) SampleRequested() (sample *transcode.Sample) {
	var f *capture.Frame
	defer func() {
		if r := recover(); r != nil {
			metrics.IncSampleFaults()
			e.logger.Error("Sample production failed", "panic", r, "stack", string(debug.Stack()))
			if f != nil && sample == nil {
				f.Close()
			}
			sample = nil
			e.teardown()
		}
	}()

	e.mu.Lock()
	if e.closed || e.tornDown || !e.state.Is(StatusRecording) {
		e.mu.Unlock()
		e.teardown()
		return nil
	}
	prev := e.last
	e.last = nil
	f = e.first
	e.first = nil
	src := e.source
	e.mu.Unlock()

	if prev != nil {
		prev.Release()
	}

	if f == nil {
		var ok bool
		f, ok = src.WaitForNextFrame()
		if !ok {
			f = nil
			e.teardown()
			return nil
		}
	}

	if e.isClosed() {
		f.Close()
		f = nil
		e.teardown()
		return nil
	}

	e.mirror(f)

	sample = transcode.NewSample(f.Timestamp, f.Surface, f.ContentSize, f.Close)
	e.mu.Lock()
	e.last = sample
	e.mu.Unlock()

	e.samples.Add(1)
	metrics.IncSamples()
	return sample
}

// mirror presents f into the attached preview, if any.
func (e *Encoder) mirror(f *capture.Frame) {
	e.previewMu.Lock()
	defer e.previewMu.Unlock()
	if e.preview == nil {
		return
	}
	if err := e.preview.Present(f.Surface, f.ContentSize); err != nil {
		e.logger.Warn("Mirroring frame to preview failed", "error", err)
	}
}

// CreatePreviewSurface returns the encoder's preview, creating it on first
// use. The preview sizes itself on the first mirrored frame.
func (e *Encoder) CreatePreviewSurface() (*surface.Composition, error) {
	e.previewMu.Lock()
	defer e.previewMu.Unlock()

	if e.previewClosed {
		return nil, ErrClosed
	}
	if e.preview == nil {
		s, err := surface.New(e.device, gpu.Size{Width: 1, Height: 1}, surface.Lazy())
		if err != nil {
			return nil, fmt.Errorf("create preview surface: %w", err)
		}
		e.preview = s
	}
	return e.preview.CompositionSurface(), nil
}

// Dispose stops the encoder. Without a recording in progress resources are
// released at once. A recording is ended by closing its source and the
// sample producer releases the rest when it observes the end of stream.
func (e *Encoder) Dispose() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	recording := e.state.Is(StatusRecording)
	src := e.source
	e.mu.Unlock()

	e.state.Transition(StatusDisposed)

	if !recording || src == nil {
		e.teardown()
		return
	}
	e.logger.Debug("Disposing while recording", "target", e.target.DisplayName())
	src.Close()
}

// teardown releases everything the encoder owns. Only the first call acts.
func (e *Encoder) teardown() {
	e.mu.Lock()
	if e.tornDown {
		e.mu.Unlock()
		return
	}
	e.tornDown = true
	src := e.source
	first := e.first
	last := e.last
	e.first = nil
	e.last = nil
	e.mu.Unlock()

	if first != nil {
		first.Close()
	}
	if last != nil {
		last.Release()
	}
	if src != nil {
		src.Close()
	}

	e.previewMu.Lock()
	if e.preview != nil {
		e.preview.Dispose()
	}
	e.previewClosed = true
	e.previewMu.Unlock()

	e.device.Release()
	e.logger.Debug("Encoder resources released", "target", e.target.DisplayName())
}
