// Package preview shows a capture target live on a presentation surface.
// Frames are handled directly on the pool's arrival notification and only
// the newest queued frame is drawn.
package preview

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/smazurov/screenrec/internal/capture"
	"github.com/smazurov/screenrec/internal/gpu"
	"github.com/smazurov/screenrec/internal/lifecycle"
	"github.com/smazurov/screenrec/internal/logging"
	"github.com/smazurov/screenrec/internal/metrics"
	"github.com/smazurov/screenrec/internal/surface"
)

// Options configures a Preview.
type Options struct {
	IncludeCursor bool
}

// Preview is the interactive preview pipeline for one target.
type Preview struct {
	device   *gpu.Device
	provider capture.Provider
	target   capture.Target
	logger   *slog.Logger
	state    *lifecycle.Machine[lifecycle.State]
	done     chan struct{}

	// mu serializes arrival handling with Start and Close.
	mu        sync.Mutex
	surface   *surface.Surface
	pool      capture.FramePool
	session   capture.Session
	lastSize  gpu.Size
	cursor    bool
	presented int
}

// New creates a preview for target with a surface sized to the target.
func New(device *gpu.Device, provider capture.Provider, target capture.Target, opts Options) (*Preview, error) {
	surf, err := surface.New(device, target.Size())
	if err != nil {
		return nil, fmt.Errorf("create preview surface: %w", err)
	}
	device.Retain()
	return &Preview{
		device:   device,
		provider: provider,
		target:   target,
		logger:   logging.GetLogger("preview"),
		state:    lifecycle.NewPipeline(),
		done:     make(chan struct{}),
		surface:  surf,
		lastSize: target.Size(),
		cursor:   opts.IncludeCursor,
	}, nil
}

// Target returns the previewed target.
func (p *Preview) Target() capture.Target {
	return p.target
}

// State returns the pipeline state.
func (p *Preview) State() lifecycle.State {
	return p.state.Current()
}

// OnStateChange registers a callback for lifecycle transitions. It may run
// on the capture goroutine.
func (p *Preview) OnStateChange(fn func(from, to lifecycle.State)) {
	p.state.OnChange(fn)
}

// Done is closed when the preview closes, including after the target goes away.
func (p *Preview) Done() <-chan struct{} {
	return p.done
}

// Composition returns the compositor handle for the preview surface.
func (p *Preview) Composition() *surface.Composition {
	return p.surface.CompositionSurface()
}

// Presented returns the number of frames drawn.
func (p *Preview) Presented() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.presented
}

// Start begins capture. Starting a started or closed preview does nothing.
func (p *Preview) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.TransitionFrom(lifecycle.StateCreated, lifecycle.StateStarted) {
		return nil
	}

	pool, err := p.provider.CreateFramePool(p.device, capture.DefaultFormat, capture.DefaultBufferCount, p.target.Size())
	if err != nil {
		p.closeLocked()
		return fmt.Errorf("create frame pool: %w", err)
	}
	if dr, ok := pool.(capture.DropReporter); ok {
		dr.SetPipeline(metrics.PipelinePreview)
	}
	session, err := pool.CreateSession(p.target)
	if err != nil {
		_ = pool.Close()
		p.closeLocked()
		return fmt.Errorf("create capture session: %w", err)
	}
	session.SetCursorCaptureEnabled(p.cursor)
	pool.SetFrameArrived(p.frameArrived)
	p.pool = pool
	p.session = session

	if err := session.StartCapture(); err != nil {
		p.closeLocked()
		return fmt.Errorf("start capture: %w", err)
	}
	p.logger.Info("Preview started", "target", p.target.DisplayName(), "size", p.lastSize.String())
	return nil
}

// SetCursorCaptureEnabled toggles cursor capture.
func (p *Preview) SetCursorCaptureEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursor = enabled
	if p.session != nil {
		p.session.SetCursorCaptureEnabled(enabled)
	}
}

// Close stops capture and releases the pool, surface and device reference.
// It waits for an in-flight arrival to finish. Safe to call more than once.
func (p *Preview) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

func (p *Preview) closeLocked() {
	if !p.state.Transition(lifecycle.StateStopping) {
		return
	}

	if p.session != nil {
		if err := p.session.Close(); err != nil {
			p.logger.Debug("Capture session close failed", "error", err)
		}
		p.session = nil
	}
	if p.pool != nil {
		if dr, ok := p.pool.(capture.DropReporter); ok && dr.Dropped() > 0 {
			p.logger.Debug("Preview pool dropped frames", "target", p.target.DisplayName(), "dropped", dr.Dropped())
		}
		_ = p.pool.Close()
		p.pool = nil
	}
	p.surface.Dispose()
	p.device.Release()

	p.state.Transition(lifecycle.StateClosed)
	close(p.done)
	p.logger.Info("Preview closed", "target", p.target.DisplayName(), "presented", p.presented)
}

func (p *Preview) frameArrived() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.Is(lifecycle.StateStarted) {
		return
	}

	frame, err := p.latestLocked()
	if err != nil {
		p.logger.Info("Preview capture ended", "target", p.target.DisplayName(), "error", err)
		p.closeLocked()
		return
	}
	if frame == nil {
		return
	}

	resized := !frame.ContentSize.Equal(p.lastSize)
	if resized {
		p.lastSize = frame.ContentSize
	}

	err = p.surface.Present(frame.Surface, frame.ContentSize)
	frame.Close()
	if err != nil {
		if fatal(err) {
			p.logger.Warn("Preview present failed, closing", "error", err)
			p.closeLocked()
			return
		}
		p.logger.Warn("Preview present failed", "error", err)
	} else {
		p.presented++
	}

	if resized {
		if err := p.pool.Recreate(capture.DefaultFormat, capture.DefaultBufferCount, p.lastSize); err != nil {
			p.logger.Warn("Frame pool recreation failed", "size", p.lastSize.String(), "error", err)
			p.closeLocked()
			return
		}
		metrics.IncPoolRecreations(metrics.PipelinePreview)
	}
}

// latestLocked drains the pool, retiring all but the newest frame.
func (p *Preview) latestLocked() (*capture.Frame, error) {
	var latest *capture.Frame
	for {
		f, err := p.pool.TryGetNextFrame()
		if err != nil {
			if latest != nil {
				latest.Close()
			}
			return nil, err
		}
		if f == nil {
			return latest, nil
		}
		if latest != nil {
			latest.Close()
			metrics.IncFramesDropped(metrics.PipelinePreview)
		}
		latest = f
		metrics.IncFramesDelivered(metrics.PipelinePreview)
	}
}

func fatal(err error) bool {
	return errors.Is(err, gpu.ErrDeviceLost) ||
		errors.Is(err, gpu.ErrDisposed) ||
		errors.Is(err, capture.ErrTargetClosed)
}
