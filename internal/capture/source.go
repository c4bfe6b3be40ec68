package capture

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/smazurov/screenrec/internal/gpu"
	"github.com/smazurov/screenrec/internal/logging"
	"github.com/smazurov/screenrec/internal/metrics"
)

// SourceOptions configures a Source.
type SourceOptions struct {
	IncludeCursor bool
	BufferCount   int
	Format        gpu.PixelFormat
	// Pipeline labels the source's metrics.
	Pipeline string
}

func (o SourceOptions) withDefaults() SourceOptions {
	if o.BufferCount <= 0 {
		o.BufferCount = DefaultBufferCount
	}
	if o.Format == gpu.FormatUnknown {
		o.Format = DefaultFormat
	}
	if o.Pipeline == "" {
		o.Pipeline = metrics.PipelineEncode
	}
	return o
}

// Source turns a frame pool's arrival notifications into a blocking pull
// interface. At most one frame is handed out at a time, and the pool is
// recreated for a new content size only after the frame that carried it is
// retired.
type Source struct {
	device   *gpu.Device
	provider Provider
	target   Target
	opts     SourceOptions
	logger   *slog.Logger

	mu          sync.Mutex
	cond        *sync.Cond
	pool        FramePool
	session     Session
	started     bool
	closed      bool
	released    bool
	pending     *Frame
	pendingPool *Frame
	outstanding *Frame
	lastSize    gpu.Size
	recreate    bool
}

// NewSource creates a source for target. The source holds a device reference
// until it is closed.
func NewSource(device *gpu.Device, provider Provider, target Target, opts SourceOptions) *Source {
	device.Retain()
	s := &Source{
		device:   device,
		provider: provider,
		target:   target,
		opts:     opts.withDefaults(),
		logger:   logging.GetLogger("capture"),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Target returns the capture target.
func (s *Source) Target() Target {
	return s.target
}

// Start creates the frame pool and session and begins capture. Calling Start
// on a started source does nothing.
func (s *Source) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSourceClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}

	size := s.target.Size()
	if size.IsZero() {
		s.mu.Unlock()
		return fmt.Errorf("capture target %q has no size", s.target.DisplayName())
	}

	pool, err := s.provider.CreateFramePool(s.device, s.opts.Format, s.opts.BufferCount, size)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("create frame pool: %w", err)
	}
	session, err := pool.CreateSession(s.target)
	if err != nil {
		_ = pool.Close()
		s.mu.Unlock()
		return fmt.Errorf("create capture session: %w", err)
	}
	session.SetCursorCaptureEnabled(s.opts.IncludeCursor)
	if dr, ok := pool.(DropReporter); ok {
		dr.SetPipeline(s.opts.Pipeline)
	}
	pool.SetFrameArrived(s.frameArrived)

	s.pool = pool
	s.session = session
	s.lastSize = size
	s.started = true
	s.mu.Unlock()

	s.logger.Debug("Starting capture", "target", s.target.DisplayName(), "size", size.String(), "pipeline", s.opts.Pipeline)

	// Sessions may deliver the first arrival synchronously.
	if err := session.StartCapture(); err != nil {
		s.Close()
		return fmt.Errorf("start capture: %w", err)
	}
	return nil
}

// SetCursorCaptureEnabled toggles cursor capture on the running session.
func (s *Source) SetCursorCaptureEnabled(enabled bool) {
	s.mu.Lock()
	s.opts.IncludeCursor = enabled
	session := s.session
	s.mu.Unlock()

	if session != nil {
		session.SetCursorCaptureEnabled(enabled)
	}
}

// LastSize returns the most recently observed content size.
func (s *Source) LastSize() gpu.Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSize
}

// WaitForNextFrame blocks until a frame is available or the stream ends.
// It returns false once the source is closed, even if a frame was pending.
// The caller owns the frame and must Close it before the next one is taken
// from the pool.
func (s *Source) WaitForNextFrame() (*Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.closed && s.pending == nil {
		s.cond.Wait()
	}
	if s.closed {
		return nil, false
	}

	f := s.pending
	s.pending = nil
	s.pendingPool = nil
	s.outstanding = f
	metrics.IncFramesDelivered(s.opts.Pipeline)
	return f, true
}

// Close ends the stream and wakes any waiter. If a frame is outstanding, the
// pool is released when that frame is retired. Safe to call more than once.
func (s *Source) Close() {
	s.mu.Lock()
	after := s.closeLocked()
	s.mu.Unlock()
	runAll(after)
}

// Closed reports whether the stream has ended.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Source) frameArrived() {
	s.mu.Lock()
	after := s.fillLocked()
	s.mu.Unlock()
	runAll(after)
}

// fillLocked moves one frame from the pool into the pending slot when the
// slot and the consumer are both free.
func (s *Source) fillLocked() []func() {
	if s.closed || !s.started || s.pending != nil || s.outstanding != nil {
		return nil
	}

	pf, err := s.pool.TryGetNextFrame()
	if err != nil {
		s.logger.Info("Capture stream ended", "target", s.target.DisplayName(), "error", err)
		return s.closeLocked()
	}
	if pf == nil {
		return nil
	}

	if !pf.ContentSize.Equal(s.lastSize) {
		s.logger.Debug("Content size changed", "from", s.lastSize.String(), "to", pf.ContentSize.String())
		s.lastSize = pf.ContentSize
		s.recreate = true
	}

	var f *Frame
	f = NewFrame(pf.Surface, pf.ContentSize, pf.Timestamp, func() {
		// Retire even if the pool's release panics.
		defer s.retired(f)
		pf.Close()
	})
	s.pending = f
	s.pendingPool = pf
	s.cond.Broadcast()
	return nil
}

func (s *Source) retired(f *Frame) {
	s.mu.Lock()
	if s.outstanding == f {
		s.outstanding = nil
	}

	var after []func()
	switch {
	case s.closed:
		if s.outstanding == nil {
			after = s.releaseLocked()
		}
	case s.recreate:
		s.recreate = false
		if err := s.pool.Recreate(s.opts.Format, s.opts.BufferCount, s.lastSize); err != nil {
			s.logger.Warn("Frame pool recreation failed", "size", s.lastSize.String(), "error", err)
			after = s.closeLocked()
			break
		}
		metrics.IncPoolRecreations(s.opts.Pipeline)
		after = s.fillLocked()
	default:
		after = s.fillLocked()
	}
	s.mu.Unlock()
	runAll(after)
}

// closeLocked marks the stream ended and returns the teardown work to run
// once the lock is dropped.
func (s *Source) closeLocked() []func() {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.pendingPool != nil {
		s.pendingPool.Close()
		s.pending = nil
		s.pendingPool = nil
	}
	s.cond.Broadcast()

	var after []func()
	if s.session != nil {
		session := s.session
		s.session = nil
		after = append(after, func() {
			if err := session.Close(); err != nil {
				s.logger.Debug("Capture session close failed", "error", err)
			}
		})
	}
	if s.outstanding == nil {
		after = append(after, s.releaseLocked()...)
	}
	return after
}

func (s *Source) releaseLocked() []func() {
	if s.released {
		return nil
	}
	s.released = true

	var after []func()
	if s.pool != nil {
		pool := s.pool
		if dr, ok := pool.(DropReporter); ok {
			s.logger.Debug("Capture released", "target", s.target.DisplayName(), "pipeline", s.opts.Pipeline, "dropped", dr.Dropped())
		}
		after = append(after, func() { _ = pool.Close() })
	}
	after = append(after, s.device.Release)
	return after
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
