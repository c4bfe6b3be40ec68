// Package surface implements the presentation surface shared by the live
// preview and the encoder preview: blit a captured texture into a
// double-buffered swap chain, resizing it to the content as needed.
package surface

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/smazurov/screenrec/internal/gpu"
	"github.com/smazurov/screenrec/internal/logging"
	"github.com/smazurov/screenrec/internal/metrics"
)

// BufferCount is the swap chain depth.
const BufferCount = 2

var placeholder = gpu.Size{Width: 1, Height: 1}

// Option configures a Surface.
type Option func(*Surface)

// Lazy defers the first real sizing to the first Present. The swap chain is
// created at a 1x1 placeholder.
func Lazy() Option {
	return func(s *Surface) {
		s.sized = false
	}
}

// Surface is a resizable swap chain target. Calls are serialized; one
// goroutine at a time may draw into it.
type Surface struct {
	device *gpu.Device
	logger *slog.Logger

	mu       sync.Mutex
	chain    gpu.SwapChain
	view     gpu.RenderTargetView
	size     gpu.Size
	sized    bool
	disposed bool
}

// New creates a surface at the initial size. A zero size implies Lazy.
func New(device *gpu.Device, initial gpu.Size, opts ...Option) (*Surface, error) {
	s := &Surface{
		device: device,
		logger: logging.GetLogger("surface"),
		size:   initial,
		sized:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if initial.IsZero() {
		s.sized = false
	}
	if !s.sized {
		s.size = placeholder
	}

	chain, err := device.CreateSwapChain(gpu.SwapChainDesc{
		Size:        s.size,
		Format:      gpu.FormatBGRA8,
		BufferCount: BufferCount,
	})
	if err != nil {
		return nil, fmt.Errorf("create swap chain: %w", err)
	}
	s.chain = chain

	if err := s.acquireViewLocked(); err != nil {
		_ = chain.Close()
		return nil, err
	}
	if err := device.Clear(s.view, gpu.Transparent); err != nil {
		s.view.Release()
		_ = chain.Close()
		return nil, fmt.Errorf("clear surface: %w", err)
	}

	device.Retain()
	return s, nil
}

// Size returns the current buffer size.
func (s *Surface) Size() gpu.Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Sized reports whether the surface has been sized to real content.
func (s *Surface) Sized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sized
}

// Present resizes the buffers to srcSize if needed, then clears the back
// buffer, copies src into it and presents with one vsync interval.
func (s *Surface) Present(src gpu.Texture, srcSize gpu.Size) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return gpu.ErrDisposed
	}
	if srcSize.IsZero() {
		return fmt.Errorf("present: empty source size")
	}

	if !s.sized || !srcSize.Equal(s.size) {
		if err := s.resizeLocked(srcSize); err != nil {
			return err
		}
	}

	if err := s.device.Clear(s.view, gpu.Black); err != nil {
		return fmt.Errorf("clear back buffer: %w", err)
	}
	if err := s.device.Copy(s.view.Texture(), src); err != nil {
		return fmt.Errorf("copy frame: %w", err)
	}
	if err := s.chain.Present(1); err != nil {
		return fmt.Errorf("present: %w", err)
	}
	metrics.IncSurfacePresents()
	return nil
}

// resizeLocked releases the view, resizes the buffers and reacquires the view.
func (s *Surface) resizeLocked(size gpu.Size) error {
	s.logger.Debug("Resizing surface", "from", s.size.String(), "to", size.String(), "first", !s.sized)

	if s.view != nil {
		s.view.Release()
		s.view = nil
	}
	if err := s.chain.ResizeBuffers(BufferCount, size, gpu.FormatBGRA8); err != nil {
		return fmt.Errorf("resize buffers: %w", err)
	}
	if err := s.acquireViewLocked(); err != nil {
		return err
	}

	s.size = size
	s.sized = true
	metrics.IncSurfaceResizes()
	return nil
}

func (s *Surface) acquireViewLocked() error {
	back, err := s.chain.BackBuffer()
	if err != nil {
		return fmt.Errorf("get back buffer: %w", err)
	}
	view, err := s.device.CreateRenderTargetView(back)
	if err != nil {
		return fmt.Errorf("create render target view: %w", err)
	}
	s.view = view
	return nil
}

// CompositionSurface returns the handle a compositor displays.
func (s *Surface) CompositionSurface() *Composition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Composition{chain: s.chain}
}

// Dispose releases the swap chain and the device reference. Later calls do
// nothing.
func (s *Surface) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.disposed = true

	if s.view != nil {
		s.view.Release()
		s.view = nil
	}
	if err := s.chain.Close(); err != nil {
		s.logger.Debug("Swap chain close failed", "error", err)
	}
	s.device.Release()
}

// Composition is a read-only view of a surface's front buffer.
type Composition struct {
	chain gpu.SwapChain
}

type frontReader interface {
	Front() (*image.RGBA, bool)
}

// Snapshot returns a copy of the last presented image. It reports false
// before the first present, after dispose, or when the backend cannot be
// read back.
func (c *Composition) Snapshot() (*image.RGBA, bool) {
	fr, ok := c.chain.(frontReader)
	if !ok {
		return nil, false
	}
	return fr.Front()
}

// Size returns the composition's buffer size.
func (c *Composition) Size() gpu.Size {
	return c.chain.Size()
}
