package capture

import (
	"errors"
	"sync"
	"time"

	"github.com/smazurov/screenrec/internal/gpu"
)

// Frame pool defaults.
const (
	DefaultBufferCount = 2
	DefaultFormat      = gpu.FormatBGRA8
)

var (
	// ErrTargetClosed is returned by a pool whose capture target went away.
	ErrTargetClosed = errors.New("capture: target closed")
	// ErrSourceClosed is returned when starting a closed source.
	ErrSourceClosed = errors.New("capture: source closed")
	// ErrUnsupportedTarget is returned when a provider is handed a target it cannot capture.
	ErrUnsupportedTarget = errors.New("capture: unsupported target")
)

var epoch = time.Now()

// SystemRelativeTime returns the capture clock: monotonic time since process start.
func SystemRelativeTime() time.Duration {
	return time.Since(epoch)
}

// Target is the thing being captured. Its size may change at any time.
type Target interface {
	ID() string
	DisplayName() string
	Size() gpu.Size
}

// Frame is one pool surface with its content size and capture timestamp.
// It must be retired with Close before the pool can reuse the slot.
type Frame struct {
	Surface     gpu.Texture
	ContentSize gpu.Size
	Timestamp   time.Duration

	once   sync.Once
	retire func()
}

// NewFrame creates a frame whose retire callback runs once on Close.
func NewFrame(surface gpu.Texture, contentSize gpu.Size, ts time.Duration, retire func()) *Frame {
	return &Frame{
		Surface:     surface,
		ContentSize: contentSize,
		Timestamp:   ts,
		retire:      retire,
	}
}

// Close retires the frame. Safe to call more than once.
func (f *Frame) Close() {
	f.once.Do(func() {
		if f.retire != nil {
			f.retire()
		}
	})
}

// FramePool is a device-bound ring of surfaces the capture runtime writes into.
// Pools are free-threaded: the arrival callback runs on a capture goroutine.
type FramePool interface {
	// TryGetNextFrame returns the oldest queued frame, or nil when none is queued.
	// A non-nil error means the pool can no longer produce frames.
	TryGetNextFrame() (*Frame, error)
	// Recreate discards queued frames and reallocates the surfaces.
	Recreate(format gpu.PixelFormat, bufferCount int, size gpu.Size) error
	// SetFrameArrived sets the callback fired after each frame is queued.
	SetFrameArrived(fn func())
	CreateSession(target Target) (Session, error)
	Close() error
}

// DropReporter is implemented by pools that drop frames while every slot is
// queued or held.
type DropReporter interface {
	// SetPipeline labels the pool's drop metrics.
	SetPipeline(name string)
	Dropped() int64
}

// Session drives frame production for one target into one pool.
type Session interface {
	StartCapture() error
	SetCursorCaptureEnabled(enabled bool)
	Close() error
}

// Provider creates frame pools bound to a device.
type Provider interface {
	CreateFramePool(device *gpu.Device, format gpu.PixelFormat, bufferCount int, size gpu.Size) (FramePool, error)
}
