package gpu

import (
	"errors"
	"fmt"
)

// Common device errors.
var (
	// ErrDeviceLost is returned once the driver has reset or the adapter is gone.
	ErrDeviceLost = errors.New("gpu: device lost")
	// ErrDisposed is returned for operations on a released device or closed object.
	ErrDisposed = errors.New("gpu: object disposed")
	// ErrViewOutstanding is returned when swap chain buffers are resized while a
	// render-target view still references one of them.
	ErrViewOutstanding = errors.New("gpu: render target view still referenced")
	// ErrFormatMismatch is returned when copying between textures of different formats.
	ErrFormatMismatch = errors.New("gpu: pixel format mismatch")
)

// Size is a surface size in pixels.
type Size struct {
	Width  int `json:"width" toml:"width"`
	Height int `json:"height" toml:"height"`
}

// Equal reports whether both dimensions match.
func (s Size) Equal(o Size) bool {
	return s.Width == o.Width && s.Height == o.Height
}

// IsZero reports whether either dimension is non-positive.
func (s Size) IsZero() bool {
	return s.Width <= 0 || s.Height <= 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// PixelFormat identifies the memory layout of a texture.
type PixelFormat int

// Supported pixel formats.
const (
	FormatUnknown PixelFormat = iota
	FormatBGRA8               // B8G8R8A8 unorm, the capture and swap chain format
)

// BytesPerPixel returns the pixel stride of the format.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatBGRA8:
		return 4
	default:
		return 0
	}
}

func (f PixelFormat) String() string {
	switch f {
	case FormatBGRA8:
		return "bgra"
	default:
		return "unknown"
	}
}

// Color is a normalized RGBA clear color.
type Color struct {
	R, G, B, A float32
}

// Clear colors used by presentation surfaces.
var (
	Black       = Color{A: 1}
	Transparent = Color{}
)

// Texture is a 2D GPU resource.
type Texture interface {
	Size() Size
	Format() PixelFormat
}

// Mappable is implemented by textures whose pixels can be read or written by the CPU.
type Mappable interface {
	// Map returns the backing pixel bytes and the row stride.
	Map() (pix []byte, stride int, err error)
}

// RenderTargetView binds a texture as a draw target.
type RenderTargetView interface {
	Texture() Texture
	Release()
}

// SwapChainDesc describes a flip-model swap chain.
type SwapChainDesc struct {
	Size        Size
	Format      PixelFormat
	BufferCount int
}

// SwapChain is a presentable double (or N) buffered target.
type SwapChain interface {
	// BackBuffer returns the buffer that the next Present will show.
	BackBuffer() (Texture, error)
	ResizeBuffers(bufferCount int, size Size, format PixelFormat) error
	Present(syncInterval int) error
	Size() Size
	Close() error
}

// Backend is a graphics API implementation behind a Device.
type Backend interface {
	CreateTexture(size Size, format PixelFormat) (Texture, error)
	CreateSwapChain(desc SwapChainDesc) (SwapChain, error)
	CreateRenderTargetView(t Texture) (RenderTargetView, error)
	Clear(view RenderTargetView, c Color) error
	Copy(dst, src Texture) error
	Close() error
}
