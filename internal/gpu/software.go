package gpu

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"
)

// Software is a CPU backend. Textures are BGRA8 byte buffers and swap chains
// flip between in-memory buffers.
type Software struct {
	lost   atomic.Bool
	closed atomic.Bool
}

// NewSoftware creates a software backend.
func NewSoftware() *Software {
	return &Software{}
}

// NewSoftwareDevice is shorthand for NewDevice(NewSoftware()).
func NewSoftwareDevice() *Device {
	return NewDevice(NewSoftware())
}

// SetLost simulates a driver reset: every later call fails with ErrDeviceLost.
func (s *Software) SetLost() {
	s.lost.Store(true)
}

// Closed reports whether the backend has been closed.
func (s *Software) Closed() bool {
	return s.closed.Load()
}

func (s *Software) check() error {
	if s.closed.Load() {
		return ErrDisposed
	}
	if s.lost.Load() {
		return ErrDeviceLost
	}
	return nil
}

// CreateTexture implements Backend.
func (s *Software) CreateTexture(size Size, format PixelFormat) (Texture, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return NewImage(size, format)
}

// CreateSwapChain implements Backend.
func (s *Software) CreateSwapChain(desc SwapChainDesc) (SwapChain, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if desc.BufferCount < 1 {
		return nil, fmt.Errorf("invalid buffer count %d", desc.BufferCount)
	}
	sc := &SoftwareSwapChain{}
	if err := sc.allocate(desc.BufferCount, desc.Size, desc.Format); err != nil {
		return nil, err
	}
	return sc, nil
}

// CreateRenderTargetView implements Backend.
func (s *Software) CreateRenderTargetView(t Texture) (RenderTargetView, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	v := &softView{tex: t}
	if bb, ok := t.(*backBuffer); ok {
		if err := bb.chain.addView(); err != nil {
			return nil, err
		}
		v.chain = bb.chain
	}
	return v, nil
}

// Clear implements Backend.
func (s *Software) Clear(view RenderTargetView, c Color) error {
	if err := s.check(); err != nil {
		return err
	}
	if sv, ok := view.(*softView); ok && sv.released.Load() {
		return ErrDisposed
	}
	img, err := resolve(view.Texture())
	if err != nil {
		return err
	}
	img.Fill(c)
	return nil
}

// Copy implements Backend.
func (s *Software) Copy(dst, src Texture) error {
	if err := s.check(); err != nil {
		return err
	}
	d, err := resolve(dst)
	if err != nil {
		return err
	}
	sr, err := resolve(src)
	if err != nil {
		return err
	}
	if d.format != sr.format {
		return ErrFormatMismatch
	}
	w := min(d.size.Width, sr.size.Width)
	h := min(d.size.Height, sr.size.Height)
	n := w * d.format.BytesPerPixel()
	for y := 0; y < h; y++ {
		copy(d.pix[y*d.stride:y*d.stride+n], sr.pix[y*sr.stride:y*sr.stride+n])
	}
	return nil
}

// Close implements Backend.
func (s *Software) Close() error {
	s.closed.Store(true)
	return nil
}

func resolve(t Texture) (*Image, error) {
	switch v := t.(type) {
	case *Image:
		return v, nil
	case *backBuffer:
		return v.chain.current()
	default:
		return nil, fmt.Errorf("texture %T not owned by software backend", t)
	}
}

// Image is a CPU texture.
type Image struct {
	size   Size
	format PixelFormat
	stride int
	pix    []byte
}

// NewImage allocates a zeroed texture.
func NewImage(size Size, format PixelFormat) (*Image, error) {
	bpp := format.BytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("unsupported pixel format %v", format)
	}
	if size.IsZero() {
		return nil, fmt.Errorf("invalid texture size %v", size)
	}
	stride := size.Width * bpp
	return &Image{
		size:   size,
		format: format,
		stride: stride,
		pix:    make([]byte, stride*size.Height),
	}, nil
}

// Size implements Texture.
func (i *Image) Size() Size { return i.size }

// Format implements Texture.
func (i *Image) Format() PixelFormat { return i.format }

// Map implements Mappable.
func (i *Image) Map() ([]byte, int, error) {
	return i.pix, i.stride, nil
}

// Fill sets every pixel to c.
func (i *Image) Fill(c Color) {
	px := [4]byte{unorm(c.B), unorm(c.G), unorm(c.R), unorm(c.A)}
	for off := 0; off+4 <= len(i.pix); off += 4 {
		copy(i.pix[off:off+4], px[:])
	}
}

// RGBA returns a copy of the texture converted to an image.RGBA.
func (i *Image) RGBA() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, i.size.Width, i.size.Height))
	for off := 0; off+4 <= len(i.pix); off += 4 {
		out.Pix[off+0] = i.pix[off+2]
		out.Pix[off+1] = i.pix[off+1]
		out.Pix[off+2] = i.pix[off+0]
		out.Pix[off+3] = i.pix[off+3]
	}
	return out
}

func unorm(v float32) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return byte(v*255 + 0.5)
	}
}

type softView struct {
	tex      Texture
	chain    *SoftwareSwapChain
	released atomic.Bool
}

func (v *softView) Texture() Texture { return v.tex }

func (v *softView) Release() {
	if v.released.Swap(true) {
		return
	}
	if v.chain != nil {
		v.chain.dropView()
	}
}

// backBuffer resolves to whichever buffer is currently the back buffer.
type backBuffer struct {
	chain *SoftwareSwapChain
}

func (b *backBuffer) Size() Size { return b.chain.Size() }

func (b *backBuffer) Format() PixelFormat {
	b.chain.mu.Lock()
	defer b.chain.mu.Unlock()
	return b.chain.format
}

// SoftwareSwapChain is the software backend's swap chain.
type SoftwareSwapChain struct {
	mu       sync.Mutex
	buffers  []*Image
	back     int
	size     Size
	format   PixelFormat
	views    int
	presents int
	resizes  int
	closed   bool
}

func (sc *SoftwareSwapChain) allocate(count int, size Size, format PixelFormat) error {
	buffers := make([]*Image, count)
	for i := range buffers {
		img, err := NewImage(size, format)
		if err != nil {
			return err
		}
		buffers[i] = img
	}
	sc.buffers = buffers
	sc.back = 0
	sc.size = size
	sc.format = format
	return nil
}

func (sc *SoftwareSwapChain) current() (*Image, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return nil, ErrDisposed
	}
	return sc.buffers[sc.back], nil
}

func (sc *SoftwareSwapChain) addView() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return ErrDisposed
	}
	sc.views++
	return nil
}

func (sc *SoftwareSwapChain) dropView() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.views > 0 {
		sc.views--
	}
}

// BackBuffer implements SwapChain.
func (sc *SoftwareSwapChain) BackBuffer() (Texture, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return nil, ErrDisposed
	}
	return &backBuffer{chain: sc}, nil
}

// ResizeBuffers implements SwapChain.
func (sc *SoftwareSwapChain) ResizeBuffers(bufferCount int, size Size, format PixelFormat) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return ErrDisposed
	}
	if sc.views > 0 {
		return ErrViewOutstanding
	}
	if bufferCount < 1 {
		bufferCount = len(sc.buffers)
	}
	if err := sc.allocate(bufferCount, size, format); err != nil {
		return err
	}
	sc.resizes++
	return nil
}

// Present implements SwapChain. The sync interval is accepted for API parity.
func (sc *SoftwareSwapChain) Present(_ int) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return ErrDisposed
	}
	sc.back = (sc.back + 1) % len(sc.buffers)
	sc.presents++
	return nil
}

// Size implements SwapChain.
func (sc *SoftwareSwapChain) Size() Size {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.size
}

// Close implements SwapChain.
func (sc *SoftwareSwapChain) Close() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.closed = true
	sc.buffers = nil
	return nil
}

// Front returns a copy of the most recently presented buffer.
func (sc *SoftwareSwapChain) Front() (*image.RGBA, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed || sc.presents == 0 {
		return nil, false
	}
	n := len(sc.buffers)
	return sc.buffers[(sc.back+n-1)%n].RGBA(), true
}

// Presents returns the number of completed presents.
func (sc *SoftwareSwapChain) Presents() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.presents
}

// Resizes returns the number of ResizeBuffers calls that succeeded.
func (sc *SoftwareSwapChain) Resizes() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.resizes
}
