// Package gpu provides the shared graphics device used for texture copies,
// clears and swap chain presentation.
//
// A Device is created explicitly and passed to every component that draws.
// It is reference counted: each owner calls Retain when it takes the device
// and Release when it is done. The backend is closed on the last Release.
package gpu

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Device is a reference-counted graphics device with one immediate context.
type Device struct {
	backend   Backend
	refs      atomic.Int32
	lost      atomic.Bool
	ctxMu     sync.Mutex // immediate context is single-threaded
	closeOnce sync.Once
}

// NewDevice wraps a backend. The returned device holds one reference.
func NewDevice(backend Backend) *Device {
	d := &Device{backend: backend}
	d.refs.Store(1)
	return d
}

// Retain adds a reference and returns the device.
// Retaining a fully released device has no effect.
func (d *Device) Retain() *Device {
	for {
		n := d.refs.Load()
		if n <= 0 {
			return d
		}
		if d.refs.CompareAndSwap(n, n+1) {
			return d
		}
	}
}

// Release drops a reference, closing the backend on the last one.
func (d *Device) Release() {
	for {
		n := d.refs.Load()
		if n <= 0 {
			return
		}
		if d.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				d.closeOnce.Do(func() {
					_ = d.backend.Close()
				})
			}
			return
		}
	}
}

// Refs returns the current reference count.
func (d *Device) Refs() int {
	return int(d.refs.Load())
}

// Lost reports whether the device has been lost.
func (d *Device) Lost() bool {
	return d.lost.Load()
}

func (d *Device) check() error {
	if d.refs.Load() <= 0 {
		return ErrDisposed
	}
	if d.lost.Load() {
		return ErrDeviceLost
	}
	return nil
}

func (d *Device) observe(err error) error {
	if errors.Is(err, ErrDeviceLost) {
		d.lost.Store(true)
	}
	return err
}

// CreateTexture allocates a texture.
func (d *Device) CreateTexture(size Size, format PixelFormat) (Texture, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	t, err := d.backend.CreateTexture(size, format)
	return t, d.observe(err)
}

// CreateSwapChain allocates a swap chain bound to this device.
func (d *Device) CreateSwapChain(desc SwapChainDesc) (SwapChain, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	sc, err := d.backend.CreateSwapChain(desc)
	return sc, d.observe(err)
}

// CreateRenderTargetView binds t as a render target.
func (d *Device) CreateRenderTargetView(t Texture) (RenderTargetView, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	v, err := d.backend.CreateRenderTargetView(t)
	return v, d.observe(err)
}

// Clear fills the view's texture with c on the immediate context.
func (d *Device) Clear(view RenderTargetView, c Color) error {
	if err := d.check(); err != nil {
		return err
	}
	d.ctxMu.Lock()
	defer d.ctxMu.Unlock()
	return d.observe(d.backend.Clear(view, c))
}

// Copy copies src into dst on the immediate context.
// Textures of different sizes copy their overlapping region.
func (d *Device) Copy(dst, src Texture) error {
	if err := d.check(); err != nil {
		return err
	}
	d.ctxMu.Lock()
	defer d.ctxMu.Unlock()
	return d.observe(d.backend.Copy(dst, src))
}
