package gpu

import (
	"errors"
	"testing"
)

func TestDeviceRefCounting(t *testing.T) {
	backend := NewSoftware()
	dev := NewDevice(backend)

	dev.Retain()
	if got := dev.Refs(); got != 2 {
		t.Fatalf("Refs() = %d, want 2", got)
	}

	dev.Release()
	if backend.Closed() {
		t.Fatal("backend closed while a reference is still held")
	}

	dev.Release()
	if !backend.Closed() {
		t.Fatal("backend not closed after last release")
	}

	// Extra releases and retains on a dead device are ignored.
	dev.Release()
	dev.Retain()
	if got := dev.Refs(); got != 0 {
		t.Errorf("Refs() after final release = %d, want 0", got)
	}

	if _, err := dev.CreateTexture(Size{Width: 4, Height: 4}, FormatBGRA8); !errors.Is(err, ErrDisposed) {
		t.Errorf("CreateTexture on released device: err = %v, want ErrDisposed", err)
	}
}

func TestDeviceLostIsSticky(t *testing.T) {
	backend := NewSoftware()
	dev := NewDevice(backend)
	defer dev.Release()

	tex, err := dev.CreateTexture(Size{Width: 2, Height: 2}, FormatBGRA8)
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}

	backend.SetLost()
	if err := dev.Copy(tex, tex); !errors.Is(err, ErrDeviceLost) {
		t.Fatalf("Copy after SetLost: err = %v, want ErrDeviceLost", err)
	}
	if !dev.Lost() {
		t.Error("device should report lost after backend returned ErrDeviceLost")
	}
}

func TestCopyOverlappingRegion(t *testing.T) {
	dev := NewSoftwareDevice()
	defer dev.Release()

	src, _ := NewImage(Size{Width: 4, Height: 4}, FormatBGRA8)
	src.Fill(Color{R: 1, A: 1})
	dst, _ := NewImage(Size{Width: 2, Height: 6}, FormatBGRA8)

	if err := dev.Copy(dst, src); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	pix, stride, _ := dst.Map()
	// Row 0 copied: red in BGRA is 00 00 ff ff.
	if pix[0] != 0 || pix[2] != 0xff || pix[3] != 0xff {
		t.Errorf("row 0 pixel = % x, want 00 00 ff ff", pix[0:4])
	}
	// Row 5 is outside the source and stays zero.
	if pix[5*stride+2] != 0 {
		t.Errorf("row 5 should be untouched, got % x", pix[5*stride:5*stride+4])
	}
}

func TestSwapChainResizeRequiresViewRelease(t *testing.T) {
	dev := NewSoftwareDevice()
	defer dev.Release()

	sc, err := dev.CreateSwapChain(SwapChainDesc{Size: Size{Width: 8, Height: 8}, Format: FormatBGRA8, BufferCount: 2})
	if err != nil {
		t.Fatalf("CreateSwapChain: %v", err)
	}
	bb, _ := sc.BackBuffer()
	view, err := dev.CreateRenderTargetView(bb)
	if err != nil {
		t.Fatalf("CreateRenderTargetView: %v", err)
	}

	if err := sc.ResizeBuffers(2, Size{Width: 16, Height: 16}, FormatBGRA8); !errors.Is(err, ErrViewOutstanding) {
		t.Fatalf("ResizeBuffers with live view: err = %v, want ErrViewOutstanding", err)
	}

	view.Release()
	view.Release()
	if err := sc.ResizeBuffers(2, Size{Width: 16, Height: 16}, FormatBGRA8); err != nil {
		t.Fatalf("ResizeBuffers after release: %v", err)
	}
	if got := sc.Size(); !got.Equal(Size{Width: 16, Height: 16}) {
		t.Errorf("Size() = %v, want 16x16", got)
	}
}

func TestSwapChainPresentFlips(t *testing.T) {
	dev := NewSoftwareDevice()
	defer dev.Release()

	chain, _ := dev.CreateSwapChain(SwapChainDesc{Size: Size{Width: 1, Height: 1}, Format: FormatBGRA8, BufferCount: 2})
	sc := chain.(*SoftwareSwapChain)

	if _, ok := sc.Front(); ok {
		t.Fatal("Front() before any present should report nothing")
	}

	bb, _ := sc.BackBuffer()
	view, _ := dev.CreateRenderTargetView(bb)
	if err := dev.Clear(view, Color{G: 1, A: 1}); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	view.Release()
	if err := sc.Present(1); err != nil {
		t.Fatalf("Present: %v", err)
	}

	front, ok := sc.Front()
	if !ok {
		t.Fatal("Front() after present should return an image")
	}
	if front.Pix[1] != 0xff || front.Pix[0] != 0 {
		t.Errorf("front pixel = % x, want green", front.Pix[0:4])
	}
	if sc.Presents() != 1 {
		t.Errorf("Presents() = %d, want 1", sc.Presents())
	}
}
