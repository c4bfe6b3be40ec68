package preview

import (
	"sync"
	"testing"
	"time"

	"github.com/smazurov/screenrec/internal/capture"
	"github.com/smazurov/screenrec/internal/gpu"
	"github.com/smazurov/screenrec/internal/lifecycle"
)

func startPreview(t *testing.T, size gpu.Size) (*Preview, *capture.SyntheticTarget, *gpu.Device) {
	t.Helper()
	device := gpu.NewSoftwareDevice()
	t.Cleanup(device.Release)

	target := capture.NewSyntheticTarget("preview", size)
	p, err := New(device, capture.NewSyntheticProvider(0), target, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(p.Close)
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return p, target, device
}

func TestPreviewPresentsFrames(t *testing.T) {
	p, target, _ := startPreview(t, gpu.Size{Width: 32, Height: 16})

	for i := range 3 {
		if err := target.Emit(time.Duration(i) * time.Millisecond); err != nil {
			t.Fatalf("Emit() error = %v", err)
		}
	}
	if got := p.Presented(); got != 3 {
		t.Errorf("Presented() = %d, want 3", got)
	}
	if p.State() != lifecycle.StateStarted {
		t.Errorf("State() = %s, want started", p.State())
	}

	img, ok := p.Composition().Snapshot()
	if !ok {
		t.Fatal("no snapshot after presenting")
	}
	if got := img.Bounds().Dx(); got != 32 {
		t.Errorf("snapshot width = %d, want 32", got)
	}
}

func TestPreviewFollowsResize(t *testing.T) {
	p, target, _ := startPreview(t, gpu.Size{Width: 16, Height: 16})

	big := gpu.Size{Width: 40, Height: 20}
	target.SetSize(big)
	if err := target.Emit(0); err != nil {
		t.Fatal(err)
	}
	if got := p.surface.Size(); !got.Equal(big) {
		t.Errorf("surface size = %v, want %v", got, big)
	}

	// The second frame comes from the recreated pool at full size.
	if err := target.Emit(1); err != nil {
		t.Fatal(err)
	}
	if got := p.Presented(); got != 2 {
		t.Errorf("Presented() = %d, want 2", got)
	}
	img, _ := p.Composition().Snapshot()
	if got := img.Bounds().Dx(); got != 40 {
		t.Errorf("snapshot width = %d, want 40", got)
	}
}

func TestPreviewClosesWhenTargetCloses(t *testing.T) {
	p, target, _ := startPreview(t, gpu.Size{Width: 8, Height: 8})

	target.CloseTarget()
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("preview did not close after the target closed")
	}
	if p.State() != lifecycle.StateClosed {
		t.Errorf("State() = %s, want closed", p.State())
	}
}

func TestPreviewCloseReleasesDevice(t *testing.T) {
	device := gpu.NewSoftwareDevice()
	defer device.Release()

	p, err := New(device, capture.NewSyntheticProvider(0), capture.NewSyntheticTarget("x", gpu.Size{Width: 4, Height: 4}), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	p.Close()
	p.Close()

	if got := device.Refs(); got != 1 {
		t.Errorf("device refs = %d, want 1", got)
	}
	if err := p.Start(); err != nil {
		t.Errorf("Start() after Close error = %v, want nil no-op", err)
	}
	if p.State() != lifecycle.StateClosed {
		t.Errorf("State() = %s, want closed", p.State())
	}
}

// backlogProvider hands out a pool with frames already queued.
type backlogProvider struct {
	frames  []gpu.Size
	retired []int
	mu      sync.Mutex
	pool    *backlogPool
}

type backlogPool struct {
	owner   *backlogProvider
	queue   []*capture.Frame
	arrived func()
}

func (bp *backlogProvider) CreateFramePool(device *gpu.Device, _ gpu.PixelFormat, _ int, _ gpu.Size) (capture.FramePool, error) {
	pool := &backlogPool{owner: bp}
	for i, size := range bp.frames {
		tex, err := device.CreateTexture(size, gpu.FormatBGRA8)
		if err != nil {
			return nil, err
		}
		pool.queue = append(pool.queue, capture.NewFrame(tex, size, time.Duration(i), func() {
			bp.mu.Lock()
			bp.retired = append(bp.retired, i)
			bp.mu.Unlock()
		}))
	}
	bp.pool = pool
	return pool, nil
}

func (p *backlogPool) TryGetNextFrame() (*capture.Frame, error) {
	if len(p.queue) == 0 {
		return nil, nil
	}
	f := p.queue[0]
	p.queue = p.queue[1:]
	return f, nil
}

func (p *backlogPool) Recreate(gpu.PixelFormat, int, gpu.Size) error { return nil }
func (p *backlogPool) SetFrameArrived(fn func())                 { p.arrived = fn }
func (p *backlogPool) CreateSession(capture.Target) (capture.Session, error) {
	return nopSession{}, nil
}
func (p *backlogPool) Close() error { return nil }

type nopSession struct{}

func (nopSession) StartCapture() error          { return nil }
func (nopSession) SetCursorCaptureEnabled(bool) {}
func (nopSession) Close() error                 { return nil }

func TestPreviewDrawsOnlyNewestFrame(t *testing.T) {
	device := gpu.NewSoftwareDevice()
	defer device.Release()

	size := gpu.Size{Width: 4, Height: 4}
	provider := &backlogProvider{frames: []gpu.Size{size, size, size}}
	p, err := New(device, provider, capture.NewSyntheticTarget("backlog", size), Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}

	provider.pool.arrived()

	if got := p.Presented(); got != 1 {
		t.Errorf("Presented() = %d, want 1", got)
	}
	provider.mu.Lock()
	defer provider.mu.Unlock()
	want := []int{0, 1, 2}
	if len(provider.retired) != len(want) {
		t.Fatalf("retired = %v, want %v", provider.retired, want)
	}
	for i := range want {
		if provider.retired[i] != want[i] {
			t.Errorf("retired[%d] = %d, want %d", i, provider.retired[i], want[i])
		}
	}
}
