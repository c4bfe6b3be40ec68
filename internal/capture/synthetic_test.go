package capture

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smazurov/screenrec/internal/gpu"
	"github.com/smazurov/screenrec/internal/metrics"
)

func startSynthetic(t *testing.T, size gpu.Size) (*Source, *SyntheticTarget) {
	t.Helper()
	device := gpu.NewSoftwareDevice()
	t.Cleanup(device.Release)

	target := NewSyntheticTarget("pattern", size)
	src := NewSource(device, NewSyntheticProvider(0), target, SourceOptions{})
	if err := src.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(src.Close)
	return src, target
}

func TestSyntheticEmitDeliversPattern(t *testing.T) {
	size := gpu.Size{Width: 64, Height: 32}
	src, target := startSynthetic(t, size)

	if err := target.Emit(5 * time.Millisecond); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	f, ok := src.WaitForNextFrame()
	if !ok {
		t.Fatal("stream ended")
	}
	defer f.Close()

	if f.Timestamp != 5*time.Millisecond {
		t.Errorf("timestamp = %v, want 5ms", f.Timestamp)
	}
	img, ok := f.Surface.(*gpu.Image)
	if !ok {
		t.Fatalf("surface type = %T, want *gpu.Image", f.Surface)
	}
	pix, _, _ := img.Map()
	if pix[0] != 0xff || pix[3] != 0xff {
		t.Errorf("first pixel = %v, want opaque white", pix[:4])
	}
}

func TestSyntheticDropsWhenPoolFull(t *testing.T) {
	src, target := startSynthetic(t, gpu.Size{Width: 8, Height: 8})
	pool := src.pool.(*RingPool)

	for i := range 5 {
		if err := target.Emit(time.Duration(i)); err != nil {
			t.Fatalf("Emit(%d) error = %v", i, err)
		}
	}
	if got := pool.Dropped(); got != 3 {
		t.Errorf("dropped = %d, want 3", got)
	}
}

// framesDropped reads screenrec_capture_frames_dropped_total for pipeline.
func framesDropped(t *testing.T, pipeline string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "screenrec_capture_frames_dropped_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "pipeline" && l.GetValue() == pipeline {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestSourceReportsPoolDropsByPipeline(t *testing.T) {
	device := gpu.NewSoftwareDevice()
	t.Cleanup(device.Release)

	target := NewSyntheticTarget("drops", gpu.Size{Width: 8, Height: 8})
	src := NewSource(device, NewSyntheticProvider(0), target, SourceOptions{Pipeline: metrics.PipelinePreview})
	if err := src.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(src.Close)

	before := framesDropped(t, metrics.PipelinePreview)
	for i := range 4 {
		if err := target.Emit(time.Duration(i)); err != nil {
			t.Fatalf("Emit(%d) error = %v", i, err)
		}
	}

	// One frame is pending, one is queued in the second slot.
	if got := src.pool.(DropReporter).Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
	if got := framesDropped(t, metrics.PipelinePreview) - before; got != 2 {
		t.Errorf("preview frames_dropped delta = %v, want 2", got)
	}
}

func TestSyntheticResizeRecreatesPool(t *testing.T) {
	src, target := startSynthetic(t, gpu.Size{Width: 16, Height: 16})
	pool := src.pool.(*RingPool)

	big := gpu.Size{Width: 32, Height: 24}
	target.SetSize(big)
	if err := target.Emit(1); err != nil {
		t.Fatal(err)
	}

	f, ok := src.WaitForNextFrame()
	if !ok {
		t.Fatal("stream ended")
	}
	if !f.ContentSize.Equal(big) {
		t.Errorf("content size = %v, want %v", f.ContentSize, big)
	}
	if got := pool.Size(); !got.Equal(gpu.Size{Width: 16, Height: 16}) {
		t.Errorf("pool size before retire = %v, want 16x16", got)
	}

	f.Close()
	if got := pool.Size(); !got.Equal(big) {
		t.Errorf("pool size after retire = %v, want %v", got, big)
	}
}

func TestSyntheticFailAfterEndsStream(t *testing.T) {
	src, target := startSynthetic(t, gpu.Size{Width: 8, Height: 8})
	target.FailAfter(2)

	delivered := 0
	for i := range 4 {
		err := target.Emit(time.Duration(i))
		if err != nil {
			if !errors.Is(err, gpu.ErrDeviceLost) {
				t.Fatalf("Emit() error = %v, want ErrDeviceLost", err)
			}
			break
		}
		f, ok := src.WaitForNextFrame()
		if !ok {
			break
		}
		delivered++
		f.Close()
	}

	if delivered != 2 {
		t.Errorf("delivered = %d, want 2", delivered)
	}
	if _, ok := src.WaitForNextFrame(); ok {
		t.Error("stream should end after device loss")
	}
}

func TestSyntheticCloseTargetEndsStream(t *testing.T) {
	src, target := startSynthetic(t, gpu.Size{Width: 8, Height: 8})

	done := make(chan bool, 1)
	go func() {
		_, ok := src.WaitForNextFrame()
		done <- ok
	}()
	target.CloseTarget()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("got a frame after the target closed")
		}
	case <-time.After(time.Second):
		t.Fatal("closing the target did not end the stream")
	}
}

func TestSyntheticTickerProducesFrames(t *testing.T) {
	device := gpu.NewSoftwareDevice()
	defer device.Release()

	target := NewSyntheticTarget("ticker", gpu.Size{Width: 8, Height: 8})
	src := NewSource(device, NewSyntheticProvider(5*time.Millisecond), target, SourceOptions{})
	if err := src.Start(); err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	var last time.Duration
	for i := range 3 {
		f, ok := src.WaitForNextFrame()
		if !ok {
			t.Fatalf("stream ended at frame %d", i)
		}
		if f.Timestamp < last {
			t.Errorf("timestamp went backwards: %v < %v", f.Timestamp, last)
		}
		last = f.Timestamp
		f.Close()
	}
}
