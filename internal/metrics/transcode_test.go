package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTranscodeFrames(t *testing.T) {
	before := testutil.ToFloat64(transcodeFrames.WithLabelValues(FrameDuplicated))
	AddTranscodeFrames(FrameDuplicated, 3)
	AddTranscodeFrames(FrameDuplicated, 0)
	AddTranscodeFrames(FrameDuplicated, -1)
	if got := testutil.ToFloat64(transcodeFrames.WithLabelValues(FrameDuplicated)) - before; got != 3 {
		t.Errorf("duplicated delta = %v, want 3", got)
	}
}

func TestLastEncode(t *testing.T) {
	SetLastEncode(EncodeStats{Samples: 10, Frames: 12, Duplicated: 2, Speed: 1.5})

	got := LastEncode()
	if got == nil || got.Frames != 12 || got.Duplicated != 2 {
		t.Fatalf("LastEncode() = %+v", got)
	}
	if speed := testutil.ToFloat64(transcodeSpeed); speed != 1.5 {
		t.Errorf("processing_speed = %v, want 1.5", speed)
	}

	// The returned value is a copy.
	got.Frames = 0
	if LastEncode().Frames != 12 {
		t.Error("LastEncode() should return a copy")
	}
}

func TestLastEncodeConcurrentAccess(t *testing.T) {
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(2)
		go func(n int64) {
			defer wg.Done()
			SetLastEncode(EncodeStats{Samples: n})
		}(int64(i))
		go func() {
			defer wg.Done()
			_ = LastEncode()
		}()
	}
	wg.Wait()
}
