package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transcodeFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "screenrec",
		Subsystem: "transcode",
		Name:      "frames_total",
		Help:      "Constant-rate frames handled by the transcoder by outcome",
	}, []string{"kind"})

	transcodeSpeed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "screenrec",
		Subsystem: "transcode",
		Name:      "processing_speed",
		Help:      "Encoded media time per wall-clock second of the last encode",
	})

	lastEncode   *EncodeStats
	lastEncodeMu sync.RWMutex
)

// Frame outcome label values.
const (
	FrameWritten    = "written"
	FrameDuplicated = "duplicated"
	FrameSkipped    = "skipped"
)

// EncodeStats summarizes one finished encode.
type EncodeStats struct {
	Samples    int64   `json:"samples"`
	Frames     int64   `json:"frames"`
	Duplicated int64   `json:"duplicated"`
	Skipped    int64   `json:"skipped"`
	Speed      float64 `json:"speed"`
	ExitCode   int     `json:"exit_code"`
}

// AddTranscodeFrames counts n frames with the given outcome.
func AddTranscodeFrames(kind string, n int64) {
	if n <= 0 {
		return
	}
	transcodeFrames.WithLabelValues(kind).Add(float64(n))
}

// SetLastEncode records the summary of the encode that just finished.
func SetLastEncode(stats EncodeStats) {
	transcodeSpeed.Set(stats.Speed)

	lastEncodeMu.Lock()
	defer lastEncodeMu.Unlock()
	dup := stats
	lastEncode = &dup
}

// LastEncode returns the summary of the most recent encode, or nil.
func LastEncode() *EncodeStats {
	lastEncodeMu.RLock()
	defer lastEncodeMu.RUnlock()
	if lastEncode == nil {
		return nil
	}
	dup := *lastEncode
	return &dup
}
