// Package transcode defines the contract between a frame producer and an
// encoder that pulls timestamped samples from it, plus an ffmpeg-backed
// implementation.
package transcode

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/smazurov/screenrec/internal/gpu"
)

// StreamDescriptor describes the uncompressed video a MediaSource produces.
type StreamDescriptor struct {
	Size   gpu.Size
	Format gpu.PixelFormat
}

// Profile is the requested encoded output.
type Profile struct {
	Size      gpu.Size `json:"size"`
	Bitrate   int      `json:"bitrate"`
	FrameRate int      `json:"frame_rate"`
	Container string   `json:"container"`
}

// Sample is one timestamped frame handed to the transcoder. The surface
// stays valid until Release.
type Sample struct {
	Timestamp time.Duration
	Surface   gpu.Texture
	Size      gpu.Size

	once    sync.Once
	release func()
}

// NewSample creates a sample whose release callback runs once.
func NewSample(ts time.Duration, surface gpu.Texture, size gpu.Size, release func()) *Sample {
	return &Sample{Timestamp: ts, Surface: surface, Size: size, release: release}
}

// Release returns the sample's surface to its producer.
func (s *Sample) Release() {
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

// MediaSource is pulled by a transcoder on its own goroutine.
type MediaSource interface {
	Descriptor() StreamDescriptor
	// Starting blocks for the first frame and returns its timestamp. It
	// reports false when the stream ended before any frame arrived.
	Starting() (time.Duration, bool)
	// SampleRequested blocks for the next sample. A nil sample ends the stream.
	SampleRequested() *Sample
}

// Transcoder prepares encode jobs.
type Transcoder interface {
	Prepare(ctx context.Context, src MediaSource, out io.Writer, profile Profile) (Job, error)
}

// Job is a prepared encode.
type Job interface {
	// Run pulls samples until end of stream and finishes the output.
	Run(ctx context.Context) error
}

// SampleFunc consumes one sample. The sample is released after it returns.
type SampleFunc func(s *Sample, start time.Duration) error

// Pump pulls samples from src into fn until the stream ends, fn fails or
// ctx is done. It returns the number of samples consumed.
func Pump(ctx context.Context, src MediaSource, fn SampleFunc) (int, error) {
	start, ok := src.Starting()
	if !ok {
		return 0, nil
	}

	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		s := src.SampleRequested()
		if s == nil {
			return n, nil
		}
		err := fn(s, start)
		s.Release()
		if err != nil {
			return n, err
		}
		n++
	}
}
