package encoder

import "github.com/smazurov/screenrec/internal/gpu"

// Resolutions are the preset output sizes.
var Resolutions = []gpu.Size{
	{Width: 1280, Height: 720},
	{Width: 1920, Height: 1080},
	{Width: 3840, Height: 2160},
	{Width: 7680, Height: 4320},
}

// Bitrates are the preset output bitrates in bits per second.
var Bitrates = []int{
	9_000_000,
	18_000_000,
	36_000_000,
	72_000_000,
}

// FrameRates are the preset output frame rates.
var FrameRates = []int{24, 30, 60}

// Default recording parameters.
const (
	DefaultBitrate   = 18_000_000
	DefaultFrameRate = 60
)

// Options are the parameters of one encode.
type Options struct {
	Width         int  `json:"width" toml:"width"`
	Height        int  `json:"height" toml:"height"`
	Bitrate       int  `json:"bitrate" toml:"bitrate"`
	FrameRate     int  `json:"frame_rate" toml:"frame_rate"`
	IncludeCursor bool `json:"include_cursor" toml:"include_cursor"`
}

// DefaultOptions records at the target's native size.
func DefaultOptions() Options {
	return Options{
		Bitrate:       DefaultBitrate,
		FrameRate:     DefaultFrameRate,
		IncludeCursor: true,
	}
}

// EnsureEven rounds n up to the next even number.
func EnsureEven(n int) int {
	if n%2 != 0 {
		return n + 1
	}
	return n
}

// OutputSize resolves the encoded size. A zero width or height selects the
// native size.
func (o Options) OutputSize(native gpu.Size) gpu.Size {
	size := gpu.Size{Width: o.Width, Height: o.Height}
	if size.Width == 0 || size.Height == 0 {
		size = native
	}
	return gpu.Size{Width: EnsureEven(size.Width), Height: EnsureEven(size.Height)}
}

// resolutionIndex returns the preset index of size, or -1.
func resolutionIndex(size gpu.Size) int {
	for i, r := range Resolutions {
		if r.Equal(size) {
			return i
		}
	}
	return -1
}
