package capture

import (
	"fmt"
	"image"
	"strconv"
	"time"

	"github.com/kbinani/screenshot"

	"github.com/smazurov/screenrec/internal/gpu"
)

// DefaultScreenInterval is the screen polling period, about 30 frames per second.
const DefaultScreenInterval = 33 * time.Millisecond

// Display is a monitor that can be captured.
type Display struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Primary bool   `json:"primary"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
}

// ID implements Target.
func (d *Display) ID() string { return "display:" + strconv.Itoa(d.Index) }

// DisplayName implements Target.
func (d *Display) DisplayName() string { return d.Name }

// Size implements Target. The size is re-read so resolution changes are
// picked up mid-stream.
func (d *Display) Size() gpu.Size {
	if d.Index < screenshot.NumActiveDisplays() {
		b := screenshot.GetDisplayBounds(d.Index)
		if !b.Empty() {
			return gpu.Size{Width: b.Dx(), Height: b.Dy()}
		}
	}
	return gpu.Size{Width: d.Width, Height: d.Height}
}

func (d *Display) bounds() (image.Rectangle, error) {
	if d.Index >= screenshot.NumActiveDisplays() {
		return image.Rectangle{}, ErrTargetClosed
	}
	return screenshot.GetDisplayBounds(d.Index), nil
}

// ListDisplays enumerates the active displays. Display 0 is the primary.
func ListDisplays() []*Display {
	n := screenshot.NumActiveDisplays()
	displays := make([]*Display, 0, n)
	for i := range n {
		b := screenshot.GetDisplayBounds(i)
		displays = append(displays, &Display{
			Index:   i,
			Name:    fmt.Sprintf("Display %d", i+1),
			Primary: i == 0,
			Width:   b.Dx(),
			Height:  b.Dy(),
			X:       b.Min.X,
			Y:       b.Min.Y,
		})
	}
	return displays
}

// FindDisplay returns the display with the given index.
func FindDisplay(index int) (*Display, error) {
	for _, d := range ListDisplays() {
		if d.Index == index {
			return d, nil
		}
	}
	return nil, fmt.Errorf("display %d not found", index)
}

// ScreenProvider captures Displays by polling the screen.
type ScreenProvider struct {
	Interval time.Duration
}

// NewScreenProvider creates a screen provider polling at interval.
func NewScreenProvider(interval time.Duration) *ScreenProvider {
	if interval <= 0 {
		interval = DefaultScreenInterval
	}
	return &ScreenProvider{Interval: interval}
}

// CreateFramePool implements Provider.
func (p *ScreenProvider) CreateFramePool(device *gpu.Device, format gpu.PixelFormat, count int, size gpu.Size) (FramePool, error) {
	return newRingPool(device, format, count, size, func(pool *RingPool, target Target) (Session, error) {
		d, ok := target.(*Display)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrUnsupportedTarget, target)
		}
		return newRingSession(pool, p.Interval, d.grab), nil
	})
}

// grab captures the display into dst, converting RGBA to BGRA.
func (d *Display) grab(dst gpu.Texture, _ bool) (gpu.Size, error) {
	bounds, err := d.bounds()
	if err != nil {
		return gpu.Size{}, err
	}
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return gpu.Size{}, fmt.Errorf("capture display %d: %w", d.Index, err)
	}

	m, ok := dst.(gpu.Mappable)
	if !ok {
		return gpu.Size{}, fmt.Errorf("pool surface is not mappable")
	}
	pix, stride, err := m.Map()
	if err != nil {
		return gpu.Size{}, err
	}

	content := gpu.Size{Width: bounds.Dx(), Height: bounds.Dy()}
	copyRGBAToBGRA(pix, stride, dst.Size(), img)
	return content, nil
}

func copyRGBAToBGRA(dst []byte, stride int, dstSize gpu.Size, src *image.RGBA) {
	w := min(dstSize.Width, src.Rect.Dx())
	h := min(dstSize.Height, src.Rect.Dy())
	for y := range h {
		in := src.Pix[y*src.Stride:]
		out := dst[y*stride:]
		for x := range w {
			i := x * 4
			out[i+0] = in[i+2]
			out[i+1] = in[i+1]
			out[i+2] = in[i+0]
			out[i+3] = in[i+3]
		}
	}
}
