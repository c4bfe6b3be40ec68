package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/smazurov/screenrec/internal/gpu"
)

const cursorBox = 16

// SyntheticProvider captures SyntheticTargets. With a zero Interval frames
// are only produced by explicit Emit calls.
type SyntheticProvider struct {
	Interval time.Duration
}

// NewSyntheticProvider creates a provider that produces frames every interval.
func NewSyntheticProvider(interval time.Duration) *SyntheticProvider {
	return &SyntheticProvider{Interval: interval}
}

// CreateFramePool implements Provider.
func (p *SyntheticProvider) CreateFramePool(device *gpu.Device, format gpu.PixelFormat, count int, size gpu.Size) (FramePool, error) {
	return newRingPool(device, format, count, size, func(pool *RingPool, target Target) (Session, error) {
		st, ok := target.(*SyntheticTarget)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrUnsupportedTarget, target)
		}
		return st.attach(pool, p.Interval), nil
	})
}

// SyntheticTarget renders a moving test pattern. Its size, failures and
// closure are driven by the caller.
type SyntheticTarget struct {
	id   string
	name string

	mu        sync.Mutex
	size      gpu.Size
	closed    bool
	failAfter int
	produced  int
	sessions  map[*ringSession]struct{}
}

// NewSyntheticTarget creates a test-pattern target.
func NewSyntheticTarget(name string, size gpu.Size) *SyntheticTarget {
	return &SyntheticTarget{
		id:        "test:" + name,
		name:      name,
		size:      size,
		failAfter: -1,
		sessions:  make(map[*ringSession]struct{}),
	}
}

// ID implements Target.
func (t *SyntheticTarget) ID() string { return t.id }

// DisplayName implements Target.
func (t *SyntheticTarget) DisplayName() string { return t.name }

// Size implements Target.
func (t *SyntheticTarget) Size() gpu.Size {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

// SetSize changes the content size of subsequent frames.
func (t *SyntheticTarget) SetSize(size gpu.Size) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.size = size
}

// FailAfter makes the target report a lost device after n more frames.
func (t *SyntheticTarget) FailAfter(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failAfter = t.produced + n
}

// Produced returns the number of frames rendered so far.
func (t *SyntheticTarget) Produced() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.produced
}

// CloseTarget simulates the target going away, for example a closed window.
func (t *SyntheticTarget) CloseTarget() {
	t.mu.Lock()
	t.closed = true
	sessions := t.activeLocked()
	t.mu.Unlock()

	for _, s := range sessions {
		s.pool.Fail(ErrTargetClosed)
	}
}

// Emit produces one frame with timestamp ts on every capturing session.
func (t *SyntheticTarget) Emit(ts time.Duration) error {
	t.mu.Lock()
	sessions := t.activeLocked()
	t.mu.Unlock()

	for _, s := range sessions {
		if err := s.emit(ts); err != nil {
			return err
		}
	}
	return nil
}

func (t *SyntheticTarget) activeLocked() []*ringSession {
	sessions := make([]*ringSession, 0, len(t.sessions))
	for s := range t.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

func (t *SyntheticTarget) attach(pool *RingPool, interval time.Duration) *ringSession {
	s := newRingSession(pool, interval, t.render)
	s.onClose = func() {
		t.mu.Lock()
		delete(t.sessions, s)
		t.mu.Unlock()
	}

	t.mu.Lock()
	t.sessions[s] = struct{}{}
	t.mu.Unlock()
	return s
}

func (t *SyntheticTarget) render(dst gpu.Texture, cursor bool) (gpu.Size, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return gpu.Size{}, ErrTargetClosed
	}
	if t.failAfter >= 0 && t.produced >= t.failAfter {
		t.mu.Unlock()
		return gpu.Size{}, gpu.ErrDeviceLost
	}
	index := t.produced
	t.produced++
	size := t.size
	t.mu.Unlock()

	if err := drawPattern(dst, size, index, cursor); err != nil {
		return gpu.Size{}, err
	}
	return size, nil
}

// drawPattern fills the overlap of dst and content with vertical color bars
// that shift one bar per frame.
func drawPattern(dst gpu.Texture, content gpu.Size, index int, cursor bool) error {
	m, ok := dst.(gpu.Mappable)
	if !ok {
		return fmt.Errorf("pool surface is not mappable")
	}
	pix, stride, err := m.Map()
	if err != nil {
		return err
	}

	bars := [...][4]byte{
		{0xff, 0xff, 0xff, 0xff},
		{0x00, 0xff, 0xff, 0xff},
		{0xff, 0xff, 0x00, 0xff},
		{0x00, 0xff, 0x00, 0xff},
		{0xff, 0x00, 0xff, 0xff},
		{0x00, 0x00, 0xff, 0xff},
		{0xff, 0x00, 0x00, 0xff},
	}

	w := min(content.Width, dst.Size().Width)
	h := min(content.Height, dst.Size().Height)
	barWidth := max(w/len(bars), 1)
	for y := range h {
		row := pix[y*stride:]
		for x := range w {
			c := bars[(x/barWidth+index)%len(bars)]
			copy(row[x*4:x*4+4], c[:])
		}
	}

	if cursor && w > cursorBox && h > cursorBox {
		cx := (index * 4) % (w - cursorBox)
		cy := (index * 2) % (h - cursorBox)
		for y := cy; y < cy+cursorBox; y++ {
			row := pix[y*stride:]
			for x := cx; x < cx+cursorBox; x++ {
				copy(row[x*4:x*4+4], []byte{0x10, 0x10, 0x10, 0xff})
			}
		}
	}
	return nil
}
