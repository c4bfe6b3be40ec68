package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/screenrec/internal/gpu"
	"github.com/smazurov/screenrec/internal/metrics"
)

// RenderFunc writes one frame into dst and returns the content size it wrote.
type RenderFunc func(dst gpu.Texture, cursor bool) (gpu.Size, error)

type sessionFactory func(pool *RingPool, target Target) (Session, error)

type poolSlot struct {
	tex  gpu.Texture
	busy bool
}

type queuedFrame struct {
	slot    *poolSlot
	content gpu.Size
	ts      time.Duration
}

// RingPool is a fixed ring of device textures. Producers write into a free
// slot and queue it; when every slot is queued or held the frame is dropped.
type RingPool struct {
	device     *gpu.Device
	newSession sessionFactory

	mu         sync.Mutex
	format     gpu.PixelFormat
	size       gpu.Size
	slots      []*poolSlot
	queue      []queuedFrame
	generation int
	arrived    func()
	closed     bool
	fault      error
	pipeline   string
	dropped    atomic.Int64
}

func newRingPool(device *gpu.Device, format gpu.PixelFormat, count int, size gpu.Size, factory sessionFactory) (*RingPool, error) {
	p := &RingPool{device: device, newSession: factory, pipeline: metrics.PipelineEncode}
	if err := p.Recreate(format, count, size); err != nil {
		return nil, err
	}
	return p, nil
}

// TryGetNextFrame implements FramePool. Frames queued before a fault are
// still delivered.
func (p *RingPool) TryGetNextFrame() (*Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 {
		if p.fault != nil {
			return nil, p.fault
		}
		if p.closed {
			return nil, gpu.ErrDisposed
		}
		return nil, nil
	}

	q := p.queue[0]
	p.queue = p.queue[1:]
	gen := p.generation
	return NewFrame(q.slot.tex, q.content, q.ts, func() { p.releaseSlot(q.slot, gen) }), nil
}

// Recreate implements FramePool.
func (p *RingPool) Recreate(format gpu.PixelFormat, count int, size gpu.Size) error {
	if count <= 0 {
		count = DefaultBufferCount
	}

	slots := make([]*poolSlot, 0, count)
	for range count {
		tex, err := p.device.CreateTexture(size, format)
		if err != nil {
			return fmt.Errorf("allocate pool surface: %w", err)
		}
		slots = append(slots, &poolSlot{tex: tex})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return gpu.ErrDisposed
	}
	p.generation++
	p.format = format
	p.size = size
	p.slots = slots
	p.queue = nil
	return nil
}

// SetFrameArrived implements FramePool.
func (p *RingPool) SetFrameArrived(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.arrived = fn
}

// CreateSession implements FramePool.
func (p *RingPool) CreateSession(target Target) (Session, error) {
	return p.newSession(p, target)
}

// Close implements FramePool.
func (p *RingPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.queue = nil
	p.slots = nil
	return nil
}

// Size returns the current surface size.
func (p *RingPool) Size() gpu.Size {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// SetPipeline implements DropReporter.
func (p *RingPool) SetPipeline(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pipeline = name
}

// Dropped implements DropReporter. It counts frames dropped because no slot
// was free.
func (p *RingPool) Dropped() int64 {
	return p.dropped.Load()
}

// Produce renders one frame with timestamp ts and queues it. The arrival
// callback runs outside the pool lock.
func (p *RingPool) Produce(ts time.Duration, cursor bool, render RenderFunc) error {
	p.mu.Lock()
	if p.fault != nil {
		p.mu.Unlock()
		return p.fault
	}
	if p.closed {
		p.mu.Unlock()
		return gpu.ErrDisposed
	}
	var slot *poolSlot
	for _, s := range p.slots {
		if !s.busy {
			slot = s
			break
		}
	}
	if slot == nil {
		pipeline := p.pipeline
		p.mu.Unlock()
		p.dropped.Add(1)
		metrics.IncFramesDropped(pipeline)
		return nil
	}
	slot.busy = true
	gen := p.generation
	p.mu.Unlock()

	content, err := render(slot.tex, cursor)

	p.mu.Lock()
	if gen != p.generation || p.closed {
		p.mu.Unlock()
		return nil
	}
	if err != nil {
		slot.busy = false
		p.mu.Unlock()
		if errors.Is(err, gpu.ErrDeviceLost) || errors.Is(err, ErrTargetClosed) {
			p.Fail(err)
		}
		return err
	}
	p.queue = append(p.queue, queuedFrame{slot: slot, content: content, ts: ts})
	fn := p.arrived
	p.mu.Unlock()

	if fn != nil {
		fn()
	}
	return nil
}

// Fail records a permanent fault and notifies the consumer so it observes
// the error on its next pull.
func (p *RingPool) Fail(err error) {
	p.mu.Lock()
	if p.fault != nil || p.closed {
		p.mu.Unlock()
		return
	}
	p.fault = err
	fn := p.arrived
	p.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (p *RingPool) releaseSlot(slot *poolSlot, gen int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen == p.generation {
		slot.busy = false
	}
}

// ringSession drives a RingPool from a ticker or from explicit Emit calls.
type ringSession struct {
	pool     *RingPool
	render   RenderFunc
	interval time.Duration
	cursor   atomic.Bool

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	onClose func()
}

func newRingSession(pool *RingPool, interval time.Duration, render RenderFunc) *ringSession {
	return &ringSession{pool: pool, render: render, interval: interval}
}

func (s *ringSession) StartCapture() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSourceClosed
	}
	if s.started {
		return nil
	}
	s.started = true
	if s.interval <= 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx)
	return nil
}

func (s *ringSession) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.pool.Produce(SystemRelativeTime(), s.cursor.Load(), s.render)
			if errors.Is(err, gpu.ErrDeviceLost) || errors.Is(err, ErrTargetClosed) || errors.Is(err, gpu.ErrDisposed) {
				return
			}
		}
	}
}

// emit produces one frame if the session is capturing.
func (s *ringSession) emit(ts time.Duration) error {
	s.mu.Lock()
	active := s.started && !s.closed
	s.mu.Unlock()
	if !active {
		return nil
	}
	return s.pool.Produce(ts, s.cursor.Load(), s.render)
}

func (s *ringSession) SetCursorCaptureEnabled(enabled bool) {
	s.cursor.Store(enabled)
}

// Close stops production without waiting for the capture goroutine. The
// goroutine may be inside the arrival callback of the closing consumer.
func (s *ringSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	onClose := s.onClose
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if onClose != nil {
		onClose()
	}
	return nil
}
