// Package session coordinates target selection, the live preview and
// recordings the way an interactive recorder front end would.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/screenrec/internal/capture"
	"github.com/smazurov/screenrec/internal/encoder"
	"github.com/smazurov/screenrec/internal/events"
	"github.com/smazurov/screenrec/internal/gpu"
	"github.com/smazurov/screenrec/internal/lifecycle"
	"github.com/smazurov/screenrec/internal/logging"
	"github.com/smazurov/screenrec/internal/preview"
	"github.com/smazurov/screenrec/internal/settings"
	"github.com/smazurov/screenrec/internal/surface"
	"github.com/smazurov/screenrec/internal/transcode"
)

// Session errors.
var (
	ErrNoTarget        = errors.New("no capture target selected")
	ErrRecordingActive = errors.New("a recording is already in progress")
)

// tempNameLayout names temporary recordings, e.g. 20250127-1030-00.mp4.
const tempNameLayout = "20060102-1504-05"

// Config wires a Controller to its collaborators.
type Config struct {
	Device     *gpu.Device
	Provider   capture.Provider
	Transcoder transcode.Transcoder
	Settings   *settings.Store
	Bus        *events.Bus
	TempDir    string
	Now        func() time.Time
}

// Controller owns the selected target, its preview and at most one recording.
type Controller struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	target    capture.Target
	preview   *preview.Preview
	recording *Recording
	cursor    *bool
	closed    bool
}

// New creates a controller. Settings and Bus are optional.
func New(cfg Config) *Controller {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Settings == nil {
		cfg.Settings = settings.NewStore(filepath.Join(cfg.TempDir, "screenrec-settings.toml"))
	}
	return &Controller{
		cfg:    cfg,
		logger: logging.GetLogger("session"),
	}
}

// Settings returns the preference store.
func (c *Controller) Settings() *settings.Store {
	return c.cfg.Settings
}

// UpdateSettings saves new default recording settings and announces them.
func (c *Controller) UpdateSettings(s settings.Settings) error {
	if err := c.cfg.Settings.Save(s); err != nil {
		return err
	}
	c.logger.Info("Recording settings updated", "path", c.cfg.Settings.Path())
	c.publishSettings(s)
	return nil
}

// SelectTarget previews target, replacing any previous preview.
func (c *Controller) SelectTarget(target capture.Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeLocked() {
		return ErrRecordingActive
	}
	c.stopPreviewLocked()
	c.target = target

	if err := c.startPreviewLocked(); err != nil {
		c.target = nil
		return err
	}

	size := target.Size()
	c.publish(events.TargetSelectedEvent{
		TargetID:    target.ID(),
		DisplayName: target.DisplayName(),
		Width:       size.Width,
		Height:      size.Height,
		Timestamp:   c.timestamp(),
	})
	c.logger.Info("Capture target selected", "target", target.DisplayName(), "id", target.ID(), "size", size.String())
	return nil
}

// ClearTarget stops the preview and forgets the target.
func (c *Controller) ClearTarget() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeLocked() {
		return ErrRecordingActive
	}
	if c.target == nil {
		return nil
	}
	id := c.target.ID()
	c.stopPreviewLocked()
	c.target = nil

	c.publish(events.TargetClearedEvent{TargetID: id, Timestamp: c.timestamp()})
	c.logger.Info("Capture target cleared", "id", id)
	return nil
}

// Target returns the selected target, or nil.
func (c *Controller) Target() capture.Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// Preview returns the live preview, or nil while recording or without a target.
func (c *Controller) Preview() *preview.Preview {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.livePreviewLocked()
}

// livePreviewLocked returns the preview unless it has closed itself, for
// example because the target went away.
func (c *Controller) livePreviewLocked() *preview.Preview {
	if c.preview == nil {
		return nil
	}
	select {
	case <-c.preview.Done():
		return nil
	default:
		return c.preview
	}
}

// Composition returns what the user should currently see: the recording's
// preview while recording, the live preview otherwise.
func (c *Controller) Composition() *surface.Composition {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeLocked() && c.recording.composition != nil {
		return c.recording.composition
	}
	if p := c.livePreviewLocked(); p != nil {
		return p.Composition()
	}
	return nil
}

// Recording returns the current or most recent recording, or nil.
func (c *Controller) Recording() *Recording {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// SetCursorCaptureEnabled overrides cursor capture for the live preview and
// later recordings. It is driven by configuration reloads.
func (c *Controller) SetCursorCaptureEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor = &enabled
	if c.preview != nil {
		c.preview.SetCursorCaptureEnabled(enabled)
	}
}

// StartRecording records the selected target with opts, or with the saved
// settings when opts is nil. The preview stops while recording and restarts
// afterwards. Cancelling ctx stops the recording.
func (c *Controller) StartRecording(ctx context.Context, opts *encoder.Options) (*Recording, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeLocked() {
		return nil, ErrRecordingActive
	}
	if c.target == nil {
		return nil, ErrNoTarget
	}

	options := c.cfg.Settings.Get().Options()
	if opts != nil {
		options = *opts
		if err := c.cfg.Settings.Save(settings.FromOptions(options)); err != nil {
			c.logger.Warn("Failed to save recording settings", "error", err)
		} else {
			c.publishSettings(settings.FromOptions(options))
		}
	}
	if c.cursor != nil {
		options.IncludeCursor = *c.cursor
	}

	if err := os.MkdirAll(c.cfg.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	path := filepath.Join(c.cfg.TempDir, c.cfg.Now().Format(tempNameLayout)+".mp4")
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	// Capture ownership moves to the encoder.
	c.stopPreviewLocked()

	target := c.target
	enc := encoder.New(c.cfg.Device, c.cfg.Provider, target, c.cfg.Transcoder)
	comp, err := enc.CreatePreviewSurface()
	if err != nil {
		c.logger.Warn("Recording preview unavailable", "error", err)
	}

	r := &Recording{
		ctrl:        c,
		enc:         enc,
		file:        file,
		path:        path,
		target:      target,
		opts:        options,
		started:     c.cfg.Now(),
		composition: comp,
		done:        make(chan struct{}),
	}
	c.recording = r

	c.publish(events.RecordingStartedEvent{
		TargetID:  target.ID(),
		TempPath:  path,
		Width:     options.Width,
		Height:    options.Height,
		Bitrate:   options.Bitrate,
		FrameRate: options.FrameRate,
		Cursor:    options.IncludeCursor,
		Timestamp: c.timestamp(),
	})

	go r.run(ctx)
	return r, nil
}

// StopRecording stops the active recording, if any.
func (c *Controller) StopRecording() *Recording {
	c.mu.Lock()
	r := c.recording
	active := c.activeLocked()
	c.mu.Unlock()

	if !active {
		return nil
	}
	r.Stop()
	return r
}

// Close stops any recording, waits for it and closes the preview. No
// preview is started after Close.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	if r := c.StopRecording(); r != nil {
		r.Wait()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopPreviewLocked()
}

// finished runs on the recording goroutine once the encode returned and
// before the recording's Done channel is closed.
func (c *Controller) finished(r *Recording, res Result) {
	c.publish(events.RecordingFinishedEvent{
		TargetID:  r.target.ID(),
		State:     string(res.State),
		TempPath:  res.TempPath,
		Samples:   res.Samples,
		Message:   res.Message,
		Timestamp: c.timestamp(),
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.recording != r || c.target != r.target || c.preview != nil {
		return
	}
	if err := c.startPreviewLocked(); err != nil {
		c.logger.Warn("Failed to restart preview after recording", "target", r.target.DisplayName(), "error", err)
	}
}

func (c *Controller) activeLocked() bool {
	return c.recording != nil && !c.recording.Finished()
}

func (c *Controller) startPreviewLocked() error {
	cursor := c.cfg.Settings.Get().IncludeCursor
	if c.cursor != nil {
		cursor = *c.cursor
	}

	p, err := preview.New(c.cfg.Device, c.cfg.Provider, c.target, preview.Options{IncludeCursor: cursor})
	if err != nil {
		return fmt.Errorf("create preview: %w", err)
	}
	id := c.target.ID()
	p.OnStateChange(func(from, to lifecycle.State) {
		c.publish(events.PreviewStateChangedEvent{
			TargetID:  id,
			From:      string(from),
			To:        string(to),
			Timestamp: c.timestamp(),
		})
	})
	if err := p.Start(); err != nil {
		p.Close()
		return fmt.Errorf("start preview: %w", err)
	}
	c.preview = p
	go c.forgetPreview(p)
	return nil
}

// forgetPreview drops p once it closes, whoever closed it.
func (c *Controller) forgetPreview(p *preview.Preview) {
	<-p.Done()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.preview == p {
		c.preview = nil
		c.logger.Info("Preview ended", "target", p.Target().DisplayName())
	}
}

func (c *Controller) stopPreviewLocked() {
	if c.preview == nil {
		return
	}
	c.preview.Close()
	c.preview = nil
}

func (c *Controller) publishSettings(s settings.Settings) {
	c.publish(events.SettingsChangedEvent{
		Width:     s.Width,
		Height:    s.Height,
		Bitrate:   s.Bitrate,
		FrameRate: s.FrameRate,
		Cursor:    s.IncludeCursor,
		Timestamp: c.timestamp(),
	})
}

func (c *Controller) publish(ev events.Event) {
	if c.cfg.Bus != nil {
		c.cfg.Bus.Publish(ev)
	}
}

func (c *Controller) timestamp() string {
	return c.cfg.Now().Format(time.RFC3339)
}

// Recording is one encode of the selected target into a temporary file.
type Recording struct {
	ctrl        *Controller
	enc         *encoder.Encoder
	file        *os.File
	path        string
	target      capture.Target
	opts        encoder.Options
	started     time.Time
	composition *surface.Composition

	stopped  atomic.Bool
	finished atomic.Bool
	done     chan struct{}
	result   Result
}

// TempPath returns the temporary output file.
func (r *Recording) TempPath() string { return r.path }

// Target returns the recorded target.
func (r *Recording) Target() capture.Target { return r.target }

// Options returns the options being recorded with.
func (r *Recording) Options() encoder.Options { return r.opts }

// StartedAt returns when the recording began.
func (r *Recording) StartedAt() time.Time { return r.started }

// Status returns the encoder state.
func (r *Recording) Status() encoder.Status { return r.enc.Status() }

// Samples returns the samples encoded so far.
func (r *Recording) Samples() int64 { return r.enc.Samples() }

// Composition returns the recording's preview, or nil.
func (r *Recording) Composition() *surface.Composition { return r.composition }

// Finished reports whether Wait would return immediately.
func (r *Recording) Finished() bool { return r.finished.Load() }

// Done is closed when the recording has ended.
func (r *Recording) Done() <-chan struct{} { return r.done }

// Stop ends the recording. The file written so far is kept.
func (r *Recording) Stop() {
	r.stopped.Store(true)
	r.enc.Dispose()
}

// Wait blocks until the recording ends and returns its result.
func (r *Recording) Wait() Result {
	<-r.done
	return r.result
}

func (r *Recording) run(ctx context.Context) {
	err := r.enc.Encode(ctx, r.file, r.opts)
	if closeErr := r.file.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("failed to close output: %w", closeErr)
	}
	if ctx.Err() != nil {
		r.stopped.Store(true)
	}

	res := Result{
		TempPath: r.path,
		Samples:  r.enc.Samples(),
		Duration: r.ctrl.cfg.Now().Sub(r.started),
		Err:      err,
	}
	switch {
	case err != nil:
		res.State = StateFailed
		res.Message = MessageForError(err)
		r.ctrl.logger.Error("Recording failed", "path", r.path, "error", err, "message", res.Message)
	case r.stopped.Load():
		res.State = StateInterrupted
		r.ctrl.logger.Info("Recording stopped", "path", r.path, "samples", res.Samples)
	default:
		res.State = StateDone
		r.ctrl.logger.Info("Recording finished", "path", r.path, "samples", res.Samples)
	}

	r.result = res
	r.finished.Store(true)
	r.ctrl.finished(r, res)
	close(r.done)
}
