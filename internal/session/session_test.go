package session

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/screenrec/internal/capture"
	"github.com/smazurov/screenrec/internal/encoder"
	"github.com/smazurov/screenrec/internal/events"
	"github.com/smazurov/screenrec/internal/gpu"
	"github.com/smazurov/screenrec/internal/lifecycle"
	"github.com/smazurov/screenrec/internal/settings"
	"github.com/smazurov/screenrec/internal/transcode"
)

const testTimeout = 2 * time.Second

// fakeTranscoder writes one byte per sample and optionally fails at the end.
type fakeTranscoder struct {
	prepared chan struct{}
	consumed chan struct{}
	runErr   error

	mu      sync.Mutex
	profile transcode.Profile
}

func newFakeTranscoder() *fakeTranscoder {
	return &fakeTranscoder{
		prepared: make(chan struct{}, 1),
		consumed: make(chan struct{}, 64),
	}
}

func (f *fakeTranscoder) Prepare(_ context.Context, src transcode.MediaSource, out io.Writer, profile transcode.Profile) (transcode.Job, error) {
	f.mu.Lock()
	f.profile = profile
	f.mu.Unlock()
	f.prepared <- struct{}{}
	return &fakeJob{tr: f, src: src, out: out}, nil
}

type fakeJob struct {
	tr  *fakeTranscoder
	src transcode.MediaSource
	out io.Writer
}

func (j *fakeJob) Run(ctx context.Context) error {
	_, err := transcode.Pump(ctx, j.src, func(*transcode.Sample, time.Duration) error {
		_, werr := j.out.Write([]byte{'x'})
		j.tr.consumed <- struct{}{}
		return werr
	})
	if j.tr.runErr != nil {
		return j.tr.runErr
	}
	return err
}

type harness struct {
	ctrl   *Controller
	target *capture.SyntheticTarget
	tr     *fakeTranscoder
	device *gpu.Device
	dir    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	device := gpu.NewSoftwareDevice()
	t.Cleanup(device.Release)

	dir := t.TempDir()
	tr := newFakeTranscoder()
	ctrl := New(Config{
		Device:     device,
		Provider:   capture.NewSyntheticProvider(0),
		Transcoder: tr,
		Settings:   settings.NewStore(filepath.Join(dir, "settings.toml")),
		Bus:        events.New(),
		TempDir:    filepath.Join(dir, "tmp"),
		Now: func() time.Time {
			return time.Date(2025, 1, 27, 10, 30, 5, 0, time.Local)
		},
	})
	t.Cleanup(ctrl.Close)

	return &harness{
		ctrl:   ctrl,
		target: capture.NewSyntheticTarget("session", gpu.Size{Width: 32, Height: 16}),
		tr:     tr,
		device: device,
		dir:    dir,
	}
}

func (h *harness) start(t *testing.T, opts *encoder.Options) *Recording {
	t.Helper()
	if err := h.ctrl.SelectTarget(h.target); err != nil {
		t.Fatalf("SelectTarget() error = %v", err)
	}
	r, err := h.ctrl.StartRecording(context.Background(), opts)
	if err != nil {
		t.Fatalf("StartRecording() error = %v", err)
	}
	select {
	case <-h.tr.prepared:
	case <-time.After(testTimeout):
		t.Fatal("transcoder was never prepared")
	}
	return r
}

func (h *harness) feed(t *testing.T, n int) {
	t.Helper()
	for i := range n {
		if err := h.target.Emit(time.Duration(i) * time.Millisecond); err != nil {
			t.Fatalf("Emit() error = %v", err)
		}
		select {
		case <-h.tr.consumed:
		case <-time.After(testTimeout):
			t.Fatalf("frame %d was never consumed", i)
		}
	}
}

func wait(t *testing.T, r *Recording) Result {
	t.Helper()
	select {
	case <-r.Done():
		return r.Wait()
	case <-time.After(testTimeout):
		t.Fatal("recording did not finish")
		return Result{}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStartRecordingWithoutTarget(t *testing.T) {
	h := newHarness(t)
	if _, err := h.ctrl.StartRecording(context.Background(), nil); !errors.Is(err, ErrNoTarget) {
		t.Errorf("StartRecording() error = %v, want ErrNoTarget", err)
	}
}

func TestSelectTargetStartsPreview(t *testing.T) {
	h := newHarness(t)
	selected := make(chan events.TargetSelectedEvent, 1)
	unsub := h.ctrl.cfg.Bus.Subscribe(func(e events.TargetSelectedEvent) { selected <- e })
	defer unsub()

	if err := h.ctrl.SelectTarget(h.target); err != nil {
		t.Fatal(err)
	}
	p := h.ctrl.Preview()
	if p == nil || p.State() != lifecycle.StateStarted {
		t.Fatalf("preview not started: %v", p)
	}

	select {
	case e := <-selected:
		if e.TargetID != "test:session" || e.Width != 32 {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(testTimeout):
		t.Fatal("no TargetSelectedEvent")
	}

	if err := h.ctrl.ClearTarget(); err != nil {
		t.Fatal(err)
	}
	if h.ctrl.Preview() != nil || h.ctrl.Target() != nil {
		t.Error("ClearTarget() should drop preview and target")
	}
	if p.State() != lifecycle.StateClosed {
		t.Errorf("old preview state = %s, want closed", p.State())
	}
}

func TestRecordingCompletes(t *testing.T) {
	h := newHarness(t)
	h.target.FailAfter(5)
	r := h.start(t, nil)

	if h.ctrl.Preview() != nil {
		t.Error("preview should stop while recording")
	}
	if _, err := h.ctrl.StartRecording(context.Background(), nil); !errors.Is(err, ErrRecordingActive) {
		t.Errorf("second StartRecording() error = %v, want ErrRecordingActive", err)
	}
	if err := h.ctrl.SelectTarget(h.target); !errors.Is(err, ErrRecordingActive) {
		t.Errorf("SelectTarget() while recording error = %v, want ErrRecordingActive", err)
	}

	h.feed(t, 5)
	_ = h.target.Emit(time.Second)

	res := wait(t, r)
	if res.State != StateDone || res.Samples != 5 {
		t.Fatalf("result = %+v, want done with 5 samples", res)
	}
	if want := filepath.Join(h.dir, "tmp", "20250127-1030-05.mp4"); res.TempPath != want {
		t.Errorf("TempPath = %q, want %q", res.TempPath, want)
	}
	data, err := os.ReadFile(res.TempPath)
	if err != nil || len(data) != 5 {
		t.Errorf("temp file = %q, %v", data, err)
	}

	waitFor(t, "preview restart", func() bool { return h.ctrl.Preview() != nil })
}

func TestRecordingStopIsInterrupted(t *testing.T) {
	h := newHarness(t)
	opts := encoder.Options{Width: 1280, Height: 720, Bitrate: 9_000_000, FrameRate: 30}
	r := h.start(t, &opts)

	h.feed(t, 2)
	if got := h.ctrl.StopRecording(); got != r {
		t.Fatal("StopRecording() should return the active recording")
	}

	res := wait(t, r)
	if res.State != StateInterrupted || res.Samples != 2 {
		t.Errorf("result = %+v, want interrupted with 2 samples", res)
	}
	if r.Status() != encoder.StatusDisposed {
		t.Errorf("encoder status = %s, want disposed", r.Status())
	}

	if got := h.ctrl.Settings().Get(); got.Width != 1280 || got.FrameRate != 30 {
		t.Errorf("settings not saved: %+v", got)
	}
	h.tr.mu.Lock()
	defer h.tr.mu.Unlock()
	if !h.tr.profile.Size.Equal(gpu.Size{Width: 1280, Height: 720}) {
		t.Errorf("profile size = %v", h.tr.profile.Size)
	}
}

func TestRecordingFailureMessage(t *testing.T) {
	h := newHarness(t)
	h.tr.runErr = transcode.NewError(transcode.CodeTransformTypeNotSet, "encode", "rejected", nil)
	finished := make(chan events.RecordingFinishedEvent, 1)
	unsub := h.ctrl.cfg.Bus.Subscribe(func(e events.RecordingFinishedEvent) { finished <- e })
	defer unsub()

	r := h.start(t, nil)
	h.feed(t, 1)
	h.ctrl.StopRecording()

	res := wait(t, r)
	if res.State != StateFailed {
		t.Fatalf("State = %s, want failed", res.State)
	}
	if res.Message != unsupportedMessage {
		t.Errorf("Message = %q", res.Message)
	}

	select {
	case e := <-finished:
		if e.State != "failed" || e.Message != unsupportedMessage {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(testTimeout):
		t.Fatal("no RecordingFinishedEvent")
	}
	if err := res.Discard(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(res.TempPath); !os.IsNotExist(err) {
		t.Errorf("temp file still exists after Discard: %v", err)
	}
}

func TestMessageForCode(t *testing.T) {
	err := errors.New("boom")
	if got := MessageForCode(transcode.CodeEncodeFailed, err); got != "0x80004005 - boom" {
		t.Errorf("MessageForCode() = %q", got)
	}
	if got := MessageForError(errors.New("plain")); got != "plain" {
		t.Errorf("MessageForError() = %q", got)
	}
	if MessageForError(nil) != "" {
		t.Error("MessageForError(nil) should be empty")
	}
}

func TestResultSaveMovesFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "20250127-1030-05.mp4")
	if err := os.WriteFile(src, []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(dir, "out", "final.mp4")
	if err := (Result{TempPath: src}).Save(dest); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if data, err := os.ReadFile(dest); err != nil || string(data) != "video" {
		t.Errorf("dest = %q, %v", data, err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("temp file should be gone after Save")
	}
	if err := (Result{}).Save(dest); err == nil {
		t.Error("Save() without a temp file should fail")
	}
}

func TestUpdateSettingsPersists(t *testing.T) {
	h := newHarness(t)

	want := settings.Settings{Width: 1920, Height: 1080, Bitrate: 18_000_000, FrameRate: 60, IncludeCursor: true}
	if err := h.ctrl.UpdateSettings(want); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}

	reloaded := settings.NewStore(h.ctrl.Settings().Path())
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := reloaded.Get(); got != want {
		t.Errorf("reloaded settings = %+v, want %+v", got, want)
	}

	if err := h.ctrl.UpdateSettings(settings.Settings{FrameRate: -1}); err == nil {
		t.Error("UpdateSettings() should reject a negative frame rate")
	}
	if got := h.ctrl.Settings().Get(); got != want {
		t.Errorf("rejected update changed settings to %+v", got)
	}
}

func TestCloseDuringRecordingLeavesNoPreview(t *testing.T) {
	h := newHarness(t)
	r := h.start(t, nil)
	h.feed(t, 2)

	h.ctrl.Close()

	select {
	case <-r.Done():
	default:
		t.Fatal("Close() returned before the recording finished")
	}
	h.ctrl.mu.Lock()
	p := h.ctrl.preview
	h.ctrl.mu.Unlock()
	if p != nil {
		t.Fatalf("preview restarted after Close(), state %s", p.State())
	}
	waitFor(t, "device release", func() bool { return h.device.Refs() == 1 })
}

func TestPreviewDroppedWhenTargetCloses(t *testing.T) {
	h := newHarness(t)
	if err := h.ctrl.SelectTarget(h.target); err != nil {
		t.Fatal(err)
	}
	p := h.ctrl.Preview()
	if p == nil {
		t.Fatal("preview not started")
	}

	h.target.CloseTarget()
	select {
	case <-p.Done():
	case <-time.After(testTimeout):
		t.Fatal("preview did not close with its target")
	}

	if got := h.ctrl.Preview(); got != nil {
		t.Errorf("Preview() = %v after the target closed, want nil", got)
	}
	if h.ctrl.Composition() != nil {
		t.Error("Composition() should be nil after the target closed")
	}
	waitFor(t, "preview to be forgotten", func() bool {
		h.ctrl.mu.Lock()
		defer h.ctrl.mu.Unlock()
		return h.ctrl.preview == nil
	})
	if h.ctrl.Target() == nil {
		t.Error("target selection should survive the preview")
	}
}
