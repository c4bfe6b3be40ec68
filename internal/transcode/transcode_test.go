package transcode

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/screenrec/internal/ffmpeg"
	"github.com/smazurov/screenrec/internal/gpu"
	"github.com/smazurov/screenrec/internal/metrics"
)

// scriptedSource replays fixed timestamps on a solid-color surface.
type scriptedSource struct {
	size     gpu.Size
	stamps   []time.Duration
	next     int
	released int
	surface  *gpu.Image
}

func newScriptedSource(t *testing.T, size gpu.Size, stamps ...time.Duration) *scriptedSource {
	t.Helper()
	img, err := gpu.NewImage(size, gpu.FormatBGRA8)
	if err != nil {
		t.Fatal(err)
	}
	img.Fill(gpu.Color{R: 1, A: 1})
	return &scriptedSource{size: size, stamps: stamps, surface: img}
}

func (s *scriptedSource) Descriptor() StreamDescriptor {
	return StreamDescriptor{Size: s.size, Format: gpu.FormatBGRA8}
}

func (s *scriptedSource) Starting() (time.Duration, bool) {
	if len(s.stamps) == 0 {
		return 0, false
	}
	return s.stamps[0], true
}

func (s *scriptedSource) SampleRequested() *Sample {
	if s.next >= len(s.stamps) {
		return nil
	}
	ts := s.stamps[s.next]
	s.next++
	return NewSample(ts, s.surface, s.size, func() { s.released++ })
}

func ms(v ...int) []time.Duration {
	out := make([]time.Duration, len(v))
	for i, n := range v {
		out[i] = time.Duration(n) * time.Millisecond
	}
	return out
}

func TestPumpReleasesEverySample(t *testing.T) {
	src := newScriptedSource(t, gpu.Size{Width: 2, Height: 2}, ms(0, 33, 66)...)

	var got []time.Duration
	n, err := Pump(context.Background(), src, func(s *Sample, start time.Duration) error {
		got = append(got, s.Timestamp-start)
		return nil
	})
	if err != nil || n != 3 {
		t.Fatalf("Pump() = %d, %v; want 3, nil", n, err)
	}
	if src.released != 3 {
		t.Errorf("released = %d, want 3", src.released)
	}
	if got[2] != 66*time.Millisecond {
		t.Errorf("relative timestamp = %v, want 66ms", got[2])
	}
}

func TestPumpEmptyStream(t *testing.T) {
	src := newScriptedSource(t, gpu.Size{Width: 2, Height: 2})
	n, err := Pump(context.Background(), src, func(*Sample, time.Duration) error {
		t.Fatal("sink called for an empty stream")
		return nil
	})
	if err != nil || n != 0 {
		t.Errorf("Pump() = %d, %v; want 0, nil", n, err)
	}
}

func TestPumpStopsOnSinkError(t *testing.T) {
	src := newScriptedSource(t, gpu.Size{Width: 2, Height: 2}, ms(0, 10, 20)...)
	boom := errors.New("boom")

	n, err := Pump(context.Background(), src, func(*Sample, time.Duration) error { return boom })
	if !errors.Is(err, boom) || n != 0 {
		t.Errorf("Pump() = %d, %v; want 0, boom", n, err)
	}
	if src.released != 1 {
		t.Errorf("released = %d, want 1", src.released)
	}
}

func TestPumpHonorsContext(t *testing.T) {
	src := newScriptedSource(t, gpu.Size{Width: 2, Height: 2}, ms(0, 10)...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Pump(ctx, src, func(*Sample, time.Duration) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("Pump() error = %v, want context.Canceled", err)
	}
}

func TestFrameWriterConstantRate(t *testing.T) {
	tests := []struct {
		name       string
		stamps     []time.Duration
		wantFrames int64
		wantDup    int64
		wantSkip   int64
	}{
		{"steady 30fps", ms(0, 33, 67, 100), 4, 0, 0},
		{"gap duplicates", ms(0, 100), 4, 2, 0},
		{"burst skips", ms(0, 5, 10, 33), 2, 0, 2},
	}

	size := gpu.Size{Width: 2, Height: 2}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			fw := newFrameWriter(&out, size, 30)
			src := newScriptedSource(t, size, tt.stamps...)
			if _, err := Pump(context.Background(), src, fw.write); err != nil {
				t.Fatal(err)
			}
			if fw.frames != tt.wantFrames || fw.duplicated != tt.wantDup || fw.skipped != tt.wantSkip {
				t.Errorf("frames/dup/skip = %d/%d/%d, want %d/%d/%d",
					fw.frames, fw.duplicated, fw.skipped, tt.wantFrames, tt.wantDup, tt.wantSkip)
			}
			if got := int64(out.Len()); got != tt.wantFrames*16 {
				t.Errorf("bytes written = %d, want %d", got, tt.wantFrames*16)
			}
		})
	}
}

func TestFrameWriterPadsSmallerContent(t *testing.T) {
	var out bytes.Buffer
	fw := newFrameWriter(&out, gpu.Size{Width: 4, Height: 2}, 30)
	src := newScriptedSource(t, gpu.Size{Width: 2, Height: 2}, 0)

	if _, err := Pump(context.Background(), src, fw.write); err != nil {
		t.Fatal(err)
	}
	frame := out.Bytes()
	if len(frame) != 32 {
		t.Fatalf("frame length = %d, want 32", len(frame))
	}
	// BGRA red in the first two pixels, black padding after.
	if frame[2] != 0xff || frame[8+2] != 0 {
		t.Errorf("row 0 = %v", frame[:16])
	}
}

func TestErrorCode(t *testing.T) {
	err := NewError(CodeTransformTypeNotSet, "encode", "height not divisible by 2", nil)
	if got := err.Error(); !strings.Contains(got, "0xC00D6D60") {
		t.Errorf("Error() = %q, want code in hex", got)
	}

	wrapped := errors.Join(errors.New("context"), err)
	code, ok := CodeOf(wrapped)
	if !ok || code != CodeTransformTypeNotSet {
		t.Errorf("CodeOf() = %#x, %v", code, ok)
	}
	if _, ok := CodeOf(errors.New("plain")); ok {
		t.Error("CodeOf(plain) should report false")
	}

	cause := errors.New("exec: not found")
	if !errors.Is(NewError(CodeEncoderUnavailable, "start", "x", cause), cause) {
		t.Error("Error should unwrap to its cause")
	}
}

func TestPrepareValidatesProfile(t *testing.T) {
	src := newScriptedSource(t, gpu.Size{Width: 64, Height: 32}, 0)
	tr := NewFFmpeg()

	tests := []struct {
		name    string
		profile Profile
		code    Code
	}{
		{"zero bitrate", Profile{Size: gpu.Size{Width: 64, Height: 32}, FrameRate: 30}, CodeInvalidProfile},
		{"odd size", Profile{Size: gpu.Size{Width: 63, Height: 32}, FrameRate: 30, Bitrate: 1000}, CodeTransformTypeNotSet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.Prepare(context.Background(), src, &bytes.Buffer{}, tt.profile)
			if code, ok := CodeOf(err); !ok || code != tt.code {
				t.Errorf("Prepare() error = %v, want code %#x", err, tt.code)
			}
		})
	}
}

// fakeFFmpeg installs a shell script as the ffmpeg binary for one test.
func fakeFFmpeg(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	old := ffmpeg.Binary
	ffmpeg.Binary = path
	t.Cleanup(func() { ffmpeg.Binary = old })
}

func TestFFmpegJobWritesOutput(t *testing.T) {
	fakeFFmpeg(t, `cat > /dev/null; printf 'mp4data'`)

	size := gpu.Size{Width: 4, Height: 4}
	src := newScriptedSource(t, size, ms(0, 33, 67)...)
	var out bytes.Buffer

	job, err := NewFFmpeg().Prepare(context.Background(), src, &out, Profile{Size: size, Bitrate: 1_000_000, FrameRate: 30})
	if err != nil {
		t.Fatal(err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.String() != "mp4data" {
		t.Errorf("output = %q, want mp4data", out.String())
	}
	if src.released != 3 {
		t.Errorf("released = %d, want 3", src.released)
	}
	if stats := metrics.LastEncode(); stats == nil || stats.Samples != 3 || stats.Frames != 3 {
		t.Errorf("LastEncode() = %+v, want 3 samples and 3 frames", stats)
	}
}

func TestSpeed(t *testing.T) {
	if got := speed(60, 30, time.Second); got != 2 {
		t.Errorf("speed() = %v, want 2", got)
	}
	if got := speed(60, 0, time.Second); got != 0 {
		t.Errorf("speed() with zero fps = %v, want 0", got)
	}
}

func TestFFmpegJobMapsRejection(t *testing.T) {
	fakeFFmpeg(t, `echo "[libx264 @ 0x1] [error] frame size not supported" >&2; exit 1`)

	size := gpu.Size{Width: 4, Height: 4}
	src := newScriptedSource(t, size, ms(0)...)
	job, err := NewFFmpeg().Prepare(context.Background(), src, &bytes.Buffer{}, Profile{Size: size, Bitrate: 1000, FrameRate: 30})
	if err != nil {
		t.Fatal(err)
	}

	err = job.Run(context.Background())
	if code, ok := CodeOf(err); !ok || code != CodeTransformTypeNotSet {
		t.Errorf("Run() error = %v, want CodeTransformTypeNotSet", err)
	}
}

func TestFFmpegJobReportsExitCode(t *testing.T) {
	fakeFFmpeg(t, `cat > /dev/null; echo "[error] muxer exploded" >&2; exit 2`)

	size := gpu.Size{Width: 4, Height: 4}
	src := newScriptedSource(t, size, ms(0)...)
	job, err := NewFFmpeg().Prepare(context.Background(), src, &bytes.Buffer{}, Profile{Size: size, Bitrate: 1000, FrameRate: 30})
	if err != nil {
		t.Fatal(err)
	}

	err = job.Run(context.Background())
	if code, ok := CodeOf(err); !ok || code != CodeEncodeFailed {
		t.Fatalf("Run() error = %v, want CodeEncodeFailed", err)
	}
	if !strings.Contains(err.Error(), "muxer exploded") {
		t.Errorf("error %q should carry the last ffmpeg error line", err)
	}
}
