package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/screenrec/internal/capture"
	"github.com/smazurov/screenrec/internal/encoder"
)

func TestPrintPresets(t *testing.T) {
	var buf bytes.Buffer
	printPresets(&buf)
	out := buf.String()

	for _, want := range []string{"1920x1080", "7680x4320", "72000000 (72 Mbps)", "  24\n", "Defaults: native size, 18000000 bps, 60 fps, cursor true"} {
		if !strings.Contains(out, want) {
			t.Errorf("presets output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintDisplays(t *testing.T) {
	var buf bytes.Buffer
	printDisplays(&buf, []*capture.Display{
		{Index: 0, Name: "Display 1", Primary: true, Width: 2560, Height: 1440},
		{Index: 1, Name: "Display 2", Width: 1920, Height: 1080, X: 2560},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %q", buf.String())
	}
	if !strings.Contains(lines[2], "1920x1080") || !strings.Contains(lines[2], "2560,0") {
		t.Errorf("row = %q", lines[2])
	}

	buf.Reset()
	printDisplays(&buf, nil)
	if !strings.Contains(buf.String(), "No active displays") {
		t.Errorf("empty output = %q", buf.String())
	}
}

func TestRecordFlagsOptions(t *testing.T) {
	tests := []struct {
		name  string
		flags recordFlags
		want  encoder.Options
	}{
		{
			name:  "defaults for unset rates",
			flags: recordFlags{cursor: true},
			want:  encoder.Options{Bitrate: encoder.DefaultBitrate, FrameRate: encoder.DefaultFrameRate, IncludeCursor: true},
		},
		{
			name:  "explicit values",
			flags: recordFlags{width: 1280, height: 720, bitrate: 9_000_000, fps: 30},
			want:  encoder.Options{Width: 1280, Height: 720, Bitrate: 9_000_000, FrameRate: 30},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.flags.options(); got != tt.want {
				t.Errorf("options() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRecordFlagsTarget(t *testing.T) {
	_, target, err := recordFlags{source: "test", interval: time.Millisecond}.target()
	if err != nil {
		t.Fatalf("target() error = %v", err)
	}
	if target.ID() != "test:pattern" {
		t.Errorf("target ID = %q", target.ID())
	}

	if _, _, err := (recordFlags{source: "webcam"}).target(); err == nil {
		t.Error("unknown source should fail")
	}
}

func TestRecordRequiresOutput(t *testing.T) {
	cmd := CreateRecordCmd()
	cmd.SetArgs([]string{"--source", "test"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "--output") {
		t.Errorf("Execute() error = %v, want missing output", err)
	}
}
