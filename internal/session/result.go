package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/smazurov/screenrec/internal/transcode"
)

// State is the outcome of a recording.
type State string

// Recording outcomes.
const (
	StateDone        State = "done"
	StateInterrupted State = "interrupted"
	StateFailed      State = "failed"
)

// unsupportedMessage is shown when the encoder rejects the chosen options.
const unsupportedMessage = "The combination of options you've chosen are not supported by your hardware."

// Result describes a finished recording. The encoded file stays at TempPath
// until Save or Discard.
type Result struct {
	State    State         `json:"state"`
	TempPath string        `json:"temp_path"`
	Samples  int64         `json:"samples"`
	Duration time.Duration `json:"duration"`
	Message  string        `json:"message,omitempty"`
	Err      error         `json:"-"`
}

// MessageForError maps an encode failure to the text shown to the user.
func MessageForError(err error) string {
	if err == nil {
		return ""
	}
	code, ok := transcode.CodeOf(err)
	if !ok {
		return err.Error()
	}
	return MessageForCode(code, err)
}

// MessageForCode maps a transcoder error code to a user-facing message.
func MessageForCode(code transcode.Code, err error) string {
	if code == transcode.CodeTransformTypeNotSet {
		return unsupportedMessage
	}
	return fmt.Sprintf("0x%08X - %v", uint32(code), err)
}

// Save moves the recording to dest, copying when a rename is not possible.
func (r Result) Save(dest string) error {
	if r.TempPath == "" {
		return errors.New("recording has no output file")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.Rename(r.TempPath, dest); err == nil {
		return nil
	}
	if err := copyFile(r.TempPath, dest); err != nil {
		return fmt.Errorf("failed to save recording: %w", err)
	}
	return os.Remove(r.TempPath)
}

// Discard deletes the temporary file.
func (r Result) Discard() error {
	if r.TempPath == "" {
		return nil
	}
	if err := os.Remove(r.TempPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to discard recording: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
