package events

// Event type constants for kelindar/event.
const (
	TypeTargetSelected uint32 = iota + 1
	TypeTargetCleared
	TypePreviewStateChanged
	TypeRecordingStarted
	TypeRecordingFinished
	TypeSettingsChanged
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// TargetSelectedEvent is published when a capture target is chosen for preview.
type TargetSelectedEvent struct {
	TargetID    string `json:"target_id" example:"display:0" doc:"Stable target identifier"`
	DisplayName string `json:"display_name" example:"Display 0" doc:"Human readable target name"`
	Width       int    `json:"width" example:"1920" doc:"Target width in pixels"`
	Height      int    `json:"height" example:"1080" doc:"Target height in pixels"`
	Timestamp   string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for TargetSelectedEvent.
func (e TargetSelectedEvent) Type() uint32 { return TypeTargetSelected }

// TargetClearedEvent is published when the preview target is released.
type TargetClearedEvent struct {
	TargetID  string `json:"target_id" example:"display:0" doc:"Released target identifier"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for TargetClearedEvent.
func (e TargetClearedEvent) Type() uint32 { return TypeTargetCleared }

// PreviewStateChangedEvent reports preview pipeline transitions.
type PreviewStateChangedEvent struct {
	TargetID  string `json:"target_id" example:"display:0" doc:"Previewed target identifier"`
	From      string `json:"from" example:"created" doc:"Previous state"`
	To        string `json:"to" example:"started" doc:"New state"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PreviewStateChangedEvent.
func (e PreviewStateChangedEvent) Type() uint32 { return TypePreviewStateChanged }

// RecordingStartedEvent is published when an encode begins.
type RecordingStartedEvent struct {
	TargetID  string `json:"target_id" example:"display:0" doc:"Recorded target identifier"`
	TempPath  string `json:"temp_path" example:"/tmp/20250127-1030-00.mp4" doc:"Temporary output file"`
	Width     int    `json:"width" example:"1920" doc:"Requested output width, 0 for native"`
	Height    int    `json:"height" example:"1080" doc:"Requested output height, 0 for native"`
	Bitrate   int    `json:"bitrate" example:"18000000" doc:"Bitrate in bits per second"`
	FrameRate int    `json:"frame_rate" example:"60" doc:"Output frame rate"`
	Cursor    bool   `json:"include_cursor" example:"true" doc:"Whether the cursor is captured"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecordingStartedEvent.
func (e RecordingStartedEvent) Type() uint32 { return TypeRecordingStarted }

// RecordingFinishedEvent is published when an encode ends for any reason.
type RecordingFinishedEvent struct {
	TargetID  string `json:"target_id" example:"display:0" doc:"Recorded target identifier"`
	State     string `json:"state" example:"done" doc:"Outcome: done, interrupted or failed"`
	TempPath  string `json:"temp_path" example:"/tmp/20250127-1030-00.mp4" doc:"Temporary output file"`
	Samples   int64  `json:"samples" example:"3600" doc:"Samples handed to the encoder"`
	Message   string `json:"message,omitempty" doc:"User facing failure message"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecordingFinishedEvent.
func (e RecordingFinishedEvent) Type() uint32 { return TypeRecordingFinished }

// SettingsChangedEvent is published when recording preferences are saved.
type SettingsChangedEvent struct {
	Width     int    `json:"width" example:"0" doc:"Output width, 0 for native"`
	Height    int    `json:"height" example:"0" doc:"Output height, 0 for native"`
	Bitrate   int    `json:"bitrate" example:"18000000" doc:"Bitrate in bits per second"`
	FrameRate int    `json:"frame_rate" example:"60" doc:"Output frame rate"`
	Cursor    bool   `json:"include_cursor" example:"true" doc:"Whether the cursor is captured"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SettingsChangedEvent.
func (e SettingsChangedEvent) Type() uint32 { return TypeSettingsChanged }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
