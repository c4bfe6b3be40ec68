package models

import (
	"time"

	"github.com/smazurov/screenrec/internal/logging"
	"github.com/smazurov/screenrec/internal/settings"
	"github.com/smazurov/screenrec/internal/version"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

type VersionResponse struct {
	Body version.Info
}

// Display models
type DisplayData struct {
	Index   int    `json:"index" example:"0" doc:"Display index used to select it as a target"`
	Name    string `json:"name" example:"Display 1" doc:"Human-readable name"`
	Primary bool   `json:"primary" example:"true" doc:"Whether this is the primary display"`
	Width   int    `json:"width" example:"1920" doc:"Width in pixels"`
	Height  int    `json:"height" example:"1080" doc:"Height in pixels"`
	X       int    `json:"x" example:"0" doc:"Left edge in virtual screen coordinates"`
	Y       int    `json:"y" example:"0" doc:"Top edge in virtual screen coordinates"`
}

type DisplayListData struct {
	Displays []DisplayData `json:"displays" doc:"Active displays"`
	Count    int           `json:"count" example:"2" doc:"Number of displays"`
}

type DisplayListResponse struct {
	Body DisplayListData
}

// Target models
type TargetRequestData struct {
	Source  string `json:"source" enum:"screen,test" example:"screen" doc:"Capture source kind"`
	Display int    `json:"display,omitempty" minimum:"0" example:"0" doc:"Display index for the screen source"`
}

type TargetRequest struct {
	Body TargetRequestData
}

type TargetData struct {
	ID      string `json:"id" example:"display:0" doc:"Target identifier"`
	Name    string `json:"name" example:"Display 1" doc:"Target display name"`
	Width   int    `json:"width" example:"1920" doc:"Current content width"`
	Height  int    `json:"height" example:"1080" doc:"Current content height"`
	Preview string `json:"preview,omitempty" example:"started" doc:"Preview pipeline state"`
}

type TargetResponse struct {
	Body TargetData
}

// Recording models
type RecordingRequestData struct {
	Width         int   `json:"width,omitempty" minimum:"0" example:"1920" doc:"Output width, 0 for the target's native width"`
	Height        int   `json:"height,omitempty" minimum:"0" example:"1080" doc:"Output height, 0 for the target's native height"`
	Bitrate       int   `json:"bitrate,omitempty" minimum:"0" example:"18000000" doc:"Output bitrate in bits per second"`
	FrameRate     int   `json:"frame_rate,omitempty" minimum:"0" example:"60" doc:"Output frame rate"`
	IncludeCursor *bool `json:"include_cursor,omitempty" example:"true" doc:"Capture the mouse cursor"`
}

type RecordingRequest struct {
	Body *RecordingRequestData `required:"false"`
}

type RecordingOptionsData struct {
	Width         int  `json:"width" example:"1920" doc:"Requested output width, 0 for native"`
	Height        int  `json:"height" example:"1080" doc:"Requested output height, 0 for native"`
	Bitrate       int  `json:"bitrate" example:"18000000" doc:"Output bitrate in bits per second"`
	FrameRate     int  `json:"frame_rate" example:"60" doc:"Output frame rate"`
	IncludeCursor bool `json:"include_cursor" example:"true" doc:"Cursor capture"`
}

type RecordingResultData struct {
	State      string  `json:"state" enum:"done,interrupted,failed" example:"done" doc:"How the recording ended"`
	Message    string  `json:"message,omitempty" doc:"User-facing failure message"`
	DurationMs int64   `json:"duration_ms" example:"12000" doc:"Wall-clock recording duration"`
	Samples    int64   `json:"samples" example:"720" doc:"Samples handed to the transcoder"`
	Frames     int64   `json:"frames,omitempty" example:"720" doc:"Constant-rate frames encoded"`
	Duplicated int64   `json:"duplicated,omitempty" example:"3" doc:"Frames repeated to fill timestamp gaps"`
	Skipped    int64   `json:"skipped,omitempty" example:"0" doc:"Samples skipped to hold the frame rate"`
	Speed      float64 `json:"speed,omitempty" example:"1.4" doc:"Encoded media time per wall-clock second"`
}

type RecordingData struct {
	Status     string               `json:"status" example:"recording" doc:"Encoder status"`
	Recording  bool                 `json:"recording" example:"true" doc:"Whether the recording is still running"`
	TargetID   string               `json:"target_id" example:"display:0" doc:"Recorded target"`
	TargetName string               `json:"target_name" example:"Display 1" doc:"Recorded target name"`
	TempPath   string               `json:"temp_path" example:"/tmp/20250127-1030-05.mp4" doc:"Temporary output file"`
	Samples    int64                `json:"samples" example:"120" doc:"Samples produced so far"`
	StartedAt  time.Time            `json:"started_at" doc:"When the recording started"`
	Options    RecordingOptionsData `json:"options" doc:"Options the recording uses"`
	Result     *RecordingResultData `json:"result,omitempty" doc:"Outcome once the recording has finished"`
}

type RecordingResponse struct {
	Body RecordingData
}

type SaveRecordingRequest struct {
	Body struct {
		Path string `json:"path" minLength:"1" example:"/home/user/Videos/capture.mp4" doc:"Destination file"`
	}
}

type SaveRecordingResponse struct {
	Body struct {
		Path string `json:"path" example:"/home/user/Videos/capture.mp4" doc:"Saved file"`
	}
}

// Settings models
type SettingsResponse struct {
	Body settings.Settings
}

type SettingsRequest struct {
	Body settings.Settings
}

// Log models
type LogListData struct {
	Entries []logging.LogEntry `json:"entries" doc:"Log entries, oldest first"`
	Count   int                `json:"count" example:"100" doc:"Number of entries returned"`
}

type LogListResponse struct {
	Body LogListData
}

// Preview models
type PreviewResponse struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}
