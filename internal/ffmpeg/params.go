package ffmpeg

// Params describes an encode of raw frames read from stdin.
type Params struct {
	// Input
	InputWidth  int
	InputHeight int
	InputFormat string // rawvideo pixel format: bgra
	FPS         int

	// Output geometry; zero means the input size
	OutputWidth  int
	OutputHeight int

	// Encoder
	Encoder     string // libx264, h264_vaapi, etc.
	Bitrate     int    // bits per second
	Preset      string // ultrafast, medium, etc.
	GOP         int    // keyframe interval (0 = two seconds of frames)
	PixelFormat string // output pixel format: yuv420p

	// Output
	Format    string // container: mp4
	OutputURL string // pipe:1 or a file path
	LogLevel  string // ffmpeg -loglevel value

	// Behavior Options
	Options []OptionType
}

// Defaults applied by BuildArgs for zero fields.
const (
	DefaultEncoder     = "libx264"
	DefaultInputFormat = "bgra"
	DefaultPixelFormat = "yuv420p"
	DefaultFormat      = "mp4"
	DefaultLogLevel    = "level+info"
	DefaultOutputURL   = "pipe:1"
)
