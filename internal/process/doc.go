// Package process runs a streaming subprocess such as ffmpeg.
//
// Process wraps os/exec for one pipe-driven child:
//   - Raw input is written to the child's stdin through the writer returned by Start
//   - Stdout is copied to a caller-supplied writer, or logged line by line
//   - Stderr is logged line by line with pluggable log level parsing
//   - Cancelling the Wait context sends SIGINT, then SIGKILL after a timeout
//
// Example usage:
//
//	p := process.New("encode", []string{"ffmpeg", "-i", "pipe:0", "out.mp4"}, logger)
//	p.SetLogParser(logging.GetLogger("ffmpeg"), ffmpeg.ParseLogLevel)
//	stdin, err := p.Start()
//	if err != nil {
//		return err
//	}
//	// write frames to stdin, then
//	stdin.Close()
//	code, err := p.Wait(ctx)
package process
