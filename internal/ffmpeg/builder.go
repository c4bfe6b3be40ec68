// Package ffmpeg builds ffmpeg command lines for encoding raw captured frames
// and parses ffmpeg's log output.
package ffmpeg

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Binary is the ffmpeg executable looked up on PATH.
var Binary = "ffmpeg"

// BuildArgs builds the ffmpeg argument list, executable first, for p.
func BuildArgs(p *Params) ([]string, error) {
	if p.InputWidth <= 0 || p.InputHeight <= 0 {
		return nil, errors.New("input size is required")
	}
	if p.FPS <= 0 {
		return nil, errors.New("frame rate is required")
	}
	if err := ValidateOptions(p.Options); err != nil {
		return nil, err
	}

	outW, outH := p.OutputWidth, p.OutputHeight
	if outW <= 0 || outH <= 0 {
		outW, outH = p.InputWidth, p.InputHeight
	}

	encoder := or(p.Encoder, DefaultEncoder)
	output := or(p.OutputURL, DefaultOutputURL)
	fps := strconv.Itoa(p.FPS)

	args := []string{Binary, "-hide_banner", "-nostats", "-loglevel", or(p.LogLevel, DefaultLogLevel)}
	if !strings.HasPrefix(output, "pipe:") {
		args = append(args, "-y")
	}

	// Input: raw frames on stdin
	args = append(args, inputArgs(p.Options)...)
	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", or(p.InputFormat, DefaultInputFormat),
		"-s", fmt.Sprintf("%dx%d", p.InputWidth, p.InputHeight),
		"-framerate", fps,
		"-i", "pipe:0",
	)

	args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", outW, outH))

	// Encoder
	args = append(args, "-c:v", encoder)
	if strings.Contains(encoder, "264") {
		args = append(args, "-profile:v", "high")
	}
	if p.Bitrate > 0 {
		args = append(args, "-b:v", strconv.Itoa(p.Bitrate))
	}
	if p.Preset != "" {
		args = append(args, "-preset", p.Preset)
	}
	gop := p.GOP
	if gop <= 0 {
		gop = p.FPS * 2
	}
	args = append(args, "-g", strconv.Itoa(gop))
	args = append(args, "-r", fps, "-pix_fmt", or(p.PixelFormat, DefaultPixelFormat))

	args = append(args, outputArgs(p.Options, encoder)...)
	args = append(args, "-f", or(p.Format, DefaultFormat), output)
	return args, nil
}

// BuildCommand renders the argument list as a single line for logging.
func BuildCommand(p *Params) (string, error) {
	args, err := BuildArgs(p)
	if err != nil {
		return "", err
	}
	return strings.Join(args, " "), nil
}

// BuildEncodersListCommand returns the arguments that list available encoders.
func BuildEncodersListCommand() []string {
	return []string{Binary, "-hide_banner", "-encoders"}
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
