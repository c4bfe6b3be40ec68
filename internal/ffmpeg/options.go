package ffmpeg

import (
	"fmt"
	"slices"
	"strings"
)

// OptionType names a feature flag of the ffmpeg command.
type OptionType string

const (
	OptionFragmentedMP4   OptionType = "fragmented_mp4"
	OptionFastStart       OptionType = "faststart"
	OptionLowLatency      OptionType = "low_latency"
	OptionThreadQueue1024 OptionType = "thread_queue_1024"
	OptionThreadQueue4096 OptionType = "thread_queue_4096"
	OptionPassthroughFPS  OptionType = "passthrough_fps"
)

// ExclusiveGroup collects options of which at most one may be selected.
type ExclusiveGroup string

const (
	GroupThreadQueue ExclusiveGroup = "thread_queue"
	GroupMovFlags    ExclusiveGroup = "movflags"
)

// Option describes a feature flag and the arguments it contributes.
type Option struct {
	Key         OptionType     `json:"key"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Default     bool           `json:"default"`
	Group       ExclusiveGroup `json:"group,omitempty"`

	// input is placed before -i, output after the encoder settings.
	input  []string
	output func(encoder string) []string
}

func fixed(args ...string) func(string) []string {
	return func(string) []string { return args }
}

// AllOptions lists every supported option.
var AllOptions = []Option{
	{
		Key:         OptionFragmentedMP4,
		Name:        "Fragmented MP4",
		Description: "Write a fragmented MP4 so the muxer never seeks; required for pipe output",
		Default:     true,
		Group:       GroupMovFlags,
		output:      fixed("-movflags", "frag_keyframe+empty_moov"),
	},
	{
		Key:         OptionFastStart,
		Name:        "Fast Start",
		Description: "Move the index to the front after encoding; file output only",
		Group:       GroupMovFlags,
		output:      fixed("-movflags", "+faststart"),
	},
	{
		Key:         OptionLowLatency,
		Name:        "Low Latency",
		Description: "Tune software encoders for low latency",
		output: func(encoder string) []string {
			if isHardwareEncoder(encoder) {
				return nil
			}
			return []string{"-tune", "zerolatency"}
		},
	},
	{
		Key:         OptionThreadQueue1024,
		Name:        "Large Thread Queue",
		Description: "Queue up to 1024 raw frames on the input",
		Default:     true,
		Group:       GroupThreadQueue,
		input:       []string{"-thread_queue_size", "1024"},
	},
	{
		Key:         OptionThreadQueue4096,
		Name:        "Extra Large Thread Queue",
		Description: "Queue up to 4096 raw frames on the input for large displays",
		Group:       GroupThreadQueue,
		input:       []string{"-thread_queue_size", "4096"},
	},
	{
		Key:         OptionPassthroughFPS,
		Name:        "Passthrough Frame Rate",
		Description: "Keep input timestamps instead of forcing a constant output rate",
		output:      fixed("-fps_mode", "passthrough"),
	},
}

// GetOptionByKey returns the option with the given key, or nil.
func GetOptionByKey(key OptionType) *Option {
	i := slices.IndexFunc(AllOptions, func(o Option) bool { return o.Key == key })
	if i < 0 {
		return nil
	}
	return &AllOptions[i]
}

// GetExclusiveGroups returns the grouped options by group.
func GetExclusiveGroups() map[ExclusiveGroup][]Option {
	groups := make(map[ExclusiveGroup][]Option)
	for _, o := range AllOptions {
		if o.Group != "" {
			groups[o.Group] = append(groups[o.Group], o)
		}
	}
	return groups
}

// GetDefaultOptions returns the keys of the options enabled by default.
func GetDefaultOptions() []OptionType {
	var keys []OptionType
	for _, o := range AllOptions {
		if o.Default {
			keys = append(keys, o.Key)
		}
	}
	return keys
}

// ValidateOptions rejects unknown keys and more than one option per group.
func ValidateOptions(selected []OptionType) error {
	chosen := make(map[ExclusiveGroup][]string)
	for _, key := range selected {
		o := GetOptionByKey(key)
		if o == nil {
			return fmt.Errorf("unknown option %q", key)
		}
		if o.Group == "" {
			continue
		}
		chosen[o.Group] = append(chosen[o.Group], o.Name)
		if names := chosen[o.Group]; len(names) > 1 {
			return fmt.Errorf("options %s are mutually exclusive (%s)", strings.Join(names, ", "), o.Group)
		}
	}
	return nil
}

// inputArgs returns the arguments the options contribute before -i.
func inputArgs(selected []OptionType) []string {
	var args []string
	for _, key := range selected {
		if o := GetOptionByKey(key); o != nil {
			args = append(args, o.input...)
		}
	}
	return args
}

// outputArgs returns the arguments the options contribute after the encoder.
func outputArgs(selected []OptionType, encoder string) []string {
	var args []string
	for _, key := range selected {
		if o := GetOptionByKey(key); o != nil && o.output != nil {
			args = append(args, o.output(encoder)...)
		}
	}
	return args
}

var hardwareSuffixes = []string{"_vaapi", "_qsv", "_nvenc", "_amf", "_mf", "_videotoolbox", "_v4l2m2m", "_rkmpp"}

// isHardwareEncoder reports whether codec names a hardware encoder.
func isHardwareEncoder(codec string) bool {
	return slices.ContainsFunc(hardwareSuffixes, func(suffix string) bool {
		return strings.HasSuffix(codec, suffix)
	})
}
