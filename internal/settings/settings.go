// Package settings persists the user's recording preferences.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/screenrec/internal/encoder"
)

// Settings are the saved recording preferences. A zero width or height
// records at the target's native size.
type Settings struct {
	Width         int  `toml:"width" json:"width" doc:"Output width, 0 for native"`
	Height        int  `toml:"height" json:"height" doc:"Output height, 0 for native"`
	Bitrate       int  `toml:"bitrate" json:"bitrate" doc:"Bitrate in bits per second"`
	FrameRate     int  `toml:"frame_rate" json:"frame_rate" doc:"Output frame rate"`
	IncludeCursor bool `toml:"include_cursor" json:"include_cursor" doc:"Capture the mouse cursor"`
}

// file is the on-disk layout.
type file struct {
	Version   int      `toml:"version"`
	Recording Settings `toml:"recording"`
}

// Default returns the preferences used before anything is saved.
func Default() Settings {
	return FromOptions(encoder.DefaultOptions())
}

// FromOptions converts encoder options to settings.
func FromOptions(o encoder.Options) Settings {
	return Settings{
		Width:         o.Width,
		Height:        o.Height,
		Bitrate:       o.Bitrate,
		FrameRate:     o.FrameRate,
		IncludeCursor: o.IncludeCursor,
	}
}

// Options converts settings to encoder options, filling unset rates from
// the defaults.
func (s Settings) Options() encoder.Options {
	o := encoder.Options{
		Width:         s.Width,
		Height:        s.Height,
		Bitrate:       s.Bitrate,
		FrameRate:     s.FrameRate,
		IncludeCursor: s.IncludeCursor,
	}
	if o.Bitrate <= 0 {
		o.Bitrate = encoder.DefaultBitrate
	}
	if o.FrameRate <= 0 {
		o.FrameRate = encoder.DefaultFrameRate
	}
	return o
}

// Validate rejects negative sizes and rates.
func (s Settings) Validate() error {
	if s.Width < 0 || s.Height < 0 {
		return fmt.Errorf("size %dx%d must not be negative", s.Width, s.Height)
	}
	if s.Bitrate < 0 {
		return fmt.Errorf("bitrate %d must not be negative", s.Bitrate)
	}
	if s.FrameRate < 0 {
		return fmt.Errorf("frame rate %d must not be negative", s.FrameRate)
	}
	return nil
}

// Store keeps settings in a TOML file.
type Store struct {
	path string

	mu      sync.Mutex
	current Settings
}

// NewStore creates a store backed by path holding the defaults.
func NewStore(path string) *Store {
	if path == "" {
		path = "settings.toml"
	}
	return &Store{path: path, current: Default()}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load reads the settings file. A missing file keeps the defaults.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}

	f := file{Recording: Default()}
	if err := toml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := f.Recording.Validate(); err != nil {
		return fmt.Errorf("invalid settings in %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.current = f.Recording
	s.mu.Unlock()
	return nil
}

// Get returns the current settings.
func (s *Store) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Save validates and writes settings.
func (s *Store) Save(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	data, err := toml.Marshal(file{Version: 1, Recording: settings})
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	s.mu.Lock()
	s.current = settings
	s.mu.Unlock()
	return nil
}
