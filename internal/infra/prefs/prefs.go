// Package prefs persists durable user preferences.
//
// Only preferences survive a restart; the playback session's transient
// fields (current track, position, queue) are deliberately never
// written here.
package prefs

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
)

// Preferences are the user settings reloaded verbatim at startup.
type Preferences struct {
	Volume       float64 `json:"volume" default:"1.0"`
	RepeatMode   string  `json:"repeatMode" default:"off"`
	Shuffled     bool    `json:"shuffled"`
	Theme        string  `json:"theme" default:"system"`
	AudioQuality string  `json:"audioQuality" default:"high"`
	ShowLyrics   bool    `json:"showLyrics" default:"true"`
}

// Default returns the out-of-the-box preferences.
func Default() Preferences {
	var p Preferences
	_ = defaults.Set(&p)
	return p
}

// Load reads preferences from path. A missing file yields the defaults.
func Load(path string) (Preferences, error) {
	p := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &p); err != nil {
			return Default(), errors.Wrap(err, "failed to parse preferences")
		}
	case os.IsNotExist(err):
		return p, nil
	default:
		return Default(), errors.Wrap(err, "failed to read preferences")
	}

	return p, nil
}

// Save writes preferences to path atomically.
func Save(path string, p Preferences) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "failed to create preferences directory")
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode preferences")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write preferences")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "failed to replace preferences")
	}
	return nil
}
