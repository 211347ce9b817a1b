package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "prefs.json"))
	require.NoError(t, err)

	assert.Equal(t, 1.0, p.Volume)
	assert.Equal(t, "off", p.RepeatMode)
	assert.False(t, p.Shuffled)
	assert.Equal(t, "system", p.Theme)
	assert.True(t, p.ShowLyrics)
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.json")

	saved := Preferences{
		Volume:       0.42,
		RepeatMode:   "all",
		Shuffled:     true,
		Theme:        "dark",
		AudioQuality: "medium",
	}
	require.NoError(t, Save(path, saved))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)
}

func TestLoad_CorruptFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0644))

	p, err := Load(path)
	assert.Error(t, err)
	assert.Equal(t, Default(), p)
}
