// Package playlist provides local user playlists with JSON persistence.
package playlist

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/hmdyt/melodio/internal/domain/track"
)

// Errors
var (
	ErrNotFound = errors.New("playlist not found")
)

// Playlist is a user-curated local playlist. The thumbnail follows the
// first track.
type Playlist struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Thumbnail   string        `json:"thumbnail"`
	Tracks      []track.Track `json:"tracks"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Store persists playlists as a single JSON file. Safe for concurrent
// use within one process; it is not a multi-process database.
type Store struct {
	mu        sync.Mutex
	path      string
	playlists []Playlist
	now       func() time.Time
}

// Open loads the playlist file at path, creating parent directories as
// needed. A missing file yields an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, now: time.Now}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create playlist directory")
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &s.playlists); err != nil {
			return nil, errors.Wrap(err, "failed to parse playlist file")
		}
	case os.IsNotExist(err):
		// Fresh store.
	default:
		return nil, errors.Wrap(err, "failed to read playlist file")
	}

	return s, nil
}

// Create adds a new empty playlist and returns it.
func (s *Store) Create(name, description string) (Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p := Playlist{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Tracks:      []track.Track{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.playlists = append(s.playlists, p)
	if err := s.saveLocked(); err != nil {
		s.playlists = s.playlists[:len(s.playlists)-1]
		return Playlist{}, err
	}
	return p, nil
}

// Delete removes the playlist with the given id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.playlists {
		if p.ID == id {
			s.playlists = append(s.playlists[:i], s.playlists[i+1:]...)
			return s.saveLocked()
		}
	}
	return errors.Wrapf(ErrNotFound, "%s", id)
}

// Rename changes a playlist's name.
func (s *Store) Rename(id, name string) error {
	return s.update(id, func(p *Playlist) error {
		p.Name = name
		return nil
	})
}

// AddTrack appends t to the playlist, ignoring duplicates by track id.
func (s *Store) AddTrack(id string, t track.Track) error {
	return s.update(id, func(p *Playlist) error {
		for _, existing := range p.Tracks {
			if existing.ID == t.ID {
				return nil
			}
		}
		p.Tracks = append(p.Tracks, t)
		p.Thumbnail = p.Tracks[0].ThumbnailURL
		return nil
	})
}

// RemoveTrack removes the track with trackID from the playlist.
func (s *Store) RemoveTrack(id, trackID string) error {
	return s.update(id, func(p *Playlist) error {
		for i, existing := range p.Tracks {
			if existing.ID == trackID {
				p.Tracks = append(p.Tracks[:i], p.Tracks[i+1:]...)
				break
			}
		}
		if len(p.Tracks) > 0 {
			p.Thumbnail = p.Tracks[0].ThumbnailURL
		} else {
			p.Thumbnail = ""
		}
		return nil
	})
}

// Get returns the playlist with the given id.
func (s *Store) Get(id string) (Playlist, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.playlists {
		if p.ID == id {
			return clone(p), true
		}
	}
	return Playlist{}, false
}

// List returns all playlists in creation order.
func (s *Store) List() []Playlist {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Playlist, 0, len(s.playlists))
	for _, p := range s.playlists {
		out = append(out, clone(p))
	}
	return out
}

func (s *Store) update(id string, fn func(*Playlist) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.playlists {
		if s.playlists[i].ID == id {
			if err := fn(&s.playlists[i]); err != nil {
				return err
			}
			s.playlists[i].UpdatedAt = s.now()
			return s.saveLocked()
		}
	}
	return errors.Wrapf(ErrNotFound, "%s", id)
}

// saveLocked writes the playlist file atomically via a temp file.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.playlists, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode playlists")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write playlist file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "failed to replace playlist file")
	}
	return nil
}

func clone(p Playlist) Playlist {
	p.Tracks = append([]track.Track(nil), p.Tracks...)
	return p
}
