// Package catalog provides a client for the upstream music catalog.
//
// The upstream speaks a Piped-compatible JSON API. Responses are loosely
// structured; normalization keeps only the fields the application
// consumes and drops entries without a playable identifier.
package catalog

import (
	"strings"

	"github.com/hmdyt/melodio/internal/domain/track"
)

// AudioStream is one audio representation of a track.
type AudioStream struct {
	URL      string `json:"url"`
	Bitrate  int    `json:"bitrate"`
	MimeType string `json:"mimeType"`
}

// IsAudio reports whether the representation is audio-only.
func (s AudioStream) IsAudio() bool {
	return strings.HasPrefix(s.MimeType, "audio")
}

// StreamInfo is the subset of the upstream stream payload the
// application consumes.
type StreamInfo struct {
	Title          string        `json:"title"`
	Uploader       string        `json:"uploader"`
	ThumbnailURL   string        `json:"thumbnailUrl"`
	Duration       int           `json:"duration"`
	AudioStreams   []AudioStream `json:"audioStreams"`
	RelatedStreams []Item        `json:"relatedStreams"`
}

// Item is a loosely structured catalog listing: a search result, a
// related stream, or a playlist entry.
type Item struct {
	URL          string `json:"url"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	Thumbnail    string `json:"thumbnail"`
	UploaderName string `json:"uploaderName"`
	Duration     int    `json:"duration"`
}

// VideoID extracts the track identifier from the item's watch URL.
func (it Item) VideoID() string {
	if i := strings.Index(it.URL, "v="); i >= 0 {
		id := it.URL[i+2:]
		if j := strings.IndexAny(id, "&#"); j >= 0 {
			id = id[:j]
		}
		return id
	}
	return ""
}

// Track converts the item to a track entity. Returns false when the
// item carries no valid playable identifier.
func (it Item) Track() (track.Track, bool) {
	id := it.VideoID()
	if !track.ValidID(id) {
		return track.Track{}, false
	}
	return track.Track{
		ID:           id,
		Title:        it.Title,
		ArtistName:   it.UploaderName,
		ThumbnailURL: it.Thumbnail,
		DurationSec:  it.Duration,
	}, true
}

// PlaylistInfo is a remote playlist or album listing.
type PlaylistInfo struct {
	Name           string `json:"name"`
	Uploader       string `json:"uploader"`
	ThumbnailURL   string `json:"thumbnailUrl"`
	Videos         int    `json:"videos"`
	RelatedStreams []Item `json:"relatedStreams"`
}

// Tracks normalizes items into unique, playable track entities.
// Ordering is preserved; duplicates and unplayable entries are dropped.
func Tracks(items []Item) []track.Track {
	seen := make(map[string]struct{}, len(items))
	out := make([]track.Track, 0, len(items))
	for _, it := range items {
		t, ok := it.Track()
		if !ok {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out
}
