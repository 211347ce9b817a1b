// Package track provides the Track domain entity.
package track

import "regexp"

// idPattern matches the catalog's fixed-length opaque identifier format.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// Track represents a playable catalog entry.
// UI copies may carry placeholder fields (e.g. an empty title) until the
// resolver enriches them from the catalog.
type Track struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	ArtistName   string `json:"uploaderName"`
	ThumbnailURL string `json:"thumbnail"`
	DurationSec  int    `json:"duration"`
}

// ValidID reports whether id matches the catalog identifier format.
// Malformed identifiers must be rejected before any network access.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Merge fills empty fields of t from other, preferring t's own values.
// Used when catalog metadata enriches a partially known track.
func (t Track) Merge(other Track) Track {
	if t.Title == "" {
		t.Title = other.Title
	}
	if t.ArtistName == "" {
		t.ArtistName = other.ArtistName
	}
	if t.ThumbnailURL == "" {
		t.ThumbnailURL = other.ThumbnailURL
	}
	if t.DurationSec == 0 {
		t.DurationSec = other.DurationSec
	}
	return t
}
