// Package lyrics fetches lyrics from the LRCLIB API.
package lyrics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

const defaultBaseURL = "https://lrclib.net"

// Lyrics is a single LRCLIB search result.
type Lyrics struct {
	ID           int     `json:"id"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	Duration     float64 `json:"duration"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

// Synced reports whether the result carries time-synced lyrics.
func (l Lyrics) Synced() bool {
	return l.SyncedLyrics != ""
}

// Client talks to an LRCLIB-compatible lyrics service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config for Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// New creates a lyrics client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Search queries LRCLIB for lyrics matching the track and artist name.
// durationSec narrows the match when non-zero.
func (c *Client) Search(ctx context.Context, trackName, artistName string, durationSec int) ([]Lyrics, error) {
	if trackName == "" {
		return nil, errors.New("track name is required")
	}

	params := url.Values{}
	params.Set("track_name", trackName)
	if artistName != "" {
		params.Set("artist_name", artistName)
	}
	if durationSec > 0 {
		params.Set("duration", strconv.Itoa(durationSec))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/search?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create lyrics request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to call lyrics service")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("lyrics service returned status %d", resp.StatusCode)
	}

	var results []Lyrics
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, errors.Wrap(err, "failed to decode lyrics response")
	}
	return results, nil
}

// Best returns the first synced result, falling back to the first result
// with any lyrics at all.
func Best(results []Lyrics) (Lyrics, bool) {
	for _, r := range results {
		if r.Synced() {
			return r, true
		}
	}
	for _, r := range results {
		if r.PlainLyrics != "" {
			return r, true
		}
	}
	return Lyrics{}, false
}
