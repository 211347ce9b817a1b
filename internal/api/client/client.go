// Package client is the Go client for the melodio API server.
//
// It satisfies the resolver's stream source, so the player keeps its own
// local resolution cache in front of the server's.
package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/hmdyt/melodio/internal/domain/track"
	"github.com/hmdyt/melodio/internal/infra/catalog"
)

// Client talks to a melodio API server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config represents API client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Playlist is a remote playlist listing as served by the API.
type Playlist struct {
	Name         string        `json:"name"`
	Uploader     string        `json:"uploader"`
	ThumbnailURL string        `json:"thumbnailUrl"`
	Tracks       []track.Track `json:"tracks"`
}

// Lyrics is the API's best lyrics match for a track.
type Lyrics struct {
	TrackName    string `json:"trackName"`
	ArtistName   string `json:"artistName"`
	PlainLyrics  string `json:"plainLyrics"`
	SyncedLyrics string `json:"syncedLyrics"`
	Synced       bool   `json:"synced"`
}

type streamPayload struct {
	VideoID      string `json:"videoId"`
	Title        string `json:"title"`
	Uploader     string `json:"uploader"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Duration     int    `json:"duration"`
	AudioStreams []struct {
		URL      string `json:"url"`
		Bitrate  int    `json:"bitrate"`
		MimeType string `json:"mimeType"`
	} `json:"audioStreams"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// New creates an API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("server base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Streams resolves a track through the server.
func (c *Client) Streams(ctx context.Context, id string) (catalog.StreamInfo, error) {
	var payload streamPayload
	if err := c.getJSON(ctx, "/api/streams/"+url.PathEscape(id), nil, &payload); err != nil {
		return catalog.StreamInfo{}, errors.Wrapf(err, "streams %s", id)
	}

	info := catalog.StreamInfo{
		Title:        payload.Title,
		Uploader:     payload.Uploader,
		ThumbnailURL: payload.ThumbnailURL,
		Duration:     payload.Duration,
	}
	for _, st := range payload.AudioStreams {
		info.AudioStreams = append(info.AudioStreams, catalog.AudioStream{
			URL:      st.URL,
			Bitrate:  st.Bitrate,
			MimeType: st.MimeType,
		})
	}
	return info, nil
}

// Related returns the server's up-next listing for a track.
func (c *Client) Related(ctx context.Context, id string) ([]catalog.Item, error) {
	var tracks []track.Track
	if err := c.getJSON(ctx, "/api/related/"+url.PathEscape(id), nil, &tracks); err != nil {
		return nil, errors.Wrapf(err, "related %s", id)
	}

	// The server already normalized its listing; re-wrap as catalog items
	// so this client slots in wherever the catalog does.
	items := make([]catalog.Item, 0, len(tracks))
	for _, t := range tracks {
		items = append(items, catalog.Item{
			URL:          "/watch?v=" + t.ID,
			Type:         "stream",
			Title:        t.Title,
			Thumbnail:    t.ThumbnailURL,
			UploaderName: t.ArtistName,
			Duration:     t.DurationSec,
		})
	}
	return items, nil
}

// Search queries the server's catalog search.
func (c *Client) Search(ctx context.Context, query, filter string) ([]track.Track, error) {
	if query == "" {
		return nil, errors.New("search query is required")
	}
	params := url.Values{}
	params.Set("q", query)
	if filter != "" {
		params.Set("filter", filter)
	}
	var tracks []track.Track
	if err := c.getJSON(ctx, "/api/search", params, &tracks); err != nil {
		return nil, errors.Wrapf(err, "search %q", query)
	}
	return tracks, nil
}

// Suggestions returns search completions for a partial query.
func (c *Client) Suggestions(ctx context.Context, query string) ([]string, error) {
	params := url.Values{}
	params.Set("query", query)
	var out []string
	if err := c.getJSON(ctx, "/api/suggestions", params, &out); err != nil {
		return nil, errors.Wrapf(err, "suggestions %q", query)
	}
	return out, nil
}

// Trending returns the server's trending listing.
func (c *Client) Trending(ctx context.Context) ([]track.Track, error) {
	var tracks []track.Track
	if err := c.getJSON(ctx, "/api/trending", nil, &tracks); err != nil {
		return nil, errors.Wrap(err, "trending")
	}
	return tracks, nil
}

// Playlist retrieves a remote playlist listing.
func (c *Client) Playlist(ctx context.Context, id string) (Playlist, error) {
	var p Playlist
	if err := c.getJSON(ctx, "/api/playlists/"+url.PathEscape(id), nil, &p); err != nil {
		return Playlist{}, errors.Wrapf(err, "playlist %s", id)
	}
	return p, nil
}

// Lyrics returns the best lyrics match for a track, or ok=false when the
// server has none.
func (c *Client) Lyrics(ctx context.Context, trackName, artistName string, durationSec int) (Lyrics, bool, error) {
	params := url.Values{}
	params.Set("track", trackName)
	if artistName != "" {
		params.Set("artist", artistName)
	}
	if durationSec > 0 {
		params.Set("duration", strconv.Itoa(durationSec))
	}

	var l Lyrics
	err := c.getJSON(ctx, "/api/lyrics", params, &l)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return Lyrics{}, false, nil
		}
		return Lyrics{}, false, errors.Wrapf(err, "lyrics %q", trackName)
	}
	return l, true, nil
}

var errNotFound = errors.New("not found")

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		base := error(nil)
		if resp.StatusCode == http.StatusNotFound {
			base = errNotFound
		}
		var ep errorPayload
		if jsonErr := json.Unmarshal(body, &ep); jsonErr == nil && ep.Error != "" {
			if base != nil {
				return errors.Wrapf(base, "server error (status %d): %s", resp.StatusCode, ep.Error)
			}
			return errors.Newf("server error (status %d): %s", resp.StatusCode, ep.Error)
		}
		if base != nil {
			return errors.Wrapf(base, "server error: unexpected status %d", resp.StatusCode)
		}
		return errors.Newf("server error: unexpected status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}
