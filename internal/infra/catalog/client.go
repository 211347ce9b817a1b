package catalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Client is a Piped-compatible catalog API client.
type Client struct {
	baseURL    string
	region     string
	httpClient *http.Client
}

// Config represents catalog client configuration.
type Config struct {
	BaseURL string
	Region  string
	Timeout time.Duration
}

// apiError is the upstream error payload.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("catalog base URL is required")
	}
	region := cfg.Region
	if region == "" {
		region = "US"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		region:     region,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Streams retrieves the streaming representations and basic metadata
// for a track, including its related streams.
func (c *Client) Streams(ctx context.Context, id string) (StreamInfo, error) {
	var info StreamInfo
	if err := c.getJSON(ctx, "/streams/"+url.PathEscape(id), nil, &info); err != nil {
		return StreamInfo{}, errors.Wrapf(err, "streams %s", id)
	}
	return info, nil
}

// Related returns the catalog's up-next suggestions for a track.
// Piped exposes them on the streams payload rather than a dedicated
// endpoint, so this is a streams fetch that keeps only the listing.
func (c *Client) Related(ctx context.Context, id string) ([]Item, error) {
	info, err := c.Streams(ctx, id)
	if err != nil {
		return nil, err
	}
	return info.RelatedStreams, nil
}

// Search queries the catalog. filter follows the upstream vocabulary
// (music_songs, music_albums, music_artists, music_playlists).
func (c *Client) Search(ctx context.Context, query, filter string) ([]Item, error) {
	if query == "" {
		return nil, errors.New("search query is required")
	}
	if filter == "" {
		filter = "music_songs"
	}
	var resp struct {
		Items []Item `json:"items"`
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("filter", filter)
	if err := c.getJSON(ctx, "/search", params, &resp); err != nil {
		return nil, errors.Wrapf(err, "search %q", query)
	}
	zlog.Debug().Str("query", query).Str("filter", filter).Int("items", len(resp.Items)).Msg("catalog search")
	return resp.Items, nil
}

// Suggestions returns search completions for a partial query.
func (c *Client) Suggestions(ctx context.Context, query string) ([]string, error) {
	if query == "" {
		return nil, nil
	}
	var out []string
	params := url.Values{}
	params.Set("query", query)
	if err := c.getJSON(ctx, "/suggestions", params, &out); err != nil {
		return nil, errors.Wrapf(err, "suggestions %q", query)
	}
	return out, nil
}

// Playlist retrieves a remote playlist or album listing.
func (c *Client) Playlist(ctx context.Context, id string) (PlaylistInfo, error) {
	var info PlaylistInfo
	if err := c.getJSON(ctx, "/playlists/"+url.PathEscape(id), nil, &info); err != nil {
		return PlaylistInfo{}, errors.Wrapf(err, "playlist %s", id)
	}
	return info, nil
}

// Trending returns the region's trending listing.
func (c *Client) Trending(ctx context.Context) ([]Item, error) {
	var items []Item
	params := url.Values{}
	params.Set("region", c.region)
	if err := c.getJSON(ctx, "/trending", params, &items); err != nil {
		return nil, errors.Wrap(err, "trending")
	}
	return items, nil
}

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
		var ae apiError
		if jsonErr := json.Unmarshal(body, &ae); jsonErr == nil && (ae.Error != "" || ae.Message != "") {
			msg := ae.Message
			if msg == "" {
				msg = ae.Error
			}
			return errors.Newf("catalog error (status %d): %s", resp.StatusCode, msg)
		}
		return errors.Newf("catalog error: unexpected status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}
