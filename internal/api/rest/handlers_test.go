package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmdyt/melodio/internal/app/resolver"
	"github.com/hmdyt/melodio/internal/domain/track"
	"github.com/hmdyt/melodio/internal/infra/catalog"
	"github.com/hmdyt/melodio/internal/infra/lyrics"
)

const (
	trackA = "aaaaaaaaaa1"
	trackB = "aaaaaaaaaa2"
	trackC = "aaaaaaaaaa3"
)

func watchURL(id string) string {
	return "/watch?v=" + id
}

// fakeSource backs the resolver in handler tests.
type fakeSource struct {
	mu    sync.Mutex
	infos map[string]catalog.StreamInfo
	errs  map[string]error
	calls int
}

func (f *fakeSource) Streams(_ context.Context, id string) (catalog.StreamInfo, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err, ok := f.errs[id]; ok {
		return catalog.StreamInfo{}, err
	}
	info, ok := f.infos[id]
	if !ok {
		return catalog.StreamInfo{}, errors.Newf("unknown track %s", id)
	}
	return info, nil
}

func (f *fakeSource) Related(ctx context.Context, id string) ([]catalog.Item, error) {
	info, err := f.Streams(ctx, id)
	if err != nil {
		return nil, err
	}
	return info.RelatedStreams, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeCatalog backs the browsing endpoints.
type fakeCatalog struct {
	searchItems   []catalog.Item
	searchErr     error
	suggestions   []string
	playlist      catalog.PlaylistInfo
	playlistErr   error
	trendingItems []catalog.Item
}

func (f *fakeCatalog) Search(context.Context, string, string) ([]catalog.Item, error) {
	return f.searchItems, f.searchErr
}

func (f *fakeCatalog) Suggestions(context.Context, string) ([]string, error) {
	return f.suggestions, nil
}

func (f *fakeCatalog) Playlist(context.Context, string) (catalog.PlaylistInfo, error) {
	return f.playlist, f.playlistErr
}

func (f *fakeCatalog) Trending(context.Context) ([]catalog.Item, error) {
	return f.trendingItems, nil
}

func streamInfo(title string, bitrate int) catalog.StreamInfo {
	return catalog.StreamInfo{
		Title:    title,
		Uploader: "Artist",
		Duration: 200,
		AudioStreams: []catalog.AudioStream{
			{URL: "https://audio/" + title, Bitrate: bitrate, MimeType: "audio/mp4"},
		},
	}
}

func newTestServer(src *fakeSource, cat Catalog, lyr *lyrics.Client) (*Server, *resolver.Store) {
	res := resolver.New(src, resolver.Options{})
	srv := New(Config{SearchPrefetch: 2, RelatedPrefetch: 2}, res, cat, lyr)
	return srv, res
}

func doRequest(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(&fakeSource{}, &fakeCatalog{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["cacheSize"])
}

func TestHandleStreams(t *testing.T) {
	src := &fakeSource{
		infos: map[string]catalog.StreamInfo{trackA: streamInfo("Song A", 160)},
		errs:  map[string]error{trackB: errors.New("upstream exploded")},
	}
	srv, _ := newTestServer(src, &fakeCatalog{}, nil)

	t.Run("resolves and returns the stream", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/streams/"+trackA)
		require.Equal(t, http.StatusOK, rec.Code)

		var body streamResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, trackA, body.VideoID)
		assert.Equal(t, "Song A", body.Title)
		require.Len(t, body.AudioStreams, 1)
		assert.Equal(t, 160, body.AudioStreams[0].Bitrate)
	})

	t.Run("serves repeat requests from cache", func(t *testing.T) {
		before := src.callCount()
		rec := doRequest(t, srv, http.MethodGet, "/api/streams/"+trackA)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, before, src.callCount())
	})

	t.Run("rejects malformed ids", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/streams/not-an-id")
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "invalid video id", body.Error)
	})

	t.Run("surfaces upstream failures", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/api/streams/"+trackB)
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Contains(t, body.Error, "upstream exploded")
	})
}

func TestHandleSearch(t *testing.T) {
	src := &fakeSource{
		infos: map[string]catalog.StreamInfo{
			trackA: streamInfo("Song A", 128),
			trackB: streamInfo("Song B", 128),
		},
	}
	cat := &fakeCatalog{
		searchItems: []catalog.Item{
			{URL: watchURL(trackA), Title: "Song A", UploaderName: "Artist"},
			{URL: watchURL(trackB), Title: "Song B", UploaderName: "Artist"},
			{URL: watchURL(trackC), Title: "Song C", UploaderName: "Artist"},
			{URL: "/channel/xyz", Title: "Not a track"},
		},
	}
	srv, res := newTestServer(src, cat, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/search?q=song")
	require.Equal(t, http.StatusOK, rec.Code)

	var tracks []track.Track
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tracks))
	require.Len(t, tracks, 3, "channel entries are dropped")
	assert.Equal(t, trackA, tracks[0].ID)

	// The top results are prefetched in the background.
	require.Eventually(t, func() bool {
		return res.Size() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHandleSearch_MissingQuery(t *testing.T) {
	srv, _ := newTestServer(&fakeSource{}, &fakeCatalog{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/search")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSuggestions_EmptyQuery(t *testing.T) {
	srv, _ := newTestServer(&fakeSource{}, &fakeCatalog{suggestions: []string{"never"}}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/suggestions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHandleRelated(t *testing.T) {
	src := &fakeSource{
		infos: map[string]catalog.StreamInfo{
			trackA: {
				Title:        "Seed",
				AudioStreams: []catalog.AudioStream{{URL: "https://audio/seed", Bitrate: 128, MimeType: "audio/mp4"}},
				RelatedStreams: []catalog.Item{
					{URL: watchURL(trackA), Title: "Seed"},
					{URL: watchURL(trackB), Title: "Song B"},
					{URL: watchURL(trackC), Title: "Song C"},
				},
			},
		},
	}
	srv, _ := newTestServer(src, &fakeCatalog{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/related/"+trackA)
	require.Equal(t, http.StatusOK, rec.Code)

	var tracks []track.Track
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tracks))
	require.Len(t, tracks, 2, "seed track is excluded")
	assert.Equal(t, trackB, tracks[0].ID)
	assert.Equal(t, trackC, tracks[1].ID)
}

func TestHandleRelated_InvalidID(t *testing.T) {
	srv, _ := newTestServer(&fakeSource{}, &fakeCatalog{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/related/bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTrending(t *testing.T) {
	cat := &fakeCatalog{
		trendingItems: []catalog.Item{
			{URL: watchURL(trackA), Title: "Trending A"},
			{URL: watchURL(trackA), Title: "Trending A again"},
		},
	}
	srv, _ := newTestServer(&fakeSource{}, cat, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/trending")
	require.Equal(t, http.StatusOK, rec.Code)

	var tracks []track.Track
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tracks))
	require.Len(t, tracks, 1, "duplicates are dropped")
}

func TestHandlePlaylist(t *testing.T) {
	cat := &fakeCatalog{
		playlist: catalog.PlaylistInfo{
			Name:     "Chill Mix",
			Uploader: "Curator",
			RelatedStreams: []catalog.Item{
				{URL: watchURL(trackA), Title: "Song A"},
			},
		},
	}
	srv, _ := newTestServer(&fakeSource{}, cat, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/playlists/PL123")
	require.Equal(t, http.StatusOK, rec.Code)

	var body playlistResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Chill Mix", body.Name)
	require.Len(t, body.Tracks, 1)
	assert.Equal(t, trackA, body.Tracks[0].ID)
}

func TestHandleLyrics(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"trackName": "Song", "artistName": "Artist", "plainLyrics": "la", "syncedLyrics": "[00:01.00] la"}]`))
	}))
	defer backend.Close()

	srv, _ := newTestServer(&fakeSource{}, &fakeCatalog{}, lyrics.New(lyrics.Config{BaseURL: backend.URL}))

	rec := doRequest(t, srv, http.MethodGet, "/api/lyrics?track=Song&artist=Artist")
	require.Equal(t, http.StatusOK, rec.Code)

	var body lyricsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Song", body.TrackName)
	assert.True(t, body.Synced)
}

func TestHandleLyrics_Disabled(t *testing.T) {
	srv, _ := newTestServer(&fakeSource{}, &fakeCatalog{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/lyrics?track=Song")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSHeaders(t *testing.T) {
	srv, _ := newTestServer(&fakeSource{}, &fakeCatalog{}, nil)
	srv.cfg.AllowedOrigins = []string{"http://localhost:5173"}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
