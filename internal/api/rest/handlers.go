package rest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
	zlog "github.com/rs/zerolog/log"

	"github.com/hmdyt/melodio/internal/app/resolver"
	"github.com/hmdyt/melodio/internal/domain/track"
	"github.com/hmdyt/melodio/internal/infra/catalog"
	"github.com/hmdyt/melodio/internal/infra/lyrics"
)

// streamResponse is the wire shape of a resolved stream.
type streamResponse struct {
	VideoID      string               `json:"videoId"`
	Title        string               `json:"title"`
	Uploader     string               `json:"uploader"`
	ThumbnailURL string               `json:"thumbnailUrl"`
	Duration     int                  `json:"duration"`
	AudioStreams []audioStreamPayload `json:"audioStreams"`
}

type audioStreamPayload struct {
	URL      string `json:"url"`
	Bitrate  int    `json:"bitrate"`
	MimeType string `json:"mimeType"`
}

type playlistResponse struct {
	Name         string        `json:"name"`
	Uploader     string        `json:"uploader"`
	ThumbnailURL string        `json:"thumbnailUrl"`
	Tracks       []track.Track `json:"tracks"`
}

type lyricsResponse struct {
	TrackName    string `json:"trackName"`
	ArtistName   string `json:"artistName"`
	PlainLyrics  string `json:"plainLyrics"`
	SyncedLyrics string `json:"syncedLyrics"`
	Synced       bool   `json:"synced"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"cacheSize": s.resolver.Size(),
	})
}

// handleSearch proxies a catalog search and warms the resolution cache
// for the top results.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	filter := r.URL.Query().Get("filter")

	items, err := s.catalog.Search(r.Context(), query, filter)
	if err != nil {
		zlog.Error().Err(err).Str("query", query).Msg("search failed")
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	tracks := catalog.Tracks(items)
	for i, t := range tracks {
		if i >= s.cfg.SearchPrefetch {
			break
		}
		s.resolver.Prefetch(t.ID)
	}

	writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeJSON(w, http.StatusOK, []string{})
		return
	}

	suggestions, err := s.catalog.Suggestions(r.Context(), query)
	if err != nil {
		zlog.Error().Err(err).Str("query", query).Msg("suggestions failed")
		writeError(w, http.StatusInternalServerError, "suggestions failed")
		return
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	writeJSON(w, http.StatusOK, suggestions)
}

func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["videoId"]

	res, err := s.resolver.Resolve(r.Context(), id)
	switch {
	case errors.Is(err, resolver.ErrInvalidIdentifier):
		writeError(w, http.StatusBadRequest, "invalid video id")
		return
	case err != nil:
		zlog.Error().Err(err).Str("track", id).Msg("stream resolution failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, streamResponse{
		VideoID:      res.Track.ID,
		Title:        res.Track.Title,
		Uploader:     res.Track.ArtistName,
		ThumbnailURL: res.Track.ThumbnailURL,
		Duration:     res.Track.DurationSec,
		AudioStreams: []audioStreamPayload{{
			URL:      res.Stream.URL,
			Bitrate:  res.Stream.Bitrate,
			MimeType: res.Stream.MimeType,
		}},
	})
}

// handleRelated returns the up-next listing for a track and warms the
// resolution cache for the head of it.
func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["videoId"]

	tracks, err := s.resolver.Related(r.Context(), id)
	switch {
	case errors.Is(err, resolver.ErrInvalidIdentifier):
		writeError(w, http.StatusBadRequest, "invalid video id")
		return
	case err != nil:
		zlog.Error().Err(err).Str("track", id).Msg("related lookup failed")
		writeError(w, http.StatusInternalServerError, "related lookup failed")
		return
	}

	for i, t := range tracks {
		if i >= s.cfg.RelatedPrefetch {
			break
		}
		s.resolver.Prefetch(t.ID)
	}

	writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	items, err := s.catalog.Trending(r.Context())
	if err != nil {
		zlog.Error().Err(err).Msg("trending failed")
		writeError(w, http.StatusInternalServerError, "trending failed")
		return
	}
	writeJSON(w, http.StatusOK, catalog.Tracks(items))
}

func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["playlistId"]

	info, err := s.catalog.Playlist(r.Context(), id)
	if err != nil {
		zlog.Error().Err(err).Str("playlist", id).Msg("playlist lookup failed")
		writeError(w, http.StatusInternalServerError, "playlist lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, playlistResponse{
		Name:         info.Name,
		Uploader:     info.Uploader,
		ThumbnailURL: info.ThumbnailURL,
		Tracks:       catalog.Tracks(info.RelatedStreams),
	})
}

func (s *Server) handleLyrics(w http.ResponseWriter, r *http.Request) {
	if s.lyrics == nil {
		writeError(w, http.StatusNotFound, "lyrics lookup is disabled")
		return
	}

	trackName := r.URL.Query().Get("track")
	if trackName == "" {
		writeError(w, http.StatusBadRequest, "query parameter track is required")
		return
	}
	artistName := r.URL.Query().Get("artist")
	duration, _ := strconv.Atoi(r.URL.Query().Get("duration"))

	results, err := s.lyrics.Search(r.Context(), trackName, artistName, duration)
	if err != nil {
		zlog.Error().Err(err).Str("track", trackName).Msg("lyrics lookup failed")
		writeError(w, http.StatusInternalServerError, "lyrics lookup failed")
		return
	}

	best, ok := lyrics.Best(results)
	if !ok {
		writeError(w, http.StatusNotFound, "no lyrics found")
		return
	}

	writeJSON(w, http.StatusOK, lyricsResponse{
		TrackName:    best.TrackName,
		ArtistName:   best.ArtistName,
		PlainLyrics:  best.PlainLyrics,
		SyncedLyrics: best.SyncedLyrics,
		Synced:       best.Synced(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
