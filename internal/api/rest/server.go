// Package rest exposes the resolution cache and catalog over HTTP.
package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/hmdyt/melodio/internal/app/resolver"
	"github.com/hmdyt/melodio/internal/infra/catalog"
	"github.com/hmdyt/melodio/internal/infra/lyrics"
)

// Catalog is the browsing surface the API proxies. The stream resolution
// path goes through the resolver, not this interface.
type Catalog interface {
	Search(ctx context.Context, query, filter string) ([]catalog.Item, error)
	Suggestions(ctx context.Context, query string) ([]string, error)
	Playlist(ctx context.Context, id string) (catalog.PlaylistInfo, error)
	Trending(ctx context.Context) ([]catalog.Item, error)
}

// Config represents API server configuration.
type Config struct {
	Addr            string
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	SearchPrefetch  int
	RelatedPrefetch int
}

// Server is the HTTP API server.
type Server struct {
	cfg      Config
	resolver *resolver.Store
	catalog  Catalog
	lyrics   *lyrics.Client // nil when lyrics lookup is disabled
}

// New creates an API server. lyricsClient may be nil to disable the
// lyrics endpoint.
func New(cfg Config, res *resolver.Store, cat Catalog, lyricsClient *lyrics.Client) *Server {
	return &Server{
		cfg:      cfg,
		resolver: res,
		catalog:  cat,
		lyrics:   lyricsClient,
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger)
	r.Use(corsMiddleware(s.cfg.AllowedOrigins))

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/suggestions", s.handleSuggestions).Methods(http.MethodGet)
	api.HandleFunc("/streams/{videoId}", s.handleStreams).Methods(http.MethodGet)
	api.HandleFunc("/related/{videoId}", s.handleRelated).Methods(http.MethodGet)
	api.HandleFunc("/trending", s.handleTrending).Methods(http.MethodGet)
	api.HandleFunc("/playlists/{playlistId}", s.handlePlaylist).Methods(http.MethodGet)
	api.HandleFunc("/lyrics", s.handleLyrics).Methods(http.MethodGet)

	// CORS preflight for any API path.
	api.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

// Run starts the server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      h2c.NewHandler(s.Router(), &http2.Server{}),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting API server: addr=%s", s.cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
		return err
	}
	zlog.Info().Msg("API server stopped")
	return nil
}
