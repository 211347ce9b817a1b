// Package resolver provides the audio resolution cache.
//
// The store maps a track identifier to a time-limited playable stream
// location. Resolutions hit the upstream catalog at most once per TTL
// window; concurrent requests for the same identifier share a single
// upstream fetch. Prefetch warms the cache in the background and never
// surfaces failures.
package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/hmdyt/melodio/internal/domain/track"
	"github.com/hmdyt/melodio/internal/infra/catalog"
)

// Errors
var (
	ErrInvalidIdentifier = errors.New("invalid track identifier")
	ErrNoAudioStream     = errors.New("no audio stream available")
)

const (
	defaultTTL        = 30 * time.Minute
	defaultRelatedTTL = 5 * time.Minute
	prefetchTimeout   = 30 * time.Second
)

// StreamSource is the upstream the store resolves against. The server
// wires the catalog client; the player CLI wires the REST API client.
type StreamSource interface {
	Streams(ctx context.Context, id string) (catalog.StreamInfo, error)
	Related(ctx context.Context, id string) ([]catalog.Item, error)
}

// ResolvedStream is an immutable resolved playback location. It is
// replaced wholesale on re-resolution, never mutated.
type ResolvedStream struct {
	URL        string
	Bitrate    int
	MimeType   string
	ResolvedAt time.Time
}

// Resolution couples the resolved stream with the catalog metadata
// fetched alongside it.
type Resolution struct {
	Track  track.Track
	Stream ResolvedStream
}

type relatedEntry struct {
	tracks    []track.Track
	fetchedAt time.Time
}

// Options configures a Store. Zero values select the defaults.
type Options struct {
	TTL        time.Duration
	RelatedTTL time.Duration
	Now        func() time.Time // injectable clock for tests
}

// Store owns the identifier → resolved-stream cache and the in-flight
// deduplication state. Entries expire lazily on read; there is no
// background sweep.
type Store struct {
	source     StreamSource
	ttl        time.Duration
	relatedTTL time.Duration
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]Resolution
	pending map[string]struct{}
	related map[string]relatedEntry

	group singleflight.Group
}

// New creates a resolution store backed by source.
func New(source StreamSource, opts Options) *Store {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.RelatedTTL <= 0 {
		opts.RelatedTTL = defaultRelatedTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		source:     source,
		ttl:        opts.TTL,
		relatedTTL: opts.RelatedTTL,
		now:        opts.Now,
		entries:    make(map[string]Resolution),
		pending:    make(map[string]struct{}),
		related:    make(map[string]relatedEntry),
	}
}

// Resolve returns a playable stream for id. Fresh cache entries are
// served without network access; otherwise concurrent callers attach to
// a single upstream fetch. Failed resolutions leave no pending state,
// so the next call retries.
func (s *Store) Resolve(ctx context.Context, id string) (Resolution, error) {
	if !track.ValidID(id) {
		return Resolution{}, errors.Wrapf(ErrInvalidIdentifier, "%q", id)
	}
	if r, ok := s.Peek(id); ok {
		return r, nil
	}

	v, err, _ := s.group.Do(id, func() (any, error) {
		// Re-check under the flight: another caller may have just
		// stored a fresh entry.
		if r, ok := s.Peek(id); ok {
			return r, nil
		}
		s.setPending(id, true)
		defer s.setPending(id, false)
		return s.fetch(ctx, id)
	})
	if err != nil {
		return Resolution{}, err
	}
	return v.(Resolution), nil
}

// Peek returns the cached resolution without resolving. Entries older
// than the TTL are treated as absent.
func (s *Store) Peek(id string) (Resolution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.entries[id]
	if !ok || s.now().Sub(r.Stream.ResolvedAt) >= s.ttl {
		return Resolution{}, false
	}
	return r, true
}

// Prefetch warms the cache for id in the background. It never blocks
// the caller and never reports failure; it is a no-op when the id is
// malformed, already cached, or already being resolved.
func (s *Store) Prefetch(id string) {
	if !track.ValidID(id) {
		return
	}
	if _, ok := s.Peek(id); ok {
		return
	}
	if s.isPending(id) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), prefetchTimeout)
		defer cancel()
		if _, err := s.Resolve(ctx, id); err != nil {
			// Best-effort: a played track retries synchronously anyway.
			zlog.Debug().Str("track", id).Err(err).Msg("prefetch discarded")
		}
	}()
}

// Related returns the catalog's up-next tracks for seedID, excluding
// the seed itself. Results are cached per seed with a short TTL and
// deduplicated in flight like direct resolutions.
func (s *Store) Related(ctx context.Context, seedID string) ([]track.Track, error) {
	if !track.ValidID(seedID) {
		return nil, errors.Wrapf(ErrInvalidIdentifier, "%q", seedID)
	}
	if ts, ok := s.peekRelated(seedID); ok {
		return ts, nil
	}

	v, err, _ := s.group.Do("related:"+seedID, func() (any, error) {
		if ts, ok := s.peekRelated(seedID); ok {
			return ts, nil
		}
		items, err := s.source.Related(ctx, seedID)
		if err != nil {
			return nil, errors.Wrapf(err, "related %s", seedID)
		}
		ts := withoutSeed(catalog.Tracks(items), seedID)
		s.storeRelated(seedID, ts)
		return ts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]track.Track), nil
}

// Size returns the number of cached resolutions, fresh or stale.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) fetch(ctx context.Context, id string) (Resolution, error) {
	info, err := s.source.Streams(ctx, id)
	if err != nil {
		return Resolution{}, errors.Wrapf(err, "resolve %s", id)
	}

	best, ok := bestAudio(info.AudioStreams)
	if !ok {
		return Resolution{}, errors.Wrapf(ErrNoAudioStream, "track %s", id)
	}

	r := Resolution{
		Track: track.Track{
			ID:           id,
			Title:        info.Title,
			ArtistName:   info.Uploader,
			ThumbnailURL: info.ThumbnailURL,
			DurationSec:  info.Duration,
		},
		Stream: ResolvedStream{
			URL:        best.URL,
			Bitrate:    best.Bitrate,
			MimeType:   best.MimeType,
			ResolvedAt: s.now(),
		},
	}

	s.mu.Lock()
	s.entries[id] = r
	s.mu.Unlock()

	// The streams payload carries the up-next listing; warm the related
	// cache from the same fetch.
	if len(info.RelatedStreams) > 0 {
		s.storeRelated(id, withoutSeed(catalog.Tracks(info.RelatedStreams), id))
	}

	zlog.Debug().Str("track", id).Int("bitrate", best.Bitrate).Msg("resolved audio stream")
	return r, nil
}

// bestAudio selects the highest-bitrate audio-only representation.
func bestAudio(streams []catalog.AudioStream) (catalog.AudioStream, bool) {
	var best catalog.AudioStream
	found := false
	for _, st := range streams {
		if !st.IsAudio() || st.URL == "" {
			continue
		}
		if !found || st.Bitrate > best.Bitrate {
			best = st
			found = true
		}
	}
	return best, found
}

func withoutSeed(ts []track.Track, seedID string) []track.Track {
	out := ts[:0:len(ts)]
	for _, t := range ts {
		if t.ID != seedID {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) peekRelated(seedID string) ([]track.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.related[seedID]
	if !ok || s.now().Sub(e.fetchedAt) >= s.relatedTTL {
		return nil, false
	}
	return e.tracks, true
}

func (s *Store) storeRelated(seedID string, ts []track.Track) {
	s.mu.Lock()
	s.related[seedID] = relatedEntry{tracks: ts, fetchedAt: s.now()}
	s.mu.Unlock()
}

func (s *Store) setPending(id string, on bool) {
	s.mu.Lock()
	if on {
		s.pending[id] = struct{}{}
	} else {
		delete(s.pending, id)
	}
	s.mu.Unlock()
}

func (s *Store) isPending(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pending[id]
	return ok
}
