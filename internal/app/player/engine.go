// Package player provides the playback transport state machine.
//
// The engine owns the queue and the playback session. It consumes the
// resolution cache, drives the output sink, and guards against stale
// asynchronous resolutions with a request generation counter: a
// resolution response is applied only when its generation still matches
// the engine's, so the last user intent always wins.
package player

import (
	"context"
	"math/rand"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/hmdyt/melodio/internal/app/resolver"
	"github.com/hmdyt/melodio/internal/domain/queue"
	"github.com/hmdyt/melodio/internal/domain/track"
)

const (
	// placeholderTitle is shown until catalog metadata arrives.
	placeholderTitle = "Loading..."
	// restartThresholdSec is how far into a track "previous" restarts
	// it instead of moving the cursor.
	restartThresholdSec = 3.0
)

// Resolver is the slice of the resolution store the engine consumes.
type Resolver interface {
	Resolve(ctx context.Context, id string) (resolver.Resolution, error)
	Peek(id string) (resolver.Resolution, bool)
	Prefetch(id string)
	Related(ctx context.Context, seedID string) ([]track.Track, error)
}

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	Rand           *rand.Rand
	MaxAutoQueue   int           // related tracks appended on auto-continuation (default 10)
	PrefetchAhead  int           // upcoming tracks prefetched after a resolution (default 2)
	ResolveTimeout time.Duration // per-resolution deadline (default 30s)

	// Initial durable preferences. Volume is a pointer so an explicit
	// zero level survives a restart; nil selects full volume.
	Volume   *float64
	Repeat   RepeatMode
	Shuffled bool
}

// Engine is the transport state machine.
type Engine struct {
	mu    sync.Mutex
	res   Resolver
	sink  Sink
	queue *queue.Queue

	session    Session
	generation uint64 // stamped into every playTrack, compared on completion

	maxAutoQueue   int
	prefetchAhead  int
	resolveTimeout time.Duration
}

// New creates an engine in the Empty state.
func New(res Resolver, sink Sink, opts Options) *Engine {
	if sink == nil {
		sink = NopSink{}
	}
	if opts.MaxAutoQueue <= 0 {
		opts.MaxAutoQueue = 10
	}
	if opts.PrefetchAhead <= 0 {
		opts.PrefetchAhead = 2
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = 30 * time.Second
	}
	volume := 1.0
	if opts.Volume != nil {
		volume = clampVolume(*opts.Volume)
	}
	repeat := opts.Repeat
	if repeat == "" {
		repeat = RepeatOff
	}
	e := &Engine{
		res:   res,
		sink:  sink,
		queue: queue.New(opts.Rand),
		session: Session{
			Volume:   volume,
			Muted:    volume == 0,
			Repeat:   repeat,
			Shuffled: opts.Shuffled,
		},
		maxAutoQueue:   opts.MaxAutoQueue,
		prefetchAhead:  opts.PrefetchAhead,
		resolveTimeout: opts.ResolveTimeout,
	}
	sink.SetVolume(volume)
	return e
}

// Snapshot returns a copy of the current session.
func (e *Engine) Snapshot() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session
	if s.CurrentTrack != nil {
		t := *s.CurrentTrack
		s.CurrentTrack = &t
	}
	return s
}

// QueueTracks returns the live queue order.
func (e *Engine) QueueTracks() []track.Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Items()
}

// QueueCursor returns the current cursor position.
func (e *Engine) QueueCursor() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Cursor()
}

// SetQueue replaces the queue wholesale, starts playback at startIndex,
// and prefetches the next two tracks.
func (e *Engine) SetQueue(tracks []track.Track, startIndex int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.queue.Replace(tracks, startIndex)
	e.queue.SetShuffled(e.session.Shuffled)
	e.playCurrentLocked()
	e.prefetchUpcomingLocked(e.prefetchAhead)
}

// InsertNext inserts t right after the cursor and prefetches it: it is
// the most likely next play.
func (e *Engine) InsertNext(t track.Track) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue.InsertNext(t)
	e.res.Prefetch(t.ID)
}

// Append adds t to the end of the queue and prefetches it.
func (e *Engine) Append(t track.Track) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue.Append(t)
	e.res.Prefetch(t.ID)
}

// RemoveAt removes the track at index from the queue.
func (e *Engine) RemoveAt(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue.RemoveAt(index)
}

// ClearQueue empties the queue.
func (e *Engine) ClearQueue() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue.Clear()
}

// PlayTrack loads and plays t, superseding any resolution in flight.
func (e *Engine) PlayTrack(t track.Track) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playTrackLocked(t)
}

// PlayAt moves the cursor to index and plays that track.
func (e *Engine) PlayAt(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.queue.SetCursor(index) {
		e.playCurrentLocked()
	}
}

// PlayNext advances to the next track. At the end of the queue it wraps
// under repeat-all, otherwise it auto-continues from the catalog's
// up-next listing; when that yields nothing, playback stops silently.
func (e *Engine) PlayNext() {
	e.mu.Lock()

	next := e.queue.Cursor() + 1
	if next < e.queue.Len() {
		e.queue.SetCursor(next)
		e.playCurrentLocked()
		e.mu.Unlock()
		return
	}

	if e.session.Repeat == RepeatAll && e.queue.Len() > 0 {
		e.queue.SetCursor(0)
		e.playCurrentLocked()
		e.mu.Unlock()
		return
	}

	cur := e.session.CurrentTrack
	if cur == nil {
		e.session.IsPlaying = false
		e.mu.Unlock()
		return
	}
	seedID := cur.ID
	gen := e.generation
	e.mu.Unlock()

	e.continueFromRelated(gen, seedID)
}

// PlayPrevious restarts the current track when more than three seconds
// have elapsed; otherwise it steps the cursor back, wrapping under
// repeat-all and clamping to the start otherwise.
func (e *Engine) PlayPrevious() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.CurrentTime > restartThresholdSec {
		e.sink.Seek(0)
		e.session.CurrentTime = 0
		return
	}

	if e.queue.Len() == 0 {
		return
	}
	prev := e.queue.Cursor() - 1
	if prev < 0 {
		if e.session.Repeat == RepeatAll {
			prev = e.queue.Len() - 1
		} else {
			prev = 0
		}
	}
	e.queue.SetCursor(prev)
	e.playCurrentLocked()
}

// TogglePlay flips between playing and paused.
func (e *Engine) TogglePlay() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.CurrentTrack == nil {
		return
	}
	if e.session.IsPlaying {
		e.sink.Pause()
		e.session.IsPlaying = false
	} else {
		e.sink.Play()
		e.session.IsPlaying = true
	}
}

// ToggleRepeat cycles the repeat mode.
func (e *Engine) ToggleRepeat() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Repeat = e.session.Repeat.Next()
}

// ToggleShuffle flips shuffle mode. The session flag is the source of
// truth; the queue follows it, so a shuffle mode restored from
// preferences toggles off correctly even before any queue exists.
func (e *Engine) ToggleShuffle() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Shuffled = !e.session.Shuffled
	e.queue.SetShuffled(e.session.Shuffled)
}

// Seek jumps to the given position in the current track.
func (e *Engine) Seek(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink.Seek(seconds)
	e.session.CurrentTime = seconds
}

// SetVolume sets the output volume, clamped to [0, 1].
func (e *Engine) SetVolume(level float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	level = clampVolume(level)
	e.sink.SetVolume(level)
	e.session.Volume = level
	e.session.Muted = level == 0
}

// ToggleMute flips the mute flag without losing the volume level.
func (e *Engine) ToggleMute() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Muted = !e.session.Muted
	e.sink.SetMuted(e.session.Muted)
}

// OnTimeUpdate feeds playback progress from the sink.
func (e *Engine) OnTimeUpdate(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.CurrentTime = seconds
}

// OnLoadedMetadata feeds the media duration from the sink.
func (e *Engine) OnLoadedMetadata(durationSec float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Duration = durationSec
}

// OnEnded handles natural end-of-track. Under repeat-one the same track
// restarts from zero without re-resolving; otherwise this behaves
// exactly like PlayNext.
func (e *Engine) OnEnded() {
	e.mu.Lock()
	if e.session.Repeat == RepeatOne && e.session.CurrentTrack != nil {
		e.session.CurrentTime = 0
		e.session.IsPlaying = true
		e.sink.Seek(0)
		e.sink.Play()
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.PlayNext()
}

// OnSinkError records a playback error reported by the sink.
func (e *Engine) OnSinkError(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Err = msg
	e.session.IsPlaying = false
	e.session.IsLoading = false
}

func (e *Engine) playCurrentLocked() {
	t, ok := e.queue.Current()
	if !ok {
		return
	}
	e.playTrackLocked(t)
}

func (e *Engine) playTrackLocked(t track.Track) {
	e.generation++
	gen := e.generation

	display := t
	if display.Title == "" {
		display.Title = placeholderTitle
	}
	e.session.CurrentTrack = &display
	e.session.IsPlaying = true
	e.session.IsLoading = true
	e.session.Err = ""
	e.session.CurrentTime = 0
	e.session.AudioURL = ""

	// Cache hit: go straight to ready, no suspension point.
	if r, ok := e.res.Peek(t.ID); ok {
		e.applyResolutionLocked(t, r)
		e.prefetchUpcomingLocked(1)
		return
	}

	go e.resolveAsync(gen, t)
}

func (e *Engine) resolveAsync(gen uint64, t track.Track) {
	ctx, cancel := context.WithTimeout(context.Background(), e.resolveTimeout)
	defer cancel()
	r, err := e.res.Resolve(ctx, t.ID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation {
		// A newer selection superseded this request; the stale
		// response is dropped without touching any state.
		zlog.Debug().Str("track", t.ID).Msg("discarding stale resolution")
		return
	}

	if err != nil {
		zlog.Warn().Str("track", t.ID).Err(err).Msg("resolution failed")
		e.session.Err = err.Error()
		e.session.IsLoading = false
		e.session.IsPlaying = false
		return
	}

	e.applyResolutionLocked(t, r)
	e.prefetchUpcomingLocked(e.prefetchAhead)
}

func (e *Engine) applyResolutionLocked(t track.Track, r resolver.Resolution) {
	enriched := t.Merge(r.Track)
	if enriched.Title == "" {
		enriched.Title = placeholderTitle
	}
	e.session.CurrentTrack = &enriched
	e.session.AudioURL = r.Stream.URL
	e.session.IsLoading = false

	e.sink.Load(r.Stream.URL)
	if e.session.IsPlaying {
		e.sink.Play()
	}
}

// continueFromRelated implements auto-continuation: append up to
// maxAutoQueue related tracks and advance into the first. Failures
// degrade silently to stopping playback; they are never surfaced.
func (e *Engine) continueFromRelated(gen uint64, seedID string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.resolveTimeout)
	defer cancel()
	related, err := e.res.Related(ctx, seedID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation {
		return
	}

	if err != nil || len(related) == 0 {
		if err != nil {
			zlog.Debug().Str("seed", seedID).Err(err).Msg("related fetch failed, stopping playback")
		}
		e.session.IsPlaying = false
		e.sink.Pause()
		return
	}

	if len(related) > e.maxAutoQueue {
		related = related[:e.maxAutoQueue]
	}
	start := e.queue.Len()
	e.queue.AppendAll(related)
	e.queue.SetCursor(start)
	e.playCurrentLocked()
	e.prefetchUpcomingLocked(e.prefetchAhead)
}

func clampVolume(level float64) float64 {
	if level < 0 {
		return 0
	}
	if level > 1 {
		return 1
	}
	return level
}

func (e *Engine) prefetchUpcomingLocked(n int) {
	for off := 1; off <= n; off++ {
		if t, ok := e.queue.At(e.queue.Cursor() + off); ok {
			e.res.Prefetch(t.ID)
		}
	}
}
