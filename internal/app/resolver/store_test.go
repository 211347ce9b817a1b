package resolver

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmdyt/melodio/internal/infra/catalog"
)

const (
	trackA = "aaaaaaaaaa1"
	trackB = "aaaaaaaaaa2"
)

// fakeSource is a controllable upstream for cache behavior tests.
type fakeSource struct {
	mu      sync.Mutex
	infos   map[string]catalog.StreamInfo
	errs    map[string]error
	calls   atomic.Int64
	release chan struct{} // when set, Streams blocks until closed
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		infos: map[string]catalog.StreamInfo{},
		errs:  map[string]error{},
	}
}

func (f *fakeSource) setInfo(id string, info catalog.StreamInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infos[id] = info
}

func (f *fakeSource) Streams(ctx context.Context, id string) (catalog.StreamInfo, error) {
	f.calls.Add(1)
	f.mu.Lock()
	release := f.release
	info, ok := f.infos[id]
	err := f.errs[id]
	f.mu.Unlock()

	if release != nil {
		<-release
	}
	if err != nil {
		return catalog.StreamInfo{}, err
	}
	if !ok {
		return catalog.StreamInfo{}, errors.New("not found")
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

func audioInfo(url string, bitrate int) catalog.StreamInfo {
	return catalog.StreamInfo{
		Title:    "Some Track",
		Uploader: "Some Artist",
		Duration: 200,
		AudioStreams: []catalog.AudioStream{
			{URL: url, Bitrate: bitrate, MimeType: "audio/webm"},
		},
	}
}

func TestStore_Resolve_CacheIdempotence(t *testing.T) {
	src := newFakeSource()
	src.setInfo(trackA, audioInfo("https://cdn/a", 128000))
	s := New(src, Options{})

	first, err := s.Resolve(context.Background(), trackA)
	require.NoError(t, err)

	second, err := s.Resolve(context.Background(), trackA)
	require.NoError(t, err)

	assert.Equal(t, int64(1), src.calls.Load(), "second call must not hit the network")
	assert.Equal(t, first, second, "cached value is returned verbatim")
	assert.Equal(t, "https://cdn/a", second.Stream.URL)
	assert.Equal(t, "Some Track", second.Track.Title)
}

func TestStore_Resolve_Deduplication(t *testing.T) {
	src := newFakeSource()
	src.setInfo(trackA, audioInfo("https://cdn/a", 128000))
	src.release = make(chan struct{})
	s := New(src, Options{})

	const n = 5
	var wg sync.WaitGroup
	results := make([]Resolution, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Resolve(context.Background(), trackA)
		}(i)
	}

	// Let all callers attach to the in-flight resolution, then release.
	assert.Eventually(t, func() bool { return src.calls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(src.release)
	wg.Wait()

	assert.Equal(t, int64(1), src.calls.Load(), "exactly one upstream fetch")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i], "all callers share the result")
	}
}

func TestStore_Resolve_TTLExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	src := newFakeSource()
	src.setInfo(trackA, audioInfo("https://cdn/a", 128000))
	s := New(src, Options{TTL: 30 * time.Minute, Now: func() time.Time { return clock() }})

	_, err := s.Resolve(context.Background(), trackA)
	require.NoError(t, err)

	// Just inside the window: still cached.
	now = now.Add(29 * time.Minute)
	_, err = s.Resolve(context.Background(), trackA)
	require.NoError(t, err)
	assert.Equal(t, int64(1), src.calls.Load())

	// Past the window: entry is treated as absent and re-resolved once.
	now = now.Add(2 * time.Minute)
	_, err = s.Resolve(context.Background(), trackA)
	require.NoError(t, err)
	assert.Equal(t, int64(2), src.calls.Load())
}

func TestStore_Resolve_InvalidIdentifier(t *testing.T) {
	src := newFakeSource()
	s := New(src, Options{})

	_, err := s.Resolve(context.Background(), "not-an-id")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidIdentifier))
	assert.Equal(t, int64(0), src.calls.Load(), "fails fast without network access")
}

func TestStore_Resolve_NoAudioStream(t *testing.T) {
	src := newFakeSource()
	src.setInfo(trackA, catalog.StreamInfo{
		Title: "Video Only",
		AudioStreams: []catalog.AudioStream{
			{URL: "https://cdn/video", Bitrate: 500000, MimeType: "video/mp4"},
		},
	})
	s := New(src, Options{})

	_, err := s.Resolve(context.Background(), trackA)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoAudioStream))
	assert.Equal(t, 0, s.Size(), "failures are not cached")
}

func TestStore_Resolve_RetryAfterFailure(t *testing.T) {
	src := newFakeSource()
	src.errs[trackA] = errors.New("upstream down")
	s := New(src, Options{})

	_, err := s.Resolve(context.Background(), trackA)
	require.Error(t, err)

	// Upstream recovers; the failed attempt left no pending state.
	src.mu.Lock()
	delete(src.errs, trackA)
	src.mu.Unlock()
	src.setInfo(trackA, audioInfo("https://cdn/a", 128000))

	r, err := s.Resolve(context.Background(), trackA)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/a", r.Stream.URL)
}

func TestStore_Resolve_SelectsHighestBitrate(t *testing.T) {
	src := newFakeSource()
	src.setInfo(trackA, catalog.StreamInfo{
		AudioStreams: []catalog.AudioStream{
			{URL: "https://cdn/low", Bitrate: 48000, MimeType: "audio/mp4"},
			{URL: "https://cdn/video", Bitrate: 900000, MimeType: "video/webm"},
			{URL: "https://cdn/high", Bitrate: 160000, MimeType: "audio/webm"},
			{URL: "", Bitrate: 320000, MimeType: "audio/webm"},
		},
	})
	s := New(src, Options{})

	r, err := s.Resolve(context.Background(), trackA)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/high", r.Stream.URL)
	assert.Equal(t, 160000, r.Stream.Bitrate)
}

func TestStore_Prefetch(t *testing.T) {
	src := newFakeSource()
	src.setInfo(trackA, audioInfo("https://cdn/a", 128000))
	s := New(src, Options{})

	s.Prefetch(trackA)
	assert.Eventually(t, func() bool {
		_, ok := s.Peek(trackA)
		return ok
	}, time.Second, time.Millisecond)

	// Already cached: no further network access.
	s.Prefetch(trackA)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int64(1), src.calls.Load())
}

func TestStore_Prefetch_SilentFailure(t *testing.T) {
	src := newFakeSource()
	src.errs[trackA] = errors.New("boom")
	s := New(src, Options{})

	assert.NotPanics(t, func() {
		s.Prefetch(trackA)
		s.Prefetch("garbage")
	})
	assert.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, s.Size())
}

func TestStore_Related(t *testing.T) {
	src := newFakeSource()
	info := audioInfo("https://cdn/a", 128000)
	info.RelatedStreams = []catalog.Item{
		{URL: "/watch?v=" + trackA, Title: "The seed itself"},
		{URL: "/watch?v=" + trackB, Title: "Next up"},
		{URL: "/watch?v=" + trackB, Title: "Duplicate"},
	}
	src.setInfo(trackA, info)
	s := New(src, Options{})

	related, err := s.Related(context.Background(), trackA)
	require.NoError(t, err)
	require.Len(t, related, 1, "seed and duplicates are excluded")
	assert.Equal(t, trackB, related[0].ID)

	// Second lookup is served from the related cache.
	_, err = s.Related(context.Background(), trackA)
	require.NoError(t, err)
	assert.Equal(t, int64(1), src.calls.Load())
}

func TestStore_Resolve_WarmsRelatedCache(t *testing.T) {
	src := newFakeSource()
	info := audioInfo("https://cdn/a", 128000)
	info.RelatedStreams = []catalog.Item{{URL: "/watch?v=" + trackB, Title: "Next up"}}
	src.setInfo(trackA, info)
	s := New(src, Options{})

	_, err := s.Resolve(context.Background(), trackA)
	require.NoError(t, err)

	related, err := s.Related(context.Background(), trackA)
	require.NoError(t, err)
	assert.Len(t, related, 1)
	assert.Equal(t, int64(1), src.calls.Load(), "related listing reuses the resolve fetch")
}
