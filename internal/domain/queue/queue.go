// Package queue provides the ordered playback queue.
//
// The queue holds a live track order, a cursor into it, and a snapshot of
// the original order so that disabling shuffle restores the sequence the
// user built. It is not safe for concurrent use; the player engine
// serializes all access.
package queue

import (
	"math/rand"
	"time"

	"github.com/hmdyt/melodio/internal/domain/track"
)

// Queue is an ordered sequence of tracks with a cursor.
// Invariant: 0 <= cursor < Len() whenever the queue is non-empty.
type Queue struct {
	items    []track.Track
	original []track.Track
	cursor   int
	shuffled bool
	rng      *rand.Rand
}

// New creates an empty queue. rng may be nil, in which case a
// time-seeded source is used; tests inject a fixed seed.
func New(rng *rand.Rand) *Queue {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Queue{rng: rng}
}

// Replace swaps in a whole new queue and original-order snapshot and
// positions the cursor at startIndex (clamped into bounds). The queue
// leaves shuffle mode: the new order is the original order, and callers
// re-enable shuffle as needed.
func (q *Queue) Replace(tracks []track.Track, startIndex int) {
	q.items = append([]track.Track(nil), tracks...)
	q.original = append([]track.Track(nil), tracks...)
	q.cursor = clamp(startIndex, len(q.items))
	q.shuffled = false
}

// InsertNext inserts t immediately after the cursor in both the live
// queue and the original-order snapshot.
func (q *Queue) InsertNext(t track.Track) {
	if len(q.items) == 0 {
		q.items = []track.Track{t}
		q.original = []track.Track{t}
		q.cursor = 0
		return
	}
	q.items = insertAt(q.items, q.cursor+1, t)
	q.original = insertAt(q.original, min(q.cursor+1, len(q.original)), t)
}

// Append adds t to the end of both sequences.
func (q *Queue) Append(t track.Track) {
	q.items = append(q.items, t)
	q.original = append(q.original, t)
}

// AppendAll adds all tracks to the end of both sequences.
func (q *Queue) AppendAll(tracks []track.Track) {
	q.items = append(q.items, tracks...)
	q.original = append(q.original, tracks...)
}

// RemoveAt removes the track at index from both sequences. When the
// removed index precedes the cursor the cursor shifts down by one so the
// currently playing position is preserved. Out-of-range indices are
// ignored.
func (q *Queue) RemoveAt(index int) {
	if index < 0 || index >= len(q.items) {
		return
	}
	q.items = append(q.items[:index], q.items[index+1:]...)
	if index < len(q.original) {
		q.original = append(q.original[:index], q.original[index+1:]...)
	}
	if index < q.cursor {
		q.cursor--
	}
	q.cursor = clamp(q.cursor, len(q.items))
}

// Clear empties both sequences and resets the cursor.
func (q *Queue) Clear() {
	q.items = nil
	q.original = nil
	q.cursor = 0
}

// ToggleShuffle flips shuffle mode. Enabling pins the current track at
// position 0 and permutes the rest uniformly; the original-order
// snapshot is untouched. Disabling restores the snapshot and relocates
// the cursor to the currently playing track (position 0 if not found).
func (q *Queue) ToggleShuffle() {
	if q.shuffled {
		q.restoreOrder()
		q.shuffled = false
		return
	}
	q.Shuffle()
	q.shuffled = true
}

// SetShuffled moves the queue into or out of shuffle mode. Setting the
// mode it is already in is a no-op, so a fresh permutation of an
// already-shuffled queue requires leaving shuffle mode first (Replace
// does this).
func (q *Queue) SetShuffled(on bool) {
	if on == q.shuffled {
		return
	}
	q.ToggleShuffle()
}

// Shuffle permutes the live order with the cursor's track pinned at
// position 0. Queues of 0 or 1 tracks are left as-is.
func (q *Queue) Shuffle() {
	if len(q.items) <= 1 {
		return
	}
	current := q.items[q.cursor]
	rest := make([]track.Track, 0, len(q.items)-1)
	for i, t := range q.items {
		if i != q.cursor {
			rest = append(rest, t)
		}
	}
	q.rng.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})
	q.items = append([]track.Track{current}, rest...)
	q.cursor = 0
}

func (q *Queue) restoreOrder() {
	var currentID string
	if t, ok := q.Current(); ok {
		currentID = t.ID
	}
	q.items = append([]track.Track(nil), q.original...)
	q.cursor = 0
	for i, t := range q.items {
		if t.ID == currentID {
			q.cursor = i
			break
		}
	}
}

// Shuffled reports whether shuffle mode is active.
func (q *Queue) Shuffled() bool {
	return q.shuffled
}

// Len returns the number of tracks in the live queue.
func (q *Queue) Len() int {
	return len(q.items)
}

// Cursor returns the current cursor position. Its value is meaningless
// when the queue is empty.
func (q *Queue) Cursor() int {
	return q.cursor
}

// SetCursor moves the cursor. Returns false if i is out of bounds.
func (q *Queue) SetCursor(i int) bool {
	if i < 0 || i >= len(q.items) {
		return false
	}
	q.cursor = i
	return true
}

// Current returns the track at the cursor.
func (q *Queue) Current() (track.Track, bool) {
	return q.At(q.cursor)
}

// At returns the track at index i.
func (q *Queue) At(i int) (track.Track, bool) {
	if i < 0 || i >= len(q.items) {
		return track.Track{}, false
	}
	return q.items[i], true
}

// Items returns a copy of the live queue order.
func (q *Queue) Items() []track.Track {
	return append([]track.Track(nil), q.items...)
}

func insertAt(s []track.Track, i int, t track.Track) []track.Track {
	if i >= len(s) {
		return append(s, t)
	}
	s = append(s, track.Track{})
	copy(s[i+1:], s[i:])
	s[i] = t
	return s
}

func clamp(i, length int) int {
	if length == 0 || i < 0 {
		return 0
	}
	if i >= length {
		return length - 1
	}
	return i
}
