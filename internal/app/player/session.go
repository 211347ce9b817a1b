package player

import "github.com/hmdyt/melodio/internal/domain/track"

// RepeatMode represents the repeat setting.
type RepeatMode string

const (
	RepeatOff RepeatMode = "off"
	RepeatAll RepeatMode = "all"
	RepeatOne RepeatMode = "one"
)

// Next cycles off → all → one → off.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatOff
	}
}

// ParseRepeatMode maps a persisted string to a mode, defaulting to off.
func ParseRepeatMode(s string) RepeatMode {
	switch RepeatMode(s) {
	case RepeatAll:
		return RepeatAll
	case RepeatOne:
		return RepeatOne
	default:
		return RepeatOff
	}
}

// State classifies the transport's position in its lifecycle.
type State int

const (
	StateEmpty   State = iota // no current track
	StateLoading              // track selected, resolution in flight
	StateReady                // resolved, playing or paused
	StateError                // resolution failed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Session is the transient transport state. None of it is persisted;
// durable preferences (volume, repeat, shuffle) live in the prefs store.
type Session struct {
	CurrentTrack *track.Track
	AudioURL     string
	IsPlaying    bool
	IsLoading    bool
	Err          string
	CurrentTime  float64
	Duration     float64
	Volume       float64
	Muted        bool
	Repeat       RepeatMode
	Shuffled     bool
}

// State derives the lifecycle state from the session's fields.
func (s Session) State() State {
	switch {
	case s.CurrentTrack == nil:
		return StateEmpty
	case s.Err != "":
		return StateError
	case s.IsLoading:
		return StateLoading
	default:
		return StateReady
	}
}
