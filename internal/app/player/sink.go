package player

// Sink is the audio output primitive the engine drives. It loads a URL
// and plays it; it does not decode audio itself. Implementations feed
// playback progress back into the engine via the On* event methods
// (OnTimeUpdate, OnLoadedMetadata, OnEnded, OnSinkError).
type Sink interface {
	Load(url string)
	Play()
	Pause()
	Seek(seconds float64)
	SetVolume(level float64)
	SetMuted(muted bool)
}

// NopSink discards all output commands. Useful as a default and in
// tests that only exercise queue logic.
type NopSink struct{}

func (NopSink) Load(string)       {}
func (NopSink) Play()             {}
func (NopSink) Pause()            {}
func (NopSink) Seek(float64)      {}
func (NopSink) SetVolume(float64) {}
func (NopSink) SetMuted(bool)     {}
