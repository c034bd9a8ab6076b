package player

import (
	"time"

	"github.com/MimeLyc/movie-dubber/internal/audiofile"
)

// Graph is the playback graph that owns the audio output. One per session.
type Graph interface {
	// NewVoice prepares buf behind a gain stage set to gain. Nothing sounds until Start.
	NewVoice(buf *audiofile.Buffer, gain float64) (Voice, error)
}

// Voice is one source node plus its gain node.
type Voice interface {
	// Start begins playback offset into the clip.
	Start(offset time.Duration) error
	SetGain(value float64)
	// RampGain linearly moves the gain to target over duration, beginning after delay.
	RampGain(target float64, delay, duration time.Duration)
	// Stop silences the voice immediately.
	Stop()
	// Ended is closed once the voice stopped, naturally or through Stop.
	Ended() <-chan struct{}
}

type Config struct {
	FadeOut         time.Duration
	ReplayThreshold time.Duration
	MinGain         float64
	MaxVoices       int
	MaxMultiplier   float64
}

func DefaultConfig() Config {
	return Config{
		FadeOut:         300 * time.Millisecond,
		ReplayThreshold: 500 * time.Millisecond,
		MinGain:         0,
		MaxVoices:       4,
		MaxMultiplier:   2,
	}
}
