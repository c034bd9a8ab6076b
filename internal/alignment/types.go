package alignment

import (
	"context"
	"time"

	"github.com/MimeLyc/movie-dubber/internal/subtitle"
)

// Sample is a short capture of the video's own audio. Start is the video time
// at which the capture began.
type Sample struct {
	Audio    []byte
	Start    time.Duration
	Duration time.Duration
}

// Recorder captures audio from the page's media graph.
type Recorder interface {
	Record(ctx context.Context, d time.Duration) (Sample, error)
}

// Transcriber is the speech-to-text collaborator.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, languageCode string) (string, error)
}

// CueWindow looks up cues overlapping [from, to).
type CueWindow interface {
	Range(from, to time.Duration) []subtitle.Cue
}

type Config struct {
	SampleDuration time.Duration
	SearchWindow   time.Duration
	// MinScore is the similarity below which no offset is suggested.
	MinScore float64
	// MaxSpan bounds how many consecutive cues are joined for one candidate.
	MaxSpan int
}

func DefaultConfig() Config {
	return Config{
		SampleDuration: 8 * time.Second,
		SearchWindow:   30 * time.Second,
		MinScore:       0.55,
		MaxSpan:        3,
	}
}

type Suggestion struct {
	// Offset is the subtitle offset that lines the matched cue up with the sample.
	Offset     time.Duration `json:"offset"`
	Score      float64       `json:"score"`
	Cue        subtitle.Cue  `json:"cue"`
	Transcript string        `json:"transcript"`
}
