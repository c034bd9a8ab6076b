package generation

import (
	"context"
	"time"

	"github.com/MimeLyc/movie-dubber/internal/subtitle"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusBackoff   Status = "backoff"
	StatusDone      Status = "done"
	StatusExhausted Status = "exhausted"
)

// Generator asks the backend to synthesize the clip for one line.
type Generator interface {
	GenerateAudio(ctx context.Context, text, filePath string) error
}

type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries  int
	BaseBackoff time.Duration
	Workers     int
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		BaseBackoff: time.Second,
		Workers:     2,
	}
}

// Result is reported once per key when it either succeeded or ran out of retries.
type Result struct {
	Key      string
	Cue      subtitle.Cue
	Status   Status
	Attempts int
	Err      error
}

type Entry struct {
	Key        string
	Cue        subtitle.Cue
	Status     Status
	InProgress bool
	Attempts   int
	LastError  string
}
