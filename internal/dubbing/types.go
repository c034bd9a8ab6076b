package dubbing

import (
	"context"
	"time"

	"golang.org/x/text/language"

	"github.com/MimeLyc/movie-dubber/internal/alignment"
	"github.com/MimeLyc/movie-dubber/internal/audiofile"
	"github.com/MimeLyc/movie-dubber/internal/config"
	"github.com/MimeLyc/movie-dubber/internal/subtitle"
	"github.com/MimeLyc/movie-dubber/internal/video"
)

type State string

const (
	StateIdle      State = "idle"
	StateAttaching State = "attaching"
	StateActive    State = "active"
)

// SubtitleLoader is satisfied by *subtitle.Loader.
type SubtitleLoader interface {
	Load(ctx context.Context, track subtitle.Track) (subtitle.Loaded, error)
	LoadText(ctx context.Context, track subtitle.Track, raw string) (subtitle.Loaded, error)
	Reset()
}

// AudioFiles is satisfied by *audiofile.Manager.
type AudioFiles interface {
	GetAudioBuffer(ctx context.Context, assetKey string) (*audiofile.Buffer, bool)
	Cached(assetKey string) (*audiofile.Buffer, bool)
	CheckFileExists(ctx context.Context, assetKey string) bool
	Prefetch(ctx context.Context, keys []string, limit int) int
	ClearCache()
}

// AudioPlayer is satisfied by *player.Player.
type AudioPlayer interface {
	PlayAudio(buf *audiofile.Buffer, key string, cue subtitle.Cue, offset time.Duration) bool
	StopExpiredAudio(at time.Duration)
	StopAllAudio()
	SetDubbingVolumeMultiplier(x float64) float64
	DubbingVolumeMultiplier() float64
}

// GenerationQueue is satisfied by *generation.Queue.
type GenerationQueue interface {
	Enqueue(key string, cue subtitle.Cue) bool
	Reset()
}

// VideoFinder is satisfied by *video.Finder.
type VideoFinder interface {
	Wait(ctx context.Context, doc video.Document) (video.Source, error)
}

// SettingsStore is satisfied by *config.PlaybackSettingsStore.
type SettingsStore interface {
	Get() config.PlaybackSettings
	Update(ctx context.Context, fn func(*config.PlaybackSettings)) (config.PlaybackSettings, error)
	SRTContent(ctx context.Context) (string, bool, error)
	SaveSRTContent(ctx context.Context, text string) error
}

// Aligner is satisfied by *alignment.Assistant.
type Aligner interface {
	Suggest(ctx context.Context, cues alignment.CueWindow, languageCode string, currentOffset time.Duration) (alignment.Suggestion, error)
}

// Broadcaster delivers side-channel messages to listening UIs. It must not block.
type Broadcaster interface {
	Broadcast(kind string, payload any)
}

type Config struct {
	TickInterval           time.Duration
	PrefetchWindow         time.Duration
	PrefetchConcurrency    int
	GenerationWindow       time.Duration
	GenerationScanInterval time.Duration
	// DefaultLanguage applies when neither the track id nor the cue text name a language.
	DefaultLanguage language.Tag
}

func DefaultConfig() Config {
	return Config{
		TickInterval:           100 * time.Millisecond,
		PrefetchWindow:         5 * time.Second,
		PrefetchConcurrency:    4,
		GenerationWindow:       60 * time.Second,
		GenerationScanInterval: 60 * time.Second,
		DefaultLanguage:        language.English,
	}
}

// Dependencies groups the collaborators a Controller drives.
type Dependencies struct {
	Document  video.Document
	Finder    VideoFinder
	Loader    SubtitleLoader
	Files     AudioFiles
	Player    AudioPlayer
	Generator GenerationQueue
	Settings  SettingsStore
	// Aligner and Broadcaster are optional.
	Aligner     Aligner
	Broadcaster Broadcaster
}
