package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/MimeLyc/movie-dubber/pkg/log"
)

// Keys of the persisted session state.
const (
	MovieStateKey = "movieState"
	SRTContentKey = "srtContent"
)

// PlaybackSettings is the user's selection and playback preferences, re-hydrated
// at session start.
type PlaybackSettings struct {
	MovieID                        string  `json:"movieId"`
	LanguageCode                   string  `json:"languageCode"`
	SeasonNumber                   int     `json:"seasonNumber,omitempty"`
	EpisodeNumber                  int     `json:"episodeNumber,omitempty"`
	SubtitleOffsetMs               int64   `json:"subtitleOffset"`
	DubbingVolumeMultiplier        float64 `json:"dubbingVolumeMultiplier"`
	VideoVolumeWhilePlayingDubbing float64 `json:"videoVolumeWhilePlayingDubbing"`
	IsDubbingActive                bool    `json:"isDubbingActive"`
	// LastVideoTimeMs and OriginalVideoVolume describe the last attached video.
	LastVideoTimeMs     int64   `json:"lastVideoTimeMs"`
	OriginalVideoVolume float64 `json:"originalVideoVolume"`
}

func DefaultPlaybackSettings() PlaybackSettings {
	return PlaybackSettings{
		DubbingVolumeMultiplier:        1,
		VideoVolumeWhilePlayingDubbing: 0.3,
		OriginalVideoVolume:            1,
	}
}

func (s PlaybackSettings) Validate() error {
	if strings.Contains(s.MovieID, "/") || strings.Contains(s.LanguageCode, "/") {
		return fmt.Errorf("movieId and languageCode cannot contain '/'")
	}
	if s.SeasonNumber < 0 || s.EpisodeNumber < 0 {
		return fmt.Errorf("season and episode cannot be negative")
	}
	if s.DubbingVolumeMultiplier < 0 {
		return fmt.Errorf("dubbingVolumeMultiplier cannot be negative")
	}
	if s.VideoVolumeWhilePlayingDubbing < 0 || s.VideoVolumeWhilePlayingDubbing > 1 {
		return fmt.Errorf("videoVolumeWhilePlayingDubbing must be within [0, 1]")
	}
	if s.OriginalVideoVolume < 0 || s.OriginalVideoVolume > 1 {
		return fmt.Errorf("originalVideoVolume must be within [0, 1]")
	}
	if s.LastVideoTimeMs < 0 {
		return fmt.Errorf("lastVideoTimeMs cannot be negative")
	}
	return nil
}

// StateStore is the key/value table the settings live in.
type StateStore interface {
	GetState(ctx context.Context, key string) ([]byte, bool, error)
	PutState(ctx context.Context, key string, value []byte) error
}

// PlaybackSettingsStore keeps the current settings in memory and writes every
// accepted update through to the state store.
type PlaybackSettingsStore struct {
	store StateStore

	mu      sync.RWMutex
	current PlaybackSettings
}

// NewPlaybackSettingsStore loads movieState. Missing or unreadable state falls
// back to defaults.
func NewPlaybackSettingsStore(ctx context.Context, store StateStore) (*PlaybackSettingsStore, error) {
	if store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	s := &PlaybackSettingsStore{store: store, current: DefaultPlaybackSettings()}

	raw, ok, err := store.GetState(ctx, MovieStateKey)
	if err != nil {
		log.Warn("failed to load %s, using defaults: %v", MovieStateKey, err)
		return s, nil
	}
	if !ok {
		return s, nil
	}
	loaded := DefaultPlaybackSettings()
	if err := json.Unmarshal(raw, &loaded); err != nil {
		log.Warn("invalid %s, using defaults: %v", MovieStateKey, err)
		return s, nil
	}
	if err := loaded.Validate(); err != nil {
		log.Warn("invalid %s, using defaults: %v", MovieStateKey, err)
		return s, nil
	}
	s.current = loaded
	return s, nil
}

func (s *PlaybackSettingsStore) Get() PlaybackSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update applies fn to a copy of the settings, validates and persists it.
func (s *PlaybackSettingsStore) Update(ctx context.Context, fn func(*PlaybackSettings)) (PlaybackSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	fn(&next)
	if err := next.Validate(); err != nil {
		return s.current, err
	}
	content, err := json.Marshal(next)
	if err != nil {
		return s.current, err
	}
	if err := s.store.PutState(ctx, MovieStateKey, content); err != nil {
		return s.current, fmt.Errorf("persist %s: %w", MovieStateKey, err)
	}
	s.current = next
	return next, nil
}

// SRTContent returns the last raw subtitle text, kept apart from movieState.
func (s *PlaybackSettingsStore) SRTContent(ctx context.Context) (string, bool, error) {
	raw, ok, err := s.store.GetState(ctx, SRTContentKey)
	if err != nil || !ok {
		return "", false, err
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", false, fmt.Errorf("invalid %s: %w", SRTContentKey, err)
	}
	return text, true, nil
}

func (s *PlaybackSettingsStore) SaveSRTContent(ctx context.Context, text string) error {
	content, err := json.Marshal(text)
	if err != nil {
		return err
	}
	return s.store.PutState(ctx, SRTContentKey, content)
}
