package config

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memState struct {
	mu     sync.Mutex
	values map[string][]byte
	putErr error
}

func newMemState() *memState {
	return &memState{values: map[string][]byte{}}
}

func (m *memState) GetState(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memState) PutState(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.values[key] = value
	return nil
}

func TestPlaybackSettings_Validate(t *testing.T) {
	valid := DefaultPlaybackSettings()
	valid.MovieID = "tt0111161"
	valid.LanguageCode = "fr"
	require.NoError(t, valid.Validate())

	badVolume := valid
	badVolume.VideoVolumeWhilePlayingDubbing = 1.5
	require.Error(t, badVolume.Validate())

	badLang := valid
	badLang.LanguageCode = "en/us"
	require.Error(t, badLang.Validate())

	badMovie := valid
	badMovie.MovieID = "a/b"
	require.Error(t, badMovie.Validate())

	badOriginal := valid
	badOriginal.OriginalVideoVolume = 1.2
	require.Error(t, badOriginal.Validate())

	badPosition := valid
	badPosition.LastVideoTimeMs = -1
	require.Error(t, badPosition.Validate())
}

func TestPlaybackSettingsStore_UpdatePersists(t *testing.T) {
	ctx := context.Background()
	state := newMemState()

	store, err := NewPlaybackSettingsStore(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, DefaultPlaybackSettings(), store.Get())

	got, err := store.Update(ctx, func(s *PlaybackSettings) {
		s.MovieID = "tt0111161"
		s.LanguageCode = "de"
		s.SubtitleOffsetMs = -1200
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-1200), got.SubtitleOffsetMs)

	reloaded, err := NewPlaybackSettingsStore(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, got, reloaded.Get())
}

func TestPlaybackSettingsStore_RejectedUpdateKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	state := newMemState()
	store, err := NewPlaybackSettingsStore(ctx, state)
	require.NoError(t, err)

	_, err = store.Update(ctx, func(s *PlaybackSettings) { s.VideoVolumeWhilePlayingDubbing = 2 })
	require.Error(t, err)

	state.putErr = errors.New("disk full")
	_, err = store.Update(ctx, func(s *PlaybackSettings) { s.SubtitleOffsetMs = 10 })
	require.Error(t, err)

	assert.Equal(t, DefaultPlaybackSettings(), store.Get())
}

func TestPlaybackSettingsStore_CorruptStateFallsBackToDefaults(t *testing.T) {
	state := newMemState()
	state.values[MovieStateKey] = []byte("{not json")

	store, err := NewPlaybackSettingsStore(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, DefaultPlaybackSettings(), store.Get())
}

func TestPlaybackSettingsStore_SRTContentIsIndependent(t *testing.T) {
	ctx := context.Background()
	store, err := NewPlaybackSettingsStore(ctx, newMemState())
	require.NoError(t, err)

	_, ok, err := store.SRTContent(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveSRTContent(ctx, "1\n00:00:01,000 --> 00:00:02,000\nHi\n"))
	_, err = store.Update(ctx, func(s *PlaybackSettings) { s.MovieID = "" })
	require.NoError(t, err)

	text, ok, err := store.SRTContent(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, text, "Hi")
}
