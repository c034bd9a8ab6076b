package subtitle

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/movie-dubber/internal/errs"
	"github.com/MimeLyc/movie-dubber/pkg/log"
)

// Fetcher retrieves raw subtitle text for a track from the backend.
type Fetcher interface {
	FetchSubtitles(ctx context.Context, track Track) (string, error)
}

// TextCache persists raw subtitle text across sessions.
type TextCache interface {
	GetSubtitleText(ctx context.Context, key string) (string, bool, error)
	PutSubtitleText(ctx context.Context, key string, text string) error
}

// Loaded is a parsed track ready for a Table.
type Loaded struct {
	Track Track
	Cues  []Cue
	Raw   string
}

// Loader resolves tracks through session memory, the persistent text cache and the
// backend, in that order. Concurrent loads of one track share a single fetch.
type Loader struct {
	fetcher Fetcher
	cache   TextCache

	mu    sync.Mutex
	memo  map[string]Loaded
	group singleflight.Group
}

func NewLoader(fetcher Fetcher, cache TextCache) *Loader {
	return &Loader{
		fetcher: fetcher,
		cache:   cache,
		memo:    make(map[string]Loaded),
	}
}

func (l *Loader) Load(ctx context.Context, track Track) (Loaded, error) {
	if err := track.Validate(); err != nil {
		return Loaded{}, errs.Wrap(err, errs.Validation, "invalid track")
	}
	key := track.Key()

	l.mu.Lock()
	if cached, ok := l.memo[key]; ok {
		l.mu.Unlock()
		return cached, nil
	}
	l.mu.Unlock()

	v, err, _ := l.group.Do(key, func() (any, error) {
		raw, err := l.resolveText(ctx, track)
		if err != nil {
			return Loaded{}, err
		}
		return l.remember(track, raw)
	})
	if err != nil {
		return Loaded{}, err
	}
	return v.(Loaded), nil
}

// LoadText parses raw text supplied directly (e.g. a user upload) and memoizes it for track.
func (l *Loader) LoadText(ctx context.Context, track Track, raw string) (Loaded, error) {
	if err := track.Validate(); err != nil {
		return Loaded{}, errs.Wrap(err, errs.Validation, "invalid track")
	}
	loaded, err := l.remember(track, raw)
	if err != nil {
		return Loaded{}, err
	}
	l.storeText(ctx, track.Key(), raw)
	return loaded, nil
}

// Reset forgets every memoized track.
func (l *Loader) Reset() {
	l.mu.Lock()
	l.memo = make(map[string]Loaded)
	l.mu.Unlock()
}

func (l *Loader) resolveText(ctx context.Context, track Track) (string, error) {
	key := track.Key()
	if l.cache != nil {
		raw, ok, err := l.cache.GetSubtitleText(ctx, key)
		if err != nil {
			log.Warn("subtitle cache lookup failed for %s: %v", key, err)
		} else if ok && raw != "" {
			log.Debug("subtitle cache hit for %s", key)
			return raw, nil
		}
	}

	if l.fetcher == nil {
		return "", errs.New(errs.Unavailable, "no subtitle fetcher configured")
	}
	raw, err := l.fetcher.FetchSubtitles(ctx, track)
	if err != nil {
		return "", err
	}
	l.storeText(ctx, key, raw)
	return raw, nil
}

func (l *Loader) storeText(ctx context.Context, key, raw string) {
	if l.cache == nil {
		return
	}
	if err := l.cache.PutSubtitleText(ctx, key, raw); err != nil {
		log.Warn("failed to cache subtitles for %s: %v", key, err)
	}
}

func (l *Loader) remember(track Track, raw string) (Loaded, error) {
	cues := ParseTrack(raw)
	if len(cues) == 0 {
		return Loaded{}, errs.New(errs.NotFound, fmt.Sprintf("no cues in subtitles for %s", track.Key()))
	}
	if track.Language.IsRoot() {
		track.Language = DetectLanguage(cues)
	}

	loaded := Loaded{Track: track, Cues: cues, Raw: raw}
	l.mu.Lock()
	l.memo[track.Key()] = loaded
	l.mu.Unlock()
	return loaded, nil
}
