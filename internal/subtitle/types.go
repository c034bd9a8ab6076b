package subtitle

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Cue is one subtitle line. Start is inclusive and End exclusive.
type Cue struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

func (c Cue) Duration() time.Duration {
	return c.End - c.Start
}

// Contains reports whether t falls in [Start, End).
func (c Cue) Contains(t time.Duration) bool {
	return c.Start <= t && t < c.End
}

// Track identifies one subtitle/dub version of a movie or episode.
type Track struct {
	MovieID  string       `json:"movieId"`
	TrackID  string       `json:"trackId"`
	Season   int          `json:"seasonNumber,omitempty"`
	Episode  int          `json:"episodeNumber,omitempty"`
	Language language.Tag `json:"-"`
}

func (t Track) IsEpisode() bool {
	return t.Season > 0 || t.Episode > 0
}

// Key namespaces subtitle caches and audio asset keys.
func (t Track) Key() string {
	key := t.MovieID + "/" + t.TrackID
	if t.IsEpisode() {
		key += fmt.Sprintf("/s%02de%02d", t.Season, t.Episode)
	}
	return key
}

func (t Track) Validate() error {
	if strings.TrimSpace(t.MovieID) == "" {
		return fmt.Errorf("movie id is required")
	}
	if strings.TrimSpace(t.TrackID) == "" {
		return fmt.Errorf("track id is required")
	}
	if strings.Contains(t.MovieID, "/") || strings.Contains(t.TrackID, "/") {
		return fmt.Errorf("movie and track ids must not contain '/'")
	}
	return nil
}

// AssetKey is the deterministic identifier of the dubbed clip for cue within track.
// It is the persistent cache key, the backend file path and the in-flight de-dup key.
func AssetKey(track Track, cue Cue) string {
	return fmt.Sprintf("%s/%d-%d.mp3", track.Key(), cue.Start.Milliseconds(), cue.End.Milliseconds())
}
