// Package dubbing keeps dubbed audio in step with a playing video. A Controller
// owns one session at a time and serializes every video event, command and I/O
// completion through a single loop goroutine.
package dubbing

import (
	"context"
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/MimeLyc/movie-dubber/internal/config"
	"github.com/MimeLyc/movie-dubber/internal/errs"
	"github.com/MimeLyc/movie-dubber/internal/generation"
	"github.com/MimeLyc/movie-dubber/internal/subtitle"
	"github.com/MimeLyc/movie-dubber/internal/video"
	"github.com/MimeLyc/movie-dubber/pkg/log"
)

type Controller struct {
	deps   Dependencies
	config Config
	now    func() time.Time
	table  *subtitle.Table

	events   chan func()
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	// owned by the loop goroutine
	state   State
	session *session
}

type Option func(*Controller)

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController builds a controller and starts its loop. Persisted playback
// settings are applied right away.
func NewController(deps Dependencies, config Config, opts ...Option) *Controller {
	defaults := DefaultConfig()
	if config.TickInterval <= 0 {
		config.TickInterval = defaults.TickInterval
	}
	if config.PrefetchWindow <= 0 {
		config.PrefetchWindow = defaults.PrefetchWindow
	}
	if config.PrefetchConcurrency <= 0 {
		config.PrefetchConcurrency = defaults.PrefetchConcurrency
	}
	if config.GenerationWindow <= 0 {
		config.GenerationWindow = defaults.GenerationWindow
	}
	if config.GenerationScanInterval <= 0 {
		config.GenerationScanInterval = defaults.GenerationScanInterval
	}
	if config.DefaultLanguage.IsRoot() {
		config.DefaultLanguage = defaults.DefaultLanguage
	}

	c := &Controller{
		deps:    deps,
		config:  config,
		now:     time.Now,
		table:   subtitle.NewTable(),
		events:  make(chan func(), 1024),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}

	settings := deps.Settings.Get()
	deps.Player.SetDubbingVolumeMultiplier(settings.DubbingVolumeMultiplier)

	go c.run()
	return c
}

// Table exposes the active subtitle table for read-only lookups.
func (c *Controller) Table() *subtitle.Table {
	return c.table
}

// Resume restarts the session persisted as active in movieState, if any.
func (c *Controller) Resume(ctx context.Context) error {
	settings := c.deps.Settings.Get()
	if !settings.IsDubbingActive || settings.MovieID == "" || settings.LanguageCode == "" {
		return nil
	}
	log.Info("resuming dubbing for %s/%s", settings.MovieID, settings.LanguageCode)
	return c.Initialize(ctx, Command{
		MovieID:       settings.MovieID,
		TrackID:       settings.LanguageCode,
		SeasonNumber:  settings.SeasonNumber,
		EpisodeNumber: settings.EpisodeNumber,
	})
}

// Initialize loads the track named by cmd and starts a session for it. Subtitle
// I/O happens on the caller's goroutine; the loop only swaps the session.
func (c *Controller) Initialize(ctx context.Context, cmd Command) error {
	track := subtitle.Track{
		MovieID: cmd.MovieID,
		TrackID: cmd.TrackID,
		Season:  cmd.SeasonNumber,
		Episode: cmd.EpisodeNumber,
	}
	if tag, err := language.Parse(cmd.TrackID); err == nil {
		track.Language = tag
	}

	loaded, err := c.loadTrack(ctx, track, cmd.SRTContent)
	if err != nil {
		c.notify("error", errs.UserMessage(err))
		return err
	}
	if loaded.Track.Language.IsRoot() {
		loaded.Track.Language = c.config.DefaultLanguage
	}

	if err := c.deps.Settings.SaveSRTContent(ctx, loaded.Raw); err != nil {
		log.Warn("failed to persist srtContent: %v", err)
	}
	if _, err := c.deps.Settings.Update(ctx, func(s *config.PlaybackSettings) {
		s.MovieID = track.MovieID
		s.LanguageCode = track.TrackID
		s.SeasonNumber = track.Season
		s.EpisodeNumber = track.Episode
		s.IsDubbingActive = true
	}); err != nil {
		log.Warn("failed to persist movieState: %v", err)
	}

	return c.call(ctx, func() error {
		c.startSession(loaded)
		return nil
	})
}

// Stop ends the session: audio is cut, caches and the table are cleared.
func (c *Controller) Stop(ctx context.Context) error {
	if _, err := c.deps.Settings.Update(ctx, func(s *config.PlaybackSettings) {
		s.IsDubbingActive = false
	}); err != nil {
		log.Warn("failed to persist movieState: %v", err)
	}
	return c.call(ctx, func() error {
		c.stopSession()
		return nil
	})
}

// Status reports the session state. It is answered by the loop.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	var status Status
	err := c.call(ctx, func() error {
		status = Status{
			Active:   c.state != StateIdle,
			State:    c.state,
			Cues:     c.table.Len(),
			Settings: c.deps.Settings.Get(),
		}
		if c.session != nil {
			track := c.session.track
			status.Track = &track
		}
		return nil
	})
	return status, err
}

// Sync waits until every event posted so far has been handled.
func (c *Controller) Sync(ctx context.Context) error {
	return c.call(ctx, func() error { return nil })
}

// OnGenerationResult makes a generated clip eligible for lookup again and
// reports clips that could not be generated to the UI.
func (c *Controller) OnGenerationResult(result generation.Result) {
	if result.Status == generation.StatusDone {
		c.post(func() {
			if c.session != nil {
				delete(c.session.missing, result.Key)
			}
		})
		return
	}
	if result.Status != generation.StatusExhausted {
		return
	}
	log.Warn("no dubbed audio for %q: %v", result.Cue.Text, result.Err)
	c.notify("warning", "Could not generate dubbed audio for a line, it will play silently")
}

// Close stops the session and the loop.
func (c *Controller) Close() {
	c.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.call(ctx, func() error {
			c.stopSession()
			return nil
		}); err != nil {
			log.Warn("failed to stop session on close: %v", err)
		}
		close(c.done)
		<-c.stopped
	})
}

func (c *Controller) loadTrack(ctx context.Context, track subtitle.Track, raw string) (subtitle.Loaded, error) {
	if raw != "" {
		return c.deps.Loader.LoadText(ctx, track, raw)
	}
	loaded, err := c.deps.Loader.Load(ctx, track)
	if err == nil {
		return loaded, nil
	}

	// degraded mode: reuse the last subtitles of the same selection
	settings := c.deps.Settings.Get()
	if settings.MovieID != track.MovieID || settings.LanguageCode != track.TrackID {
		return subtitle.Loaded{}, err
	}
	saved, ok, serr := c.deps.Settings.SRTContent(ctx)
	if serr != nil || !ok {
		return subtitle.Loaded{}, err
	}
	log.Warn("subtitle fetch failed, using saved srtContent: %v", err)
	return c.deps.Loader.LoadText(ctx, track, saved)
}

func (c *Controller) run() {
	defer close(c.stopped)
	for {
		select {
		case <-c.done:
			return
		case fn := <-c.events:
			errs.Guard("dubbing event", func() error {
				fn()
				return nil
			})
		}
	}
}

// post hands fn to the loop. It never blocks the caller, which may be the loop itself.
func (c *Controller) post(fn func()) {
	select {
	case c.events <- fn:
	default:
		go func() {
			select {
			case c.events <- fn:
			case <-c.done:
			}
		}()
	}
}

func (c *Controller) call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	c.post(func() {
		result <- errs.SafeExecute(fn)
	})
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return errs.Wrap(ctx.Err(), errs.Timeout, "dubbing controller did not answer")
	case <-c.done:
		return errs.New(errs.Unavailable, "dubbing controller is closed")
	}
}

func (c *Controller) broadcast(kind string, payload any) {
	if c.deps.Broadcaster == nil {
		return
	}
	c.deps.Broadcaster.Broadcast(kind, payload)
}

func (c *Controller) notify(level, message string) {
	c.broadcast(BroadcastNotification, NotificationPayload{Level: level, Message: message})
}

func (c *Controller) offset() time.Duration {
	return time.Duration(c.deps.Settings.Get().SubtitleOffsetMs) * time.Millisecond
}

// scheduleGeneration is the one place generation requests originate.
func (c *Controller) scheduleGeneration(key string, cue subtitle.Cue) {
	if c.deps.Generator == nil {
		return
	}
	if c.deps.Generator.Enqueue(key, cue) {
		log.Debug("queued audio generation for %s", key)
	}
}

var _ video.Handler = (*sessionHandler)(nil)
