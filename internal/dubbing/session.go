package dubbing

import (
	"context"
	"time"

	"github.com/MimeLyc/movie-dubber/internal/config"
	"github.com/MimeLyc/movie-dubber/internal/errs"
	"github.com/MimeLyc/movie-dubber/internal/subtitle"
	"github.com/MimeLyc/movie-dubber/internal/video"
	"github.com/MimeLyc/movie-dubber/pkg/log"
)

// positionSaveInterval throttles how often lastVideoTimeMs is written while playing.
const positionSaveInterval = 5 * time.Second

// session is the per-track state. Every field is owned by the loop goroutine.
type session struct {
	track      subtitle.Track
	generation uint64
	ctx        context.Context
	cancel     context.CancelFunc

	source      video.Source
	unsubscribe func()

	paused         bool
	originalVolume float64
	ducked         bool
	// echoes counts volumes the controller applied whose volumechange has not
	// come back yet. A relayed video reports them late.
	echoes map[float64]int

	lastTick time.Time
	lastScan time.Time
	lastSave time.Time
	lastCue  string

	// started holds cues already handed to the player since the last stop.
	started     map[string]struct{}
	resolving   map[string]struct{}
	prefetching map[string]struct{}
	// missing holds clips the last lookup could not find. They are looked up
	// again once generation reports them or the scan sees them exist.
	missing map[string]struct{}
}

// sessionHandler routes video events of one session into the loop.
type sessionHandler struct {
	c *Controller
	s *session
}

func (h *sessionHandler) OnPlay()         { h.c.post(func() { h.c.onSession(h.s, h.c.handlePlay) }) }
func (h *sessionHandler) OnPause()        { h.c.post(func() { h.c.onSession(h.s, h.c.handlePause) }) }
func (h *sessionHandler) OnSeeking()      { h.c.post(func() { h.c.onSession(h.s, h.c.handleSeeking) }) }
func (h *sessionHandler) OnVolumeChange() { h.c.post(func() { h.c.onSession(h.s, h.c.handleVolumeChange) }) }
func (h *sessionHandler) OnTimeUpdate()   { h.c.post(func() { h.c.onSession(h.s, h.c.handleTimeUpdate) }) }

// onSession drops events of a session that has been replaced or stopped.
func (c *Controller) onSession(s *session, fn func(*session)) {
	if c.session != s || s.source == nil {
		return
	}
	fn(s)
}

func (c *Controller) startSession(loaded subtitle.Loaded) {
	if c.session != nil {
		c.stopSession()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		track:       loaded.Track,
		generation:  c.table.SetActiveTrack(loaded.Cues),
		ctx:         ctx,
		cancel:      cancel,
		started:     make(map[string]struct{}),
		resolving:   make(map[string]struct{}),
		prefetching: make(map[string]struct{}),
		missing:     make(map[string]struct{}),
		echoes:      make(map[float64]int),
	}
	c.session = s
	c.state = StateAttaching
	log.Info("dubbing %s with %d cues, looking for the video", s.track.Key(), len(loaded.Cues))
	c.broadcast(BroadcastDubbingState, DubbingStatePayload{Active: true})

	go func() {
		source, err := c.deps.Finder.Wait(ctx, c.deps.Document)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("no video element for %s: %v", s.track.Key(), err)
			}
			return
		}
		c.post(func() {
			if c.session != s {
				releaseSource(source)
				return
			}
			c.activate(s, source)
		})
	}()
}

func (c *Controller) activate(s *session, source video.Source) {
	s.source = source
	s.originalVolume = source.Volume()
	s.paused = source.Paused()
	s.unsubscribe = source.Subscribe(&sessionHandler{c: c, s: s})
	c.state = StateActive
	log.Info("attached to video (volume %.2f, paused %t)", s.originalVolume, s.paused)
	c.savePlayback(func(p *config.PlaybackSettings) {
		p.OriginalVideoVolume = s.originalVolume
	})
	c.syncPosition(s)
}

// releaseSource frees relay resources held by a source that is no longer used.
func releaseSource(source video.Source) {
	if closer, ok := source.(video.Closer); ok {
		closer.Close()
	}
}

func (c *Controller) stopSession() {
	s := c.session
	if s == nil {
		return
	}
	s.cancel()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.source != nil {
		if s.ducked {
			s.source.SetVolume(s.originalVolume)
		}
		c.savePosition(s, s.source.CurrentTime())
		releaseSource(s.source)
	}

	c.deps.Player.StopAllAudio()
	c.table.Reset()
	c.deps.Loader.Reset()
	c.deps.Files.ClearCache()
	if c.deps.Generator != nil {
		c.deps.Generator.Reset()
	}

	c.session = nil
	c.state = StateIdle
	log.Info("dubbing stopped for %s", s.track.Key())
	c.broadcast(BroadcastCurrentSubtitle, nil)
	c.broadcast(BroadcastDubbingState, DubbingStatePayload{Active: false})
}

func (c *Controller) handlePlay(s *session) {
	s.paused = false
	c.restart(s)
}

func (c *Controller) handlePause(s *session) {
	s.paused = true
	c.stopAudio(s)
	c.savePosition(s, s.source.CurrentTime())
}

func (c *Controller) handleSeeking(s *session) {
	c.stopAudio(s)
	if !s.paused {
		c.syncPosition(s)
	}
}

// handleVolumeChange treats a change made while no cue is ducking the video as
// the user's new baseline. Echoes of the controller's own changes are skipped.
func (c *Controller) handleVolumeChange(s *session) {
	v := s.source.Volume()
	if s.echoes[v] > 0 {
		s.echoes[v]--
		if s.echoes[v] == 0 {
			delete(s.echoes, v)
		}
		return
	}
	// anything else is the user; earlier echoes will not arrive anymore
	clear(s.echoes)
	if s.ducked || v == s.originalVolume {
		return
	}
	s.originalVolume = v
	c.savePlayback(func(p *config.PlaybackSettings) {
		p.OriginalVideoVolume = v
	})
}

func (c *Controller) handleTimeUpdate(s *session) {
	if c.now().Sub(s.lastTick) < c.config.TickInterval {
		return
	}
	c.syncPosition(s)
}

// restart stops every voice and replays what is active at the current position.
func (c *Controller) restart(s *session) {
	c.stopAudio(s)
	c.syncPosition(s)
}

func (c *Controller) stopAudio(s *session) {
	c.deps.Player.StopAllAudio()
	s.started = make(map[string]struct{})
}

// syncPosition is one tick: cue lookup, ducking, playback, expiry, prefetch and
// the generation scan.
func (c *Controller) syncPosition(s *session) {
	now := c.now()
	s.lastTick = now

	videoTime := s.source.CurrentTime()
	adjusted := videoTime - c.offset()
	cues := c.table.CuesAt(adjusted)

	c.announceCue(s, cues, adjusted)
	c.broadcast(BroadcastCurrentTime, TimePayload{
		CurrentTime:  videoTime.Milliseconds(),
		AdjustedTime: adjusted.Milliseconds(),
	})

	if len(cues) > 0 {
		c.duck(s)
	} else {
		c.restoreVolume(s)
	}

	c.forgetFinished(s, cues)
	if !s.paused {
		for _, cue := range cues {
			c.playCue(s, cue, adjusted)
		}
	}
	c.deps.Player.StopExpiredAudio(adjusted)

	c.prefetch(s, adjusted)
	if now.Sub(s.lastScan) >= c.config.GenerationScanInterval {
		s.lastScan = now
		c.scanMissing(s, adjusted)
	}
	if !s.paused && now.Sub(s.lastSave) >= positionSaveInterval {
		c.savePosition(s, videoTime)
	}
}

func (c *Controller) savePosition(s *session, videoTime time.Duration) {
	s.lastSave = c.now()
	ms := max(videoTime.Milliseconds(), 0)
	c.savePlayback(func(p *config.PlaybackSettings) {
		p.LastVideoTimeMs = ms
	})
}

// savePlayback writes playback state from the loop. A failed write is logged and
// retried with the next change.
func (c *Controller) savePlayback(fn func(*config.PlaybackSettings)) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := c.deps.Settings.Update(ctx, fn); err != nil {
		log.Warn("failed to persist playback state: %v", err)
	}
}

func (c *Controller) announceCue(s *session, cues []subtitle.Cue, adjusted time.Duration) {
	if len(cues) == 0 {
		if s.lastCue != "" {
			s.lastCue = ""
			c.broadcast(BroadcastCurrentSubtitle, nil)
		}
		return
	}
	cue := cues[len(cues)-1]
	key := subtitle.AssetKey(s.track, cue)
	if key == s.lastCue {
		return
	}
	s.lastCue = key
	c.broadcast(BroadcastCurrentSubtitle, SubtitlePayload{
		Text:        cue.Text,
		Start:       cue.Start.Milliseconds(),
		End:         cue.End.Milliseconds(),
		CurrentTime: adjusted.Milliseconds(),
	})
}

func (c *Controller) duck(s *session) {
	if s.ducked {
		return
	}
	s.ducked = true
	c.setVideoVolume(s, c.deps.Settings.Get().VideoVolumeWhilePlayingDubbing)
}

func (c *Controller) restoreVolume(s *session) {
	if !s.ducked {
		return
	}
	s.ducked = false
	c.setVideoVolume(s, s.originalVolume)
}

func (c *Controller) setVideoVolume(s *session, v float64) {
	v = video.ClampVolume(v)
	if s.source.Volume() == v {
		return
	}
	s.echoes[v]++
	s.source.SetVolume(v)
}

// forgetFinished lets a cue play again once the position has left it.
func (c *Controller) forgetFinished(s *session, current []subtitle.Cue) {
	if len(s.started) == 0 {
		return
	}
	active := make(map[string]struct{}, len(current))
	for _, cue := range current {
		active[subtitle.AssetKey(s.track, cue)] = struct{}{}
	}
	for key := range s.started {
		if _, ok := active[key]; !ok {
			delete(s.started, key)
		}
	}
}

func (c *Controller) playCue(s *session, cue subtitle.Cue, adjusted time.Duration) {
	key := subtitle.AssetKey(s.track, cue)
	if _, ok := s.started[key]; ok {
		return
	}
	if buf, ok := c.deps.Files.Cached(key); ok {
		if c.deps.Player.PlayAudio(buf, key, cue, adjusted-cue.Start) {
			s.started[key] = struct{}{}
		}
		return
	}
	if _, ok := s.resolving[key]; ok {
		return
	}
	if _, ok := s.missing[key]; ok {
		return
	}

	s.resolving[key] = struct{}{}
	go func() {
		buf, ok := c.deps.Files.GetAudioBuffer(s.ctx, key)
		c.post(func() {
			if c.session != s {
				return
			}
			delete(s.resolving, key)
			if !ok {
				s.missing[key] = struct{}{}
				return
			}
			if !c.table.IsCurrent(s.generation) || s.paused {
				return
			}
			if _, started := s.started[key]; started {
				return
			}
			// the position moved while the clip was loading
			now := s.source.CurrentTime() - c.offset()
			if !cue.Contains(now) {
				return
			}
			if c.deps.Player.PlayAudio(buf, key, cue, now-cue.Start) {
				s.started[key] = struct{}{}
			}
		})
	}()
}

func (c *Controller) prefetch(s *session, adjusted time.Duration) {
	upcoming := c.table.Upcoming(adjusted, c.config.PrefetchWindow)
	keys := make([]string, 0, len(upcoming))
	for _, cue := range upcoming {
		key := subtitle.AssetKey(s.track, cue)
		if _, ok := s.prefetching[key]; ok {
			continue
		}
		if _, ok := s.missing[key]; ok {
			continue
		}
		if _, ok := c.deps.Files.Cached(key); ok {
			continue
		}
		s.prefetching[key] = struct{}{}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return
	}

	go func() {
		n := c.deps.Files.Prefetch(s.ctx, keys, c.config.PrefetchConcurrency)
		log.Debug("prefetched %d/%d upcoming clips", n, len(keys))
		c.post(func() {
			for _, key := range keys {
				delete(s.prefetching, key)
				if _, ok := c.deps.Files.Cached(key); !ok {
					s.missing[key] = struct{}{}
				}
			}
		})
	}()
}

// scanMissing looks ahead GenerationWindow for cues whose clip does not exist
// yet and schedules their generation.
func (c *Controller) scanMissing(s *session, adjusted time.Duration) {
	cues := append(c.table.CuesAt(adjusted), c.table.Upcoming(adjusted, c.config.GenerationWindow)...)
	if len(cues) == 0 {
		return
	}
	track := s.track
	go errs.Guard("generation scan", func() error {
		var found []string
		missing := 0
		for _, cue := range cues {
			if s.ctx.Err() != nil {
				return nil
			}
			key := subtitle.AssetKey(track, cue)
			if c.deps.Files.CheckFileExists(s.ctx, key) {
				found = append(found, key)
				continue
			}
			missing++
			c.scheduleGeneration(key, cue)
		}
		log.Debug("generation scan: %d of %d upcoming clips missing", missing, len(cues))
		c.post(func() {
			for _, key := range found {
				delete(s.missing, key)
			}
		})
		return nil
	})
}

// applyOffset switches the adjusted timeline: audio restarts at the new position.
func (c *Controller) applyOffset() {
	s := c.session
	if s == nil || s.source == nil {
		return
	}
	c.restart(s)
}

// applyDuckVolume moves a ducked video to the new level right away.
func (c *Controller) applyDuckVolume(v float64) {
	s := c.session
	if s == nil || s.source == nil || !s.ducked {
		return
	}
	c.setVideoVolume(s, v)
}
