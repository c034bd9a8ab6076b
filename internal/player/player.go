package player

import (
	"sort"
	"sync"
	"time"

	"github.com/MimeLyc/movie-dubber/internal/audiofile"
	"github.com/MimeLyc/movie-dubber/internal/subtitle"
	"github.com/MimeLyc/movie-dubber/pkg/log"
)

type instance struct {
	key       string
	cue       subtitle.Cue
	voice     Voice
	startedAt time.Time
}

// Player keeps at most one active instance per asset key. Replaced, expired and
// excess instances are faded, never cut, until they end or StopAllAudio runs.
type Player struct {
	graph  Graph
	config Config
	now    func() time.Time

	mu         sync.Mutex
	active     map[string]*instance
	retired    map[*instance]struct{}
	lastStart  map[string]time.Time
	multiplier float64
}

type Option func(*Player)

func WithClock(now func() time.Time) Option {
	return func(p *Player) {
		p.now = now
	}
}

func New(graph Graph, config Config, opts ...Option) *Player {
	if config.MaxMultiplier <= 0 {
		config.MaxMultiplier = DefaultConfig().MaxMultiplier
	}
	p := &Player{
		graph:      graph,
		config:     config,
		now:        time.Now,
		active:     make(map[string]*instance),
		retired:    make(map[*instance]struct{}),
		lastStart:  make(map[string]time.Time),
		multiplier: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PlayAudio starts buf offset into the clip for cue. It reports whether a voice was started.
func (p *Player) PlayAudio(buf *audiofile.Buffer, key string, cue subtitle.Cue, offset time.Duration) bool {
	if buf == nil {
		return false
	}
	offset = clampDuration(offset, 0, buf.Duration)
	if buf.Duration > 0 && offset >= buf.Duration {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if last, ok := p.lastStart[key]; ok && now.Sub(last) < p.config.ReplayThreshold {
		log.Debug("dropping replay of %s within %v", key, p.config.ReplayThreshold)
		return false
	}

	if existing, ok := p.active[key]; ok {
		p.retireLocked(existing)
	}
	if p.config.MaxVoices > 0 {
		for len(p.active) >= p.config.MaxVoices {
			p.retireLocked(p.oldestLocked())
		}
	}

	voice, err := p.graph.NewVoice(buf, p.multiplier)
	if err != nil {
		log.Warn("failed to create voice for %s: %v", key, err)
		return false
	}
	if err := voice.Start(offset); err != nil {
		log.Warn("failed to start %s: %v", key, err)
		voice.Stop()
		return false
	}

	fadeDelay := cue.Duration() - p.config.FadeOut - offset
	if fadeDelay < 0 {
		fadeDelay = 0
	}
	voice.RampGain(p.config.MinGain, fadeDelay, p.config.FadeOut)

	inst := &instance{key: key, cue: cue, voice: voice, startedAt: now}
	p.active[key] = inst
	p.lastStart[key] = now
	go p.awaitEnd(inst)
	return true
}

// StopExpiredAudio fades every instance whose cue ended more than FadeOut before at.
func (p *Player) StopExpiredAudio(at time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, inst := range p.active {
		if at-inst.cue.End > p.config.FadeOut {
			inst.voice.SetGain(p.config.MinGain)
			p.moveToRetiredLocked(inst)
		}
	}
}

// StopAllAudio hard-stops every voice, including fading ones.
func (p *Player) StopAllAudio() {
	p.mu.Lock()
	voices := make([]Voice, 0, len(p.active)+len(p.retired))
	for _, inst := range p.active {
		voices = append(voices, inst.voice)
	}
	for inst := range p.retired {
		voices = append(voices, inst.voice)
	}
	p.active = make(map[string]*instance)
	p.retired = make(map[*instance]struct{})
	p.lastStart = make(map[string]time.Time)
	p.mu.Unlock()

	for _, v := range voices {
		v.Stop()
	}
}

// SetDubbingVolumeMultiplier rescales every active voice in place.
func (p *Player) SetDubbingVolumeMultiplier(x float64) float64 {
	x = clampFloat(x, 0, p.config.MaxMultiplier)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.multiplier = x
	for _, inst := range p.active {
		inst.voice.SetGain(x)
	}
	return x
}

func (p *Player) DubbingVolumeMultiplier() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.multiplier
}

// CurrentlyPlaying returns the cues of active (not fading) instances in start order.
func (p *Player) CurrentlyPlaying() []subtitle.Cue {
	p.mu.Lock()
	defer p.mu.Unlock()
	ret := make([]subtitle.Cue, 0, len(p.active))
	for _, inst := range p.active {
		ret = append(ret, inst.cue)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Start < ret[j].Start
	})
	return ret
}

func (p *Player) IsPlaying(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[key]
	return ok
}

func (p *Player) retireLocked(inst *instance) {
	if inst == nil {
		return
	}
	inst.voice.RampGain(p.config.MinGain, 0, p.config.FadeOut)
	p.moveToRetiredLocked(inst)
}

func (p *Player) moveToRetiredLocked(inst *instance) {
	if current, ok := p.active[inst.key]; ok && current == inst {
		delete(p.active, inst.key)
	}
	p.retired[inst] = struct{}{}
}

func (p *Player) oldestLocked() *instance {
	var oldest *instance
	for _, inst := range p.active {
		if oldest == nil || inst.startedAt.Before(oldest.startedAt) {
			oldest = inst
		}
	}
	return oldest
}

func (p *Player) awaitEnd(inst *instance) {
	<-inst.voice.Ended()

	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.active[inst.key]; ok && current == inst {
		delete(p.active, inst.key)
	}
	delete(p.retired, inst)
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
