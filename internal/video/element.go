package video

import (
	"sync"
	"time"
)

// Element is an in-process media element model. It keeps the properties and
// dispatches events to subscribers synchronously, outside its lock.
type Element struct {
	mu          sync.Mutex
	currentTime time.Duration
	paused      bool
	volume      float64
	handlers    map[int]Handler
	nextID      int
}

func NewElement() *Element {
	return &Element{
		paused:   true,
		volume:   1,
		handlers: make(map[int]Handler),
	}
}

func (e *Element) CurrentTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentTime
}

func (e *Element) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *Element) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// SetVolume clamps v to [0, 1] and fires volumechange when it changed.
func (e *Element) SetVolume(v float64) {
	v = ClampVolume(v)
	e.mu.Lock()
	changed := e.volume != v
	e.volume = v
	e.mu.Unlock()
	if changed {
		e.dispatch(EventVolumeChange)
	}
}

func (e *Element) Play() error {
	e.mu.Lock()
	wasPaused := e.paused
	e.paused = false
	e.mu.Unlock()
	if wasPaused {
		e.dispatch(EventPlay)
	}
	return nil
}

func (e *Element) Pause() error {
	e.mu.Lock()
	wasPaused := e.paused
	e.paused = true
	e.mu.Unlock()
	if !wasPaused {
		e.dispatch(EventPause)
	}
	return nil
}

// Load resets playback to the start, paused.
func (e *Element) Load() error {
	e.mu.Lock()
	e.currentTime = 0
	e.paused = true
	e.mu.Unlock()
	return nil
}

// Seek jumps to t and fires seeking followed by timeupdate.
func (e *Element) Seek(t time.Duration) {
	e.mu.Lock()
	e.currentTime = t
	e.mu.Unlock()
	e.dispatch(EventSeeking)
	e.dispatch(EventTimeUpdate)
}

// Tick advances playback to t and fires timeupdate.
func (e *Element) Tick(t time.Duration) {
	e.mu.Lock()
	e.currentTime = t
	e.mu.Unlock()
	e.dispatch(EventTimeUpdate)
}

// Apply overwrites the properties from a relayed snapshot and fires event, if any.
func (e *Element) Apply(state State, event string) {
	e.mu.Lock()
	e.currentTime = state.CurrentTime
	e.paused = state.Paused
	e.volume = ClampVolume(state.Volume)
	e.mu.Unlock()
	if event != "" {
		e.dispatch(event)
	}
}

func (e *Element) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{CurrentTime: e.currentTime, Paused: e.paused, Volume: e.volume}
}

func (e *Element) Subscribe(h Handler) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.handlers[id] = h
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.handlers, id)
		e.mu.Unlock()
	}
}

func (e *Element) dispatch(event string) {
	e.mu.Lock()
	handlers := make([]Handler, 0, len(e.handlers))
	for _, h := range e.handlers {
		handlers = append(handlers, h)
	}
	e.mu.Unlock()

	for _, h := range handlers {
		switch event {
		case EventPlay:
			h.OnPlay()
		case EventPause:
			h.OnPause()
		case EventSeeking:
			h.OnSeeking()
		case EventVolumeChange:
			h.OnVolumeChange()
		case EventTimeUpdate:
			h.OnTimeUpdate()
		}
	}
}

// ClampVolume bounds v to the media element range [0, 1].
func ClampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
