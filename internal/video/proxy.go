package video

import (
	"encoding/json"
	"time"

	"github.com/MimeLyc/movie-dubber/pkg/log"
)

// Proxy stands in for a video living in a frame we cannot touch directly. Method
// calls go out as relay messages; relayed events update the mirrored state and
// are dispatched like local events.
type Proxy struct {
	frameID   string
	messenger Messenger
	element   *Element
	detach    func()
}

func NewProxy(frameID string, messenger Messenger, initial State) *Proxy {
	p := &Proxy{
		frameID:   frameID,
		messenger: messenger,
		element:   NewElement(),
	}
	p.element.Apply(initial, "")
	p.detach = messenger.Attach(frameID, p.deliver)
	return p
}

func (p *Proxy) FrameID() string { return p.frameID }

func (p *Proxy) CurrentTime() time.Duration { return p.element.CurrentTime() }

func (p *Proxy) Paused() bool { return p.element.Paused() }

func (p *Proxy) Volume() float64 { return p.element.Volume() }

// SetVolume mirrors v locally and asks the frame to apply it. The frame answers
// with a volumechange event once the element changed.
func (p *Proxy) SetVolume(v float64) {
	v = ClampVolume(v)
	state := p.element.State()
	state.Volume = v
	p.element.Apply(state, "")

	value, _ := json.Marshal(v)
	if err := p.messenger.Post(Message{
		Type:     TypePropertyChange,
		FrameID:  p.frameID,
		Property: "volume",
		Value:    value,
	}); err != nil {
		log.Warn("failed to relay volume to frame %s: %v", p.frameID, err)
	}
}

func (p *Proxy) Play() error { return p.call("play") }

func (p *Proxy) Pause() error { return p.call("pause") }

func (p *Proxy) Load() error { return p.call("load") }

func (p *Proxy) Subscribe(h Handler) func() { return p.element.Subscribe(h) }

// Close stops routing relay messages to the proxy.
func (p *Proxy) Close() {
	if p.detach != nil {
		p.detach()
	}
}

func (p *Proxy) call(method string) error {
	return p.messenger.Post(Message{
		Type:    TypeMethodCall,
		FrameID: p.frameID,
		Method:  method,
	})
}

func (p *Proxy) deliver(msg Message) {
	state := p.element.State()
	switch msg.Type {
	case TypeVideoEvent:
		mergeState(&state, msg)
		p.element.Apply(state, msg.Event)
	case TypePropertyChange:
		if !applyProperty(&state, msg) {
			log.Debug("ignoring relayed property %q from frame %s", msg.Property, p.frameID)
			return
		}
		p.element.Apply(state, "")
	}
}

func mergeState(state *State, msg Message) {
	state.CurrentTime = secondsToDuration(msg.CurrentTime)
	if msg.Paused != nil {
		state.Paused = *msg.Paused
	}
	if msg.Volume != nil {
		state.Volume = *msg.Volume
	}
}

func applyProperty(state *State, msg Message) bool {
	switch msg.Property {
	case "currentTime":
		var seconds float64
		if err := json.Unmarshal(msg.Value, &seconds); err != nil {
			return false
		}
		state.CurrentTime = secondsToDuration(seconds)
	case "paused":
		if err := json.Unmarshal(msg.Value, &state.Paused); err != nil {
			return false
		}
	case "volume":
		if err := json.Unmarshal(msg.Value, &state.Volume); err != nil {
			return false
		}
	default:
		return false
	}
	return true
}

var _ Closer = (*Proxy)(nil)

// StateMessage builds the VIDEO_EVENT message a frame sends for event.
func StateMessage(frameID, event string, state State) Message {
	paused := state.Paused
	volume := state.Volume
	return Message{
		Type:        TypeVideoEvent,
		FrameID:     frameID,
		Event:       event,
		CurrentTime: durationToSeconds(state.CurrentTime),
		Paused:      &paused,
		Volume:      &volume,
	}
}
