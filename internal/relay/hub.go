// Package relay connects the engine to the browser page. Outbound traffic is
// published to server-sent event subscribers; the page answers through POSTed
// messages. The Hub stands in for the page's document, its media graph and the
// cross-frame messenger.
package relay

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MimeLyc/movie-dubber/internal/alignment"
	"github.com/MimeLyc/movie-dubber/internal/errs"
	"github.com/MimeLyc/movie-dubber/internal/video"
	"github.com/MimeLyc/movie-dubber/pkg/log"
)

// Page-side message types that are not part of the video relay protocol.
const (
	TypeFrameAttached = "FRAME_ATTACHED"
	TypeFrameDetached = "FRAME_DETACHED"
	TypeAudioStart    = "AUDIO_START"
	TypeAudioGain     = "AUDIO_GAIN"
	TypeAudioRamp     = "AUDIO_RAMP"
	TypeAudioStop     = "AUDIO_STOP"
	TypeAudioEnded    = "AUDIO_ENDED"
	TypeRecordAudio   = "RECORD_AUDIO"
	TypeAudioRecorded = "AUDIO_RECORDED"
)

// Event kinds carrying engine traffic. UI broadcasts use their own kind.
const (
	KindMessage = "message"
	KindAudio   = "audio"
)

// Event is one server-sent event.
type Event struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

// Inbound is a message POSTed by the page. Relay protocol fields are inlined.
type Inbound struct {
	video.Message
	VoiceID string `json:"voiceId,omitempty"`
	// Audio is base64 encoded.
	Audio string  `json:"audio,omitempty"`
	Start float64 `json:"start,omitempty"`
	Error string  `json:"error,omitempty"`
}

// AudioCommand drives one voice of the page's media graph. Times are seconds.
type AudioCommand struct {
	Type     string  `json:"type"`
	VoiceID  string  `json:"voiceId"`
	URL      string  `json:"url,omitempty"`
	Offset   float64 `json:"offset,omitempty"`
	Gain     float64 `json:"gain"`
	Delay    float64 `json:"delay,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

type recordRequest struct {
	Type      string  `json:"type"`
	RequestID string  `json:"requestId"`
	Duration  float64 `json:"duration"`
}

type Hub struct {
	timeout   time.Duration
	audioPath string

	mu          sync.Mutex
	nextID      int
	subscribers map[int]chan Event
	pending     map[string]chan Inbound
	sinks       map[string]map[int]func(video.Message)
	frames      []string
	watchers    map[int]func()
	voices      map[string]*remoteVoice
}

type HubOption func(*Hub)

// WithAudioPath sets the URL prefix under which voice clips are served.
func WithAudioPath(prefix string) HubOption {
	return func(h *Hub) {
		h.audioPath = prefix
	}
}

// NewHub creates a hub. timeout bounds request/reply round trips.
func NewHub(timeout time.Duration, opts ...HubOption) *Hub {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	h := &Hub{
		timeout:     timeout,
		audioPath:   "/api/audio/",
		subscribers: make(map[int]chan Event),
		pending:     make(map[string]chan Inbound),
		sinks:       make(map[string]map[int]func(video.Message)),
		watchers:    make(map[int]func()),
		voices:      make(map[string]*remoteVoice),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers an event stream. The returned function unregisters it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 256)
	h.mu.Lock()
	id := h.id()
	h.subscribers[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, id)
			h.mu.Unlock()
		})
	}
}

// Subscribers reports how many streams are connected.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// publish fans ev out without blocking. Slow streams lose the event.
func (h *Hub) publish(ev Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	sent := 0
	for id, ch := range h.subscribers {
		select {
		case ch <- ev:
			sent++
		default:
			log.Debug("relay stream %d is full, dropping %s event", id, ev.Kind)
		}
	}
	return sent
}

// Broadcast sends a UI notification to every stream.
func (h *Hub) Broadcast(kind string, payload any) {
	h.publish(Event{Kind: kind, Payload: payload})
}

// Post sends a relay protocol message to the page.
func (h *Hub) Post(msg video.Message) error {
	if h.publish(Event{Kind: KindMessage, Payload: msg}) == 0 {
		return errs.New(errs.Unavailable, "no page is connected").WithContext("type", msg.Type)
	}
	return nil
}

// Request posts msg and waits for the reply with the same RequestID.
func (h *Hub) Request(ctx context.Context, msg video.Message) (video.Message, error) {
	if msg.RequestID == "" {
		msg.RequestID = uuid.NewString()
	}
	reply, err := h.roundTrip(ctx, msg.RequestID, h.timeout, func() error { return h.Post(msg) })
	if err != nil {
		return video.Message{}, err
	}
	return reply.Message, nil
}

func (h *Hub) roundTrip(ctx context.Context, requestID string, timeout time.Duration, send func() error) (Inbound, error) {
	ch := make(chan Inbound, 1)
	h.mu.Lock()
	h.pending[requestID] = ch
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.pending, requestID)
		h.mu.Unlock()
	}()

	if err := send(); err != nil {
		return Inbound{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		return Inbound{}, errs.Wrap(ctx.Err(), errs.Timeout, "page did not answer").WithContext("request", requestID)
	}
}

// Attach routes messages the page sends for frameID to sink.
func (h *Hub) Attach(frameID string, sink func(video.Message)) func() {
	h.mu.Lock()
	id := h.id()
	if h.sinks[frameID] == nil {
		h.sinks[frameID] = make(map[int]func(video.Message))
	}
	h.sinks[frameID][id] = sink
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.sinks[frameID], id)
		if len(h.sinks[frameID]) == 0 {
			delete(h.sinks, frameID)
		}
	}
}

// Deliver handles one message from the page.
func (h *Hub) Deliver(in Inbound) error {
	switch in.Type {
	case "":
		return errs.New(errs.Validation, "message type is required")
	case TypeFrameAttached:
		return h.attachFrame(in.FrameID)
	case TypeFrameDetached:
		h.detachFrame(in.FrameID)
		return nil
	case TypeAudioEnded:
		h.mu.Lock()
		v := h.voices[in.VoiceID]
		h.mu.Unlock()
		if v != nil {
			v.finish()
		}
		return nil
	}

	if in.RequestID != "" {
		h.mu.Lock()
		ch, ok := h.pending[in.RequestID]
		h.mu.Unlock()
		if ok {
			select {
			case ch <- in:
			default:
			}
			return nil
		}
	}

	h.mu.Lock()
	sinks := make([]func(video.Message), 0, len(h.sinks[in.FrameID]))
	for _, sink := range h.sinks[in.FrameID] {
		sinks = append(sinks, sink)
	}
	h.mu.Unlock()
	if len(sinks) == 0 {
		log.Debug("relay: no listener for %s from frame %q", in.Type, in.FrameID)
	}
	for _, sink := range sinks {
		sink(in.Message)
	}
	return nil
}

// Record asks the page to capture d of the video's audio.
func (h *Hub) Record(ctx context.Context, d time.Duration) (alignment.Sample, error) {
	req := recordRequest{Type: TypeRecordAudio, RequestID: uuid.NewString(), Duration: d.Seconds()}
	reply, err := h.roundTrip(ctx, req.RequestID, d+h.timeout, func() error {
		if h.publish(Event{Kind: KindMessage, Payload: req}) == 0 {
			return errs.New(errs.Unavailable, "no page is connected")
		}
		return nil
	})
	if err != nil {
		return alignment.Sample{}, err
	}
	if reply.Error != "" {
		return alignment.Sample{}, errs.New(errs.Unavailable, "page could not record audio").WithContext("reason", reply.Error)
	}
	audio, err := base64.StdEncoding.DecodeString(reply.Audio)
	if err != nil {
		return alignment.Sample{}, errs.Wrap(err, errs.Decode, "decode recorded audio")
	}
	return alignment.Sample{
		Audio:    audio,
		Start:    time.Duration(reply.Start * float64(time.Second)),
		Duration: d,
	}, nil
}

// id must be called with mu held.
func (h *Hub) id() int {
	h.nextID++
	return h.nextID
}

var (
	_ video.Messenger    = (*Hub)(nil)
	_ alignment.Recorder = (*Hub)(nil)
)
