package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MimeLyc/movie-dubber/internal/audiofile"
	"github.com/MimeLyc/movie-dubber/internal/errs"
	"github.com/MimeLyc/movie-dubber/internal/player"
)

// NewVoice registers buf for download and returns a voice played by the page.
func (h *Hub) NewVoice(buf *audiofile.Buffer, gain float64) (player.Voice, error) {
	if buf == nil || len(buf.Data) == 0 {
		return nil, errs.New(errs.Validation, "voice needs audio data")
	}
	v := &remoteVoice{
		hub:   h,
		id:    uuid.NewString(),
		buf:   buf,
		gain:  gain,
		ended: make(chan struct{}),
	}
	h.mu.Lock()
	h.voices[v.id] = v
	h.mu.Unlock()
	return v, nil
}

// Clip returns the audio bytes of a live voice.
func (h *Hub) Clip(voiceID string) (*audiofile.Buffer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.voices[voiceID]
	if !ok {
		return nil, false
	}
	return v.buf, true
}

type remoteVoice struct {
	hub  *Hub
	id   string
	buf  *audiofile.Buffer
	gain float64

	once  sync.Once
	ended chan struct{}
}

func (v *remoteVoice) Start(offset time.Duration) error {
	if v.hub.publish(Event{Kind: KindAudio, Payload: AudioCommand{
		Type:    TypeAudioStart,
		VoiceID: v.id,
		URL:     v.hub.audioPath + v.id,
		Offset:  offset.Seconds(),
		Gain:    v.gain,
	}}) == 0 {
		return errs.New(errs.Unavailable, "no page is connected").WithContext("voice", v.id)
	}
	return nil
}

func (v *remoteVoice) SetGain(value float64) {
	v.send(AudioCommand{Type: TypeAudioGain, Gain: value})
}

func (v *remoteVoice) RampGain(target float64, delay, duration time.Duration) {
	v.send(AudioCommand{
		Type:     TypeAudioRamp,
		Gain:     target,
		Delay:    delay.Seconds(),
		Duration: duration.Seconds(),
	})
}

func (v *remoteVoice) Stop() {
	v.send(AudioCommand{Type: TypeAudioStop})
	v.finish()
}

func (v *remoteVoice) Ended() <-chan struct{} {
	return v.ended
}

func (v *remoteVoice) send(cmd AudioCommand) {
	select {
	case <-v.ended:
		return
	default:
	}
	cmd.VoiceID = v.id
	v.hub.publish(Event{Kind: KindAudio, Payload: cmd})
}

func (v *remoteVoice) finish() {
	v.once.Do(func() {
		v.hub.mu.Lock()
		delete(v.hub.voices, v.id)
		v.hub.mu.Unlock()
		close(v.ended)
	})
}

var _ player.Graph = (*Hub)(nil)
