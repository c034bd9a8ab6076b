package audiofile

import (
	"bytes"
	"fmt"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// MP3Decoder validates MP3 clips and measures their duration from the decoded PCM length.
type MP3Decoder struct{}

func (MP3Decoder) Decode(key string, data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio data for %s", key)
	}
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	sampleRate := dec.SampleRate()
	length := dec.Length()
	if sampleRate <= 0 || length <= 0 {
		return nil, fmt.Errorf("decode %s: no audio frames", key)
	}

	// go-mp3 always yields 16-bit stereo samples
	const bytesPerFrame = 4
	frames := length / bytesPerFrame
	return &Buffer{
		Key:        key,
		Data:       data,
		SampleRate: sampleRate,
		Duration:   time.Duration(frames) * time.Second / time.Duration(sampleRate),
	}, nil
}
