package audiofile

import (
	"context"
	"time"
)

// Buffer is a decoded, play-ready clip. Data keeps the encoded bytes so the
// playback graph can be fed without another network round trip.
type Buffer struct {
	Key        string
	Data       []byte
	SampleRate int
	Duration   time.Duration
}

// Decoder turns encoded clip bytes into a Buffer.
type Decoder interface {
	Decode(key string, data []byte) (*Buffer, error)
}

// Fetcher is the network tier.
type Fetcher interface {
	FetchAudioFile(ctx context.Context, filePath string) ([]byte, error)
	CheckFileExists(ctx context.Context, filePath string) (bool, error)
}

// PersistentCache is the durable tier, satisfied by audiocache.Cache.
type PersistentCache interface {
	Get(ctx context.Context, assetKey string) ([]byte, bool, error)
	Put(ctx context.Context, assetKey string, data []byte) error
}
