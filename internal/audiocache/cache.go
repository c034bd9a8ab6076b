// Package audiocache is the durable asset-key → audio-bytes tier of the audio lookup.
package audiocache

import (
	"context"

	"github.com/MimeLyc/movie-dubber/internal/errs"
	"github.com/MimeLyc/movie-dubber/pkg/log"
)

// Store is the durable blob backend, satisfied by persistence.SQLiteStore.
type Store interface {
	GetAudio(ctx context.Context, assetKey string) ([]byte, bool, error)
	PutAudio(ctx context.Context, assetKey string, data []byte) error
}

// Opener opens the durable backend. It runs once, in the background.
type Opener func() (Store, error)

// Cache gates every operation on the backend being open. Calls made before the
// open completes wait for it instead of failing.
type Cache struct {
	ready   chan struct{}
	store   Store
	openErr error
}

// Open starts opening the backend and returns immediately.
func Open(opener Opener) *Cache {
	c := &Cache{ready: make(chan struct{})}
	go func() {
		defer close(c.ready)
		store, err := opener()
		if err != nil {
			log.Error("audio cache unavailable: %v", err)
			c.openErr = err
			return
		}
		if store == nil {
			c.openErr = errs.New(errs.Unavailable, "audio cache opener returned no store")
			return
		}
		c.store = store
	}()
	return c
}

// FromStore wraps an already open backend.
func FromStore(store Store) *Cache {
	return Open(func() (Store, error) { return store, nil })
}

func (c *Cache) wait(ctx context.Context) (Store, error) {
	select {
	case <-c.ready:
	case <-ctx.Done():
		return nil, errs.Wrap(ctx.Err(), errs.Timeout, "waiting for audio cache")
	}
	if c.openErr != nil {
		return nil, errs.Wrap(c.openErr, errs.Unavailable, "cache unavailable")
	}
	return c.store, nil
}

// Ready blocks until the open attempt finished and reports its outcome.
func (c *Cache) Ready(ctx context.Context) error {
	_, err := c.wait(ctx)
	return err
}

// Get returns the bytes saved under assetKey. A miss is (nil, false, nil).
func (c *Cache) Get(ctx context.Context, assetKey string) ([]byte, bool, error) {
	store, err := c.wait(ctx)
	if err != nil {
		return nil, false, err
	}
	data, ok, err := store.GetAudio(ctx, assetKey)
	if err != nil {
		return nil, false, errs.Wrap(err, errs.Transient, "read audio cache").WithContext("key", assetKey)
	}
	return data, ok, nil
}

func (c *Cache) Put(ctx context.Context, assetKey string, data []byte) error {
	store, err := c.wait(ctx)
	if err != nil {
		return err
	}
	if err := store.PutAudio(ctx, assetKey, data); err != nil {
		return errs.Wrap(err, errs.Transient, "write audio cache").WithContext("key", assetKey)
	}
	return nil
}
