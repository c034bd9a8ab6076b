package audiofile

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/movie-dubber/internal/errs"
	"github.com/MimeLyc/movie-dubber/pkg/log"
)

const defaultResolveTimeout = 30 * time.Second

// Manager resolves clips through memory, then the persistent cache, then the network.
// Concurrent requests for one key share a single resolution.
type Manager struct {
	decoder Decoder
	cache   PersistentCache
	fetcher Fetcher

	resolveTimeout time.Duration

	mu      sync.RWMutex
	buffers map[string]*Buffer
	pending map[string]struct{}
	epoch   uint64
	group   singleflight.Group
}

type Option func(*Manager)

func WithResolveTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.resolveTimeout = d
		}
	}
}

// NewManager builds a manager. cache may be nil for network-only operation.
func NewManager(decoder Decoder, cache PersistentCache, fetcher Fetcher, opts ...Option) *Manager {
	m := &Manager{
		decoder:        decoder,
		cache:          cache,
		fetcher:        fetcher,
		resolveTimeout: defaultResolveTimeout,
		buffers:        make(map[string]*Buffer),
		pending:        make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetAudioBuffer returns the clip for assetKey, or false when it is unavailable.
// A miss is never an error for the caller: the line simply plays silently.
func (m *Manager) GetAudioBuffer(ctx context.Context, assetKey string) (*Buffer, bool) {
	if buf, ok := m.Cached(assetKey); ok {
		return buf, true
	}

	m.mu.Lock()
	m.pending[assetKey] = struct{}{}
	epoch := m.epoch
	m.mu.Unlock()

	ch := m.group.DoChan(assetKey, func() (any, error) {
		defer m.settle(assetKey, epoch)
		// a caller giving up must not fail the others waiting on this key
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.resolveTimeout)
		defer cancel()
		return m.resolve(rctx, assetKey, epoch)
	})

	select {
	case <-ctx.Done():
		return nil, false
	case res := <-ch:
		if res.Err != nil {
			log.Debug("audio %s unavailable: %v", assetKey, res.Err)
			return nil, false
		}
		return res.Val.(*Buffer), true
	}
}

// Prefetch resolves keys in the background of playback, at most limit at a time,
// and reports how many are now held in memory. Misses are silent.
func (m *Manager) Prefetch(ctx context.Context, keys []string, limit int) int {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	var mu sync.Mutex
	resolved := 0
	for _, key := range keys {
		if _, ok := m.Cached(key); ok {
			resolved++
			continue
		}
		g.Go(func() error {
			if _, ok := m.GetAudioBuffer(gctx, key); ok {
				mu.Lock()
				resolved++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return resolved
}

// Cached returns the in-memory clip without any I/O.
func (m *Manager) Cached(assetKey string) (*Buffer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	buf, ok := m.buffers[assetKey]
	return buf, ok
}

// CheckFileExists probes the network store without downloading the clip.
func (m *Manager) CheckFileExists(ctx context.Context, assetKey string) bool {
	if _, ok := m.Cached(assetKey); ok {
		return true
	}
	if m.fetcher == nil {
		return false
	}
	exists, err := m.fetcher.CheckFileExists(ctx, assetKey)
	if err != nil {
		log.Debug("existence check for %s failed: %v", assetKey, err)
		return false
	}
	return exists
}

// ClearCache drops decoded clips and pending-request bookkeeping. The persistent
// cache is untouched. Resolutions already running finish but no longer fill memory.
func (m *Manager) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.pending {
		m.group.Forget(key)
	}
	m.buffers = make(map[string]*Buffer)
	m.pending = make(map[string]struct{})
	m.epoch++
}

// settle drops the pending mark of a finished resolution, unless ClearCache
// already started a new epoch.
func (m *Manager) settle(assetKey string, epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch == epoch {
		delete(m.pending, assetKey)
	}
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.buffers)
}

func (m *Manager) resolve(ctx context.Context, assetKey string, epoch uint64) (*Buffer, error) {
	if buf, ok := m.Cached(assetKey); ok {
		return buf, nil
	}

	if m.cache != nil {
		data, ok, err := m.cache.Get(ctx, assetKey)
		switch {
		case err != nil:
			log.Warn("persistent audio cache read failed for %s: %v", assetKey, err)
		case ok:
			buf, err := m.decoder.Decode(assetKey, data)
			if err == nil {
				m.remember(assetKey, buf, epoch)
				return buf, nil
			}
			// the next successful fetch overwrites the bad entry
			log.Warn("cached audio for %s is corrupt, refetching: %v", assetKey, err)
		}
	}

	if m.fetcher == nil {
		return nil, errs.New(errs.Unavailable, "no audio fetcher configured")
	}
	data, err := m.fetcher.FetchAudioFile(ctx, assetKey)
	if err != nil {
		return nil, err
	}
	buf, err := m.decoder.Decode(assetKey, data)
	if err != nil {
		return nil, errs.Wrap(err, errs.Decode, "decode fetched audio").WithContext("key", assetKey)
	}
	m.remember(assetKey, buf, epoch)

	if m.cache != nil {
		if err := m.cache.Put(ctx, assetKey, data); err != nil {
			log.Warn("failed to persist audio %s: %v", assetKey, err)
		}
	}
	return buf, nil
}

func (m *Manager) remember(assetKey string, buf *Buffer, epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return
	}
	m.buffers[assetKey] = buf
}
