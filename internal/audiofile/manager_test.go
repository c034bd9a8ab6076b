package audiofile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/movie-dubber/internal/errs"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchAudioFile(ctx context.Context, filePath string) ([]byte, error) {
	args := m.Called(ctx, filePath)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *mockFetcher) CheckFileExists(ctx context.Context, filePath string) (bool, error) {
	args := m.Called(ctx, filePath)
	return args.Bool(0), args.Error(1)
}

type countingDecoder struct {
	calls atomic.Int32
}

func (d *countingDecoder) Decode(key string, data []byte) (*Buffer, error) {
	d.calls.Add(1)
	if string(data) == "corrupt" {
		return nil, errors.New("bad frame header")
	}
	return &Buffer{Key: key, Data: data, Duration: time.Duration(len(data)) * time.Second}, nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Put(_ context.Context, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.data[key] = data
	return nil
}

const key = "tt1/en/0-1000.mp3"

func TestManager_DeduplicatesConcurrentRequests(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("FetchAudioFile", mock.Anything, key).
		After(50*time.Millisecond).
		Return([]byte("clip"), nil).
		Once()
	decoder := &countingDecoder{}
	manager := NewManager(decoder, newMemCache(), fetcher)

	const n = 10
	results := make([]*Buffer, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buf, ok := manager.GetAudioBuffer(context.Background(), key)
			assert.True(t, ok)
			results[i] = buf
		}(i)
	}
	wg.Wait()

	fetcher.AssertNumberOfCalls(t, "FetchAudioFile", 1)
	assert.Equal(t, int32(1), decoder.calls.Load())
	for _, buf := range results {
		assert.Same(t, results[0], buf)
	}
}

func TestManager_ResolutionOrder(t *testing.T) {
	fetcher := &mockFetcher{}
	cache := newMemCache()
	cache.data[key] = []byte("cached")
	manager := NewManager(&countingDecoder{}, cache, fetcher)

	buf, ok := manager.GetAudioBuffer(context.Background(), key)
	require.True(t, ok)
	assert.Equal(t, []byte("cached"), buf.Data)
	fetcher.AssertNotCalled(t, "FetchAudioFile", mock.Anything, mock.Anything)

	// now served from memory even if the persistent tier breaks
	cache.err = errors.New("locked")
	again, ok := manager.GetAudioBuffer(context.Background(), key)
	require.True(t, ok)
	assert.Same(t, buf, again)
}

func TestManager_CorruptCacheFallsThroughToNetwork(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("FetchAudioFile", mock.Anything, key).Return([]byte("fresh"), nil).Once()
	cache := newMemCache()
	cache.data[key] = []byte("corrupt")
	manager := NewManager(&countingDecoder{}, cache, fetcher)

	buf, ok := manager.GetAudioBuffer(context.Background(), key)
	require.True(t, ok)
	assert.Equal(t, []byte("fresh"), buf.Data)
	assert.Equal(t, []byte("fresh"), cache.data[key])
	fetcher.AssertExpectations(t)
}

func TestManager_NetworkFailureIsSoftMiss(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("FetchAudioFile", mock.Anything, key).
		Return(nil, errs.New(errs.NotFound, "missing"))
	manager := NewManager(&countingDecoder{}, nil, fetcher)

	buf, ok := manager.GetAudioBuffer(context.Background(), key)
	assert.False(t, ok)
	assert.Nil(t, buf)
	assert.Equal(t, 0, manager.Len())
}

func TestManager_UnavailableCacheStillUsesNetwork(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("FetchAudioFile", mock.Anything, key).Return([]byte("clip"), nil)
	cache := newMemCache()
	cache.err = errs.New(errs.Unavailable, "cache unavailable")
	manager := NewManager(&countingDecoder{}, cache, fetcher)

	_, ok := manager.GetAudioBuffer(context.Background(), key)
	assert.True(t, ok)
}

func TestManager_ClearCacheKeepsPersistentTier(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("FetchAudioFile", mock.Anything, key).Return([]byte("clip"), nil).Once()
	cache := newMemCache()
	manager := NewManager(&countingDecoder{}, cache, fetcher)

	_, ok := manager.GetAudioBuffer(context.Background(), key)
	require.True(t, ok)
	require.Equal(t, 1, manager.Len())

	manager.ClearCache()
	assert.Equal(t, 0, manager.Len())

	_, ok = manager.GetAudioBuffer(context.Background(), key)
	assert.True(t, ok)
	fetcher.AssertNumberOfCalls(t, "FetchAudioFile", 1)
}

func TestManager_CallerCancellationDoesNotFailOthers(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("FetchAudioFile", mock.Anything, key).
		After(50*time.Millisecond).
		Return([]byte("clip"), nil).
		Once()
	manager := NewManager(&countingDecoder{}, nil, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool)
	go func() {
		_, ok := manager.GetAudioBuffer(ctx, key)
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)

	var secondOK bool
	secondDone := make(chan struct{})
	go func() {
		_, secondOK = manager.GetAudioBuffer(context.Background(), key)
		close(secondDone)
	}()
	cancel()

	assert.False(t, <-done)
	<-secondDone
	assert.True(t, secondOK)
	fetcher.AssertNumberOfCalls(t, "FetchAudioFile", 1)
}

func TestManager_PendingIsClearedWhenEveryCallerGaveUp(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("FetchAudioFile", mock.Anything, key).
		After(50*time.Millisecond).
		Return(nil, errs.New(errs.NotFound, "not generated yet")).
		Once()
	manager := NewManager(&countingDecoder{}, nil, fetcher)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, ok := manager.GetAudioBuffer(ctx, key)
	assert.False(t, ok)

	require.Eventually(t, func() bool {
		manager.mu.RLock()
		defer manager.mu.RUnlock()
		return len(manager.pending) == 0
	}, time.Second, 5*time.Millisecond)
	fetcher.AssertNumberOfCalls(t, "FetchAudioFile", 1)
}

func TestManager_CheckFileExists(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("CheckFileExists", mock.Anything, "a.mp3").Return(true, nil)
	fetcher.On("CheckFileExists", mock.Anything, "b.mp3").Return(false, fmt.Errorf("offline"))
	manager := NewManager(&countingDecoder{}, nil, fetcher)

	assert.True(t, manager.CheckFileExists(context.Background(), "a.mp3"))
	assert.False(t, manager.CheckFileExists(context.Background(), "b.mp3"))
}

func TestMP3Decoder_RejectsGarbage(t *testing.T) {
	_, err := MP3Decoder{}.Decode("k", []byte("definitely not an mp3"))
	assert.Error(t, err)
	_, err = MP3Decoder{}.Decode("k", nil)
	assert.Error(t, err)
}

func TestManager_PrefetchFillsMemory(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("FetchAudioFile", mock.Anything, "m/t/0-1000.mp3").Return([]byte("a"), nil).Once()
	fetcher.On("FetchAudioFile", mock.Anything, "m/t/1000-2000.mp3").Return([]byte("b"), nil).Once()
	fetcher.On("FetchAudioFile", mock.Anything, "m/t/2000-3000.mp3").Return(nil, errs.New(errs.NotFound, "missing")).Once()
	manager := NewManager(&countingDecoder{}, nil, fetcher)

	n := manager.Prefetch(context.Background(), []string{"m/t/0-1000.mp3", "m/t/1000-2000.mp3", "m/t/2000-3000.mp3"}, 2)

	assert.Equal(t, 2, n)
	assert.Equal(t, 2, manager.Len())
	fetcher.AssertExpectations(t)
}
