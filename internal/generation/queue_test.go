package generation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/movie-dubber/internal/errs"
	"github.com/MimeLyc/movie-dubber/internal/subtitle"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) GenerateAudio(ctx context.Context, text, filePath string) error {
	return m.Called(ctx, text, filePath).Error(0)
}

type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleep) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type results struct {
	mu  sync.Mutex
	all []Result
}

func (r *results) add(res Result) {
	r.mu.Lock()
	r.all = append(r.all, res)
	r.mu.Unlock()
}

func (r *results) list() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.all...)
}

var cue = subtitle.Cue{Start: 0, End: time.Second, Text: "hello"}

func TestQueue_Enqueue_DeduplicatesSameKey(t *testing.T) {
	q := NewQueue(&mockGenerator{}, DefaultConfig())

	assert.True(t, q.Enqueue("m/t/0-1000.mp3", cue))
	assert.False(t, q.Enqueue("m/t/0-1000.mp3", cue))

	entry, ok := q.Get("m/t/0-1000.mp3")
	require.True(t, ok)
	assert.Equal(t, StatusQueued, entry.Status)
	assert.Len(t, q.List(), 1)
}

func TestQueue_SucceedsAndIsNotRequeued(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("GenerateAudio", mock.Anything, "hello", "m/t/0-1000.mp3").Return(nil).Once()
	got := &results{}
	q := NewQueue(gen, DefaultConfig(), WithResultHandler(got.add))
	q.Start()
	defer q.Stop()

	require.True(t, q.Enqueue("m/t/0-1000.mp3", cue))
	require.Eventually(t, func() bool {
		entry, ok := q.Get("m/t/0-1000.mp3")
		return ok && entry.Status == StatusDone
	}, time.Second, 10*time.Millisecond)

	assert.False(t, q.Enqueue("m/t/0-1000.mp3", cue))
	require.Len(t, got.list(), 1)
	assert.Equal(t, 1, got.list()[0].Attempts)
	gen.AssertExpectations(t)
}

func TestQueue_RetryExhaustionBacksOffExponentially(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("GenerateAudio", mock.Anything, "hello", "m/t/0-1000.mp3").
		Return(errs.New(errs.Transient, "backend unreachable"))
	sleep := &recordingSleep{}
	got := &results{}
	q := NewQueue(gen, DefaultConfig(), WithSleep(sleep.Sleep), WithResultHandler(got.add))
	q.Start()
	defer q.Stop()

	require.True(t, q.Enqueue("m/t/0-1000.mp3", cue))
	require.Eventually(t, func() bool {
		entry, ok := q.Get("m/t/0-1000.mp3")
		return ok && entry.Status == StatusExhausted
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleep.Delays())
	gen.AssertNumberOfCalls(t, "GenerateAudio", 4)
	require.Len(t, got.list(), 1)
	assert.Equal(t, StatusExhausted, got.list()[0].Status)
	assert.True(t, errs.Is(got.list()[0].Err, errs.Transient))

	// dropped for the rest of the session
	assert.False(t, q.Enqueue("m/t/0-1000.mp3", cue))
	assert.Empty(t, q.List())
	time.Sleep(30 * time.Millisecond)
	gen.AssertNumberOfCalls(t, "GenerateAudio", 4)
}

func TestQueue_ValidationErrorIsNotRetried(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("GenerateAudio", mock.Anything, mock.Anything, mock.Anything).
		Return(errs.New(errs.Validation, "text too long")).Once()
	sleep := &recordingSleep{}
	q := NewQueue(gen, DefaultConfig(), WithSleep(sleep.Sleep))
	q.Start()
	defer q.Stop()

	q.Enqueue("m/t/0-1000.mp3", cue)
	require.Eventually(t, func() bool {
		entry, _ := q.Get("m/t/0-1000.mp3")
		return entry.Status == StatusExhausted
	}, time.Second, 10*time.Millisecond)
	assert.Empty(t, sleep.Delays())
}

func TestQueue_DifferentKeysRunConcurrently(t *testing.T) {
	release := make(chan struct{})
	var running sync.WaitGroup
	running.Add(2)
	gen := &mockGenerator{}
	gen.On("GenerateAudio", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			running.Done()
			<-release
		}).
		Return(nil)
	q := NewQueue(gen, Config{MaxRetries: 3, BaseBackoff: time.Second, Workers: 2})
	q.Start()
	defer q.Stop()

	q.Enqueue("a.mp3", cue)
	q.Enqueue("b.mp3", cue)

	started := make(chan struct{})
	go func() {
		running.Wait()
		close(started)
	}()
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("keys were not generated concurrently")
	}

	for _, entry := range q.List() {
		assert.True(t, entry.InProgress)
	}
	close(release)
}

func TestQueue_ResetAllowsExhaustedKeysAgain(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("GenerateAudio", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("boom"))
	q := NewQueue(gen, Config{MaxRetries: 0, Workers: 1})
	q.Start()
	defer q.Stop()

	q.Enqueue("a.mp3", cue)
	require.Eventually(t, func() bool {
		entry, _ := q.Get("a.mp3")
		return entry.Status == StatusExhausted
	}, time.Second, 10*time.Millisecond)

	q.Reset()
	_, ok := q.Get("a.mp3")
	assert.False(t, ok)
	assert.True(t, q.Enqueue("a.mp3", cue))
}

func TestQueue_ResetDoesNotDuplicateRunningRequest(t *testing.T) {
	release := make(chan struct{})
	first := make(chan struct{})
	var calls, active, maxActive atomic.Int32
	gen := &mockGenerator{}
	gen.On("GenerateAudio", mock.Anything, mock.Anything, "a.mp3").
		Run(func(mock.Arguments) {
			n := active.Add(1)
			if n > maxActive.Load() {
				maxActive.Store(n)
			}
			if calls.Add(1) == 1 {
				close(first)
				<-release
			}
			active.Add(-1)
		}).
		Return(nil)
	res := &results{}
	q := NewQueue(gen, Config{MaxRetries: 0, Workers: 2}, WithResultHandler(res.add))
	q.Start()
	defer q.Stop()

	require.True(t, q.Enqueue("a.mp3", cue))
	<-first

	q.Reset()
	require.True(t, q.Enqueue("a.mp3", cue))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	entry, ok := q.Get("a.mp3")
	require.True(t, ok)
	assert.Equal(t, StatusQueued, entry.Status)

	close(release)
	require.Eventually(t, func() bool {
		return len(res.list()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, StatusDone, res.list()[0].Status)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), maxActive.Load())
}
