// Package generation requests synthesis of missing clips, one request per asset
// key at a time, with exponential backoff between failed attempts.
package generation

import (
	"context"
	"sync"
	"time"

	"github.com/MimeLyc/movie-dubber/internal/errs"
	"github.com/MimeLyc/movie-dubber/internal/subtitle"
	"github.com/MimeLyc/movie-dubber/pkg/log"
)

type Queue struct {
	generator Generator
	config    Config
	sleep     func(ctx context.Context, d time.Duration) error
	onResult  func(Result)

	mu       sync.Mutex
	entries  map[string]*entry
	finished map[string]Status
	// running survives Reset: a key stays busy until its request returns.
	running  map[string]struct{}
	epoch    uint64
	started  bool
	pending  chan string
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type entry struct {
	cue        subtitle.Cue
	status     Status
	inProgress bool
	attempts   int
	lastErr    error
}

type Option func(*Queue)

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(q *Queue) {
		if sleep != nil {
			q.sleep = sleep
		}
	}
}

// WithResultHandler is called from a worker goroutine for every final outcome.
func WithResultHandler(fn func(Result)) Option {
	return func(q *Queue) {
		q.onResult = fn
	}
}

func NewQueue(generator Generator, config Config, opts ...Option) *Queue {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = time.Second
	}
	q := &Queue{
		generator: generator,
		config:    config,
		sleep:     sleepContext,
		entries:   make(map[string]*entry),
		finished:  make(map[string]Status),
		running:   make(map[string]struct{}),
		pending:   make(chan string, 256),
	}
	q.ctx, q.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue schedules generation for key. It returns false when the key is already
// queued or running, or already finished during this session.
func (q *Queue) Enqueue(key string, cue subtitle.Cue) bool {
	q.mu.Lock()
	if _, ok := q.entries[key]; ok {
		q.mu.Unlock()
		return false
	}
	if _, ok := q.finished[key]; ok {
		q.mu.Unlock()
		return false
	}
	q.entries[key] = &entry{cue: cue, status: StatusQueued}
	started := q.started
	q.mu.Unlock()

	if started {
		q.enqueuePendingKey(key)
	}
	return true
}

func (q *Queue) Get(key string) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.entries[key]; ok {
		return snapshot(key, e), true
	}
	if status, ok := q.finished[key]; ok {
		return Entry{Key: key, Status: status}, true
	}
	return Entry{}, false
}

// List returns the keys still queued, running or waiting out a backoff.
func (q *Queue) List() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	ret := make([]Entry, 0, len(q.entries))
	for key, e := range q.entries {
		ret = append(ret, snapshot(key, e))
	}
	return ret
}

func (q *Queue) Start() {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	queued := make([]string, 0, len(q.entries))
	for key, e := range q.entries {
		if e.status == StatusQueued {
			queued = append(queued, key)
		}
	}
	q.mu.Unlock()

	for _, key := range queued {
		q.enqueuePendingKey(key)
	}
	for range q.config.Workers {
		q.wg.Add(1)
		go q.worker()
	}
}

// Stop cancels waiting backoffs and in-flight requests and waits for the workers.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.cancel()
		q.wg.Wait()
	})
}

// Reset forgets every key, including exhausted ones. Requests already running
// complete but their outcome is discarded, and a key queued again meanwhile
// waits for them.
func (q *Queue) Reset() {
	q.mu.Lock()
	q.entries = make(map[string]*entry)
	q.finished = make(map[string]Status)
	q.epoch++
	q.mu.Unlock()
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case key := <-q.pending:
			cue, epoch, ok := q.markRunning(key)
			if !ok {
				continue
			}
			err := errs.SafeExecute(func() error {
				return q.generator.GenerateAudio(q.ctx, cue.Text, key)
			})
			if err != nil {
				q.markFailed(key, epoch, err)
			} else {
				q.markDone(key, epoch)
			}
			if q.release(key) {
				q.enqueuePendingKey(key)
			}
		}
	}
}

func (q *Queue) enqueuePendingKey(key string) {
	select {
	case q.pending <- key:
	default:
		go func() {
			select {
			case q.pending <- key:
			case <-q.ctx.Done():
			}
		}()
	}
}

func (q *Queue) markRunning(key string) (subtitle.Cue, uint64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[key]
	if !ok || e.inProgress || e.status != StatusQueued {
		return subtitle.Cue{}, 0, false
	}
	if _, busy := q.running[key]; busy {
		return subtitle.Cue{}, 0, false
	}
	q.running[key] = struct{}{}
	e.inProgress = true
	e.status = StatusRunning
	e.attempts++
	return e.cue, q.epoch, true
}

func (q *Queue) markDone(key string, epoch uint64) {
	q.mu.Lock()
	e, ok := q.entries[key]
	if !ok || q.epoch != epoch {
		q.mu.Unlock()
		return
	}
	delete(q.entries, key)
	q.finished[key] = StatusDone
	result := Result{Key: key, Cue: e.cue, Status: StatusDone, Attempts: e.attempts}
	q.mu.Unlock()

	log.Info("generated audio for %s after %d attempt(s)", key, result.Attempts)
	q.report(result)
}

func (q *Queue) markFailed(key string, epoch uint64, err error) {
	q.mu.Lock()
	e, ok := q.entries[key]
	if !ok || q.epoch != epoch {
		q.mu.Unlock()
		return
	}
	e.inProgress = false
	e.lastErr = err

	retries := e.attempts - 1
	if retries >= q.config.MaxRetries || errs.Is(err, errs.Validation) {
		delete(q.entries, key)
		q.finished[key] = StatusExhausted
		result := Result{Key: key, Cue: e.cue, Status: StatusExhausted, Attempts: e.attempts, Err: err}
		q.mu.Unlock()

		log.Warn("giving up on audio generation for %s after %d attempt(s): %v", key, result.Attempts, err)
		q.report(result)
		return
	}

	e.status = StatusBackoff
	delay := q.backoff(retries)
	q.mu.Unlock()

	log.Debug("audio generation for %s failed, retrying in %s: %v", key, delay, err)
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if err := q.sleep(q.ctx, delay); err != nil {
			return
		}
		if q.requeue(key, epoch) {
			q.enqueuePendingKey(key)
		}
	}()
}

// release ends the request for key and reports whether an entry queued while it
// ran still has to be dispatched.
func (q *Queue) release(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.running, key)
	e, ok := q.entries[key]
	return ok && e.status == StatusQueued && !e.inProgress
}

func (q *Queue) requeue(key string, epoch uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[key]
	if !ok || q.epoch != epoch || e.status != StatusBackoff {
		return false
	}
	e.status = StatusQueued
	return true
}

// backoff returns BaseBackoff doubled once per earlier retry.
func (q *Queue) backoff(retry int) time.Duration {
	return q.config.BaseBackoff << uint(retry)
}

func (q *Queue) report(result Result) {
	if q.onResult == nil {
		return
	}
	errs.Guard("generation result handler", func() error {
		q.onResult(result)
		return nil
	})
}

func snapshot(key string, e *entry) Entry {
	out := Entry{
		Key:        key,
		Cue:        e.cue,
		Status:     e.status,
		InProgress: e.inProgress,
		Attempts:   e.attempts,
	}
	if e.lastErr != nil {
		out.LastError = e.lastErr.Error()
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
