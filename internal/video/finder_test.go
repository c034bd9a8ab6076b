package video

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/movie-dubber/internal/errs"
)

type fakeDocument struct {
	mu       sync.Mutex
	video    Source
	frames   []Frame
	watchers []func()
}

func (d *fakeDocument) Video() (Source, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.video, d.video != nil
}

func (d *fakeDocument) Frames() []Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Frame(nil), d.frames...)
}

func (d *fakeDocument) WatchMutations(fn func()) func() {
	d.mu.Lock()
	d.watchers = append(d.watchers, fn)
	d.mu.Unlock()
	return func() {}
}

func (d *fakeDocument) insertVideo(src Source) {
	d.mu.Lock()
	d.video = src
	watchers := append([]func(){}, d.watchers...)
	d.mu.Unlock()
	for _, fn := range watchers {
		fn()
	}
}

func (d *fakeDocument) watching() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.watchers) > 0
}

type fakeFrame struct {
	id  string
	doc Document
}

func (f fakeFrame) ID() string { return f.id }

func (f fakeFrame) Document() (Document, error) {
	if f.doc == nil {
		return nil, errs.New(errs.CrossOrigin, "blocked").WithContext("frame", f.id)
	}
	return f.doc, nil
}

func TestFinder_PrefersTopDocument(t *testing.T) {
	top := NewElement()
	inner := NewElement()
	doc := &fakeDocument{
		video:  top,
		frames: []Frame{fakeFrame{id: "a", doc: &fakeDocument{video: inner}}},
	}

	src, err := NewFinder(nil, time.Second).Find(context.Background(), doc)
	require.NoError(t, err)
	assert.Same(t, top, src)
}

func TestFinder_SearchesSameOriginFramesRecursively(t *testing.T) {
	inner := NewElement()
	doc := &fakeDocument{frames: []Frame{
		fakeFrame{id: "empty", doc: &fakeDocument{}},
		fakeFrame{id: "outer", doc: &fakeDocument{
			frames: []Frame{fakeFrame{id: "inner", doc: &fakeDocument{video: inner}}},
		}},
	}}

	src, err := NewFinder(nil, time.Second).Find(context.Background(), doc)
	require.NoError(t, err)
	assert.Same(t, inner, src)
}

func TestFinder_FallsBackToRelayForCrossOriginFrames(t *testing.T) {
	m := newFakeMessenger()
	paused := false
	volume := 0.6
	m.replies["player"] = Message{Type: TypeVideoFound, FrameID: "player", Found: true, CurrentTime: 3, Paused: &paused, Volume: &volume}
	doc := &fakeDocument{frames: []Frame{fakeFrame{id: "player"}}}

	src, err := NewFinder(m, time.Second).Find(context.Background(), doc)
	require.NoError(t, err)

	proxy, ok := src.(*Proxy)
	require.True(t, ok)
	assert.Equal(t, "player", proxy.FrameID())
	assert.Equal(t, 3*time.Second, proxy.CurrentTime())
	assert.False(t, proxy.Paused())
	assert.InDelta(t, 0.6, proxy.Volume(), 1e-9)
}

func TestFinder_CrossOriginTimeoutIsNotFound(t *testing.T) {
	m := newFakeMessenger()
	doc := &fakeDocument{frames: []Frame{fakeFrame{id: "silent"}}}

	_, err := NewFinder(m, 20*time.Millisecond).Find(context.Background(), doc)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.NotFound))
}

func TestFinder_WaitResolvesWhenVideoIsInserted(t *testing.T) {
	doc := &fakeDocument{}
	finder := NewFinder(nil, time.Second)

	found := make(chan Source, 1)
	go func() {
		src, err := finder.Wait(context.Background(), doc)
		if err == nil {
			found <- src
		}
	}()

	require.Eventually(t, doc.watching, time.Second, 5*time.Millisecond)
	el := NewElement()
	doc.insertVideo(el)

	select {
	case src := <-found:
		assert.Same(t, el, src)
	case <-time.After(time.Second):
		t.Fatal("Wait did not resolve")
	}
}

func TestFinder_WaitStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewFinder(nil, time.Second).Wait(ctx, &fakeDocument{})
	require.Error(t, err)
}
