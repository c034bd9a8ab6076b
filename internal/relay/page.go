package relay

import (
	"github.com/MimeLyc/movie-dubber/internal/errs"
	"github.com/MimeLyc/movie-dubber/internal/video"
)

// The hub is the page's top document. It has no video of its own; every
// element is reached through a frame registered by the page's agent script.

func (h *Hub) Video() (video.Source, bool) {
	return nil, false
}

func (h *Hub) Frames() []video.Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	frames := make([]video.Frame, 0, len(h.frames))
	for _, id := range h.frames {
		frames = append(frames, remoteFrame(id))
	}
	return frames
}

func (h *Hub) WatchMutations(fn func()) func() {
	h.mu.Lock()
	id := h.id()
	h.watchers[id] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.watchers, id)
		h.mu.Unlock()
	}
}

func (h *Hub) attachFrame(frameID string) error {
	if frameID == "" {
		return errs.New(errs.Validation, "frameId is required")
	}
	h.mu.Lock()
	for _, id := range h.frames {
		if id == frameID {
			h.mu.Unlock()
			return nil
		}
	}
	h.frames = append(h.frames, frameID)
	watchers := h.watchersLocked()
	h.mu.Unlock()

	for _, fn := range watchers {
		fn()
	}
	return nil
}

func (h *Hub) detachFrame(frameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, id := range h.frames {
		if id == frameID {
			h.frames = append(h.frames[:i], h.frames[i+1:]...)
			return
		}
	}
}

func (h *Hub) watchersLocked() []func() {
	out := make([]func(), 0, len(h.watchers))
	for _, fn := range h.watchers {
		out = append(out, fn)
	}
	return out
}

type remoteFrame string

func (f remoteFrame) ID() string { return string(f) }

func (f remoteFrame) Document() (video.Document, error) {
	return nil, errs.New(errs.CrossOrigin, "frame is only reachable through messages").WithContext("frame", string(f))
}

var _ video.Document = (*Hub)(nil)
