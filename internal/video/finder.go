package video

import (
	"context"
	"time"

	"github.com/MimeLyc/movie-dubber/internal/errs"
	"github.com/MimeLyc/movie-dubber/pkg/log"
)

// Finder locates the page's video: the top document first, then same-origin
// frames directly, then cross-origin frames through the relay protocol.
type Finder struct {
	messenger Messenger
	timeout   time.Duration
}

// NewFinder builds a finder. messenger may be nil when no relay is available.
func NewFinder(messenger Messenger, timeout time.Duration) *Finder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Finder{messenger: messenger, timeout: timeout}
}

func (f *Finder) Find(ctx context.Context, doc Document) (Source, error) {
	var remote []Frame
	if src, ok := f.findLocal(doc, &remote); ok {
		return src, nil
	}

	for _, frame := range remote {
		src, err := f.findRemote(ctx, frame.ID())
		if err == nil {
			return src, nil
		}
		log.Debug("no relayed video in frame %s: %v", frame.ID(), err)
	}
	return nil, errs.New(errs.NotFound, "no video element found")
}

// Wait blocks until a video appears, re-running discovery on each DOM mutation.
func (f *Finder) Wait(ctx context.Context, doc Document) (Source, error) {
	if src, err := f.Find(ctx, doc); err == nil {
		return src, nil
	}

	trigger := make(chan struct{}, 1)
	stop := doc.WatchMutations(func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	})
	defer stop()

	// a video may have appeared between the first scan and the watch
	if src, err := f.Find(ctx, doc); err == nil {
		return src, nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil, errs.Wrap(ctx.Err(), errs.NotFound, "stopped waiting for a video element")
		case <-trigger:
			if src, err := f.Find(ctx, doc); err == nil {
				return src, nil
			}
		}
	}
}

func (f *Finder) findLocal(doc Document, remote *[]Frame) (Source, bool) {
	if src, ok := doc.Video(); ok {
		return src, true
	}
	for _, frame := range doc.Frames() {
		child, err := frame.Document()
		if err != nil {
			if errs.Is(err, errs.CrossOrigin) {
				*remote = append(*remote, frame)
			} else {
				log.Debug("cannot inspect frame %s: %v", frame.ID(), err)
			}
			continue
		}
		if src, ok := f.findLocal(child, remote); ok {
			return src, true
		}
	}
	return nil, false
}

func (f *Finder) findRemote(ctx context.Context, frameID string) (Source, error) {
	if f.messenger == nil {
		return nil, errs.New(errs.Unavailable, "no relay for cross-origin frames")
	}
	rctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	reply, err := f.messenger.Request(rctx, Message{Type: TypeFindVideo, FrameID: frameID})
	if err != nil {
		return nil, err
	}
	if reply.Type != TypeVideoFound || !reply.Found {
		return nil, errs.New(errs.NotFound, "frame has no video").WithContext("frame", frameID)
	}

	state := State{Paused: true, Volume: 1}
	mergeState(&state, reply)
	return NewProxy(frameID, f.messenger, state), nil
}
