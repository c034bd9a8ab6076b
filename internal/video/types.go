// Package video abstracts the page's media element so the dubbing controller can
// drive a local element and a cross-origin relayed one through the same interface.
package video

import (
	"context"
	"time"
)

// Handler receives media events in the order the element fires them.
type Handler interface {
	OnPlay()
	OnPause()
	OnSeeking()
	OnVolumeChange()
	OnTimeUpdate()
}

// Closer is implemented by sources that hold relay resources. Callers close a
// source once they stop using it.
type Closer interface {
	Close()
}

// Source is the capability surface of a media element.
type Source interface {
	CurrentTime() time.Duration
	Paused() bool
	Volume() float64
	SetVolume(v float64)
	Play() error
	Pause() error
	Load() error
	// Subscribe registers h and returns a function removing it.
	Subscribe(h Handler) func()
}

// Document is a browsing context that may hold a video and child frames.
type Document interface {
	Video() (Source, bool)
	Frames() []Frame
	// WatchMutations calls fn whenever the DOM changes until stop is called.
	WatchMutations(fn func()) (stop func())
}

// Frame is an embedded browsing context.
type Frame interface {
	ID() string
	// Document fails with an errs.CrossOrigin error when the frame is not same-origin.
	Document() (Document, error)
}

// Messenger carries relay protocol messages to and from frames.
type Messenger interface {
	Post(msg Message) error
	// Request posts msg and waits for the reply carrying the same RequestID.
	Request(ctx context.Context, msg Message) (Message, error)
	// Attach routes inbound messages for frameID to sink until detach is called.
	Attach(frameID string, sink func(Message)) (detach func())
}
