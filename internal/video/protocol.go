package video

import (
	"encoding/json"
	"time"
)

// Relay protocol message types.
const (
	TypeFindVideo      = "FIND_VIDEO_ELEMENT"
	TypeVideoFound     = "VIDEO_ELEMENT_FOUND"
	TypeMethodCall     = "VIDEO_METHOD_CALL"
	TypeVideoEvent     = "VIDEO_EVENT"
	TypePropertyChange = "VIDEO_PROPERTY_CHANGE"
)

// Event names relayed in VIDEO_EVENT messages.
const (
	EventPlay         = "play"
	EventPause        = "pause"
	EventSeeking      = "seeking"
	EventVolumeChange = "volumechange"
	EventTimeUpdate   = "timeupdate"
)

// Message is one relay protocol frame. Times are in seconds like the DOM exposes them.
type Message struct {
	Type        string          `json:"type"`
	FrameID     string          `json:"frameId,omitempty"`
	RequestID   string          `json:"requestId,omitempty"`
	Found       bool            `json:"found,omitempty"`
	Method      string          `json:"method,omitempty"`
	Event       string          `json:"event,omitempty"`
	Property    string          `json:"property,omitempty"`
	Value       json.RawMessage `json:"value,omitempty"`
	CurrentTime float64         `json:"currentTime,omitempty"`
	Paused      *bool           `json:"paused,omitempty"`
	Volume      *float64        `json:"volume,omitempty"`
}

// State is a snapshot of element properties.
type State struct {
	CurrentTime time.Duration
	Paused      bool
	Volume      float64
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func durationToSeconds(d time.Duration) float64 {
	return d.Seconds()
}
