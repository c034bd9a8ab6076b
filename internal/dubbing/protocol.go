package dubbing

import (
	"github.com/MimeLyc/movie-dubber/internal/config"
	"github.com/MimeLyc/movie-dubber/internal/subtitle"
)

// Broadcast kinds.
const (
	BroadcastCurrentSubtitle = "currentSubtitle"
	BroadcastDubbingState    = "updateDubbingState"
	BroadcastCurrentTime     = "updateCurrentTime"
	BroadcastNotification    = "notification"
)

// Command actions accepted from the UI.
const (
	ActionInitialize          = "initializeDubbing"
	ActionStop                = "stopDubbing"
	ActionCheckStatus         = "checkDubbingStatus"
	ActionSetVolumeMultiplier = "setDubbingVolumeMultiplier"
	ActionSetDuckVolume       = "setVideoVolumeWhilePlayingDubbing"
	ActionSetOffset           = "setSubtitleOffset"
	ActionAlignOffset         = "alignOffset"
)

// SubtitlePayload is the currentSubtitle broadcast. Times are milliseconds.
type SubtitlePayload struct {
	Text        string `json:"text"`
	Start       int64  `json:"start"`
	End         int64  `json:"end"`
	CurrentTime int64  `json:"currentTime"`
}

type DubbingStatePayload struct {
	Active bool `json:"active"`
}

// TimePayload is the updateCurrentTime broadcast. Times are milliseconds.
type TimePayload struct {
	CurrentTime  int64 `json:"currentTime"`
	AdjustedTime int64 `json:"adjustedTime"`
}

type NotificationPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Command is one UI request. Only the fields relevant to Action are read.
type Command struct {
	Action        string   `json:"action"`
	MovieID       string   `json:"movieId,omitempty"`
	TrackID       string   `json:"trackId,omitempty"`
	SeasonNumber  int      `json:"seasonNumber,omitempty"`
	EpisodeNumber int      `json:"episodeNumber,omitempty"`
	SRTContent    string   `json:"srtContent,omitempty"`
	Value         *float64 `json:"value,omitempty"`
	OffsetMs      *int64   `json:"offset,omitempty"`
}

// Status answers checkDubbingStatus.
type Status struct {
	Active   bool                    `json:"active"`
	State    State                   `json:"state"`
	Track    *subtitle.Track         `json:"track,omitempty"`
	Cues     int                     `json:"cues"`
	Settings config.PlaybackSettings `json:"settings"`
}

// Response is returned for every command.
type Response struct {
	Success    bool    `json:"success"`
	Status     *Status `json:"status,omitempty"`
	Value      float64 `json:"value,omitempty"`
	OffsetMs   int64   `json:"offset,omitempty"`
	Score      float64 `json:"score,omitempty"`
	Transcript string  `json:"transcript,omitempty"`
	Message    string  `json:"message,omitempty"`
}
