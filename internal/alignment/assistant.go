// Package alignment suggests a subtitle offset by transcribing a sample of the
// video's audio and matching it against the cues around the playback position.
package alignment

import (
	"context"
	"strings"
	"time"

	"github.com/MimeLyc/movie-dubber/internal/errs"
	"github.com/MimeLyc/movie-dubber/pkg/log"
)

type Assistant struct {
	recorder    Recorder
	transcriber Transcriber
	config      Config
}

func NewAssistant(recorder Recorder, transcriber Transcriber, config Config) *Assistant {
	defaults := DefaultConfig()
	if config.SampleDuration <= 0 {
		config.SampleDuration = defaults.SampleDuration
	}
	if config.SearchWindow <= 0 {
		config.SearchWindow = defaults.SearchWindow
	}
	if config.MinScore <= 0 {
		config.MinScore = defaults.MinScore
	}
	if config.MaxSpan <= 0 {
		config.MaxSpan = defaults.MaxSpan
	}
	return &Assistant{recorder: recorder, transcriber: transcriber, config: config}
}

// Suggest records a sample, transcribes it and returns the offset that best
// aligns the track with it. currentOffset (video time minus cue time) centres
// the search on where the cues are expected to be.
func (a *Assistant) Suggest(ctx context.Context, cues CueWindow, languageCode string, currentOffset time.Duration) (Suggestion, error) {
	sample, err := a.recorder.Record(ctx, a.config.SampleDuration)
	if err != nil {
		return Suggestion{}, errs.Wrap(err, errs.KindOf(err), "record audio sample")
	}
	if len(sample.Audio) == 0 {
		return Suggestion{}, errs.New(errs.NotFound, "recorded sample is empty")
	}

	transcript, err := a.transcriber.Transcribe(ctx, sample.Audio, languageCode)
	if err != nil {
		return Suggestion{}, errs.Wrap(err, errs.KindOf(err), "transcribe audio sample")
	}
	return a.Match(cues, sample, transcript, currentOffset)
}

// Match finds the best scoring run of consecutive cues for transcript.
func (a *Assistant) Match(cues CueWindow, sample Sample, transcript string, currentOffset time.Duration) (Suggestion, error) {
	normalized := Normalize(transcript)
	if normalized == "" {
		return Suggestion{}, errs.New(errs.NotFound, "no speech recognised in sample")
	}

	expected := sample.Start - currentOffset
	candidates := cues.Range(expected-a.config.SearchWindow, expected+sample.Duration+a.config.SearchWindow)
	if len(candidates) == 0 {
		return Suggestion{}, errs.New(errs.NotFound, "no subtitles near the playback position")
	}

	best := Suggestion{Score: -1}
	for i := range candidates {
		var parts []string
		for j := i; j < len(candidates) && j < i+a.config.MaxSpan; j++ {
			parts = append(parts, Normalize(candidates[j].Text))
			score := Similarity(normalized, strings.Join(parts, " "))
			if score > best.Score {
				best = Suggestion{Score: score, Cue: candidates[i]}
			}
		}
	}

	log.Debug("best alignment match %.2f for %q", best.Score, best.Cue.Text)
	if best.Score < a.config.MinScore {
		return Suggestion{}, errs.Newf(errs.NotFound, "no subtitle matched the transcript (best score %.2f)", best.Score)
	}
	best.Offset = sample.Start - best.Cue.Start
	best.Transcript = transcript
	return best, nil
}
