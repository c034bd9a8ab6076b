package dubbing

import (
	"context"
	"time"

	"github.com/MimeLyc/movie-dubber/internal/config"
	"github.com/MimeLyc/movie-dubber/internal/errs"
	"github.com/MimeLyc/movie-dubber/internal/video"
)

// Dispatch runs one UI command.
func (c *Controller) Dispatch(ctx context.Context, cmd Command) (Response, error) {
	switch cmd.Action {
	case ActionInitialize:
		if err := c.Initialize(ctx, cmd); err != nil {
			return Response{}, err
		}
		return c.statusResponse(ctx)

	case ActionStop:
		if err := c.Stop(ctx); err != nil {
			return Response{}, err
		}
		return c.statusResponse(ctx)

	case ActionCheckStatus:
		return c.statusResponse(ctx)

	case ActionSetVolumeMultiplier:
		if cmd.Value == nil {
			return Response{}, errs.New(errs.Validation, "value is required")
		}
		applied := c.deps.Player.SetDubbingVolumeMultiplier(*cmd.Value)
		if _, err := c.deps.Settings.Update(ctx, func(s *config.PlaybackSettings) {
			s.DubbingVolumeMultiplier = applied
		}); err != nil {
			return Response{}, err
		}
		return Response{Success: true, Value: applied}, nil

	case ActionSetDuckVolume:
		if cmd.Value == nil {
			return Response{}, errs.New(errs.Validation, "value is required")
		}
		v := video.ClampVolume(*cmd.Value)
		if _, err := c.deps.Settings.Update(ctx, func(s *config.PlaybackSettings) {
			s.VideoVolumeWhilePlayingDubbing = v
		}); err != nil {
			return Response{}, err
		}
		if err := c.call(ctx, func() error {
			c.applyDuckVolume(v)
			return nil
		}); err != nil {
			return Response{}, err
		}
		return Response{Success: true, Value: v}, nil

	case ActionSetOffset:
		if cmd.OffsetMs == nil {
			return Response{}, errs.New(errs.Validation, "offset is required")
		}
		if err := c.setOffset(ctx, *cmd.OffsetMs); err != nil {
			return Response{}, err
		}
		return Response{Success: true, OffsetMs: *cmd.OffsetMs}, nil

	case ActionAlignOffset:
		return c.alignOffset(ctx)

	default:
		return Response{}, errs.Newf(errs.Validation, "unknown action %q", cmd.Action)
	}
}

func (c *Controller) statusResponse(ctx context.Context) (Response, error) {
	status, err := c.Status(ctx)
	if err != nil {
		return Response{}, err
	}
	return Response{Success: true, Status: &status}, nil
}

func (c *Controller) setOffset(ctx context.Context, offsetMs int64) error {
	if _, err := c.deps.Settings.Update(ctx, func(s *config.PlaybackSettings) {
		s.SubtitleOffsetMs = offsetMs
	}); err != nil {
		return err
	}
	return c.call(ctx, func() error {
		c.applyOffset()
		return nil
	})
}

// alignOffset runs the alignment assistant around the current position and
// applies the offset it suggests.
func (c *Controller) alignOffset(ctx context.Context) (Response, error) {
	if c.deps.Aligner == nil {
		return Response{}, errs.New(errs.Unavailable, "alignment is not configured")
	}

	var languageCode string
	if err := c.call(ctx, func() error {
		if c.session == nil || c.session.source == nil {
			return errs.New(errs.NotFound, "dubbing is not active")
		}
		languageCode = c.session.track.Language.String()
		return nil
	}); err != nil {
		return Response{}, err
	}

	current := time.Duration(c.deps.Settings.Get().SubtitleOffsetMs) * time.Millisecond
	suggestion, err := c.deps.Aligner.Suggest(ctx, c.table, languageCode, current)
	if err != nil {
		c.notify("warning", errs.UserMessage(err))
		return Response{}, err
	}

	offsetMs := suggestion.Offset.Milliseconds()
	if err := c.setOffset(ctx, offsetMs); err != nil {
		return Response{}, err
	}
	return Response{
		Success:    true,
		OffsetMs:   offsetMs,
		Score:      suggestion.Score,
		Transcript: suggestion.Transcript,
	}, nil
}
