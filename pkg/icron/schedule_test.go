package icron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTriggerInfo(t *testing.T) {
	ref := time.Date(2026, 3, 1, 3, 30, 0, 0, time.Local)
	info, err := GetTriggerInfo("0 4 * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 4, 0, 0, 0, time.Local), info.Next)
	assert.Equal(t, 30*time.Minute, info.TimeUntilNext)

	_, err = GetTriggerInfo("0 0 4 * * *", ref)
	assert.Error(t, err)
}

func TestScheduler_AddRejectsBadExpression(t *testing.T) {
	s := New()
	defer s.Stop()
	assert.Error(t, s.Add("prune", "every night", func(context.Context) error { return nil }))
}

func TestScheduler_RunNowSurvivesFailures(t *testing.T) {
	s := New()
	defer s.Stop()

	calls := 0
	s.RunNow("fails", func(context.Context) error {
		calls++
		return errors.New("disk full")
	})
	s.RunNow("panics", func(context.Context) error {
		calls++
		panic("boom")
	})
	assert.Equal(t, 2, calls)
}

func TestScheduler_StopCancelsJobContext(t *testing.T) {
	s := New()
	var jobCtx context.Context
	s.RunNow("capture", func(ctx context.Context) error {
		jobCtx = ctx
		return nil
	})
	s.Start()
	s.Stop()
	assert.ErrorIs(t, jobCtx.Err(), context.Canceled)
}
