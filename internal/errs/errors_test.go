package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_FormatsContextAndCause(t *testing.T) {
	err := Wrap(errors.New("connection reset"), Transient, "fetch audio").
		WithContext("key", "tt1/en/0-1000.mp3")

	assert.Equal(t, "[Transient] fetch audio | context: key=tt1/en/0-1000.mp3 | cause: connection reset", err.Error())
}

func TestIs_FindsKindThroughWrapping(t *testing.T) {
	base := New(CrossOrigin, "frame blocked")
	wrapped := fmt.Errorf("discover: %w", base)

	assert.True(t, Is(wrapped, CrossOrigin))
	assert.False(t, Is(wrapped, Timeout))
	assert.Equal(t, CrossOrigin, KindOf(wrapped))
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
}

func TestSafeExecute_RecoversPanic(t *testing.T) {
	err := SafeExecute(func() error {
		panic("boom")
	})
	require.Error(t, err)
	assert.True(t, Is(err, Unknown))
	assert.Contains(t, err.Error(), "boom")
}

func TestUserMessage_HidesDetails(t *testing.T) {
	err := Wrap(errors.New("HTTP 502 from upstream"), Unavailable, "fetch subtitles")
	msg := UserMessage(err)
	assert.NotContains(t, msg, "502")
	assert.Contains(t, msg, "try again")
}
