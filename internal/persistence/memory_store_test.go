package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_StateAndSubtitles(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := store.GetState(ctx, "movieState")
	require.NoError(t, err)
	assert.False(t, ok)

	value := []byte(`{"movieId":"tt1"}`)
	require.NoError(t, store.PutState(ctx, "movieState", value))
	value[2] = 'X'
	got, ok, err := store.GetState(ctx, "movieState")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"movieId":"tt1"}`, string(got))

	require.NoError(t, store.PutSubtitleText(ctx, "tt1/en", "1\n00:00:00,000 --> 00:00:01,000\nhi\n"))
	text, ok, err := store.GetSubtitleText(ctx, "tt1/en")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, text, "hi")
}
