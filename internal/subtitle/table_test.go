package subtitle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(v int64) time.Duration { return time.Duration(v) * time.Millisecond }

func TestTable_SortsOnSet(t *testing.T) {
	table := NewTable()
	table.SetActiveTrack([]Cue{
		{Start: ms(3000), End: ms(4000), Text: "c"},
		{Start: ms(1000), End: ms(2000), Text: "a"},
		{Start: ms(2000), End: ms(3000), Text: "b"},
	})

	got := table.Upcoming(0, ms(10000))
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].Text, got[1].Text, got[2].Text})
}

func TestTable_CuesAt_HalfOpen(t *testing.T) {
	table := NewTable()
	table.SetActiveTrack([]Cue{{Start: ms(1000), End: ms(2000), Text: "x"}})

	assert.Len(t, table.CuesAt(ms(1000)), 1)
	assert.Len(t, table.CuesAt(ms(1999)), 1)
	assert.Empty(t, table.CuesAt(ms(2000)))
	assert.Empty(t, table.CuesAt(ms(999)))
}

func TestTable_CuesAt_Overlapping(t *testing.T) {
	table := NewTable()
	table.SetActiveTrack([]Cue{
		{Start: ms(0), End: ms(10000), Text: "long"},
		{Start: ms(4000), End: ms(5000), Text: "short"},
		{Start: ms(6000), End: ms(7000), Text: "later"},
	})

	got := table.CuesAt(ms(4500))
	require.Len(t, got, 2)
	assert.Equal(t, "long", got[0].Text)
	assert.Equal(t, "short", got[1].Text)

	got = table.CuesAt(ms(6500))
	require.Len(t, got, 2)
	assert.Equal(t, "later", got[1].Text)
}

func TestTable_Upcoming_Window(t *testing.T) {
	table := NewTable()
	table.SetActiveTrack([]Cue{
		{Start: ms(1000), End: ms(2000), Text: "now"},
		{Start: ms(3000), End: ms(4000), Text: "edge"},
		{Start: ms(3001), End: ms(4000), Text: "outside"},
	})

	got := table.Upcoming(ms(1000), ms(2000))
	require.Len(t, got, 1)
	assert.Equal(t, "edge", got[0].Text)
}

func TestTable_GenerationAndReset(t *testing.T) {
	table := NewTable()
	gen := table.SetActiveTrack([]Cue{{Start: 0, End: ms(500), Text: "a"}})
	assert.True(t, table.IsCurrent(gen))

	next := table.SetActiveTrack([]Cue{{Start: 0, End: ms(500), Text: "b"}})
	assert.False(t, table.IsCurrent(gen))
	assert.True(t, table.IsCurrent(next))

	table.Reset()
	assert.Equal(t, 0, table.Len())
	assert.False(t, table.IsCurrent(next))
	assert.Empty(t, table.CuesAt(ms(100)))
}

func TestTable_Range_Overlap(t *testing.T) {
	table := NewTable()
	table.SetActiveTrack([]Cue{
		{Start: ms(0), End: ms(1000), Text: "before"},
		{Start: ms(500), End: ms(5000), Text: "long"},
		{Start: ms(2000), End: ms(3000), Text: "inside"},
		{Start: ms(4000), End: ms(4500), Text: "after"},
	})

	got := table.Range(ms(1000), ms(4000))
	require.Len(t, got, 2)
	assert.Equal(t, "long", got[0].Text)
	assert.Equal(t, "inside", got[1].Text)
}
