package subtitle

import (
	"sort"
	"sync"
	"time"
)

// Table is the time-indexed cue set of the active track.
// The backing slice is always sorted ascending by Start.
type Table struct {
	mu          sync.RWMutex
	cues        []Cue
	maxDuration time.Duration
	generation  uint64
}

func NewTable() *Table {
	return &Table{}
}

// SetActiveTrack replaces the cues and returns the new generation. Lookups started
// under an older generation can be discarded by checking IsCurrent.
func (t *Table) SetActiveTrack(cues []Cue) uint64 {
	sorted := make([]Cue, len(cues))
	copy(sorted, cues)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	var maxDuration time.Duration
	for _, cue := range sorted {
		if d := cue.Duration(); d > maxDuration {
			maxDuration = d
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.cues = sorted
	t.maxDuration = maxDuration
	t.generation++
	return t.generation
}

func (t *Table) Generation() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.generation
}

func (t *Table) IsCurrent(generation uint64) bool {
	return t.Generation() == generation
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.cues)
}

// CuesAt returns every cue with Start <= at < End, ordered by Start.
func (t *Table) CuesAt(at time.Duration) []Cue {
	t.mu.RLock()
	defer t.mu.RUnlock()

	// first cue starting after at
	upper := sort.Search(len(t.cues), func(i int) bool {
		return t.cues[i].Start > at
	})

	var ret []Cue
	for i := upper - 1; i >= 0; i-- {
		cue := t.cues[i]
		if cue.Start+t.maxDuration <= at {
			break
		}
		if cue.Contains(at) {
			ret = append(ret, cue)
		}
	}
	// restore ascending order
	for i, j := 0, len(ret)-1; i < j; i, j = i+1, j-1 {
		ret[i], ret[j] = ret[j], ret[i]
	}
	return ret
}

// Upcoming returns cues with at < Start <= at+window in Start order.
func (t *Table) Upcoming(at, window time.Duration) []Cue {
	t.mu.RLock()
	defer t.mu.RUnlock()

	from := sort.Search(len(t.cues), func(i int) bool {
		return t.cues[i].Start > at
	})
	limit := at + window

	var ret []Cue
	for i := from; i < len(t.cues) && t.cues[i].Start <= limit; i++ {
		ret = append(ret, t.cues[i])
	}
	return ret
}

// Range returns cues overlapping [from, to) in Start order.
func (t *Table) Range(from, to time.Duration) []Cue {
	t.mu.RLock()
	defer t.mu.RUnlock()

	first := sort.Search(len(t.cues), func(i int) bool {
		return t.cues[i].Start+t.maxDuration > from
	})
	var ret []Cue
	for i := first; i < len(t.cues) && t.cues[i].Start < to; i++ {
		if t.cues[i].End > from {
			ret = append(ret, t.cues[i])
		}
	}
	return ret
}

// Reset drops all cues and bumps the generation.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cues = nil
	t.maxDuration = 0
	t.generation++
}
