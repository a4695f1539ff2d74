// Package cueindex maps continuous playback time to discrete transcript
// rows and back, over the subset of lines that carry timing data.
package cueindex

import (
	"math"
	"sort"

	"github.com/lessonlens/lessonlens/internal/transcript"
)

// Entry is one cue-bearing row in playback order.
type Entry struct {
	RowID  string
	Start  float64
	outCue *float64
}

// Index answers "which row is active at time t" and "what is row R's time
// window". Built once per loaded segment; lookups are O(log n).
type Index struct {
	entries []Entry
	byRow   map[string]int
}

// New builds an index from the lines that have an in-cue, sorted ascending.
// Lines without timing data are excluded entirely.
func New(lines []transcript.Line) *Index {
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		if line.InCue == nil {
			continue
		}
		entries = append(entries, Entry{
			RowID:  line.ID,
			Start:  *line.InCue,
			outCue: line.OutCue,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Start < entries[j].Start
	})

	byRow := make(map[string]int, len(entries))
	for i, e := range entries {
		byRow[e.RowID] = i
	}
	return &Index{entries: entries, byRow: byRow}
}

func (ix *Index) Len() int {
	return len(ix.entries)
}

// Entries returns the cue-sorted rows. The slice is shared; callers must
// not mutate it.
func (ix *Index) Entries() []Entry {
	return ix.entries
}

// ActiveRowAt returns the row active at time t. Before the first in-cue no
// row is active. Inside an untimed gap between two rows, and past the last
// row's own window, the previously active row is held so that highlighting
// stays stable through pauses.
func (ix *Index) ActiveRowAt(t float64) (string, bool) {
	if len(ix.entries) == 0 || t < ix.entries[0].Start {
		return "", false
	}
	// Last entry whose start is <= t.
	i := sort.Search(len(ix.entries), func(i int) bool {
		return ix.entries[i].Start > t
	}) - 1
	return ix.entries[i].RowID, true
}

// WindowFor returns the [start, end) window of rowID for seek and highlight
// purposes. A row without timing data reports ok=false; callers treat that
// as "cannot seek", not as an error.
func (ix *Index) WindowFor(rowID string) (start, end float64, ok bool) {
	i, found := ix.byRow[rowID]
	if !found {
		return 0, 0, false
	}
	return ix.entries[i].Start, ix.effectiveEnd(i), true
}

// effectiveEnd is the row's out-cue when present, else the next row's
// in-cue, else +Inf.
func (ix *Index) effectiveEnd(i int) float64 {
	if ix.entries[i].outCue != nil {
		return *ix.entries[i].outCue
	}
	if i+1 < len(ix.entries) {
		return ix.entries[i+1].Start
	}
	return math.Inf(1)
}
