// Package timeline computes the highlight bars painted on the scrubber for
// the note currently selected as the timeline filter.
package timeline

import (
	"math"

	"github.com/lessonlens/lessonlens/internal/cueindex"
	"github.com/lessonlens/lessonlens/internal/playback"
)

// Bar is one highlight rectangle in scrubber coordinates.
type Bar struct {
	StartPercent float64 `json:"start_percent"`
	WidthPercent float64 `json:"width_percent"`
}

// MinWidthPercent keeps a point-in-time tag visible on the scrubber.
const MinWidthPercent = 0.5

// Tagged reports whether a row carries the selected note.
type Tagged func(rowID string) bool

// Bars walks the cue-sorted rows of the active segment and emits one bar
// per tagged row, using the same effective-end rule as the cue index. Bars
// are clipped to the segment window; overlapping bars are left as-is but
// each one is clamped so start+width never exceeds 100. With an open-ended
// segment there is no scale to paint against, so no bars are produced.
func Bars(idx *cueindex.Index, tagged Tagged, clock playback.Clock) []Bar {
	duration := clock.Duration()
	if duration == nil || *duration <= 0 {
		return nil
	}

	ret := make([]Bar, 0)
	for _, entry := range idx.Entries() {
		if !tagged(entry.RowID) {
			continue
		}
		start, end, ok := idx.WindowFor(entry.RowID)
		if !ok {
			continue
		}
		if math.IsInf(end, 1) {
			// last row without an out-cue runs to the segment end
			end = *clock.End
		}

		relStart := clamp(start-clock.Start, 0, *duration)
		relEnd := clamp(end-clock.Start, 0, *duration)
		if relEnd < relStart {
			relEnd = relStart
		}

		startPct := relStart / *duration * 100
		widthPct := (relEnd - relStart) / *duration * 100
		if startPct+widthPct > 100 {
			widthPct = 100 - startPct
		}
		if widthPct < MinWidthPercent {
			// point-in-time tag: keep it visible without crossing 100
			widthPct = MinWidthPercent
			if startPct+widthPct > 100 {
				startPct = 100 - widthPct
			}
		}
		ret = append(ret, Bar{StartPercent: startPct, WidthPercent: widthPct})
	}
	return ret
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
