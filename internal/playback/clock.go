// Package playback constrains the video element's clock to the active
// segment's playable window.
package playback

import (
	"github.com/lessonlens/lessonlens/internal/transcript"
)

// Clock is the playable time window of one segment. End is nil when the
// segment is open-ended (duration unknown).
type Clock struct {
	Start float64
	End   *float64
}

// ResolveClock computes the playable window for seg. Segment bounds win
// when present; otherwise the window falls back to the cue bounds of the
// segment's lines, then to [0, videoDuration].
func ResolveClock(seg transcript.Segment, lines []transcript.Line, videoDuration *float64) Clock {
	clock := Clock{}
	if seg.StartTime != nil {
		clock.Start = *seg.StartTime
	}
	clock.End = seg.EndTime

	if seg.StartTime == nil || seg.EndTime == nil {
		start, end := segmentCueBounds(lines)
		if seg.StartTime == nil && start != nil {
			clock.Start = *start
		}
		if seg.EndTime == nil {
			if end != nil {
				clock.End = end
			} else if videoDuration != nil {
				clock.End = videoDuration
			}
		}
	}

	if clock.End != nil && *clock.End < clock.Start {
		clock.End = &clock.Start
	}
	return clock
}

func segmentCueBounds(lines []transcript.Line) (*float64, *float64) {
	var start, end *float64
	for _, line := range lines {
		if line.InCue == nil {
			continue
		}
		if start == nil || *line.InCue < *start {
			v := *line.InCue
			start = &v
		}
		last := *line.InCue
		if line.OutCue != nil && *line.OutCue > last {
			last = *line.OutCue
		}
		if end == nil || last > *end {
			v := last
			end = &v
		}
	}
	return start, end
}

// Clamp constrains t to the playable window. Idempotent.
func (c Clock) Clamp(t float64) float64 {
	if t < c.Start {
		return c.Start
	}
	if c.End != nil && t > *c.End {
		return *c.End
	}
	return t
}

// RelativeTime is t expressed as an offset into the segment for display,
// floored at zero.
func (c Clock) RelativeTime(t float64) float64 {
	rel := t - c.Start
	if rel < 0 {
		return 0
	}
	return rel
}

// Duration returns the window length, or nil when the segment is open-ended.
func (c Clock) Duration() *float64 {
	if c.End == nil {
		return nil
	}
	d := *c.End - c.Start
	if d < 0 {
		d = 0
	}
	return &d
}

// AtEnd reports whether t has reached the segment's end boundary. Open
// windows never end.
func (c Clock) AtEnd(t float64) bool {
	return c.End != nil && t >= *c.End
}
