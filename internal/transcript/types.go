package transcript

import "golang.org/x/text/language"

// Line is a single transcript row. InCue/OutCue are seconds into the
// underlying video; nil means the line carries no timing data and is
// excluded from time-based lookups. Lines are immutable once loaded except
// for Flagged.
type Line struct {
	ID        string   `json:"id"`
	Index     int      `json:"line"`
	Speaker   string   `json:"speaker"`
	Utterance string   `json:"utterance"`
	InCue     *float64 `json:"in_cue"`
	OutCue    *float64 `json:"out_cue"`
	SegmentID string   `json:"segment_id,omitempty"`
	Flagged   bool     `json:"flagged"`
}

// Segment is a contiguous sub-range of one video asset, navigable as a page
// when a transcript has more than one.
type Segment struct {
	ID        string   `json:"id"`
	Index     int      `json:"index"`
	Title     string   `json:"title"`
	StartTime *float64 `json:"start_time"`
	EndTime   *float64 `json:"end_time"`
}

type Transcript struct {
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	Language language.Tag `json:"-"`
	Lines    []Line       `json:"lines"`
	Segments []Segment    `json:"segments"`
}

// LinesForSegment returns the lines belonging to segmentID, or every line
// when segmentID is empty (single implicit segment).
func (t *Transcript) LinesForSegment(segmentID string) []Line {
	if segmentID == "" {
		return t.Lines
	}
	ret := make([]Line, 0)
	for _, line := range t.Lines {
		if line.SegmentID == segmentID {
			ret = append(ret, line)
		}
	}
	return ret
}

// ResolveSegments returns the navigable segment list for t. A transcript
// without explicit segments gets one implicit segment whose bounds default
// to the min/max cue bounds of its lines, or to [0, videoDuration] when no
// line carries cues.
func (t *Transcript) ResolveSegments(videoDuration *float64) []Segment {
	if len(t.Segments) > 0 {
		return t.Segments
	}

	start, end := cueBounds(t.Lines)
	if start == nil {
		zero := 0.0
		start = &zero
		end = videoDuration
	}
	return []Segment{{
		ID:        t.ID + ":seg0",
		Index:     0,
		Title:     t.Title,
		StartTime: start,
		EndTime:   end,
	}}
}

// cueBounds returns the min InCue and max effective end cue over lines,
// or (nil, nil) when no line has timing data.
func cueBounds(lines []Line) (*float64, *float64) {
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
