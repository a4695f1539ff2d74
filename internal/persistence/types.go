package persistence

import "time"

// TranscriptRecord is the stored form of an imported lesson: the media it
// belongs to, its lines and segments, and the note numbering counter.
type TranscriptRecord struct {
	ID             string
	Title          string
	Language       string
	MediaPath      string
	TranscriptPath string
	Duration       *float64
	MimeType       string
	Lines          []LineRecord
	Segments       []SegmentRecord
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type LineRecord struct {
	ID        string
	Index     int
	Speaker   string
	Utterance string
	InCue     *float64
	OutCue    *float64
	SegmentID string
	Flagged   bool
}

type SegmentRecord struct {
	ID        string
	Index     int
	Title     string
	StartTime *float64
	EndTime   *float64
}

// TranscriptSummary is the listing row for the library view.
type TranscriptSummary struct {
	ID        string
	Title     string
	Language  string
	MediaPath string
	Duration  *float64
	LineCount int
	UpdatedAt time.Time
}

type NoteRecord struct {
	ID             string
	TranscriptID   string
	Number         int
	Title          string
	Evidence       string
	Interpretation string
	Response       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type MaterialRecord struct {
	ID           string
	TranscriptID string
	Title        string
	URL          string
}
