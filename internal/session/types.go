package session

import (
	"context"

	"github.com/lessonlens/lessonlens/internal/annotation"
	"github.com/lessonlens/lessonlens/internal/transcript"
)

// VideoSource is the playable asset of a transcript. Absent video is a
// normal state the UI renders explicitly, never an error.
type VideoSource struct {
	URL      string   `json:"url"`
	MimeType string   `json:"mime_type"`
	Duration *float64 `json:"duration,omitempty"`
}

// Material is an instructional document attached to a lesson.
type Material struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Loader fetches the independent sections of a review session. Every call
// is request/response; nothing streams or pushes.
type Loader interface {
	FetchTranscript(ctx context.Context, transcriptID string) (*transcript.Transcript, error)
	FetchNotes(ctx context.Context, transcriptID string) ([]annotation.Note, []annotation.Assignment, error)
	FetchVideoSource(ctx context.Context, transcriptID string) (VideoSource, bool, error)
	FetchMaterials(ctx context.Context, transcriptID string) ([]Material, error)
}

// SectionState tracks one independently loaded section. A load failure
// blocks only its own section.
type SectionState struct {
	Loaded bool
	Err    string
}

func (s SectionState) Failed() bool {
	return s.Err != ""
}
