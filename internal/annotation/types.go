package annotation

import "context"

// Note is an annotator's note. Number is a per-transcript display ordinal,
// assigned monotonically by the server and never reused after deletion.
// The three free-text fields carry fixed semantic labels.
type Note struct {
	ID             string `json:"id"`
	Number         int    `json:"number"`
	Title          string `json:"title"`
	Evidence       string `json:"evidence"`
	Interpretation string `json:"interpretation"`
	Response       string `json:"response"`
}

// NoteDraft is the client-side content of a note before the server assigns
// its identity.
type NoteDraft struct {
	Title          string `json:"title"`
	Evidence       string `json:"evidence"`
	Interpretation string `json:"interpretation"`
	Response       string `json:"response"`
}

// Assignment is one note↔line edge, unique per pair.
type Assignment struct {
	NoteID string `json:"note_id"`
	LineID string `json:"line_id"`
}

// TagState is the tri-state a note's checkbox renders against the current
// selection: checked when every target row carries the tag, indeterminate
// when only some do.
type TagState struct {
	Checked       bool `json:"checked"`
	Indeterminate bool `json:"indeterminate"`
}

// SyncClient is the persistence boundary consumed by the Store. All calls
// are plain request/response; a context cancellation (navigating away
// mid-write) is not an error.
type SyncClient interface {
	CreateNote(ctx context.Context, transcriptID string, draft NoteDraft) (Note, error)
	UpdateNote(ctx context.Context, note Note) (Note, error)
	DeleteNote(ctx context.Context, noteID string) error
	WriteAssignment(ctx context.Context, noteID string, lineIDs []string, assigned bool) error
	WriteFlags(ctx context.Context, lineIDs []string, flagged bool) error
}
