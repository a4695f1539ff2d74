package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lessonlens/lessonlens/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "lessonlens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func saveTestTranscript(t *testing.T, store *SQLiteStore, id string) *TranscriptRecord {
	t.Helper()
	inA := 0.0
	outA := 4.5
	inB := 4.5
	segEnd := 30.0
	rec := &TranscriptRecord{
		ID:             id,
		Title:          "Fractions Intro",
		Language:       "en",
		MediaPath:      "/lessons/fractions.mp4",
		TranscriptPath: "/lessons/fractions.srt",
		MimeType:       "video/mp4",
		Lines: []LineRecord{
			{ID: id + "-l1", Index: 0, Speaker: "Teacher", Utterance: "Welcome back.", InCue: &inA, OutCue: &outA, SegmentID: id + "-s1"},
			{ID: id + "-l2", Index: 1, Speaker: "Student", Utterance: "Hi!", InCue: &inB, SegmentID: id + "-s1"},
		},
		Segments: []SegmentRecord{
			{ID: id + "-s1", Index: 0, Title: "Warm-up", StartTime: &inA, EndTime: &segEnd},
		},
	}
	require.NoError(t, store.SaveTranscript(context.Background(), rec))
	return rec
}

func TestSQLiteStore_TranscriptRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	saveTestTranscript(t, store, "tr-1")

	loaded, ok, err := store.GetTranscript(ctx, "tr-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Fractions Intro", loaded.Title)
	require.Len(t, loaded.Lines, 2)
	assert.Equal(t, "Teacher", loaded.Lines[0].Speaker)
	require.NotNil(t, loaded.Lines[0].OutCue)
	assert.InDelta(t, 4.5, *loaded.Lines[0].OutCue, 1e-9)
	assert.Nil(t, loaded.Lines[1].OutCue)
	require.Len(t, loaded.Segments, 1)
	assert.Equal(t, "Warm-up", loaded.Segments[0].Title)

	_, ok, err = store.GetTranscript(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_ReimportReplacesLinesKeepsNotes(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	rec := saveTestTranscript(t, store, "tr-1")

	note, err := store.CreateNote(ctx, "tr-1", NoteRecord{Title: "Good question"})
	require.NoError(t, err)
	assert.Equal(t, 1, note.Number)

	// re-import with one line dropped
	rec.Lines = rec.Lines[:1]
	require.NoError(t, store.SaveTranscript(ctx, rec))

	loaded, ok, err := store.GetTranscript(ctx, "tr-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, loaded.Lines, 1)

	notes, err := store.ListNotes(ctx, "tr-1")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, note.ID, notes[0].ID)

	// numbering continues past the re-import
	next, err := store.CreateNote(ctx, "tr-1", NoteRecord{Title: "Another"})
	require.NoError(t, err)
	assert.Equal(t, 2, next.Number)
}

func TestSQLiteStore_NoteNumbersNeverReused(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	saveTestTranscript(t, store, "tr-1")

	first, err := store.CreateNote(ctx, "tr-1", NoteRecord{Title: "one"})
	require.NoError(t, err)
	second, err := store.CreateNote(ctx, "tr-1", NoteRecord{Title: "two"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Number)
	assert.Equal(t, 2, second.Number)

	require.NoError(t, store.DeleteNote(ctx, second.ID))

	third, err := store.CreateNote(ctx, "tr-1", NoteRecord{Title: "three"})
	require.NoError(t, err)
	assert.Equal(t, 3, third.Number)
}

func TestSQLiteStore_CreateNoteUnknownTranscript(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	_, err := store.CreateNote(context.Background(), "nope", NoteRecord{Title: "x"})
	require.Error(t, err)
}

func TestSQLiteStore_UpdateNote(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	saveTestTranscript(t, store, "tr-1")

	note, err := store.CreateNote(ctx, "tr-1", NoteRecord{Title: "draft"})
	require.NoError(t, err)

	updated, ok, err := store.UpdateNote(ctx, note.ID, NoteRecord{
		Title:          "final",
		Evidence:       "line 3",
		Interpretation: "checks prior knowledge",
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "final", updated.Title)
	assert.Equal(t, note.Number, updated.Number)

	_, ok, err = store.UpdateNote(ctx, "missing", NoteRecord{Title: "x"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_GetNote(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	saveTestTranscript(t, store, "tr-1")

	note, err := store.CreateNote(ctx, "tr-1", NoteRecord{Title: "wait time"})
	require.NoError(t, err)

	loaded, ok, err := store.GetNote(ctx, note.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "wait time", loaded.Title)
	assert.Equal(t, "tr-1", loaded.TranscriptID)

	_, ok, err = store.GetNote(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_AssignmentsFollowNoteLifecycle(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	saveTestTranscript(t, store, "tr-1")

	note, err := store.CreateNote(ctx, "tr-1", NoteRecord{Title: "tagged"})
	require.NoError(t, err)

	require.NoError(t, store.WriteAssignment(ctx, note.ID, []string{"tr-1-l1", "tr-1-l2"}, true))
	// setting an existing edge again is a no-op
	require.NoError(t, store.WriteAssignment(ctx, note.ID, []string{"tr-1-l1"}, true))

	edges, err := store.ListAssignments(ctx, "tr-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tr-1-l1", "tr-1-l2"}, edges[note.ID])

	require.NoError(t, store.WriteAssignment(ctx, note.ID, []string{"tr-1-l2"}, false))
	edges, err = store.ListAssignments(ctx, "tr-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tr-1-l1"}, edges[note.ID])

	require.NoError(t, store.DeleteNote(ctx, note.ID))
	edges, err = store.ListAssignments(ctx, "tr-1")
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestSQLiteStore_WriteFlags(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	saveTestTranscript(t, store, "tr-1")

	require.NoError(t, store.WriteFlags(ctx, []string{"tr-1-l1", "tr-1-l2"}, true))
	loaded, _, err := store.GetTranscript(ctx, "tr-1")
	require.NoError(t, err)
	assert.True(t, loaded.Lines[0].Flagged)
	assert.True(t, loaded.Lines[1].Flagged)

	require.NoError(t, store.WriteFlags(ctx, []string{"tr-1-l1"}, false))
	loaded, _, err = store.GetTranscript(ctx, "tr-1")
	require.NoError(t, err)
	assert.False(t, loaded.Lines[0].Flagged)
	assert.True(t, loaded.Lines[1].Flagged)
}

func TestSQLiteStore_ListTranscriptsAndLookup(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	saveTestTranscript(t, store, "tr-1")

	list, err := store.ListTranscripts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "tr-1", list[0].ID)
	assert.Equal(t, 2, list[0].LineCount)

	id, ok, err := store.LookupTranscriptByMedia(ctx, "/lessons/fractions.mp4")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tr-1", id)

	_, ok, err = store.LookupTranscriptByMedia(ctx, "/lessons/unknown.mp4")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_MaterialsReplace(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	saveTestTranscript(t, store, "tr-1")

	require.NoError(t, store.ReplaceMaterials(ctx, "tr-1", []MaterialRecord{
		{Title: "Worksheet", URL: "/materials/worksheet.pdf"},
		{Title: "Slides", URL: "/materials/slides.pdf"},
	}))

	items, err := store.ListMaterials(ctx, "tr-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Slides", items[0].Title)

	require.NoError(t, store.ReplaceMaterials(ctx, "tr-1", []MaterialRecord{
		{Title: "Slides v2", URL: "/materials/slides-v2.pdf"},
	}))
	items, err = store.ListMaterials(ctx, "tr-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestSQLiteStore_JobsRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	job := &jobs.ImportJob{
		ID:        "job-1",
		Source:    "scanner",
		DedupeKey: "/lessons/fractions.mp4",
		Payload: jobs.JobPayload{
			MediaFile:      "/lessons/fractions.mp4",
			TranscriptFile: "/lessons/fractions.srt",
		},
		Status:    jobs.StatusPending,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.UpsertJob(ctx, job))

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, job.ID, all[0].ID)
	assert.Equal(t, job.Status, all[0].Status)
	assert.Equal(t, job.Payload.TranscriptFile, all[0].Payload.TranscriptFile)

	require.NoError(t, store.DeleteJob(ctx, job.ID))
	all, err = store.LoadJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
