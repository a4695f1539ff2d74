package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonlens/lessonlens/internal/jobs"
	"github.com/lessonlens/lessonlens/internal/persistence"
)

const testSRT = `1
00:00:01,500 --> 00:00:04,000
Teacher: Welcome back, everyone.

2
00:00:04,500 --> 00:00:08,000
Today we are going to factor quadratic expressions together.
`

func newTestStore(t *testing.T) *persistence.SQLiteStore {
	t.Helper()
	store, err := persistence.NewSQLiteStore(filepath.Join(t.TempDir(), "lessonlens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func writeLessonFiles(t *testing.T, dir, name string) (mediaPath, transcriptPath string) {
	t.Helper()
	mediaPath = filepath.Join(dir, name+".mkv")
	transcriptPath = filepath.Join(dir, name+".srt")
	require.NoError(t, os.WriteFile(mediaPath, []byte("not a real video"), 0o644))
	require.NoError(t, os.WriteFile(transcriptPath, []byte(testSRT), 0o644))
	return mediaPath, transcriptPath
}

func TestImporter_ImportsTranscript(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	mediaPath, transcriptPath := writeLessonFiles(t, dir, "algebra_01")

	importer := NewImporter(store)
	job := &jobs.ImportJob{
		ID:      "job-1",
		Payload: jobs.JobPayload{MediaFile: mediaPath, TranscriptFile: transcriptPath},
	}
	require.NoError(t, importer.Execute(ctx, job))

	id, ok, err := store.LookupTranscriptByMedia(ctx, mediaPath)
	require.NoError(t, err)
	require.True(t, ok)

	rec, ok, err := store.GetTranscript(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "algebra_01", rec.Title)
	assert.Equal(t, mediaPath, rec.MediaPath)
	assert.Equal(t, transcriptPath, rec.TranscriptPath)
	require.Len(t, rec.Lines, 2)
	assert.Equal(t, "Teacher", rec.Lines[0].Speaker)
	assert.Equal(t, "Welcome back, everyone.", rec.Lines[0].Utterance)
	require.NotNil(t, rec.Lines[0].InCue)
	assert.InDelta(t, 1.5, *rec.Lines[0].InCue, 1e-9)
	require.NotNil(t, rec.Lines[1].OutCue)
	assert.InDelta(t, 8.0, *rec.Lines[1].OutCue, 1e-9)
}

func TestImporter_MissingMediaStillImports(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	transcriptPath := filepath.Join(dir, "history.srt")
	require.NoError(t, os.WriteFile(transcriptPath, []byte(testSRT), 0o644))
	mediaPath := filepath.Join(dir, "history.mkv")

	importer := NewImporter(store)
	job := &jobs.ImportJob{
		ID:      "job-1",
		Payload: jobs.JobPayload{MediaFile: mediaPath, TranscriptFile: transcriptPath},
	}
	require.NoError(t, importer.Execute(ctx, job))

	id, ok, err := store.LookupTranscriptByMedia(ctx, mediaPath)
	require.NoError(t, err)
	require.True(t, ok)
	rec, ok, err := store.GetTranscript(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, rec.Duration)
	require.Len(t, rec.Lines, 2)
}

func TestImporter_ReimportKeepsIDAndNotes(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	mediaPath, transcriptPath := writeLessonFiles(t, dir, "geometry")

	importer := NewImporter(store)
	job := &jobs.ImportJob{
		ID:      "job-1",
		Payload: jobs.JobPayload{MediaFile: mediaPath, TranscriptFile: transcriptPath},
	}
	require.NoError(t, importer.Execute(ctx, job))

	id, ok, err := store.LookupTranscriptByMedia(ctx, mediaPath)
	require.NoError(t, err)
	require.True(t, ok)

	note, err := store.CreateNote(ctx, id, persistence.NoteRecord{Title: "Strong opener"})
	require.NoError(t, err)
	assert.Equal(t, 1, note.Number)

	require.NoError(t, importer.Execute(ctx, job))

	again, ok, err := store.LookupTranscriptByMedia(ctx, mediaPath)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, again)

	notes, err := store.ListNotes(ctx, id)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Strong opener", notes[0].Title)
}

func TestImporter_MaterialsSidecar(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	mediaPath, transcriptPath := writeLessonFiles(t, dir, "biology")
	sidecar := filepath.Join(dir, "biology.materials.json")
	require.NoError(t, os.WriteFile(sidecar, []byte(`[
		{"title": "Worksheet", "url": "https://example.com/worksheet.pdf"},
		{"title": "", "url": ""}
	]`), 0o644))

	importer := NewImporter(store)
	job := &jobs.ImportJob{
		ID:      "job-1",
		Payload: jobs.JobPayload{MediaFile: mediaPath, TranscriptFile: transcriptPath},
	}
	require.NoError(t, importer.Execute(ctx, job))

	id, _, err := store.LookupTranscriptByMedia(ctx, mediaPath)
	require.NoError(t, err)
	materials, err := store.ListMaterials(ctx, id)
	require.NoError(t, err)
	require.Len(t, materials, 1)
	assert.Equal(t, "Worksheet", materials[0].Title)
	assert.Equal(t, "https://example.com/worksheet.pdf", materials[0].URL)
}

func TestImporter_BadTranscriptFails(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	importer := NewImporter(store)
	job := &jobs.ImportJob{
		ID: "job-1",
		Payload: jobs.JobPayload{
			MediaFile:      "/nowhere/lesson.mkv",
			TranscriptFile: "/nowhere/lesson.srt",
		},
	}
	err := importer.Execute(context.Background(), job)
	require.Error(t, err)
}

func TestImporter_EmptyTranscriptFails(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	dir := t.TempDir()
	transcriptPath := filepath.Join(dir, "empty.srt")
	require.NoError(t, os.WriteFile(transcriptPath, []byte("\n"), 0o644))

	importer := NewImporter(store)
	job := &jobs.ImportJob{
		ID: "job-1",
		Payload: jobs.JobPayload{
			MediaFile:      filepath.Join(dir, "empty.mkv"),
			TranscriptFile: transcriptPath,
		},
	}
	err := importer.Execute(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no cues")
}
