package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonlens/lessonlens/internal/config"
	"github.com/lessonlens/lessonlens/internal/jobs"
	"github.com/lessonlens/lessonlens/internal/library"
)

func TestService_RescanEnqueuesMissingImports(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	mediaA, transcriptA := writeLessonFiles(t, dir, "algebra")
	chemistryMedia, chemistryTranscript := writeLessonFiles(t, dir, "chemistry")

	// chemistry is already imported; only algebra should be queued
	importer := NewImporter(store)
	require.NoError(t, importer.Execute(ctx, &jobs.ImportJob{
		ID:      "job-seed",
		Payload: jobs.JobPayload{MediaFile: chemistryMedia, TranscriptFile: chemistryTranscript},
	}))

	scanner := library.NewScanner(library.SourcesFromDirs([]string{dir}))
	queue := jobs.NewQueue(1, store)
	svc := New(scanner, queue, store, cron.New(), "0 * * * *")

	svc.Rescan(ctx, "scan")

	pending := queue.List()
	require.Len(t, pending, 1)
	assert.Equal(t, jobs.StatusPending, pending[0].Status)
	assert.Equal(t, mediaA, pending[0].Payload.MediaFile)
	assert.Equal(t, transcriptA, pending[0].Payload.TranscriptFile)
	assert.Equal(t, "scan", pending[0].Source)

	// a second rescan dedupes against the pending job
	svc.Rescan(ctx, "scan")
	assert.Len(t, queue.List(), 1)
}

func TestService_RescanSkipsLessonsWithoutTranscript(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "silent.mkv"), []byte("not a real video"), 0o644))

	scanner := library.NewScanner(library.SourcesFromDirs([]string{dir}))
	queue := jobs.NewQueue(1, store)
	svc := New(scanner, queue, store, cron.New(), "0 * * * *")

	svc.Rescan(context.Background(), "scan")
	assert.Empty(t, queue.List())
}

func TestService_ScheduleRegistersCronEntry(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	scanner := library.NewScanner(nil)
	queue := jobs.NewQueue(1, store)
	c := cron.New()
	svc := New(scanner, queue, store, c, "0 * * * *")

	require.NoError(t, svc.Schedule(context.Background()))
	assert.Len(t, c.Entries(), 1)
	assert.Equal(t, "0 * * * *", svc.ScanCronExpr())
}

func TestService_ApplyRuntimeSettings(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	scanner := library.NewScanner(library.SourcesFromDirs([]string{"/lessons/old"}))
	queue := jobs.NewQueue(1, store)
	c := cron.New()
	svc := New(scanner, queue, store, c, "0 * * * *")
	require.NoError(t, svc.Schedule(context.Background()))

	next := config.RuntimeSettings{
		LessonDirs:   []string{"/lessons/new"},
		ScanCronExpr: "*/10 * * * *",
	}
	require.NoError(t, svc.ApplyRuntimeSettings(context.Background(), next))

	assert.Equal(t, "*/10 * * * *", svc.ScanCronExpr())
	sources := scanner.Sources()
	require.Len(t, sources, 1)
	assert.Equal(t, "/lessons/new", sources[0].Path)
	// old entry replaced, not stacked
	assert.Len(t, c.Entries(), 1)
}

func TestService_ApplyRuntimeSettingsBadCronKeepsSchedule(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	scanner := library.NewScanner(nil)
	queue := jobs.NewQueue(1, store)
	c := cron.New()
	svc := New(scanner, queue, store, c, "0 * * * *")
	require.NoError(t, svc.Schedule(context.Background()))

	err := svc.ApplyRuntimeSettings(context.Background(), config.RuntimeSettings{
		LessonDirs:   []string{"/lessons"},
		ScanCronExpr: "not a cron expr",
	})
	require.Error(t, err)
	assert.Equal(t, "0 * * * *", svc.ScanCronExpr())
	assert.Len(t, c.Entries(), 1)
}
