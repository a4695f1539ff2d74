package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/lessonlens/lessonlens/internal/config"
	"github.com/lessonlens/lessonlens/internal/jobs"
	"github.com/lessonlens/lessonlens/internal/library"
	"github.com/lessonlens/lessonlens/internal/persistence"
	"github.com/lessonlens/lessonlens/pkg/log"
)

// rescanStore reports which media paths already have an imported transcript.
type rescanStore interface {
	ListTranscripts(ctx context.Context) ([]persistence.TranscriptSummary, error)
}

// Service owns the library side of the application: it runs scheduled and
// on-demand rescans of the lesson directories, enqueues an import job for
// every lesson that has a transcript file, and applies runtime settings
// changes to the scanner and the rescan schedule.
type Service struct {
	scanner *library.Scanner
	queue   *jobs.Queue
	store   rescanStore
	cron    *cron.Cron

	rescanGroup singleflight.Group

	mu       sync.Mutex
	cronExpr string
	entryID  cron.EntryID
}

func New(scanner *library.Scanner, queue *jobs.Queue, store rescanStore, c *cron.Cron, cronExpr string) *Service {
	return &Service{
		scanner:  scanner,
		queue:    queue,
		store:    store,
		cron:     c,
		cronExpr: cronExpr,
	}
}

// Rescan walks the lesson library and enqueues an import job for every
// lesson that has a transcript but no imported copy yet. Concurrent callers
// collapse into one run.
func (s *Service) Rescan(ctx context.Context, source string) {
	_, _, _ = s.rescanGroup.Do("rescan", func() (any, error) {
		lib, err := s.scanner.Scan(ctx)
		if err != nil {
			log.Error("Failed to scan lesson library: %v", err)
			return nil, err
		}
		log.Info("Scanned %d lessons across %d sources", len(lib.Lessons), len(lib.Sources))

		imported, err := s.importedMediaPaths(ctx)
		if err != nil {
			log.Error("Failed to list imported transcripts: %v", err)
			return nil, err
		}

		enqueued := 0
		for _, lesson := range lib.Lessons {
			if !lesson.HasTranscript || imported[lesson.MediaPath] {
				continue
			}
			payload := jobs.JobPayload{
				MediaFile:      lesson.MediaPath,
				TranscriptFile: lesson.TranscriptPath,
			}
			_, created := s.queue.Enqueue(jobs.EnqueueRequest{
				Source:    source,
				DedupeKey: payload.DefaultDedupeKey(),
				Payload:   payload,
			})
			if created {
				enqueued++
			}
		}
		if enqueued > 0 {
			log.Info("Enqueued %d import jobs from rescan", enqueued)
		}
		return nil, nil
	})
}

func (s *Service) importedMediaPaths(ctx context.Context) (map[string]bool, error) {
	summaries, err := s.store.ListTranscripts(ctx)
	if err != nil {
		return nil, err
	}
	ret := make(map[string]bool, len(summaries))
	for _, summary := range summaries {
		ret[summary.MediaPath] = true
	}
	return ret, nil
}

// Schedule registers the periodic rescan with the cron runner.
func (s *Service) Schedule(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, err := s.cron.AddFunc(s.cronExpr, func() {
		s.Rescan(ctx, "cron")
	})
	if err != nil {
		return fmt.Errorf("failed to schedule rescan: %w", err)
	}
	s.entryID = entryID
	return nil
}

// ScanCronExpr returns the currently active rescan schedule.
func (s *Service) ScanCronExpr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cronExpr
}

// ApplyRuntimeSettings points the scanner at the new lesson directories and
// replaces the cron entry when the schedule changed. The new entry is added
// before the old one is removed so a schedule always exists.
func (s *Service) ApplyRuntimeSettings(ctx context.Context, next config.RuntimeSettings) error {
	s.scanner.UpdateSources(library.SourcesFromDirs(next.LessonDirs))

	s.mu.Lock()
	defer s.mu.Unlock()

	if next.ScanCronExpr == s.cronExpr {
		return nil
	}

	entryID, err := s.cron.AddFunc(next.ScanCronExpr, func() {
		s.Rescan(ctx, "cron")
	})
	if err != nil {
		return fmt.Errorf("failed to reschedule rescan: %w", err)
	}
	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}
	s.entryID = entryID
	s.cronExpr = next.ScanCronExpr
	log.Info("Rescan schedule changed to %q", next.ScanCronExpr)
	return nil
}
