package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/lessonlens/lessonlens/internal/jobs"
	"github.com/lessonlens/lessonlens/internal/media"
	"github.com/lessonlens/lessonlens/internal/persistence"
	"github.com/lessonlens/lessonlens/internal/transcript"
	"github.com/lessonlens/lessonlens/pkg/log"
)

// importStore is the slice of the persistence layer one import needs.
type importStore interface {
	LookupTranscriptByMedia(ctx context.Context, mediaPath string) (string, bool, error)
	SaveTranscript(ctx context.Context, rec *persistence.TranscriptRecord) error
	ReplaceMaterials(ctx context.Context, transcriptID string, items []persistence.MaterialRecord) error
}

// Importer executes one import job: it parses the transcript file, probes
// the lesson video and writes the result through the store. Re-importing a
// media path reuses the existing transcript ID so notes stay attached.
type Importer struct {
	store importStore
}

func NewImporter(store importStore) *Importer {
	return &Importer{store: store}
}

func (i *Importer) Execute(ctx context.Context, job *jobs.ImportJob) error {
	payload := job.Payload

	parsed, err := transcript.NewReader(payload.TranscriptFile).Read()
	if err != nil {
		return fmt.Errorf("failed to parse transcript: %w", err)
	}
	if len(parsed.Lines) == 0 {
		return fmt.Errorf("transcript %s contains no cues", payload.TranscriptFile)
	}

	info, found, err := media.NewFfprobe(payload.MediaFile).Probe()
	if err != nil {
		return fmt.Errorf("failed to probe media: %w", err)
	}
	if !found {
		// A lesson whose video went missing is still reviewable as text.
		log.Warn("Media file %s not found, importing transcript without video metadata", payload.MediaFile)
	}

	id := parsed.ID
	if existing, ok, err := i.store.LookupTranscriptByMedia(ctx, payload.MediaFile); err != nil {
		return err
	} else if ok {
		id = existing
		log.Info("Re-importing transcript %s for %s", id, payload.MediaFile)
	}

	rec := &persistence.TranscriptRecord{
		ID:             id,
		Title:          parsed.Title,
		Language:       parsed.Language.String(),
		MediaPath:      payload.MediaFile,
		TranscriptPath: payload.TranscriptFile,
		Duration:       info.Duration,
		MimeType:       info.MimeType,
		Lines:          lineRecords(parsed.Lines),
		Segments:       segmentRecords(parsed.Segments),
	}
	if err := i.store.SaveTranscript(ctx, rec); err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}

	if err := i.importMaterials(ctx, id, payload.MediaFile); err != nil {
		log.Warn("Failed to import materials for %s: %v", payload.MediaFile, err)
	}

	log.Info("Imported transcript %s (%d lines) from %s", id, len(parsed.Lines), payload.TranscriptFile)
	return nil
}

func lineRecords(lines []transcript.Line) []persistence.LineRecord {
	ret := make([]persistence.LineRecord, len(lines))
	for i, line := range lines {
		ret[i] = persistence.LineRecord{
			ID:        line.ID,
			Index:     line.Index,
			Speaker:   line.Speaker,
			Utterance: line.Utterance,
			InCue:     line.InCue,
			OutCue:    line.OutCue,
			SegmentID: line.SegmentID,
			Flagged:   line.Flagged,
		}
	}
	return ret
}

func segmentRecords(segments []transcript.Segment) []persistence.SegmentRecord {
	ret := make([]persistence.SegmentRecord, len(segments))
	for i, seg := range segments {
		ret[i] = persistence.SegmentRecord{
			ID:        seg.ID,
			Index:     seg.Index,
			Title:     seg.Title,
			StartTime: seg.StartTime,
			EndTime:   seg.EndTime,
		}
	}
	return ret
}

// materialEntry is one row of the optional materials sidecar file that sits
// next to the lesson video, e.g. "lesson.materials.json".
type materialEntry struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

func materialsSidecarPath(mediaPath string) string {
	stem := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath))
	return stem + ".materials.json"
}

func (i *Importer) importMaterials(ctx context.Context, transcriptID, mediaPath string) error {
	sidecar := materialsSidecarPath(mediaPath)
	data, err := os.ReadFile(sidecar)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var entries []materialEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse %s: %w", sidecar, err)
	}

	items := make([]persistence.MaterialRecord, 0, len(entries))
	for _, entry := range entries {
		if entry.Title == "" && entry.URL == "" {
			continue
		}
		items = append(items, persistence.MaterialRecord{
			ID:           uuid.NewString(),
			TranscriptID: transcriptID,
			Title:        entry.Title,
			URL:          entry.URL,
		})
	}
	return i.store.ReplaceMaterials(ctx, transcriptID, items)
}
