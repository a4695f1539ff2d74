// Package session owns the engine state of one loaded transcript: cue
// index, segment transport, selection and annotation store, plus the
// concurrent loading of the session's independent sections.
package session

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lessonlens/lessonlens/internal/annotation"
	"github.com/lessonlens/lessonlens/internal/cueindex"
	"github.com/lessonlens/lessonlens/internal/playback"
	"github.com/lessonlens/lessonlens/internal/selection"
	"github.com/lessonlens/lessonlens/internal/transcript"
	"github.com/lessonlens/lessonlens/pkg/log"
)

var errStaleLoad = errors.New("superseded by a newer load")

// ReviewSession ties the engine parts together for the transcript the
// reviewer currently has open. Navigating to another transcript bumps the
// load token; responses carrying a stale token are discarded silently.
type ReviewSession struct {
	loader Loader
	sync   annotation.SyncClient

	mu        sync.Mutex
	loadToken uint64

	transcriptID string
	tr           *transcript.Transcript
	video        *VideoSource
	materials    []Material

	index     *cueindex.Index
	transport *playback.Transport
	sel       *selection.Controller
	store     *annotation.Store

	transcriptState SectionState
	notesState      SectionState
	videoState      SectionState
	materialsState  SectionState
}

func New(loader Loader, syncClient annotation.SyncClient) *ReviewSession {
	return &ReviewSession{
		loader: loader,
		sync:   syncClient,
	}
}

// Load opens a transcript. The transcript body loads first (the engine
// cannot exist without it); notes, materials and the video source then load
// concurrently and independently, so a slow or failing section never blocks
// the others.
func (s *ReviewSession) Load(ctx context.Context, transcriptID string) error {
	s.mu.Lock()
	s.loadToken++
	token := s.loadToken
	s.transcriptID = transcriptID
	s.tr = nil
	s.video = nil
	s.materials = nil
	s.index = nil
	s.transport = nil
	s.sel = nil
	s.store = nil
	s.transcriptState = SectionState{}
	s.notesState = SectionState{}
	s.videoState = SectionState{}
	s.materialsState = SectionState{}
	s.mu.Unlock()

	tr, err := s.loader.FetchTranscript(ctx, transcriptID)
	if err != nil {
		if isCancellation(err) {
			return nil
		}
		s.mu.Lock()
		if s.loadToken == token {
			s.transcriptState = SectionState{Err: err.Error()}
		}
		s.mu.Unlock()
		return err
	}

	var (
		notes       []annotation.Note
		assignments []annotation.Assignment
		video       VideoSource
		hasVideo    bool
		materials   []Material

		notesErr, videoErr, materialsErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		notes, assignments, notesErr = s.loader.FetchNotes(gctx, transcriptID)
		return nil
	})
	g.Go(func() error {
		video, hasVideo, videoErr = s.loader.FetchVideoSource(gctx, transcriptID)
		return nil
	})
	g.Go(func() error {
		materials, materialsErr = s.loader.FetchMaterials(gctx, transcriptID)
		return nil
	})
	_ = g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadToken != token {
		// the reviewer has navigated away; drop everything
		log.Debug("discarding stale load of transcript %s", transcriptID)
		return errStaleLoad
	}

	s.tr = tr
	s.transcriptState = SectionState{Loaded: true}

	var duration *float64
	if videoErr != nil && !isCancellation(videoErr) {
		s.videoState = SectionState{Err: videoErr.Error()}
	} else if videoErr == nil {
		s.videoState = SectionState{Loaded: true}
		if hasVideo {
			v := video
			s.video = &v
			duration = video.Duration
		}
	}

	if notesErr != nil && !isCancellation(notesErr) {
		s.notesState = SectionState{Err: notesErr.Error()}
		notes = nil
		assignments = nil
	} else if notesErr == nil {
		s.notesState = SectionState{Loaded: true}
	}

	if materialsErr != nil && !isCancellation(materialsErr) {
		s.materialsState = SectionState{Err: materialsErr.Error()}
	} else if materialsErr == nil {
		s.materialsState = SectionState{Loaded: true}
		s.materials = materials
	}

	s.transport = playback.NewTransport(tr, duration)
	s.store = annotation.NewStore(transcriptID, s.sync, notes, assignments, tr.Lines)
	s.rebuildSegmentStateLocked()
	return nil
}

// rebuildSegmentStateLocked rebuilds the cue index and selection for the
// active segment's line set.
func (s *ReviewSession) rebuildSegmentStateLocked() {
	segID := ""
	if len(s.tr.Segments) > 0 {
		segID = s.transport.ActiveSegment().ID
	}
	lines := s.tr.LinesForSegment(segID)
	s.index = cueindex.New(lines)

	rowIDs := make([]string, 0, len(lines))
	for _, line := range lines {
		rowIDs = append(rowIDs, line.ID)
	}
	s.sel = selection.NewController(rowIDs)
}

// SwitchSegment navigates to another segment: playback resets to its start
// and the selection model is destroyed, exactly as on transcript switch.
func (s *ReviewSession) SwitchSegment(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport == nil {
		return errors.New("no transcript loaded")
	}
	if err := s.transport.SwitchTo(i); err != nil {
		return err
	}
	s.rebuildSegmentStateLocked()
	return nil
}

// OnTimeUpdate folds a video timeupdate: clamp into the segment window,
// track the active row for playback-driven highlighting, and report
// whether the player must pause at the segment boundary.
func (s *ReviewSession) OnTimeUpdate(t float64) (activeRow string, pause bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport == nil {
		return "", false
	}
	clamped, pause := s.transport.OnTimeUpdate(t)
	row, ok := s.index.ActiveRowAt(clamped)
	if ok {
		s.sel.SetActiveRow(row)
	}
	return row, pause
}

// SeekToRow resolves a double-activated row to its window start. Rows
// without timing data cannot be seeked to; that is a no-op, not an error.
func (s *ReviewSession) SeekToRow(rowID string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil || s.transport == nil {
		return 0, false
	}
	start, _, ok := s.index.WindowFor(rowID)
	if !ok {
		return 0, false
	}
	return s.transport.Seek(start), true
}

func (s *ReviewSession) Transcript() *transcript.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tr
}

func (s *ReviewSession) Video() (*VideoSource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.video, s.video != nil
}

func (s *ReviewSession) Materials() []Material {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.materials
}

func (s *ReviewSession) Index() *cueindex.Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

func (s *ReviewSession) Transport() *playback.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

func (s *ReviewSession) Selection() *selection.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel
}

func (s *ReviewSession) Annotations() *annotation.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store
}

// States reports the per-section load states in the order transcript,
// notes, video, materials.
func (s *ReviewSession) States() (transcriptState, notes, video, materials SectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcriptState, s.notesState, s.videoState, s.materialsState
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
