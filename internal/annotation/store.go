// Package annotation holds the notes, the note↔line assignment matrix and
// the flag set of the loaded transcript, and pushes mutations through a
// SyncClient with optimistic local state.
package annotation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lessonlens/lessonlens/internal/transcript"
	"github.com/lessonlens/lessonlens/pkg/log"
)

const flagEntity = "flags"

// Store is the annotation state of one loaded transcript. Local state is
// updated optimistically before each write is issued; a failed write keeps
// the optimistic state (the user retries) and records an error that the
// next successful write for the same entity clears.
type Store struct {
	transcriptID string
	client       SyncClient

	mu          sync.Mutex
	notes       []Note
	assignments map[string]map[string]bool // lineID -> set of noteIDs
	flags       map[string]bool
	writeErrors map[string]string
	timelineNote string

	wg sync.WaitGroup
}

// NewStore seeds the store from a completed transcript load.
func NewStore(transcriptID string, client SyncClient, notes []Note, assignments []Assignment, lines []transcript.Line) *Store {
	s := &Store{
		transcriptID: transcriptID,
		client:       client,
		notes:        append([]Note(nil), notes...),
		assignments:  make(map[string]map[string]bool),
		flags:        make(map[string]bool),
		writeErrors:  make(map[string]string),
	}
	for _, a := range assignments {
		s.assignLocked(a.NoteID, a.LineID, true)
	}
	for _, line := range lines {
		if line.Flagged {
			s.flags[line.ID] = true
		}
	}
	return s
}

// Wait blocks until every issued write has completed. Used by tests and by
// shutdown paths; the UI never waits.
func (s *Store) Wait() {
	s.wg.Wait()
}

func (s *Store) assignLocked(noteID, lineID string, assigned bool) {
	set := s.assignments[lineID]
	if assigned {
		if set == nil {
			set = make(map[string]bool)
			s.assignments[lineID] = set
		}
		set[noteID] = true
		return
	}
	delete(set, noteID)
}

// TagState computes the tri-state of noteID's checkbox over the target rows.
func (s *Store) TagState(noteID string, targetRowIDs []string) TagState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(targetRowIDs) == 0 {
		return TagState{}
	}
	tagged := 0
	for _, lineID := range targetRowIDs {
		if s.assignments[lineID][noteID] {
			tagged++
		}
	}
	return TagState{
		Checked:       tagged == len(targetRowIDs),
		Indeterminate: tagged > 0 && tagged < len(targetRowIDs),
	}
}

// ToggleTag sets (not flips) the tag to nextValue on every target row, so a
// mixed selection resolves unambiguously: checking an indeterminate box
// turns the tag on everywhere, unchecking turns it off everywhere. The
// write is issued even if a previous one for the same note is still in
// flight; last write wins per (note, row) pair.
func (s *Store) ToggleTag(ctx context.Context, noteID string, targetRowIDs []string, nextValue bool) {
	if len(targetRowIDs) == 0 {
		return
	}

	s.mu.Lock()
	for _, lineID := range targetRowIDs {
		s.assignLocked(noteID, lineID, nextValue)
	}
	s.mu.Unlock()

	lineIDs := append([]string(nil), targetRowIDs...)
	s.issue(noteEntity(noteID), func() error {
		return s.client.WriteAssignment(ctx, noteID, lineIDs, nextValue)
	})
}

// ToggleFlag applies all-or-nothing flag semantics to the target rows: when
// every target is flagged the action unflags them all, otherwise it flags
// them all. Returns the value that was applied.
func (s *Store) ToggleFlag(ctx context.Context, targetRowIDs []string) bool {
	if len(targetRowIDs) == 0 {
		return false
	}

	s.mu.Lock()
	next := !s.allFlaggedLocked(targetRowIDs)
	for _, lineID := range targetRowIDs {
		s.flags[lineID] = next
	}
	s.mu.Unlock()

	lineIDs := append([]string(nil), targetRowIDs...)
	s.issue(flagEntity, func() error {
		return s.client.WriteFlags(ctx, lineIDs, next)
	})
	return next
}

func (s *Store) allFlaggedLocked(targetRowIDs []string) bool {
	for _, lineID := range targetRowIDs {
		if !s.flags[lineID] {
			return false
		}
	}
	return true
}

// AllFlagged reports whether every target row is currently flagged; the
// flag action's label derives from this.
func (s *Store) AllFlagged(targetRowIDs []string) bool {
	if len(targetRowIDs) == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allFlaggedLocked(targetRowIDs)
}

func (s *Store) Flagged(lineID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[lineID]
}

// CreateNote inserts an optimistic placeholder immediately so typed content
// is never lost, then reconciles the canonical persisted note (server
// id and number) into local state when the write lands.
func (s *Store) CreateNote(ctx context.Context, draft NoteDraft) Note {
	placeholder := Note{
		ID:             "local-" + uuid.NewString(),
		Number:         0,
		Title:          draft.Title,
		Evidence:       draft.Evidence,
		Interpretation: draft.Interpretation,
		Response:       draft.Response,
	}

	s.mu.Lock()
	s.notes = append(s.notes, placeholder)
	s.mu.Unlock()

	placeholderID := placeholder.ID
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		saved, err := s.client.CreateNote(ctx, s.transcriptID, draft)
		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			s.recordErrLocked(noteEntity(placeholderID), err)
			return
		}
		delete(s.writeErrors, noteEntity(placeholderID))
		for i := range s.notes {
			if s.notes[i].ID == placeholderID {
				s.notes[i] = saved
				if s.timelineNote == placeholderID {
					s.timelineNote = saved.ID
				}
				// carry any assignments made against the placeholder
				for lineID, set := range s.assignments {
					if set[placeholderID] {
						delete(set, placeholderID)
						s.assignLocked(saved.ID, lineID, true)
					}
				}
				return
			}
		}
		// placeholder vanished (transcript switched); drop the result
	}()
	return placeholder
}

// UpdateNote writes the edited fields optimistically and reconciles the
// canonical note from the server response.
func (s *Store) UpdateNote(ctx context.Context, note Note) {
	s.mu.Lock()
	for i := range s.notes {
		if s.notes[i].ID == note.ID {
			s.notes[i] = note
			break
		}
	}
	s.mu.Unlock()

	s.issueReconcile(noteEntity(note.ID), func() (Note, error) {
		return s.client.UpdateNote(ctx, note)
	})
}

// DeleteNote removes the note, purges every assignment edge pointing at it,
// and clears the timeline filter if it was driving the highlighter.
func (s *Store) DeleteNote(ctx context.Context, noteID string) {
	s.mu.Lock()
	kept := s.notes[:0]
	for _, n := range s.notes {
		if n.ID != noteID {
			kept = append(kept, n)
		}
	}
	s.notes = kept
	for _, set := range s.assignments {
		delete(set, noteID)
	}
	if s.timelineNote == noteID {
		s.timelineNote = ""
	}
	s.mu.Unlock()

	if strings.HasPrefix(noteID, "local-") {
		// never persisted; nothing to delete remotely
		return
	}
	s.issue(noteEntity(noteID), func() error {
		return s.client.DeleteNote(ctx, noteID)
	})
}

// Notes returns a snapshot ordered by display number, placeholders last.
func (s *Store) Notes() []Note {
	s.mu.Lock()
	defer s.mu.Unlock()

	ret := append([]Note(nil), s.notes...)
	sort.SliceStable(ret, func(i, j int) bool {
		if (ret[i].Number == 0) != (ret[j].Number == 0) {
			return ret[j].Number == 0
		}
		return ret[i].Number < ret[j].Number
	})
	return ret
}

func (s *Store) IsAssigned(noteID, lineID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assignments[lineID][noteID]
}

// AssignedLines returns the ids of every line carrying noteID, unordered.
func (s *Store) AssignedLines(noteID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ret := make([]string, 0)
	for lineID, set := range s.assignments {
		if set[noteID] {
			ret = append(ret, lineID)
		}
	}
	return ret
}

// SetTimelineNote selects the note whose assignments the scrubber paints.
func (s *Store) SetTimelineNote(noteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timelineNote = noteID
}

func (s *Store) TimelineNote() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timelineNote, s.timelineNote != ""
}

// WriteError reports the sticky error of the last failed write for a note,
// if the error has not been cleared by a later successful write.
func (s *Store) WriteError(noteID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.writeErrors[noteEntity(noteID)]
	return msg, ok
}

// FlagWriteError is the flag control's counterpart of WriteError.
func (s *Store) FlagWriteError() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.writeErrors[flagEntity]
	return msg, ok
}

func noteEntity(noteID string) string {
	return "note:" + noteID
}

// issue runs one independent write. Local state has already been applied;
// on failure it is deliberately NOT rolled back (the user is expected to
// retry), only the per-entity error is recorded.
func (s *Store) issue(entity string, write func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := write()
		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			s.recordErrLocked(entity, err)
			return
		}
		delete(s.writeErrors, entity)
	}()
}

func (s *Store) issueReconcile(entity string, write func() (Note, error)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		saved, err := write()
		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			s.recordErrLocked(entity, err)
			return
		}
		delete(s.writeErrors, entity)
		for i := range s.notes {
			if s.notes[i].ID == saved.ID {
				s.notes[i] = saved
				return
			}
		}
	}()
}

func (s *Store) recordErrLocked(entity string, err error) {
	if errors.Is(err, context.Canceled) {
		// navigation away mid-write; not an error, no message
		return
	}
	log.Warn("write for %s failed: %v", entity, err)
	s.writeErrors[entity] = err.Error()
}
