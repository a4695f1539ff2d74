package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonlens/lessonlens/internal/annotation"
	"github.com/lessonlens/lessonlens/internal/transcript"
)

func cue(v float64) *float64 {
	return &v
}

type fakeLoader struct {
	mu sync.Mutex

	transcripts map[string]*transcript.Transcript
	notes       map[string][]annotation.Note
	video       map[string]VideoSource

	transcriptDelay time.Duration
	notesErr        error
	videoErr        error
	materialsErr    error

	fetched []string
}

func (f *fakeLoader) FetchTranscript(ctx context.Context, id string) (*transcript.Transcript, error) {
	f.mu.Lock()
	delay := f.transcriptDelay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	f.fetched = append(f.fetched, id)
	tr, ok := f.transcripts[id]
	f.mu.Unlock()
	if !ok {
		return nil, assert.AnError
	}
	return tr, nil
}

func (f *fakeLoader) FetchNotes(_ context.Context, id string) ([]annotation.Note, []annotation.Assignment, error) {
	if f.notesErr != nil {
		return nil, nil, f.notesErr
	}
	return f.notes[id], nil, nil
}

func (f *fakeLoader) FetchVideoSource(_ context.Context, id string) (VideoSource, bool, error) {
	if f.videoErr != nil {
		return VideoSource{}, false, f.videoErr
	}
	v, ok := f.video[id]
	return v, ok, nil
}

func (f *fakeLoader) FetchMaterials(_ context.Context, _ string) ([]Material, error) {
	if f.materialsErr != nil {
		return nil, f.materialsErr
	}
	return []Material{{ID: "m1", Title: "Worksheet", URL: "/files/m1.pdf"}}, nil
}

type noopSync struct{}

func (noopSync) CreateNote(_ context.Context, _ string, d annotation.NoteDraft) (annotation.Note, error) {
	return annotation.Note{ID: "srv", Number: 1, Title: d.Title}, nil
}
func (noopSync) UpdateNote(_ context.Context, n annotation.Note) (annotation.Note, error) {
	return n, nil
}
func (noopSync) DeleteNote(_ context.Context, _ string) error { return nil }
func (noopSync) WriteAssignment(_ context.Context, _ string, _ []string, _ bool) error {
	return nil
}
func (noopSync) WriteFlags(_ context.Context, _ []string, _ bool) error { return nil }

func twoSegmentTranscript() *transcript.Transcript {
	s1s, s1e := 0.0, 30.0
	s2s, s2e := 30.0, 60.0
	return &transcript.Transcript{
		ID:    "t1",
		Title: "Lesson 1",
		Segments: []transcript.Segment{
			{ID: "s1", Index: 0, StartTime: &s1s, EndTime: &s1e},
			{ID: "s2", Index: 1, StartTime: &s2s, EndTime: &s2e},
		},
		Lines: []transcript.Line{
			{ID: "l1", Index: 1, SegmentID: "s1", InCue: cue(0), OutCue: cue(5)},
			{ID: "l2", Index: 2, SegmentID: "s1", InCue: cue(5), OutCue: cue(12)},
			{ID: "l3", Index: 3, SegmentID: "s2", InCue: cue(31), OutCue: cue(40)},
		},
	}
}

func newLoader() *fakeLoader {
	duration := 60.0
	return &fakeLoader{
		transcripts: map[string]*transcript.Transcript{"t1": twoSegmentTranscript()},
		notes:       map[string][]annotation.Note{"t1": {{ID: "n1", Number: 1, Title: "pacing"}}},
		video: map[string]VideoSource{
			"t1": {URL: "/video/t1.mp4", MimeType: "video/mp4", Duration: &duration},
		},
	}
}

func TestLoad_WiresEngine(t *testing.T) {
	s := New(newLoader(), noopSync{})

	require.NoError(t, s.Load(context.Background(), "t1"))

	trState, notesState, videoState, materialsState := s.States()
	assert.True(t, trState.Loaded)
	assert.True(t, notesState.Loaded)
	assert.True(t, videoState.Loaded)
	assert.True(t, materialsState.Loaded)

	require.NotNil(t, s.Index())
	require.NotNil(t, s.Transport())
	require.NotNil(t, s.Selection())
	require.NotNil(t, s.Annotations())

	video, ok := s.Video()
	require.True(t, ok)
	assert.Equal(t, "video/mp4", video.MimeType)
	require.Len(t, s.Materials(), 1)
	require.Len(t, s.Annotations().Notes(), 1)
}

func TestLoad_SectionFailureIsIsolated(t *testing.T) {
	loader := newLoader()
	loader.notesErr = assert.AnError
	s := New(loader, noopSync{})

	require.NoError(t, s.Load(context.Background(), "t1"))

	trState, notesState, videoState, materialsState := s.States()
	assert.True(t, trState.Loaded)
	assert.True(t, notesState.Failed())
	assert.True(t, videoState.Loaded)
	assert.True(t, materialsState.Loaded)

	// Engine still works without notes.
	assert.Empty(t, s.Annotations().Notes())
	require.NotNil(t, s.Index())
}

func TestLoad_NoVideoIsAnEmptyStateNotAnError(t *testing.T) {
	loader := newLoader()
	delete(loader.video, "t1")
	s := New(loader, noopSync{})

	require.NoError(t, s.Load(context.Background(), "t1"))

	_, ok := s.Video()
	assert.False(t, ok)
	_, _, videoState, _ := s.States()
	assert.True(t, videoState.Loaded)
	assert.False(t, videoState.Failed())
}

func TestLoad_StaleResponseDiscarded(t *testing.T) {
	loader := newLoader()
	tr2 := &transcript.Transcript{ID: "t2", Title: "Lesson 2", Lines: []transcript.Line{
		{ID: "x1", Index: 1, InCue: cue(0)},
	}}
	loader.transcripts["t2"] = tr2
	loader.transcriptDelay = 50 * time.Millisecond
	s := New(loader, noopSync{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// slow first load: by the time it resolves, t2 is current
		_ = s.Load(context.Background(), "t1")
	}()
	time.Sleep(10 * time.Millisecond)
	loader.mu.Lock()
	loader.transcriptDelay = 0
	loader.mu.Unlock()
	require.NoError(t, s.Load(context.Background(), "t2"))
	wg.Wait()

	require.NotNil(t, s.Transcript())
	assert.Equal(t, "t2", s.Transcript().ID, "stale t1 response must not clobber t2")
}

func TestLoad_TranscriptFailure(t *testing.T) {
	s := New(newLoader(), noopSync{})

	require.Error(t, s.Load(context.Background(), "missing"))
	trState, _, _, _ := s.States()
	assert.True(t, trState.Failed())
}

func TestSwitchSegment_ResetsSelectionAndPlayback(t *testing.T) {
	s := New(newLoader(), noopSync{})
	require.NoError(t, s.Load(context.Background(), "t1"))

	s.Selection().Click("l1")
	s.Transport().MarkPlayed()

	require.NoError(t, s.SwitchSegment(1))

	_, ok := s.Selection().ActiveRow()
	assert.False(t, ok, "selection destroyed on segment switch")
	assert.False(t, s.Transport().HasEverPlayed())
	assert.Equal(t, 30.0, s.Transport().Clock().Start)

	// The new segment's cue index only sees its own lines.
	row, ok := s.Index().ActiveRowAt(35)
	require.True(t, ok)
	assert.Equal(t, "l3", row)
}

func TestOnTimeUpdate_TracksActiveRowAndBoundary(t *testing.T) {
	s := New(newLoader(), noopSync{})
	require.NoError(t, s.Load(context.Background(), "t1"))

	row, pause := s.OnTimeUpdate(3)
	assert.Equal(t, "l1", row)
	assert.False(t, pause)

	active, ok := s.Selection().ActiveRow()
	require.True(t, ok)
	assert.Equal(t, "l1", active)

	_, pause = s.OnTimeUpdate(31)
	assert.True(t, pause, "time past the segment end must pause")
}

func TestSeekToRow(t *testing.T) {
	s := New(newLoader(), noopSync{})
	require.NoError(t, s.Load(context.Background(), "t1"))

	pos, ok := s.SeekToRow("l2")
	require.True(t, ok)
	assert.Equal(t, 5.0, pos)

	// A row with no timing data cannot be seeked to: silent no-op.
	_, ok = s.SeekToRow("missing")
	assert.False(t, ok)
}
