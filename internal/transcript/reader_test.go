package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSRT = `1
00:00:01,000 --> 00:00:04,500
Teacher: Welcome back, everyone.

2
00:00:04,500 --> 00:00:09,250
Student: Thanks! Where did we leave off?

3
00:00:10,000 --> 00:00:12,000
Let's pick up with fractions.
`

const sampleVTT = `WEBVTT

00:00:01.000 --> 00:00:04.500
Teacher: Welcome back, everyone.

intro-2
00:00:04.500 --> 00:00:09.250
Student: Thanks! Where did we leave off?
`

func writeTranscript(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReader_SRT(t *testing.T) {
	path := writeTranscript(t, "lesson.srt", sampleSRT)

	got, err := NewReader(path).Read()
	require.NoError(t, err)
	require.Len(t, got.Lines, 3)
	assert.Equal(t, "lesson", got.Title)

	first := got.Lines[0]
	assert.Equal(t, 1, first.Index)
	assert.Equal(t, "Teacher", first.Speaker)
	assert.Equal(t, "Welcome back, everyone.", first.Utterance)
	require.NotNil(t, first.InCue)
	require.NotNil(t, first.OutCue)
	assert.Equal(t, 1.0, *first.InCue)
	assert.Equal(t, 4.5, *first.OutCue)

	third := got.Lines[2]
	assert.Equal(t, "", third.Speaker)
	assert.Equal(t, "Let's pick up with fractions.", third.Utterance)
	require.NotNil(t, third.InCue)
	assert.Equal(t, 10.0, *third.InCue)

	for _, line := range got.Lines {
		assert.NotEmpty(t, line.ID)
	}
}

func TestReader_VTT(t *testing.T) {
	path := writeTranscript(t, "lesson.vtt", sampleVTT)

	got, err := NewReader(path).Read()
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)

	assert.Equal(t, "Teacher", got.Lines[0].Speaker)
	require.NotNil(t, got.Lines[1].InCue)
	assert.Equal(t, 4.5, *got.Lines[1].InCue)
	assert.Equal(t, 2, got.Lines[1].Index)
}

func TestReader_RejectsUnknownFormat(t *testing.T) {
	path := writeTranscript(t, "lesson.ass", sampleSRT)

	_, err := NewReader(path).Read()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unsupported"))
}

func TestReader_MissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "nope.srt")).Read()
	require.Error(t, err)
}

func TestSplitSpeaker(t *testing.T) {
	speaker, utterance := splitSpeaker("Ms. Rivera: open your books")
	assert.Equal(t, "", speaker) // period in prefix: not a label

	speaker, utterance = splitSpeaker("Rivera: open your books")
	assert.Equal(t, "Rivera", speaker)
	assert.Equal(t, "open your books", utterance)

	speaker, utterance = splitSpeaker("12: 30 is when we stop")
	assert.Equal(t, "", speaker)
	assert.Equal(t, "12: 30 is when we stop", utterance)

	speaker, utterance = splitSpeaker("no label here")
	assert.Equal(t, "", speaker)
	assert.Equal(t, "no label here", utterance)
}

func TestResolveSegments_ImplicitFromCueBounds(t *testing.T) {
	in1, out1 := 5.0, 8.0
	in2 := 12.0
	tr := &Transcript{
		ID:    "t1",
		Title: "Lesson",
		Lines: []Line{
			{ID: "l1", Index: 1, InCue: &in1, OutCue: &out1},
			{ID: "l2", Index: 2, InCue: &in2},
		},
	}

	segs := tr.ResolveSegments(nil)
	require.Len(t, segs, 1)
	require.NotNil(t, segs[0].StartTime)
	require.NotNil(t, segs[0].EndTime)
	assert.Equal(t, 5.0, *segs[0].StartTime)
	assert.Equal(t, 12.0, *segs[0].EndTime)
}

func TestResolveSegments_ImplicitNoCues(t *testing.T) {
	duration := 90.0
	tr := &Transcript{
		ID:    "t1",
		Lines: []Line{{ID: "l1", Index: 1}},
	}

	segs := tr.ResolveSegments(&duration)
	require.Len(t, segs, 1)
	require.NotNil(t, segs[0].StartTime)
	require.NotNil(t, segs[0].EndTime)
	assert.Equal(t, 0.0, *segs[0].StartTime)
	assert.Equal(t, 90.0, *segs[0].EndTime)
}

func TestResolveSegments_ExplicitPassThrough(t *testing.T) {
	s := 10.0
	tr := &Transcript{
		Segments: []Segment{{ID: "s1", Index: 0, StartTime: &s}},
	}
	segs := tr.ResolveSegments(nil)
	require.Len(t, segs, 1)
	assert.Equal(t, "s1", segs[0].ID)
}

func TestLinesForSegment(t *testing.T) {
	tr := &Transcript{
		Lines: []Line{
			{ID: "l1", SegmentID: "s1"},
			{ID: "l2", SegmentID: "s2"},
			{ID: "l3", SegmentID: "s1"},
		},
	}

	got := tr.LinesForSegment("s1")
	require.Len(t, got, 2)
	assert.Equal(t, "l1", got[0].ID)
	assert.Equal(t, "l3", got[1].ID)

	assert.Len(t, tr.LinesForSegment(""), 3)
}
