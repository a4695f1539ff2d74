package playback

import (
	"fmt"

	"github.com/lessonlens/lessonlens/internal/transcript"
)

// Transport tracks the active segment of a loaded transcript and folds the
// video element's periodic time reports into segment-relative state. The
// video clock stays the single source of truth; the transport never runs a
// timer of its own.
type Transport struct {
	tr            *transcript.Transcript
	segments      []transcript.Segment
	videoDuration *float64

	active     int
	clock      Clock
	position   float64
	everPlayed bool
}

func NewTransport(tr *transcript.Transcript, videoDuration *float64) *Transport {
	p := &Transport{
		tr:            tr,
		segments:      tr.ResolveSegments(videoDuration),
		videoDuration: videoDuration,
	}
	p.applySegment(0)
	return p
}

func (p *Transport) applySegment(i int) {
	p.active = i
	seg := p.segments[i]
	segID := ""
	if len(p.tr.Segments) > 0 {
		segID = seg.ID
	}
	p.clock = ResolveClock(seg, p.tr.LinesForSegment(segID), p.videoDuration)
	p.position = p.clock.Start
	p.everPlayed = false
}

func (p *Transport) Clock() Clock {
	return p.clock
}

func (p *Transport) Segments() []transcript.Segment {
	return p.segments
}

func (p *Transport) ActiveSegment() transcript.Segment {
	return p.segments[p.active]
}

func (p *Transport) ActiveIndex() int {
	return p.active
}

// SwitchTo makes segment i active: playback resets to the new segment's
// start, progress display to zero, and the first-play overlay reappears.
func (p *Transport) SwitchTo(i int) error {
	if i < 0 || i >= len(p.segments) {
		return fmt.Errorf("segment index %d out of range", i)
	}
	p.applySegment(i)
	return nil
}

// OnTimeUpdate folds one "timeupdate" report from the video element.
// Reports are idempotent position samples: each one is re-clamped and never
// assumed monotonic across a user seek. pause is true when the clamped time
// sits at the segment's end boundary, meaning the video must stop advancing.
func (p *Transport) OnTimeUpdate(t float64) (clamped float64, pause bool) {
	clamped = p.clock.Clamp(t)
	p.position = clamped
	return clamped, p.clock.AtEnd(clamped)
}

// Seek clamps the requested time into the playable window and returns the
// position the video element should be set to.
func (p *Transport) Seek(t float64) float64 {
	p.position = p.clock.Clamp(t)
	return p.position
}

// Progress is the segment-relative position for the progress display.
func (p *Transport) Progress() float64 {
	return p.clock.RelativeTime(p.position)
}

// MarkPlayed records that playback has started at least once in the active
// segment; the first-play overlay keys off this.
func (p *Transport) MarkPlayed() {
	p.everPlayed = true
}

func (p *Transport) HasEverPlayed() bool {
	return p.everPlayed
}
