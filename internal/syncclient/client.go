package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lessonlens/lessonlens/internal/annotation"
	"github.com/lessonlens/lessonlens/internal/session"
	"github.com/lessonlens/lessonlens/internal/transcript"
	"golang.org/x/text/language"
)

// ErrNotFound reports a 404 from the review API.
var ErrNotFound = errors.New("not found")

// Client talks JSON to the review API. It implements session.Loader directly;
// ForTranscript binds it to one transcript for annotation writes.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Cue fields arrive as strings, numbers or null depending on the producer;
// they are parsed into typed optionals here, at the boundary.
type wireLine struct {
	ID        string `json:"id"`
	Line      int    `json:"line"`
	Speaker   string `json:"speaker"`
	Utterance string `json:"utterance"`
	InCue     any    `json:"in_cue"`
	OutCue    any    `json:"out_cue"`
	SegmentID string `json:"segment_id"`
	Flagged   bool   `json:"flagged"`
}

type wireSegment struct {
	ID        string `json:"id"`
	Index     int    `json:"index"`
	Title     string `json:"title"`
	StartTime any    `json:"start_time"`
	EndTime   any    `json:"end_time"`
}

type wireTranscript struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Language string        `json:"language"`
	Lines    []wireLine    `json:"lines"`
	Segments []wireSegment `json:"segments"`
}

func (c *Client) FetchTranscript(ctx context.Context, transcriptID string) (*transcript.Transcript, error) {
	var wire wireTranscript
	if err := c.doJSON(ctx, http.MethodGet, "/api/transcripts/"+url.PathEscape(transcriptID), nil, &wire); err != nil {
		return nil, err
	}

	langTag, err := language.Parse(wire.Language)
	if err != nil {
		langTag = language.Und
	}
	ret := &transcript.Transcript{
		ID:       wire.ID,
		Title:    wire.Title,
		Language: langTag,
		Lines:    make([]transcript.Line, 0, len(wire.Lines)),
		Segments: make([]transcript.Segment, 0, len(wire.Segments)),
	}
	for _, line := range wire.Lines {
		ret.Lines = append(ret.Lines, transcript.Line{
			ID:        line.ID,
			Index:     line.Line,
			Speaker:   line.Speaker,
			Utterance: line.Utterance,
			InCue:     transcript.ParseCue(line.InCue),
			OutCue:    transcript.ParseCue(line.OutCue),
			SegmentID: line.SegmentID,
			Flagged:   line.Flagged,
		})
	}
	for _, seg := range wire.Segments {
		ret.Segments = append(ret.Segments, transcript.Segment{
			ID:        seg.ID,
			Index:     seg.Index,
			Title:     seg.Title,
			StartTime: transcript.ParseCue(seg.StartTime),
			EndTime:   transcript.ParseCue(seg.EndTime),
		})
	}
	return ret, nil
}

func (c *Client) FetchNotes(ctx context.Context, transcriptID string) ([]annotation.Note, []annotation.Assignment, error) {
	var wire struct {
		Notes       []annotation.Note   `json:"notes"`
		Assignments map[string][]string `json:"assignments"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/transcripts/"+url.PathEscape(transcriptID)+"/notes", nil, &wire); err != nil {
		return nil, nil, err
	}

	edges := make([]annotation.Assignment, 0)
	for noteID, lineIDs := range wire.Assignments {
		for _, lineID := range lineIDs {
			edges = append(edges, annotation.Assignment{NoteID: noteID, LineID: lineID})
		}
	}
	return wire.Notes, edges, nil
}

func (c *Client) FetchVideoSource(ctx context.Context, transcriptID string) (session.VideoSource, bool, error) {
	var wire session.VideoSource
	err := c.doJSON(ctx, http.MethodGet, "/api/transcripts/"+url.PathEscape(transcriptID)+"/video", nil, &wire)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// no video is a normal state, not a section failure
			return session.VideoSource{}, false, nil
		}
		return session.VideoSource{}, false, err
	}
	return wire, true, nil
}

func (c *Client) FetchMaterials(ctx context.Context, transcriptID string) ([]session.Material, error) {
	var wire struct {
		Materials []session.Material `json:"materials"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/transcripts/"+url.PathEscape(transcriptID)+"/materials", nil, &wire); err != nil {
		return nil, err
	}
	return wire.Materials, nil
}

// ForTranscript binds the client to one transcript so flag writes know their
// scope. The returned value satisfies annotation.SyncClient.
func (c *Client) ForTranscript(transcriptID string) *TranscriptScope {
	return &TranscriptScope{client: c, transcriptID: transcriptID}
}

type TranscriptScope struct {
	client       *Client
	transcriptID string
}

func (s *TranscriptScope) CreateNote(ctx context.Context, transcriptID string, draft annotation.NoteDraft) (annotation.Note, error) {
	var ret annotation.Note
	err := s.client.doJSON(ctx, http.MethodPost, "/api/transcripts/"+url.PathEscape(transcriptID)+"/notes", draft, &ret)
	return ret, err
}

func (s *TranscriptScope) UpdateNote(ctx context.Context, note annotation.Note) (annotation.Note, error) {
	payload := annotation.NoteDraft{
		Title:          note.Title,
		Evidence:       note.Evidence,
		Interpretation: note.Interpretation,
		Response:       note.Response,
	}
	var ret annotation.Note
	err := s.client.doJSON(ctx, http.MethodPut, "/api/notes/"+url.PathEscape(note.ID), payload, &ret)
	return ret, err
}

func (s *TranscriptScope) DeleteNote(ctx context.Context, noteID string) error {
	err := s.client.doJSON(ctx, http.MethodDelete, "/api/notes/"+url.PathEscape(noteID), nil, nil)
	if errors.Is(err, ErrNotFound) {
		// deleting an already deleted note settles to the same state
		return nil
	}
	return err
}

func (s *TranscriptScope) WriteAssignment(ctx context.Context, noteID string, lineIDs []string, assigned bool) error {
	payload := map[string]any{
		"line_ids": lineIDs,
		"assigned": assigned,
	}
	return s.client.doJSON(ctx, http.MethodPost, "/api/notes/"+url.PathEscape(noteID)+"/assignments", payload, nil)
}

func (s *TranscriptScope) WriteFlags(ctx context.Context, lineIDs []string, flagged bool) error {
	payload := map[string]any{
		"line_ids": lineIDs,
		"flagged":  flagged,
	}
	return s.client.doJSON(ctx, http.MethodPost, "/api/transcripts/"+url.PathEscape(s.transcriptID)+"/flags", payload, nil)
}
