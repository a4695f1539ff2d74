package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/lessonlens/lessonlens/internal/config"
	"github.com/lessonlens/lessonlens/internal/jobs"
	"github.com/lessonlens/lessonlens/internal/library"
	"github.com/lessonlens/lessonlens/internal/persistence"
	"github.com/lessonlens/lessonlens/internal/transcript"
	"github.com/lessonlens/lessonlens/pkg/icron"
)

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	lib, err := s.scanner.Scan(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, lib.Sources)
}

type lessonResponse struct {
	library.Lesson
	TranscriptID string      `json:"transcript_id,omitempty"`
	Imported     bool        `json:"imported"`
	InProgress   bool        `json:"in_progress"`
	JobStatus    jobs.Status `json:"job_status,omitempty"`
}

func (s *Server) handleListLessons(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	lib, err := s.scanner.Scan(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	transcripts, err := s.store.ListTranscripts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	transcriptByMedia := make(map[string]string, len(transcripts))
	for _, item := range transcripts {
		transcriptByMedia[item.MediaPath] = item.ID
	}

	activeJobsByMedia := inProgressJobsByMedia(s.queue.List())
	ret := make([]lessonResponse, 0, len(lib.Lessons))
	for _, lesson := range lib.Lessons {
		item := lessonResponse{
			Lesson: lesson,
		}
		if id, ok := transcriptByMedia[lesson.MediaPath]; ok {
			item.TranscriptID = id
			item.Imported = true
		}
		if job, ok := activeJobsByMedia[lesson.MediaPath]; ok {
			item.InProgress = true
			item.JobStatus = job.Status
		}
		ret = append(ret, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lessons": ret,
	})
}

func inProgressJobsByMedia(jobList []*jobs.ImportJob) map[string]*jobs.ImportJob {
	ret := make(map[string]*jobs.ImportJob)
	for _, job := range jobList {
		if job == nil || job.Payload.MediaFile == "" {
			continue
		}
		if job.Status != jobs.StatusPending && job.Status != jobs.StatusRunning {
			continue
		}
		existing, ok := ret[job.Payload.MediaFile]
		if !ok || preferInProgressJob(job, existing) {
			ret[job.Payload.MediaFile] = job
		}
	}
	return ret
}

func preferInProgressJob(next, current *jobs.ImportJob) bool {
	nextRank := inProgressRank(next.Status)
	currentRank := inProgressRank(current.Status)
	if nextRank != currentRank {
		return nextRank > currentRank
	}
	return next.UpdatedAt.After(current.UpdatedAt)
}

func inProgressRank(status jobs.Status) int {
	switch status {
	case jobs.StatusRunning:
		return 2
	case jobs.StatusPending:
		return 1
	default:
		return 0
	}
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.scanner.Invalidate()
	if s.rescan != nil {
		go s.rescan()
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"ok": true,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := map[string]any{
		"jobs": s.queue.Counts(),
	}
	if s.scanCronExpr != nil {
		if info, err := icron.GetTriggerInfo(s.scanCronExpr(), time.Now()); err == nil {
			resp["schedule"] = info
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type enqueueJobRequest struct {
	Source         string `json:"source"`
	DedupeKey      string `json:"dedupe_key"`
	MediaPath      string `json:"media_path"`
	TranscriptPath string `json:"transcript_path"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.queue.List())
	case http.MethodPost:
		var req enqueueJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if req.Source == "" {
			req.Source = "manual"
		}
		if req.MediaPath == "" {
			writeError(w, http.StatusBadRequest, "media_path is required")
			return
		}
		if req.TranscriptPath == "" {
			writeError(w, http.StatusBadRequest, "transcript_path is required")
			return
		}
		payload := jobs.JobPayload{
			MediaFile:      req.MediaPath,
			TranscriptFile: req.TranscriptPath,
		}
		if req.DedupeKey == "" {
			req.DedupeKey = payload.DefaultDedupeKey()
		}

		job, created := s.queue.Enqueue(jobs.EnqueueRequest{
			Source:    req.Source,
			DedupeKey: req.DedupeKey,
			Payload:   payload,
		})
		code := http.StatusCreated
		if !created {
			code = http.StatusOK
		}
		writeJSON(w, code, map[string]any{
			"created": created,
			"job":     job,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// Cue fields go over the wire as strings or null; the reviewing client parses
// them back into seconds at its boundary.
type lineDTO struct {
	ID        string  `json:"id"`
	Line      int     `json:"line"`
	Speaker   string  `json:"speaker"`
	Utterance string  `json:"utterance"`
	InCue     *string `json:"in_cue"`
	OutCue    *string `json:"out_cue"`
	SegmentID string  `json:"segment_id"`
	Flagged   bool    `json:"flagged"`
}

type segmentDTO struct {
	ID        string  `json:"id"`
	Index     int     `json:"index"`
	Title     string  `json:"title"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
}

type transcriptDTO struct {
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	Language string       `json:"language"`
	Lines    []lineDTO    `json:"lines"`
	Segments []segmentDTO `json:"segments"`
}

type noteDTO struct {
	ID             string `json:"id"`
	Number         int    `json:"number"`
	Title          string `json:"title"`
	Evidence       string `json:"evidence"`
	Interpretation string `json:"interpretation"`
	Response       string `json:"response"`
}

func toNoteDTO(rec persistence.NoteRecord) noteDTO {
	return noteDTO{
		ID:             rec.ID,
		Number:         rec.Number,
		Title:          rec.Title,
		Evidence:       rec.Evidence,
		Interpretation: rec.Interpretation,
		Response:       rec.Response,
	}
}

func (s *Server) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/transcripts/")
	rest = strings.TrimSuffix(rest, "/")
	id, sub, _ := strings.Cut(rest, "/")
	if decoded, err := url.PathUnescape(id); err == nil {
		id = decoded
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing transcript id")
		return
	}

	switch sub {
	case "":
		s.handleGetTranscript(w, r, id)
	case "video":
		s.handleGetVideo(w, r, id)
	case "notes":
		s.handleTranscriptNotes(w, r, id)
	case "flags":
		s.handleWriteFlags(w, r, id)
	case "materials":
		s.handleListMaterials(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rec, ok, err := s.store.GetTranscript(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "transcript not found")
		return
	}

	resp := transcriptDTO{
		ID:       rec.ID,
		Title:    rec.Title,
		Language: rec.Language,
		Lines:    make([]lineDTO, 0, len(rec.Lines)),
		Segments: make([]segmentDTO, 0, len(rec.Segments)),
	}
	for _, line := range rec.Lines {
		resp.Lines = append(resp.Lines, lineDTO{
			ID:        line.ID,
			Line:      line.Index,
			Speaker:   line.Speaker,
			Utterance: line.Utterance,
			InCue:     transcript.FormatCue(line.InCue),
			OutCue:    transcript.FormatCue(line.OutCue),
			SegmentID: line.SegmentID,
			Flagged:   line.Flagged,
		})
	}
	for _, seg := range rec.Segments {
		resp.Segments = append(resp.Segments, segmentDTO{
			ID:        seg.ID,
			Index:     seg.Index,
			Title:     seg.Title,
			StartTime: transcript.FormatCue(seg.StartTime),
			EndTime:   transcript.FormatCue(seg.EndTime),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rec, ok, err := s.store.GetTranscript(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "transcript not found")
		return
	}
	if rec.MediaPath == "" {
		// a lesson without video is still reviewable
		writeError(w, http.StatusNotFound, "no video for transcript")
		return
	}
	if _, err := os.Stat(rec.MediaPath); err != nil {
		writeError(w, http.StatusNotFound, "no video for transcript")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"url":       "/media/" + url.PathEscape(id),
		"mime_type": rec.MimeType,
		"duration":  rec.Duration,
	})
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/media/")
	if decoded, err := url.PathUnescape(id); err == nil {
		id = decoded
	}
	rec, ok, err := s.store.GetTranscript(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok || rec.MediaPath == "" {
		http.NotFound(w, r)
		return
	}
	if rec.MimeType != "" {
		w.Header().Set("Content-Type", rec.MimeType)
	}
	http.ServeFile(w, r, rec.MediaPath)
}

type noteDraftRequest struct {
	Title          string `json:"title"`
	Evidence       string `json:"evidence"`
	Interpretation string `json:"interpretation"`
	Response       string `json:"response"`
}

func (req noteDraftRequest) record() persistence.NoteRecord {
	return persistence.NoteRecord{
		Title:          req.Title,
		Evidence:       req.Evidence,
		Interpretation: req.Interpretation,
		Response:       req.Response,
	}
}

func (s *Server) handleTranscriptNotes(w http.ResponseWriter, r *http.Request, transcriptID string) {
	switch r.Method {
	case http.MethodGet:
		notes, err := s.store.ListNotes(r.Context(), transcriptID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		assignments, err := s.store.ListAssignments(r.Context(), transcriptID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		ret := make([]noteDTO, 0, len(notes))
		for _, rec := range notes {
			ret = append(ret, toNoteDTO(rec))
		}
		if assignments == nil {
			assignments = make(map[string][]string)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"notes":       ret,
			"assignments": assignments,
		})
	case http.MethodPost:
		var req noteDraftRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		rec, err := s.store.CreateNote(r.Context(), transcriptID, req.record())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, toNoteDTO(rec))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/notes/")
	rest = strings.TrimSuffix(rest, "/")
	id, sub, _ := strings.Cut(rest, "/")
	if decoded, err := url.PathUnescape(id); err == nil {
		id = decoded
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing note id")
		return
	}

	switch sub {
	case "":
		s.handleNoteByID(w, r, id)
	case "assignments":
		s.handleWriteAssignments(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleNoteByID(w http.ResponseWriter, r *http.Request, noteID string) {
	switch r.Method {
	case http.MethodPut:
		var req noteDraftRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		rec, ok, err := s.store.UpdateNote(r.Context(), noteID, req.record())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "note not found")
			return
		}
		writeJSON(w, http.StatusOK, toNoteDTO(rec))
	case http.MethodDelete:
		if err := s.store.DeleteNote(r.Context(), noteID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type assignmentRequest struct {
	LineIDs  []string `json:"line_ids"`
	Assigned bool     `json:"assigned"`
}

func (s *Server) handleWriteAssignments(w http.ResponseWriter, r *http.Request, noteID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req assignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if len(req.LineIDs) == 0 {
		writeError(w, http.StatusBadRequest, "line_ids is required")
		return
	}
	// an unknown note must not accumulate orphan edges
	if _, ok, err := s.store.GetNote(r.Context(), noteID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	} else if !ok {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	if err := s.store.WriteAssignment(r.Context(), noteID, req.LineIDs, req.Assigned); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type flagsRequest struct {
	LineIDs []string `json:"line_ids"`
	Flagged bool     `json:"flagged"`
}

func (s *Server) handleWriteFlags(w http.ResponseWriter, r *http.Request, transcriptID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req flagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if _, ok, err := s.store.GetTranscript(r.Context(), transcriptID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	} else if !ok {
		writeError(w, http.StatusNotFound, "transcript not found")
		return
	}
	if len(req.LineIDs) == 0 {
		writeError(w, http.StatusBadRequest, "line_ids is required")
		return
	}
	if err := s.store.WriteFlags(r.Context(), req.LineIDs, req.Flagged); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMaterials(w http.ResponseWriter, r *http.Request, transcriptID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	items, err := s.store.ListMaterials(r.Context(), transcriptID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ret := make([]map[string]any, 0, len(items))
	for _, item := range items {
		ret = append(ret, map[string]any{
			"id":    item.ID,
			"title": item.Title,
			"url":   item.URL,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"materials": ret,
	})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s.apply != nil {
			if err := s.apply(saved); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
