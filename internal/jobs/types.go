package jobs

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   JobPayload
}

// JobPayload names the files one import consumes: the lesson recording and
// its sibling transcript file.
type JobPayload struct {
	MediaFile      string `json:"media_file"`
	TranscriptFile string `json:"transcript_file"`
}

// DefaultDedupeKey collapses repeat submissions of the same file pair while
// one import for it is still in flight.
func (p JobPayload) DefaultDedupeKey() string {
	return p.MediaFile + "|" + p.TranscriptFile
}

// ImportJob is one transcript-import work item. Jobs survive restarts
// through the Store; a job found running at startup is requeued.
type ImportJob struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	DedupeKey string     `json:"dedupe_key"`
	Payload   JobPayload `json:"payload"`
	Status    Status     `json:"status"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
