package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lessonlens/lessonlens/internal/jobs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	// Bootstrap schema_migrations table so we can track applied versions.
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

// ---- transcripts ----

// SaveTranscript upserts the transcript row and replaces its lines and
// segments. The note_seq counter and existing notes are left untouched so a
// re-import never renumbers annotations.
func (s *SQLiteStore) SaveTranscript(ctx context.Context, rec *TranscriptRecord) error {
	if rec == nil {
		return fmt.Errorf("transcript is nil")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	createdAt := rec.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	if _, err = tx.ExecContext(
		ctx,
		`INSERT INTO transcripts (
			id, title, language, media_path, transcript_path, duration, mime_type, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title,
			language=excluded.language,
			media_path=excluded.media_path,
			transcript_path=excluded.transcript_path,
			duration=excluded.duration,
			mime_type=excluded.mime_type,
			updated_at=excluded.updated_at`,
		rec.ID,
		rec.Title,
		rec.Language,
		rec.MediaPath,
		rec.TranscriptPath,
		nullFloat(rec.Duration),
		rec.MimeType,
		createdAt,
		now,
	); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM transcript_lines WHERE transcript_id = ?`, rec.ID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM segments WHERE transcript_id = ?`, rec.ID); err != nil {
		return err
	}

	for _, line := range rec.Lines {
		if _, err = tx.ExecContext(
			ctx,
			`INSERT INTO transcript_lines (id, transcript_id, idx, speaker, utterance, in_cue, out_cue, segment_id, flagged)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			line.ID,
			rec.ID,
			line.Index,
			line.Speaker,
			line.Utterance,
			nullFloat(line.InCue),
			nullFloat(line.OutCue),
			line.SegmentID,
			boolToInt(line.Flagged),
		); err != nil {
			return err
		}
	}
	for _, seg := range rec.Segments {
		if _, err = tx.ExecContext(
			ctx,
			`INSERT INTO segments (id, transcript_id, idx, title, start_time, end_time)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			seg.ID,
			rec.ID,
			seg.Index,
			seg.Title,
			nullFloat(seg.StartTime),
			nullFloat(seg.EndTime),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetTranscript(ctx context.Context, id string) (*TranscriptRecord, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, title, language, media_path, transcript_path, duration, mime_type, created_at, updated_at
		 FROM transcripts
		 WHERE id = ?`,
		id,
	)

	var rec TranscriptRecord
	var duration sql.NullFloat64
	if err := row.Scan(
		&rec.ID,
		&rec.Title,
		&rec.Language,
		&rec.MediaPath,
		&rec.TranscriptPath,
		&duration,
		&rec.MimeType,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	rec.Duration = floatPtr(duration)

	lines, err := s.loadLines(ctx, id)
	if err != nil {
		return nil, false, err
	}
	rec.Lines = lines

	segments, err := s.loadSegments(ctx, id)
	if err != nil {
		return nil, false, err
	}
	rec.Segments = segments
	return &rec, true, nil
}

func (s *SQLiteStore) loadLines(ctx context.Context, transcriptID string) ([]LineRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, idx, speaker, utterance, in_cue, out_cue, segment_id, flagged
		 FROM transcript_lines
		 WHERE transcript_id = ?
		 ORDER BY idx ASC`,
		transcriptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]LineRecord, 0)
	for rows.Next() {
		var line LineRecord
		var inCue, outCue sql.NullFloat64
		var flagged int
		if err := rows.Scan(&line.ID, &line.Index, &line.Speaker, &line.Utterance, &inCue, &outCue, &line.SegmentID, &flagged); err != nil {
			return nil, err
		}
		line.InCue = floatPtr(inCue)
		line.OutCue = floatPtr(outCue)
		line.Flagged = flagged == 1
		ret = append(ret, line)
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) loadSegments(ctx context.Context, transcriptID string) ([]SegmentRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, idx, title, start_time, end_time
		 FROM segments
		 WHERE transcript_id = ?
		 ORDER BY idx ASC`,
		transcriptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]SegmentRecord, 0)
	for rows.Next() {
		var seg SegmentRecord
		var start, end sql.NullFloat64
		if err := rows.Scan(&seg.ID, &seg.Index, &seg.Title, &start, &end); err != nil {
			return nil, err
		}
		seg.StartTime = floatPtr(start)
		seg.EndTime = floatPtr(end)
		ret = append(ret, seg)
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) ListTranscripts(ctx context.Context) ([]TranscriptSummary, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT t.id, t.title, t.language, t.media_path, t.duration, t.updated_at,
			(SELECT COUNT(*) FROM transcript_lines l WHERE l.transcript_id = t.id)
		 FROM transcripts t
		 ORDER BY t.title ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]TranscriptSummary, 0)
	for rows.Next() {
		var item TranscriptSummary
		var duration sql.NullFloat64
		if err := rows.Scan(&item.ID, &item.Title, &item.Language, &item.MediaPath, &duration, &item.UpdatedAt, &item.LineCount); err != nil {
			return nil, err
		}
		item.Duration = floatPtr(duration)
		ret = append(ret, item)
	}
	return ret, rows.Err()
}

// LookupTranscriptByMedia finds an existing transcript imported from the given
// media file, so a rescan updates it in place instead of duplicating it.
func (s *SQLiteStore) LookupTranscriptByMedia(ctx context.Context, mediaPath string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id FROM transcripts WHERE media_path = ?`, mediaPath)
	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return id, true, nil
}

// ---- notes ----

func (s *SQLiteStore) ListNotes(ctx context.Context, transcriptID string) ([]NoteRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, transcript_id, number, title, evidence, interpretation, response, created_at, updated_at
		 FROM notes
		 WHERE transcript_id = ?
		 ORDER BY number ASC`,
		transcriptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]NoteRecord, 0)
	for rows.Next() {
		var rec NoteRecord
		if err := rows.Scan(&rec.ID, &rec.TranscriptID, &rec.Number, &rec.Title, &rec.Evidence, &rec.Interpretation, &rec.Response, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		ret = append(ret, rec)
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) GetNote(ctx context.Context, noteID string) (NoteRecord, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, transcript_id, number, title, evidence, interpretation, response, created_at, updated_at
		 FROM notes WHERE id = ?`,
		noteID,
	)
	var rec NoteRecord
	if err := row.Scan(&rec.ID, &rec.TranscriptID, &rec.Number, &rec.Title, &rec.Evidence, &rec.Interpretation, &rec.Response, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return NoteRecord{}, false, nil
		}
		return NoteRecord{}, false, err
	}
	return rec, true, nil
}

// CreateNote assigns the next number from the transcript's note_seq counter.
// The counter only ever moves forward: deleting a note never frees its number.
func (s *SQLiteStore) CreateNote(ctx context.Context, transcriptID string, draft NoteRecord) (NoteRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NoteRecord{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var res sql.Result
	res, err = tx.ExecContext(ctx, `UPDATE transcripts SET note_seq = note_seq + 1 WHERE id = ?`, transcriptID)
	if err != nil {
		return NoteRecord{}, err
	}
	var affected int64
	affected, err = res.RowsAffected()
	if err != nil {
		return NoteRecord{}, err
	}
	if affected == 0 {
		err = fmt.Errorf("transcript %s not found", transcriptID)
		return NoteRecord{}, err
	}
	var number int
	if err = tx.QueryRowContext(ctx, `SELECT note_seq FROM transcripts WHERE id = ?`, transcriptID).Scan(&number); err != nil {
		return NoteRecord{}, err
	}

	now := time.Now().UTC()
	rec := NoteRecord{
		ID:             uuid.NewString(),
		TranscriptID:   transcriptID,
		Number:         number,
		Title:          draft.Title,
		Evidence:       draft.Evidence,
		Interpretation: draft.Interpretation,
		Response:       draft.Response,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err = tx.ExecContext(
		ctx,
		`INSERT INTO notes (id, transcript_id, number, title, evidence, interpretation, response, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.TranscriptID,
		rec.Number,
		rec.Title,
		rec.Evidence,
		rec.Interpretation,
		rec.Response,
		rec.CreatedAt,
		rec.UpdatedAt,
	); err != nil {
		return NoteRecord{}, err
	}
	if err = tx.Commit(); err != nil {
		return NoteRecord{}, err
	}
	return rec, nil
}

func (s *SQLiteStore) UpdateNote(ctx context.Context, noteID string, draft NoteRecord) (NoteRecord, bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE notes SET title = ?, evidence = ?, interpretation = ?, response = ?, updated_at = ?
		 WHERE id = ?`,
		draft.Title,
		draft.Evidence,
		draft.Interpretation,
		draft.Response,
		now,
		noteID,
	)
	if err != nil {
		return NoteRecord{}, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return NoteRecord{}, false, err
	}
	if affected == 0 {
		return NoteRecord{}, false, nil
	}

	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, transcript_id, number, title, evidence, interpretation, response, created_at, updated_at
		 FROM notes WHERE id = ?`,
		noteID,
	)
	var rec NoteRecord
	if err := row.Scan(&rec.ID, &rec.TranscriptID, &rec.Number, &rec.Title, &rec.Evidence, &rec.Interpretation, &rec.Response, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return NoteRecord{}, false, err
	}
	return rec, true, nil
}

// DeleteNote removes the note and its line assignments. Deleting an unknown
// note is not an error.
func (s *SQLiteStore) DeleteNote(ctx context.Context, noteID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM note_assignments WHERE note_id = ?`, noteID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, noteID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListAssignments(ctx context.Context, transcriptID string) (map[string][]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT a.note_id, a.line_id
		 FROM note_assignments a
		 JOIN notes n ON n.id = a.note_id
		 WHERE n.transcript_id = ?
		 ORDER BY a.note_id, a.line_id`,
		transcriptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make(map[string][]string)
	for rows.Next() {
		var noteID, lineID string
		if err := rows.Scan(&noteID, &lineID); err != nil {
			return nil, err
		}
		ret[noteID] = append(ret[noteID], lineID)
	}
	return ret, rows.Err()
}

// WriteAssignment sets or clears the edge between one note and a set of lines.
// Setting an edge that already exists is a no-op, as is clearing a missing one.
func (s *SQLiteStore) WriteAssignment(ctx context.Context, noteID string, lineIDs []string, assigned bool) error {
	if len(lineIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, lineID := range lineIDs {
		if assigned {
			_, err = tx.ExecContext(
				ctx,
				`INSERT INTO note_assignments (note_id, line_id) VALUES (?, ?)
				 ON CONFLICT(note_id, line_id) DO NOTHING`,
				noteID,
				lineID,
			)
		} else {
			_, err = tx.ExecContext(ctx, `DELETE FROM note_assignments WHERE note_id = ? AND line_id = ?`, noteID, lineID)
		}
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) WriteFlags(ctx context.Context, lineIDs []string, flagged bool) error {
	if len(lineIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, lineID := range lineIDs {
		if _, err = tx.ExecContext(ctx, `UPDATE transcript_lines SET flagged = ? WHERE id = ?`, boolToInt(flagged), lineID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ---- materials ----

func (s *SQLiteStore) ReplaceMaterials(ctx context.Context, transcriptID string, items []MaterialRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM materials WHERE transcript_id = ?`, transcriptID); err != nil {
		return err
	}
	for _, item := range items {
		id := item.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err = tx.ExecContext(
			ctx,
			`INSERT INTO materials (id, transcript_id, title, url) VALUES (?, ?, ?, ?)`,
			id,
			transcriptID,
			item.Title,
			item.URL,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListMaterials(ctx context.Context, transcriptID string) ([]MaterialRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, transcript_id, title, url FROM materials WHERE transcript_id = ? ORDER BY title ASC`,
		transcriptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]MaterialRecord, 0)
	for rows.Next() {
		var item MaterialRecord
		if err := rows.Scan(&item.ID, &item.TranscriptID, &item.Title, &item.URL); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	return ret, rows.Err()
}

// ---- jobs ----

func (s *SQLiteStore) LoadJobs(ctx context.Context) ([]*jobs.ImportJob, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, source, dedupe_key, media_file, transcript_file, status, error, created_at, updated_at
		 FROM jobs
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.ImportJob, 0)
	for rows.Next() {
		var item jobs.ImportJob
		var status string
		if err := rows.Scan(
			&item.ID,
			&item.Source,
			&item.DedupeKey,
			&item.Payload.MediaFile,
			&item.Payload.TranscriptFile,
			&status,
			&item.Error,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		item.Status = jobs.Status(status)
		ret = append(ret, &item)
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) UpsertJob(ctx context.Context, job *jobs.ImportJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
			id, source, dedupe_key, media_file, transcript_file, status, error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source=excluded.source,
			dedupe_key=excluded.dedupe_key,
			media_file=excluded.media_file,
			transcript_file=excluded.transcript_file,
			status=excluded.status,
			error=excluded.error,
			updated_at=excluded.updated_at`,
		job.ID,
		job.Source,
		job.DedupeKey,
		job.Payload.MediaFile,
		job.Payload.TranscriptFile,
		string(job.Status),
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	return err
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
