package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/lessonlens/lessonlens/internal/config"
	"github.com/lessonlens/lessonlens/internal/jobs"
	"github.com/lessonlens/lessonlens/internal/library"
	"github.com/lessonlens/lessonlens/internal/persistence"
)

// dataStore is the slice of the persistence layer the handlers use.
type dataStore interface {
	GetTranscript(ctx context.Context, id string) (*persistence.TranscriptRecord, bool, error)
	ListTranscripts(ctx context.Context) ([]persistence.TranscriptSummary, error)
	ListNotes(ctx context.Context, transcriptID string) ([]persistence.NoteRecord, error)
	GetNote(ctx context.Context, noteID string) (persistence.NoteRecord, bool, error)
	CreateNote(ctx context.Context, transcriptID string, draft persistence.NoteRecord) (persistence.NoteRecord, error)
	UpdateNote(ctx context.Context, noteID string, draft persistence.NoteRecord) (persistence.NoteRecord, bool, error)
	DeleteNote(ctx context.Context, noteID string) error
	ListAssignments(ctx context.Context, transcriptID string) (map[string][]string, error)
	WriteAssignment(ctx context.Context, noteID string, lineIDs []string, assigned bool) error
	WriteFlags(ctx context.Context, lineIDs []string, flagged bool) error
	ListMaterials(ctx context.Context, transcriptID string) ([]persistence.MaterialRecord, error)
}

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

type Server struct {
	scanner  *library.Scanner
	queue    *jobs.Queue
	store    dataStore
	settings runtimeSettingsStore
	apply    runtimeSettingsApplier
	rescan   func()

	scanCronExpr func() string

	uiEnabled   bool
	uiStaticDir string

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

// WithRescanTrigger installs the function POST /api/scan fires after it
// invalidates the scanner cache.
func WithRescanTrigger(rescan func()) Option {
	return func(s *Server) {
		s.rescan = rescan
	}
}

// WithScanCronExpr supplies the current rescan schedule for /api/status.
func WithScanCronExpr(expr func() string) Option {
	return func(s *Server) {
		s.scanCronExpr = expr
	}
}

func NewServer(scanner *library.Scanner, queue *jobs.Queue, store dataStore, opts ...Option) *Server {
	s := &Server{
		scanner:   scanner,
		queue:     queue,
		store:     store,
		uiEnabled: false,
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/library/sources", s.handleListSources)
	s.mux.HandleFunc("/api/library/lessons", s.handleListLessons)
	s.mux.HandleFunc("/api/scan", s.handleScan)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/transcripts/", s.handleTranscripts)
	s.mux.HandleFunc("/api/notes/", s.handleNotes)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/media/", s.handleMedia)
	s.mux.HandleFunc("/", s.handleStatic)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if !s.uiEnabled || s.uiStaticDir == "" {
		http.NotFound(w, r)
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		http.ServeFile(w, r, indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, rel)
	if _, err := os.Stat(filePath); err != nil {
		// SPA fallback: non-existing static file path returns index
		http.ServeFile(w, r, indexPath)
		return
	}
	http.ServeFile(w, r, filePath)
}
