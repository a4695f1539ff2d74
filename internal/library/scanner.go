package library

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

type scannerOptions struct {
	cacheTTL time.Duration
}

type Option func(*scannerOptions)

func WithCacheTTL(ttl time.Duration) Option {
	return func(o *scannerOptions) {
		o.cacheTTL = ttl
	}
}

type scanCache struct {
	version uint64
	scanned time.Time
	library *Library
}

// Scanner walks the configured lesson directories and pairs each video with a
// sibling transcript file. Results are cached for a short TTL; Invalidate or a
// source change forces the next Scan to hit the filesystem.
type Scanner struct {
	mu            sync.RWMutex
	sources       []SourceConfig
	cacheTTL      time.Duration
	cache         *scanCache
	configVersion uint64
}

func NewScanner(sources []SourceConfig, opts ...Option) *Scanner {
	options := scannerOptions{
		cacheTTL: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Scanner{
		sources:  sources,
		cacheTTL: options.cacheTTL,
	}
}

func (s *Scanner) Sources() []SourceConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]SourceConfig(nil), s.sources...)
}

func (s *Scanner) UpdateSources(sources []SourceConfig) {
	s.mu.Lock()
	s.sources = append([]SourceConfig(nil), sources...)
	s.cache = nil
	s.configVersion++
	s.mu.Unlock()
}

func (s *Scanner) Invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.configVersion++
	s.mu.Unlock()
}

func (s *Scanner) Scan(ctx context.Context) (*Library, error) {
	s.mu.RLock()
	version := s.configVersion
	cacheTTL := s.cacheTTL
	if s.cache != nil && s.cache.version == version && (cacheTTL <= 0 || time.Since(s.cache.scanned) < cacheTTL) {
		cached := cloneLibrary(s.cache.library)
		s.mu.RUnlock()
		return cached, nil
	}
	sources := append([]SourceConfig(nil), s.sources...)
	s.mu.RUnlock()

	ret := &Library{
		Sources: make([]Source, 0, len(sources)),
		Lessons: make([]Lesson, 0),
	}

	for _, sourceCfg := range sources {
		if sourceCfg.Path == "" {
			continue
		}
		if _, err := os.Stat(sourceCfg.Path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		source := Source{
			ID:   sourceCfg.ID,
			Name: sourceCfg.Name,
			Path: sourceCfg.Path,
		}

		mediaFiles, err := findMediaFiles(sourceCfg.Path)
		if err != nil {
			return nil, err
		}
		for _, mediaPath := range mediaFiles {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			baseName := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
			transcriptPath, err := findTranscript(filepath.Dir(mediaPath), baseName)
			if err != nil {
				return nil, err
			}

			lesson := Lesson{
				ID:             mediaPath,
				SourceID:       sourceCfg.ID,
				Name:           cleanLessonName(baseName),
				MediaPath:      mediaPath,
				TranscriptPath: transcriptPath,
				HasTranscript:  transcriptPath != "",
			}
			ret.Lessons = append(ret.Lessons, lesson)
			source.LessonCount++
		}

		ret.Sources = append(ret.Sources, source)
	}

	s.mu.Lock()
	if s.configVersion == version {
		s.cache = &scanCache{
			version: version,
			scanned: time.Now(),
			library: cloneLibrary(ret),
		}
	}
	s.mu.Unlock()

	return ret, nil
}

var transcriptExts = []string{".srt", ".vtt"}

var mediaExts = []string{
	".mkv", ".mp4", ".m4v", ".mov", ".avi", ".wmv", ".webm",
	".ogv", ".3gp", ".ts", ".m2ts", ".mpg", ".mpeg",
}

func findMediaFiles(root string) ([]string, error) {
	ret := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if slices.Contains(mediaExts, ext) {
			ret = append(ret, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ret)
	return ret, nil
}

// findTranscript looks for a transcript file next to the media file. An exact
// stem match wins; otherwise any "stem.<suffix>" candidate is accepted so
// "lesson.en.srt" still pairs with "lesson.mp4".
func findTranscript(dir string, mediaBase string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	candidates := make([]string, 0, 2)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !slices.Contains(transcriptExts, ext) {
			continue
		}
		stem := strings.TrimSuffix(name, ext)
		if stem == mediaBase {
			return filepath.Join(dir, name), nil
		}
		if transcriptMatchesMediaBase(stem, mediaBase) {
			candidates = append(candidates, filepath.Join(dir, name))
		}
	}
	if len(candidates) == 0 {
		return "", nil
	}
	sort.Strings(candidates)
	return candidates[0], nil
}

func transcriptMatchesMediaBase(stem, mediaBase string) bool {
	if !strings.HasPrefix(stem, mediaBase) || len(stem) <= len(mediaBase) {
		return false
	}
	switch stem[len(mediaBase)] {
	case '.', '_', '-', ' ':
		return true
	default:
		return false
	}
}

// cleanLessonName turns a recording filename into a display title:
// "algebra_2024-03-12.period3" becomes "algebra 2024-03-12 period3".
func cleanLessonName(basename string) string {
	name := strings.NewReplacer("_", " ", ".", " ").Replace(basename)
	return strings.Join(strings.Fields(name), " ")
}

func cloneLibrary(src *Library) *Library {
	if src == nil {
		return nil
	}

	dst := &Library{
		Sources: make([]Source, len(src.Sources)),
		Lessons: make([]Lesson, len(src.Lessons)),
	}
	copy(dst.Sources, src.Sources)
	copy(dst.Lessons, src.Lessons)
	return dst
}
