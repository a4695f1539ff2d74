package library

import "path/filepath"

// SourceConfig is a configured lesson directory to scan.
type SourceConfig struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

type Source struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	LessonCount int    `json:"lesson_count"`
}

// Lesson is one recorded session found on disk: a video file and, when one
// sits next to it, its transcript file.
type Lesson struct {
	ID             string `json:"id"`
	SourceID       string `json:"source_id"`
	Name           string `json:"name"`
	MediaPath      string `json:"media_path"`
	TranscriptPath string `json:"transcript_path,omitempty"`
	HasTranscript  bool   `json:"has_transcript"`
}

type Library struct {
	Sources []Source `json:"sources"`
	Lessons []Lesson `json:"lessons"`
}

// SourcesFromDirs builds one SourceConfig per directory, using the directory
// path as the stable ID and its base name as the display name.
func SourcesFromDirs(dirs []string) []SourceConfig {
	ret := make([]SourceConfig, 0, len(dirs))
	for _, dir := range dirs {
		ret = append(ret, SourceConfig{
			ID:   dir,
			Name: cleanLessonName(filepath.Base(dir)),
			Path: dir,
		})
	}
	return ret
}
