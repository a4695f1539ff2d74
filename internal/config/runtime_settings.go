package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
)

// RuntimeSettings are the knobs editable from the web UI. They persist to a
// JSON file so a restart keeps what was configured at runtime.
type RuntimeSettings struct {
	LessonDirs   []string `json:"lesson_dirs"`
	ScanCronExpr string   `json:"scan_cron_expr"`
}

func RuntimeSettingsFilePath(dataDir string) string {
	return getEnvString("SETTINGS_FILE", filepath.Join(dataDir, "settings.json"))
}

func (s RuntimeSettings) Validate() error {
	if len(s.LessonDirs) == 0 {
		return fmt.Errorf("at least one lesson_dir is required")
	}
	for _, dir := range s.LessonDirs {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("lesson_dirs must not contain empty entries")
		}
	}
	if strings.TrimSpace(s.ScanCronExpr) == "" {
		return fmt.Errorf("scan_cron_expr is required")
	}
	if _, err := cron.ParseStandard(s.ScanCronExpr); err != nil {
		return fmt.Errorf("invalid scan_cron_expr: %w", err)
	}
	return nil
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		LessonDirs:   append([]string(nil), c.Library.LessonDirs...),
		ScanCronExpr: c.Library.ScanCronExpr,
	}
}

func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if len(settings.LessonDirs) > 0 {
			c.Library.LessonDirs = append([]string(nil), settings.LessonDirs...)
		}
		if strings.TrimSpace(settings.ScanCronExpr) != "" {
			c.Library.ScanCronExpr = settings.ScanCronExpr
		}
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}
