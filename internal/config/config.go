package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds all application configuration.
// Supports environment variables with sensible defaults.
//
// Environment Variables:
// - HTTP_ADDR: listen address for the web server (default: :8080)
// - UI_DIR: directory with the built web UI (optional)
// - DATA_DIR: directory for the database and settings (default: /app/data)
// - LESSON_DIRS: comma separated lesson directories (default: /lessons)
// - SCAN_CRON_EXPR: rescan schedule (default: 0 * * * *)
// - IMPORT_WORKERS: parallel import workers (default: 2)
// - LOG_LEVEL: debug, info, warn or error (default: info)
// - SETTINGS_FILE: runtime settings path (default: DATA_DIR/settings.json)

type Config struct {
	Server   ServerConfig  `json:"server"`
	Data     DataConfig    `json:"data"`
	Library  LibraryConfig `json:"library"`
	LogLevel string        `json:"log_level"`
}

type ServerConfig struct {
	Addr  string `json:"addr"`
	UIDir string `json:"ui_dir"`
}

type DataConfig struct {
	Dir string `json:"dir"`
}

func (c DataConfig) DatabasePath() string {
	return filepath.Join(c.Dir, "lessonlens.db")
}

type LibraryConfig struct {
	LessonDirs    []string `json:"lesson_dirs"`
	ScanCronExpr  string   `json:"scan_cron_expr"`
	ImportWorkers int      `json:"import_workers"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Addr:  getEnvString("HTTP_ADDR", ":8080"),
			UIDir: getEnvString("UI_DIR", ""),
		},
		Data: DataConfig{
			Dir: getEnvString("DATA_DIR", "/app/data"),
		},
		Library: LibraryConfig{
			LessonDirs:    splitDirs(getEnvString("LESSON_DIRS", "/lessons")),
			ScanCronExpr:  getEnvString("SCAN_CRON_EXPR", "0 * * * *"),
			ImportWorkers: getEnvInt("IMPORT_WORKERS", 2),
		},
		LogLevel: getEnvString("LOG_LEVEL", "info"),
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	return config, nil
}

func splitDirs(raw string) []string {
	ret := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			ret = append(ret, part)
		}
	}
	return ret
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
