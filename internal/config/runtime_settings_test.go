package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeSettings_Validate(t *testing.T) {
	valid := RuntimeSettings{
		LessonDirs:   []string{"/lessons/math"},
		ScanCronExpr: "*/5 * * * *",
	}
	require.NoError(t, valid.Validate())

	invalid := valid
	invalid.ScanCronExpr = "bad cron"
	require.Error(t, invalid.Validate())

	noDirs := valid
	noDirs.LessonDirs = nil
	require.Error(t, noDirs.Validate())

	emptyDir := valid
	emptyDir.LessonDirs = []string{" "}
	require.Error(t, emptyDir.Validate())
}

func TestRuntimeSettingsFile_RoundTrip(t *testing.T) {
	tmp := t.TempDir()
	filePath := filepath.Join(tmp, "settings", "runtime.json")
	input := RuntimeSettings{
		LessonDirs:   []string{"/lessons/math", "/lessons/science"},
		ScanCronExpr: "0 0 * * *",
	}

	require.NoError(t, WriteRuntimeSettingsFile(filePath, input))

	got, err := LoadRuntimeSettingsFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, input, got)

	info, err := os.Stat(filePath)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}

func TestWithRuntimeSettings_OverridesConfig(t *testing.T) {
	t.Setenv("LESSON_DIRS", "/env/lessons")
	t.Setenv("SCAN_CRON_EXPR", "0 1 * * *")

	override := RuntimeSettings{
		LessonDirs:   []string{"/file/lessons"},
		ScanCronExpr: "*/30 * * * *",
	}

	cfg, err := NewFromEnv(WithRuntimeSettings(override))
	require.NoError(t, err)
	assert.Equal(t, override.LessonDirs, cfg.Library.LessonDirs)
	assert.Equal(t, override.ScanCronExpr, cfg.Library.ScanCronExpr)
}

func TestRuntimeSettingsStore_UpdatePersistsFile(t *testing.T) {
	tmp := t.TempDir()
	filePath := filepath.Join(tmp, "runtime-settings.json")
	initial := RuntimeSettings{
		LessonDirs:   []string{"/lessons/old"},
		ScanCronExpr: "0 0 * * *",
	}

	store, err := NewRuntimeSettingsStore(filePath, initial)
	require.NoError(t, err)

	next := RuntimeSettings{
		LessonDirs:   []string{"/lessons/new"},
		ScanCronExpr: "*/10 * * * *",
	}
	got, err := store.UpdateRuntimeSettings(next)
	require.NoError(t, err)
	assert.Equal(t, next, got)

	loaded, err := LoadRuntimeSettingsFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, next, loaded)

	current, err := store.GetRuntimeSettings()
	require.NoError(t, err)
	assert.Equal(t, next, current)
}

func TestNewFromEnvDefaults(t *testing.T) {
	t.Setenv("LESSON_DIRS", "")
	t.Setenv("DATA_DIR", "")

	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"/lessons"}, cfg.Library.LessonDirs)
	assert.Equal(t, filepath.Join("/app/data", "lessonlens.db"), cfg.Data.DatabasePath())
	assert.Equal(t, 2, cfg.Library.ImportWorkers)
}

func TestSplitDirs(t *testing.T) {
	assert.Equal(t, []string{"/a", "/b"}, splitDirs(" /a, /b ,"))
	assert.Empty(t, splitDirs(" , "))
}
