package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(old) })
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	for _, k := range []string{"HLSOPT_PROJECT_ROOT", "HLSOPT_KNOWLEDGE_BASE", "HLSOPT_CLOCK_PERIOD", "HLSOPT_TIMEOUT", "HLSOPT_LOG_LEVEL", "HLSOPT_CATALOG", "HLSOPT_DEVICE_ID"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "xczu7ev-ffvc1156-2-e", cfg.DeviceID)
	require.Equal(t, 3.33, cfg.ClockPeriod)
	require.Equal(t, time.Hour, cfg.Timeout)
	require.Equal(t, slog.LevelInfo, cfg.LogLevel)
	require.Equal(t, "vitis_hls", cfg.VitisBinary)
	require.Empty(t, cfg.Catalog)

	root, err := os.Getwd()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "KnowledgeBase"), cfg.KnowledgeBase)
	require.Equal(t, filepath.Join(root, "output"), cfg.Output)
}

func TestLoadOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HLSOPT_PROJECT_ROOT", "/srv/hls")
	t.Setenv("HLSOPT_KNOWLEDGE_BASE", "/data/kb")
	t.Setenv("HLSOPT_APPLICATIONS", "apps")
	t.Setenv("HLSOPT_CLOCK_PERIOD", "5")
	t.Setenv("HLSOPT_TIMEOUT", "90s")
	t.Setenv("HLSOPT_LOG_LEVEL", "debug")
	t.Setenv("HLSOPT_CATALOG", "catalog.yaml")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/data/kb", cfg.KnowledgeBase)
	require.Equal(t, filepath.Join("/srv/hls", "apps"), cfg.Applications)
	require.Equal(t, filepath.Join("/srv/hls", "catalog.yaml"), cfg.Catalog)
	require.Equal(t, 5.0, cfg.ClockPeriod)
	require.Equal(t, 90*time.Second, cfg.Timeout)
	require.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HLSOPT_DEVICE_ID", "")
	os.Unsetenv("HLSOPT_DEVICE_ID")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("HLSOPT_DEVICE_ID=xcu250-figd2104-2L-e\n"), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "xcu250-figd2104-2L-e", cfg.DeviceID)
}

func TestLoadInvalid(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HLSOPT_CLOCK_PERIOD", "fast")
	_, err := Load()
	require.Error(t, err)
}
