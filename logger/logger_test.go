package logger_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"virtual_sensors/config"
	"virtual_sensors/logger"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, logger.ParseLevel("debug"))
	require.Equal(t, slog.LevelWarn, logger.ParseLevel("WARN"))
	require.Equal(t, slog.LevelError, logger.ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, logger.ParseLevel("verbose"))
}

func TestInitWritesFile(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	cfg := &config.Config{Logging: config.LoggingConfig{LogFile: "test.log", LogLevel: "warn"}}
	require.NoError(t, logger.Init(cfg))

	logger.Printf("hidden %d", 1)
	logger.Warnf("bucket %s failed\n", "ANZ01-2016-01-01-reading-temperature")
	logger.With("sensor", "VIRTUAL01").Error("recompute failed")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(filepath.Join(dir, "test.log"))
	require.NoError(t, err)
	content := string(data)
	require.NotContains(t, content, "hidden 1")
	require.Contains(t, content, "bucket ANZ01-2016-01-01-reading-temperature failed")
	require.Contains(t, content, "sensor=VIRTUAL01")

	// usable after Close
	logger.Debugf("after close")
}
