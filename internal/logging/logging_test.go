package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFilePath(t *testing.T) {
	start := time.Date(2025, 3, 14, 12, 30, 45, 0, time.UTC)
	got := LogFilePath("/var/log/app", "mamacars", start)
	assert.Equal(t, filepath.Join("/var/log/app", "mamacars.20250314_123045.log"), got)
}

func TestNewManager_WritesSessionFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	logsDir := filepath.Join(t.TempDir(), "logs")
	viper.Set("logsDir", logsDir)
	viper.Set("logLevel", "debug")

	m, err := NewManager("testapp")
	require.NoError(t, err)
	defer m.Close()

	m.Logger.Info().Msg("session file test line")

	entries, err := os.ReadDir(logsDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	content, err := os.ReadFile(filepath.Join(logsDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(content), "session file test line")
	assert.Contains(t, string(content), "testapp")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.TraceLevel, parseLevel("trace"))
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("info"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("bogus"), "unknown levels default to info")
}
