package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileLogger_WritesAndCloses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bot.log")

	log, closeLog, err := NewFileLogger(path, "debug")
	require.NoError(t, err)
	log.Info("Scan complete")
	closeLog()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Scan complete")

	// Reopening appends to the same file.
	log, closeLog, err = NewFileLogger(path, "info")
	require.NoError(t, err)
	log.Info("Trading iteration complete")
	closeLog()

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Scan complete")
	assert.Contains(t, string(data), "Trading iteration complete")
}

func TestNewFileLogger_EmptyPathLogsToStdout(t *testing.T) {
	log, closeLog, err := NewFileLogger("", "warn")
	require.NoError(t, err)
	require.NotNil(t, log)
	require.NotNil(t, closeLog)
	closeLog()
}
