package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("should create logger with console output", func(t *testing.T) {
		l, err := New(Config{Level: "info", Console: true})
		require.NoError(t, err)
		defer l.Close()

		assert.Equal(t, zerolog.InfoLevel, l.Get().GetLevel())
	})

	t.Run("should fall back to info on invalid level", func(t *testing.T) {
		l, err := New(Config{Level: "verbose", Console: true})
		require.NoError(t, err)
		defer l.Close()

		assert.Equal(t, zerolog.InfoLevel, l.Get().GetLevel())
	})

	t.Run("should create log file and directory", func(t *testing.T) {
		tmpDir := t.TempDir()
		logFile := filepath.Join(tmpDir, "logs", "convoy.log")

		l, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)

		zl := l.Get()
		zl.Info().Msg("written to file")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "written to file")
	})

	t.Run("should discard output when no writers configured", func(t *testing.T) {
		l, err := New(Config{Level: "debug"})
		require.NoError(t, err)
		defer l.Close()

		// Must not panic with no sinks.
		zl := l.Get()
		zl.Info().Msg("dropped")
	})
}

func TestClose(t *testing.T) {
	t.Run("should be safe without a file", func(t *testing.T) {
		l, err := New(Config{Level: "info", Console: true})
		require.NoError(t, err)
		assert.NoError(t, l.Close())
	})
}
