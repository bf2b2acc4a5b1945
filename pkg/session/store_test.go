package session

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/convoy/pkg/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func readLines(t *testing.T, path string) []history.Item {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var items []history.Item
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var item history.Item
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &item))
		items = append(items, item)
	}
	require.NoError(t, scanner.Err())
	return items
}

func TestStoreAppend(t *testing.T) {
	ctx := context.Background()

	t.Run("should write items as JSON lines", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.Append(ctx, "sess1",
			history.NewUserMessage("Hi"),
			history.NewAssistantMessage("triage", "Hello"),
		))
		require.NoError(t, store.Append(ctx, "sess1", history.NewHandoff("triage", "weather")))

		items := readLines(t, store.path("sess1"))
		require.Len(t, items, 3)
		assert.Equal(t, history.ItemUserMessage, items[0].Type)
		assert.Equal(t, "Hi", items[0].Content)
		assert.Equal(t, history.ItemHandoff, items[2].Type)
		assert.Equal(t, "weather", items[2].To)
	})

	t.Run("should create files with restricted permissions", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Append(ctx, "sess1", history.NewUserMessage("Hi")))

		fi, err := os.Stat(store.path("sess1"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), fi.Mode().Perm())
	})

	t.Run("should be a no-op for zero items", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Append(ctx, "sess1"))

		_, err := os.Stat(store.path("sess1"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("should reject hostile keys", func(t *testing.T) {
		store := newTestStore(t)
		for _, key := range []string{"", "../escape", "a/b", "a\\b", "nul\x00byte"} {
			assert.Error(t, store.Append(ctx, key, history.NewUserMessage("Hi")), "key %q", key)
		}
	})
}

func TestStoreListDeleteStat(t *testing.T) {
	ctx := context.Background()

	t.Run("should list stored transcripts", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Append(ctx, "a", history.NewUserMessage("1")))
		require.NoError(t, store.Append(ctx, "b", history.NewUserMessage("2")))

		keys, err := store.List()
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b"}, keys)
	})

	t.Run("should ignore foreign files", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, os.WriteFile(filepath.Join(store.dir, "notes.txt"), []byte("x"), 0600))

		keys, err := store.List()
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("should delete transcripts", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Append(ctx, "a", history.NewUserMessage("1")))
		require.NoError(t, store.Delete("a"))

		keys, err := store.List()
		require.NoError(t, err)
		assert.Empty(t, keys)

		// Deleting again is a no-op.
		assert.NoError(t, store.Delete("a"))
	})

	t.Run("should stat transcripts", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Append(ctx, "a", history.NewUserMessage("1")))

		info, err := store.Stat("a")
		require.NoError(t, err)
		assert.Equal(t, "a", info.Key)
		assert.Greater(t, info.Size, int64(0))
		assert.WithinDuration(t, time.Now(), info.LastModified, time.Minute)

		_, err = store.Stat("missing")
		assert.Error(t, err)
	})
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()

	t.Run("should delete only old transcripts", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Append(ctx, "old", history.NewUserMessage("1")))
		require.NoError(t, store.Append(ctx, "fresh", history.NewUserMessage("2")))

		past := time.Now().Add(-48 * time.Hour)
		require.NoError(t, os.Chtimes(store.path("old"), past, past))

		cleanup := NewCleanup(store, 24*time.Hour)
		require.NoError(t, cleanup.CleanupNow())

		keys, err := store.List()
		require.NoError(t, err)
		assert.Equal(t, []string{"fresh"}, keys)
	})

	t.Run("should guard double start and stop", func(t *testing.T) {
		store := newTestStore(t)
		cleanup := NewCleanup(store, time.Hour)
		cleanup.SetInterval(time.Hour)

		require.NoError(t, cleanup.Start())
		assert.True(t, cleanup.IsRunning())
		assert.Error(t, cleanup.Start())

		require.NoError(t, cleanup.Stop())
		assert.False(t, cleanup.IsRunning())
		assert.Error(t, cleanup.Stop())
	})
}
