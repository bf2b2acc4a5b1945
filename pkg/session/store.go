// Package session persists conversation transcripts as JSONL files, one per
// session key. Transcripts are write-only artifacts: the runtime appends to
// them and ships them to disk, it never reads them back into a run.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harun/convoy/internal/tracing"
	"github.com/harun/convoy/pkg/history"
	"github.com/rs/zerolog/log"
)

// Store manages transcript files under a single directory
type Store struct {
	dir        string
	writeLocks map[string]*sync.Mutex
	locksMu    sync.Mutex
}

// NewStore creates a transcript store rooted at dir. An empty dir defaults
// to ~/.convoy/transcripts.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".convoy", "transcripts")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}

	log.Info().Str("dir", dir).Msg("Transcript store initialized")

	return &Store{
		dir:        dir,
		writeLocks: make(map[string]*sync.Mutex),
	}, nil
}

// NewSessionKey generates a fresh session key
func NewSessionKey() string {
	return tracing.NewTraceID()
}

// validateKey rejects keys that could escape the transcript directory
func (s *Store) validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("session key cannot be empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("session key cannot contain '..'")
	}
	if strings.ContainsAny(key, "/\\") {
		return fmt.Errorf("session key cannot contain path separators")
	}
	if strings.Contains(key, "\x00") {
		return fmt.Errorf("session key cannot contain null bytes")
	}
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".jsonl")
}

func (s *Store) lockFor(key string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	if lock, exists := s.writeLocks[key]; exists {
		return lock
	}
	lock := &sync.Mutex{}
	s.writeLocks[key] = lock
	return lock
}

// Append writes history items to a session's transcript, one JSON line per
// item, creating the file on first write.
func (s *Store) Append(ctx context.Context, key string, items ...history.Item) error {
	if err := s.validateKey(key); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("session_key", key).Logger()

	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	file, err := os.OpenFile(s.path(key), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	defer file.Close()

	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal transcript item: %w", err)
		}
		if _, err := file.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write transcript item: %w", err)
		}
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync transcript: %w", err)
	}

	logger.Debug().Int("items", len(items)).Msg("Transcript items appended")
	return nil
}

// Delete removes a session's transcript
func (s *Store) Delete(key string) error {
	if err := s.validateKey(key); err != nil {
		return err
	}

	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}

	s.locksMu.Lock()
	delete(s.writeLocks, key)
	s.locksMu.Unlock()

	log.Info().Str("session_key", key).Msg("Transcript deleted")
	return nil
}

// List returns the keys of all stored transcripts
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read transcript directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".jsonl"))
	}
	return keys, nil
}

// Info returns size and modification metadata for a transcript
type Info struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Stat returns metadata for a transcript
func (s *Store) Stat(key string) (Info, error) {
	if err := s.validateKey(key); err != nil {
		return Info{}, err
	}

	fi, err := os.Stat(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, fmt.Errorf("transcript does not exist: %s", key)
		}
		return Info{}, fmt.Errorf("failed to stat transcript: %w", err)
	}

	return Info{
		Key:          key,
		Size:         fi.Size(),
		LastModified: fi.ModTime(),
	}, nil
}

// Close releases the store's write locks
func (s *Store) Close() error {
	s.locksMu.Lock()
	s.writeLocks = make(map[string]*sync.Mutex)
	s.locksMu.Unlock()
	return nil
}
