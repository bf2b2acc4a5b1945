package session

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultCleanupAge      = 7 * 24 * time.Hour
	DefaultCleanupInterval = 24 * time.Hour
)

// Cleanup deletes transcripts that have not been written to for cleanupAge
type Cleanup struct {
	store      *Store
	cleanupAge time.Duration
	interval   time.Duration
	stopCh     chan struct{}
	running    bool
}

// NewCleanup creates a transcript cleanup loop
func NewCleanup(store *Store, cleanupAge time.Duration) *Cleanup {
	if cleanupAge == 0 {
		cleanupAge = DefaultCleanupAge
	}

	return &Cleanup{
		store:      store,
		cleanupAge: cleanupAge,
		interval:   DefaultCleanupInterval,
		stopCh:     make(chan struct{}),
	}
}

// SetInterval overrides how often the loop scans the store
func (c *Cleanup) SetInterval(interval time.Duration) {
	if interval > 0 {
		c.interval = interval
	}
}

// Start starts the cleanup loop
func (c *Cleanup) Start() error {
	if c.running {
		return fmt.Errorf("cleanup is already running")
	}

	c.running = true
	go c.run()

	log.Info().
		Dur("cleanup_age", c.cleanupAge).
		Dur("interval", c.interval).
		Msg("Transcript cleanup started")
	return nil
}

// Stop stops the cleanup loop
func (c *Cleanup) Stop() error {
	if !c.running {
		return fmt.Errorf("cleanup is not running")
	}

	close(c.stopCh)
	c.running = false

	log.Info().Msg("Transcript cleanup stopped")
	return nil
}

// IsRunning returns whether the loop is active
func (c *Cleanup) IsRunning() bool {
	return c.running
}

func (c *Cleanup) run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	if err := c.CleanupNow(); err != nil {
		log.Error().Err(err).Msg("Failed to clean up old transcripts")
	}

	for {
		select {
		case <-ticker.C:
			if err := c.CleanupNow(); err != nil {
				log.Error().Err(err).Msg("Failed to clean up old transcripts")
			}
		case <-c.stopCh:
			return
		}
	}
}

// CleanupNow scans the store once and deletes transcripts older than the
// cleanup age.
func (c *Cleanup) CleanupNow() error {
	keys, err := c.store.List()
	if err != nil {
		return fmt.Errorf("failed to list transcripts: %w", err)
	}

	now := time.Now()
	deleted := 0

	for _, key := range keys {
		info, err := c.store.Stat(key)
		if err != nil {
			log.Warn().Str("session_key", key).Err(err).Msg("Failed to stat transcript")
			continue
		}

		age := now.Sub(info.LastModified)
		if age < c.cleanupAge {
			continue
		}

		if err := c.store.Delete(key); err != nil {
			log.Error().Str("session_key", key).Err(err).Msg("Failed to delete transcript")
			continue
		}
		deleted++

		log.Debug().
			Str("session_key", key).
			Dur("age", age).
			Msg("Old transcript deleted")
	}

	if deleted > 0 {
		log.Info().Int("deleted", deleted).Msg("Cleaned up old transcripts")
	}
	return nil
}
