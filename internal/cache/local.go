package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type localEntry struct {
	SteamID   string    `json:"steamid"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LocalCache implements IdentityCache in process memory, optionally mirrored to a JSON file.
// This is suitable for single-instance deployments.
type LocalCache struct {
	mu       sync.RWMutex
	entries  map[string]localEntry
	filePath string
	ttl      time.Duration
	now      func() time.Time
}

// NewLocalCache creates a local cache. When filePath is non-empty, existing
// entries are loaded from it and every Set rewrites it.
func NewLocalCache(filePath string, ttl time.Duration) (*LocalCache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &LocalCache{
		entries:  make(map[string]localEntry),
		filePath: filePath,
		ttl:      ttl,
		now:      time.Now,
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *LocalCache) load() error {
	if c.filePath == "" {
		return nil
	}

	data, err := os.ReadFile(c.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No cache file yet, not an error
		}
		return fmt.Errorf("failed to read cache file: %w", err)
	}

	if err := json.Unmarshal(data, &c.entries); err != nil {
		return fmt.Errorf("failed to parse cache file: %w", err)
	}
	if c.entries == nil {
		c.entries = make(map[string]localEntry)
	}
	return nil
}

// Get returns the cached Steam ID for vanity if it has not expired.
func (c *LocalCache) Get(_ context.Context, vanity string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[normalizeKey(vanity)]
	if !ok || !c.now().Before(e.ExpiresAt) {
		return "", false, nil
	}
	return e.SteamID, true, nil
}

// Set stores the mapping and, if configured, persists the whole cache to disk.
func (c *LocalCache) Set(_ context.Context, vanity, steamID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[normalizeKey(vanity)] = localEntry{SteamID: steamID, ExpiresAt: now.Add(c.ttl).UTC()}

	for k, e := range c.entries {
		if !now.Before(e.ExpiresAt) {
			delete(c.entries, k)
		}
	}

	return c.persist()
}

// persist must be called with mu held.
func (c *LocalCache) persist() error {
	if c.filePath == "" {
		return nil
	}

	// Ensure directory exists
	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	// Write atomically using temp file + rename
	tmpFile := c.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmpFile, c.filePath); err != nil {
		os.Remove(tmpFile) // Clean up temp file
		return fmt.Errorf("failed to rename cache file: %w", err)
	}

	return nil
}

// Close is a no-op for local cache.
func (c *LocalCache) Close() error {
	return nil
}
