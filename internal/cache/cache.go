// Package cache stores resolved vanity-name to Steam ID mappings.
// Supports both local (in-memory/file) and Redis backends for multi-instance deployments.
package cache

import (
	"context"
	"strings"
	"time"
)

// DefaultTTL is how long a resolved vanity name is trusted before Steam is asked again.
const DefaultTTL = 24 * time.Hour

// IdentityCache maps vanity names to numeric Steam IDs.
// Implementations must be safe for concurrent use.
type IdentityCache interface {
	// Get returns the cached Steam ID for vanity.
	// ok is false if nothing (or nothing fresh) is cached.
	Get(ctx context.Context, vanity string) (steamID string, ok bool, err error)

	// Set stores the mapping vanity -> steamID.
	Set(ctx context.Context, vanity, steamID string) error

	// Close releases any resources held by the cache.
	Close() error
}

// normalizeKey folds vanity names so lookups are case-insensitive.
func normalizeKey(vanity string) string {
	return strings.ToLower(strings.TrimSpace(vanity))
}
