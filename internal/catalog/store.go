// Package catalog persists known Steam apps, their categories and cached common-library results.
package catalog

import (
	"context"
	"slices"
	"time"

	"steamgate/internal/core"
)

// CommonEntry is a cached common-library payload.
type CommonEntry struct {
	Data      []byte
	UpdatedAt time.Time
}

// Store is the catalog persistence contract.
//
// App and category inserts are insert-or-noop: a row that already exists is
// left untouched. Common entries are insert-or-replace. Both make concurrent
// duplicate writers converge without locking.
// Implementations must be safe for concurrent use.
type Store interface {
	// GetApps returns the cataloged apps among ids. Unknown ids are skipped; order is unspecified.
	GetApps(ctx context.Context, ids []int64) ([]core.App, error)

	// InsertApp stores app unless an app with the same id exists.
	InsertApp(ctx context.Context, app *core.App) error

	// GetCategories returns every category ordered by id.
	GetCategories(ctx context.Context) ([]core.Category, error)

	// InsertCategories stores the categories that do not exist yet.
	InsertCategories(ctx context.Context, categories []core.Category) error

	// GetCommon returns the cached entry for key, or nil if there is none.
	GetCommon(ctx context.Context, key string) (*CommonEntry, error)

	// UpsertCommon inserts or replaces the entry for key.
	UpsertCommon(ctx context.Context, key string, data []byte, updatedAt time.Time) error

	// PurgeCommon deletes common entries last updated before cutoff and
	// reports how many were removed.
	PurgeCommon(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases resources owned by the store. Shared connections are left open.
	Close() error
}

// uniqueIDs returns ids sorted with duplicates removed.
func uniqueIDs(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// uniqueCategories drops repeated category ids, keeping the first description.
func uniqueCategories(categories []core.Category) []core.Category {
	seen := make(map[int]struct{}, len(categories))
	out := make([]core.Category, 0, len(categories))
	for _, c := range categories {
		if _, ok := seen[c.CategoryID]; ok {
			continue
		}
		seen[c.CategoryID] = struct{}{}
		out = append(out, c)
	}
	return out
}
