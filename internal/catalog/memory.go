package catalog

import (
	"context"
	"slices"
	"sync"
	"time"

	"steamgate/internal/core"
)

// MemoryStore keeps the catalog in process memory. Selected with storage type
// "memory" for deployments that do not need the catalog to survive restarts.
type MemoryStore struct {
	mu         sync.RWMutex
	apps       map[int64]core.App
	categories map[int]string
	common     map[string]CommonEntry
}

// NewMemoryStore creates an empty in-memory catalog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		apps:       make(map[int64]core.App),
		categories: make(map[int]string),
		common:     make(map[string]CommonEntry),
	}
}

// GetApps returns copies of the cataloged apps among ids.
func (s *MemoryStore) GetApps(_ context.Context, ids []int64) ([]core.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	apps := make([]core.App, 0, len(ids))
	for _, id := range uniqueIDs(ids) {
		if app, ok := s.apps[id]; ok {
			apps = append(apps, cloneApp(app))
		}
	}
	return apps, nil
}

// InsertApp stores a copy of app unless its id already exists.
func (s *MemoryStore) InsertApp(_ context.Context, app *core.App) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apps[app.SteamAppID]; ok {
		return nil
	}
	stored := cloneApp(*app)
	stored.CategoryLookup = nil
	stored.UpdatedAt = stored.UpdatedAt.UTC()
	s.apps[app.SteamAppID] = stored
	return nil
}

// GetCategories returns every category ordered by id.
func (s *MemoryStore) GetCategories(_ context.Context) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]core.Category, 0, len(s.categories))
	for id, desc := range s.categories {
		categories = append(categories, core.Category{CategoryID: id, Description: desc})
	}
	slices.SortFunc(categories, func(a, b core.Category) int { return a.CategoryID - b.CategoryID })
	return categories, nil
}

// InsertCategories stores the categories that do not exist yet.
func (s *MemoryStore) InsertCategories(_ context.Context, categories []core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range categories {
		if _, ok := s.categories[c.CategoryID]; !ok {
			s.categories[c.CategoryID] = c.Description
		}
	}
	return nil
}

// GetCommon returns a copy of the cached entry for key, or nil if there is none.
func (s *MemoryStore) GetCommon(_ context.Context, key string) (*CommonEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.common[key]
	if !ok {
		return nil, nil
	}
	return &CommonEntry{Data: slices.Clone(e.Data), UpdatedAt: e.UpdatedAt}, nil
}

// UpsertCommon inserts or replaces the entry for key.
func (s *MemoryStore) UpsertCommon(_ context.Context, key string, data []byte, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.common[key] = CommonEntry{Data: slices.Clone(data), UpdatedAt: updatedAt.UTC()}
	return nil
}

// PurgeCommon deletes common entries last updated before cutoff.
func (s *MemoryStore) PurgeCommon(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, e := range s.common {
		if e.UpdatedAt.Before(cutoff) {
			delete(s.common, key)
			n++
		}
	}
	return n, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func cloneApp(app core.App) core.App {
	app.Categories = slices.Clone(app.Categories)
	if app.Categories == nil {
		app.Categories = []int{}
	}
	return app
}
