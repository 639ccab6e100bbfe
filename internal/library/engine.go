package library

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"steamgate/internal/catalog"
	"steamgate/internal/core"
	"steamgate/internal/observability"
	"steamgate/internal/steam"
)

const (
	// FreshFor is how long a cached common library is served without recomputation.
	FreshFor = 24 * time.Hour

	// payloadVersion tags the cached blob. Bump it whenever core.App changes shape.
	payloadVersion = 1

	// DefaultBackfillConcurrency bounds concurrent Store API calls per request.
	DefaultBackfillConcurrency = 10
)

// LibraryFetcher returns the app ids owned by one account.
type LibraryFetcher interface {
	FetchOwnedGames(ctx context.Context, steamID string) ([]int64, error)
}

// AppFetcher fetches Store details for one app.
type AppFetcher interface {
	FetchAppDetails(ctx context.Context, appID int64) (*steam.AppDetails, error)
}

// Config tunes the engine.
type Config struct {
	// StrictResolution fails a request whose vanity names do not all resolve.
	StrictResolution bool
	// BackfillConcurrency bounds concurrent Store lookups (default 10).
	BackfillConcurrency int
	// Locale selects the collation used to sort apps by name (default English).
	Locale language.Tag
}

// cachedPayload is the versioned blob stored per cache key.
type cachedPayload struct {
	Version int        `json:"version"`
	Apps    []core.App `json:"apps"`
}

// Engine computes common libraries.
//
// It holds no state of its own between requests; concurrent computations of
// the same identity set both run and the later cache write wins.
type Engine struct {
	keys      *KeyBuilder
	libraries LibraryFetcher
	apps      AppFetcher
	store     catalog.Store
	cfg       Config
	now       func() time.Time
}

// NewEngine wires an engine from its collaborators.
func NewEngine(resolver Resolver, libraries LibraryFetcher, apps AppFetcher, store catalog.Store, cfg Config) *Engine {
	if cfg.BackfillConcurrency <= 0 {
		cfg.BackfillConcurrency = DefaultBackfillConcurrency
	}
	if cfg.Locale == language.Und {
		cfg.Locale = language.English
	}
	return &Engine{
		keys:      NewKeyBuilder(resolver, cfg.StrictResolution),
		libraries: libraries,
		apps:      apps,
		store:     store,
		cfg:       cfg,
		now:       time.Now,
	}
}

// ComputeCommonLibrary returns the apps owned by every account in raw.
//
// A fresh cached result is returned without any upstream call. Otherwise every
// library is fetched concurrently, and one failed fetch fails the request.
// Apps missing from the catalog are backfilled from the Store API; an app
// that cannot be backfilled is left out. The result is cached before it is returned.
func (e *Engine) ComputeCommonLibrary(ctx context.Context, raw []string) (*core.CommonLibrary, error) {
	if len(raw) < 2 {
		return nil, core.NewInsufficientIdentitiesError(len(raw))
	}
	log := core.Logger(ctx)

	key, resolved, err := e.keys.Build(ctx, raw)
	if err != nil {
		return nil, err
	}

	if apps, ok := e.cached(ctx, key); ok {
		return &core.CommonLibrary{Count: len(apps), Apps: apps}, nil
	}

	libs, err := e.fetchLibraries(ctx, resolved)
	if err != nil {
		return nil, err
	}

	common := Intersect(libs...)

	known, err := e.store.GetApps(ctx, common)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	apps := slices.Concat(known, e.backfill(ctx, missingIDs(common, known)))
	if apps == nil {
		apps = []core.App{}
	}
	// A cancelled request must not cache a result thinned out by aborted backfills.
	if err := ctx.Err(); err != nil {
		return nil, core.NewUpstreamUnavailableError("common library computation aborted", err)
	}

	e.sortByName(apps)
	for i := range apps {
		apps[i].BuildCategoryLookup()
	}

	if err := e.writeCache(ctx, key, apps); err != nil {
		log.Warn("common library not cached", "key", key, "error", err)
	}

	return &core.CommonLibrary{Count: len(apps), Apps: apps}, nil
}

// cached returns the apps stored under key if the entry is fresh and readable.
// Read errors and unreadable entries count as misses.
func (e *Engine) cached(ctx context.Context, key string) ([]core.App, bool) {
	log := core.Logger(ctx)

	entry, err := e.store.GetCommon(ctx, key)
	if err != nil {
		log.Warn("common library cache read failed", "key", key, "error", err)
		observability.ObserveCacheLookup(observability.CacheMiss)
		return nil, false
	}
	if entry == nil {
		observability.ObserveCacheLookup(observability.CacheMiss)
		return nil, false
	}
	if e.now().Sub(entry.UpdatedAt) >= FreshFor {
		observability.ObserveCacheLookup(observability.CacheStale)
		return nil, false
	}

	var payload cachedPayload
	if err := json.Unmarshal(entry.Data, &payload); err != nil || payload.Version != payloadVersion {
		log.Debug("discarding unreadable common library entry", "key", key, "version", payload.Version, "error", err)
		observability.ObserveCacheLookup(observability.CacheInvalid)
		return nil, false
	}

	observability.ObserveCacheLookup(observability.CacheHit)
	if payload.Apps == nil {
		payload.Apps = []core.App{}
	}
	return payload.Apps, true
}

// fetchLibraries fetches every library concurrently. The first failure cancels the rest.
func (e *Engine) fetchLibraries(ctx context.Context, steamIDs []string) ([][]int64, error) {
	libs := make([][]int64, len(steamIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, steamID := range steamIDs {
		g.Go(func() error {
			ids, err := e.libraries.FetchOwnedGames(gctx, steamID)
			if err != nil {
				return err
			}
			libs[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if core.KindOf(err) == core.KindUpstreamUnavailable {
			return nil, err
		}
		return nil, core.NewUpstreamUnavailableError("owned games unavailable", err)
	}
	return libs, nil
}

// backfill fetches and catalogs the given apps with bounded concurrency.
// Failures are logged and the app is skipped; they never cancel siblings.
func (e *Engine) backfill(ctx context.Context, ids []int64) []core.App {
	if len(ids) == 0 {
		return nil
	}
	log := core.Logger(ctx)
	updatedAt := e.timestamp()
	results := make([]*core.App, len(ids))

	var g errgroup.Group
	g.SetLimit(e.cfg.BackfillConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			app, err := e.backfillOne(ctx, id, updatedAt)
			observability.ObserveBackfill(err == nil)
			if err != nil {
				log.Warn("app dropped from common library", "appid", id, "error", err)
				return nil
			}
			results[i] = app
			return nil
		})
	}
	_ = g.Wait()

	apps := make([]core.App, 0, len(ids))
	for _, app := range results {
		if app != nil {
			apps = append(apps, *app)
		}
	}
	return apps
}

func (e *Engine) backfillOne(ctx context.Context, id int64, updatedAt time.Time) (*core.App, error) {
	details, err := e.apps.FetchAppDetails(ctx, id)
	if err != nil {
		return nil, err
	}

	app, categories := details.Record(updatedAt)
	if err := e.store.InsertApp(ctx, &app); err != nil {
		return nil, core.NewCatalogBackfillError(id, err)
	}
	if err := e.store.InsertCategories(ctx, categories); err != nil {
		return nil, core.NewCatalogBackfillError(id, err)
	}
	return &app, nil
}

// sortByName orders apps by name for the configured locale, then by id.
func (e *Engine) sortByName(apps []core.App) {
	col := collate.New(e.cfg.Locale)
	slices.SortFunc(apps, func(a, b core.App) int {
		if c := col.CompareString(a.Name, b.Name); c != 0 {
			return c
		}
		switch {
		case a.SteamAppID < b.SteamAppID:
			return -1
		case a.SteamAppID > b.SteamAppID:
			return 1
		}
		return 0
	})
}

func (e *Engine) writeCache(ctx context.Context, key string, apps []core.App) error {
	data, err := json.Marshal(cachedPayload{Version: payloadVersion, Apps: apps})
	if err != nil {
		return core.NewCacheWriteError(err)
	}
	if err := e.store.UpsertCommon(ctx, key, data, e.timestamp()); err != nil {
		return core.NewCacheWriteError(err)
	}
	return nil
}

// timestamp is the current time in UTC at microsecond precision, the finest
// every catalog backend stores, so a cached result decodes to the same bytes.
func (e *Engine) timestamp() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

// missingIDs returns the ids of common that are not among known.
func missingIDs(common []int64, known []core.App) []int64 {
	have := make(map[int64]struct{}, len(known))
	for _, app := range known {
		have[app.SteamAppID] = struct{}{}
	}
	missing := make([]int64, 0, len(common))
	for _, id := range common {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
