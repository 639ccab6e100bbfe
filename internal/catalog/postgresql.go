package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"steamgate/internal/core"
)

// PostgreSQLStore keeps the catalog in PostgreSQL.
type PostgreSQLStore struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLStore creates the steam_app, steam_category and steam_common tables if needed.
// The layout matches databases created by earlier deployments, so existing rows are reused.
func NewPostgreSQLStore(ctx context.Context, pool *pgxpool.Pool) (*PostgreSQLStore, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	statements := []struct {
		name string
		sql  string
	}{
		{"steam_app", `
			CREATE TABLE IF NOT EXISTS steam_app (
				id SERIAL PRIMARY KEY,
				steam_appid BIGINT UNIQUE NOT NULL,
				name TEXT NOT NULL,
				categories INT[],
				header_image TEXT,
				is_free BOOLEAN,
				platforms JSON,
				updated_at TIMESTAMP NOT NULL
			)
		`},
		{"steam_category", `
			CREATE TABLE IF NOT EXISTS steam_category (
				id SERIAL PRIMARY KEY,
				category_id INT UNIQUE NOT NULL,
				description TEXT NOT NULL
			)
		`},
		// data is JSON rather than JSONB so cached payloads come back byte for byte.
		{"steam_common", `
			CREATE TABLE IF NOT EXISTS steam_common (
				id SERIAL PRIMARY KEY,
				steamids TEXT UNIQUE NOT NULL,
				data JSON,
				updated_at TIMESTAMP NOT NULL
			)
		`},
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt.sql); err != nil {
			return nil, fmt.Errorf("failed to create %s table: %w", stmt.name, err)
		}
	}

	return &PostgreSQLStore{pool: pool}, nil
}

// GetApps returns the cataloged apps among ids.
func (s *PostgreSQLStore) GetApps(ctx context.Context, ids []int64) ([]core.App, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return []core.App{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT steam_appid, name, COALESCE(header_image, ''), COALESCE(is_free, false),
		       COALESCE(platforms::text, '{}'), COALESCE(categories, '{}'), updated_at
		FROM steam_app
		WHERE steam_appid = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("query apps: %w", err)
	}
	defer rows.Close()

	apps := make([]core.App, 0, len(ids))
	for rows.Next() {
		var (
			app        core.App
			platforms  string
			categories []int32
		)
		if err := rows.Scan(&app.SteamAppID, &app.Name, &app.HeaderImage, &app.IsFree,
			&platforms, &categories, &app.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan app row: %w", err)
		}
		if err := json.Unmarshal([]byte(platforms), &app.Platforms); err != nil {
			return nil, fmt.Errorf("decode platforms of app %d: %w", app.SteamAppID, err)
		}
		app.Categories = make([]int, len(categories))
		for i, c := range categories {
			app.Categories[i] = int(c)
		}
		app.UpdatedAt = app.UpdatedAt.UTC()
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate app rows: %w", err)
	}
	return apps, nil
}

// InsertApp stores app unless its steam_appid already exists.
func (s *PostgreSQLStore) InsertApp(ctx context.Context, app *core.App) error {
	platforms, err := json.Marshal(app.Platforms)
	if err != nil {
		return fmt.Errorf("encode platforms: %w", err)
	}
	categories := make([]int32, len(app.Categories))
	for i, c := range app.Categories {
		categories[i] = int32(c)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO steam_app (steam_appid, name, categories, header_image, is_free, platforms, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::json, $7)
		ON CONFLICT (steam_appid) DO NOTHING
	`, app.SteamAppID, app.Name, categories, app.HeaderImage, app.IsFree, string(platforms), app.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert app %d: %w", app.SteamAppID, err)
	}
	return nil
}

// GetCategories returns every category ordered by id.
func (s *PostgreSQLStore) GetCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := s.pool.Query(ctx, "SELECT category_id, description FROM steam_category ORDER BY category_id")
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}

	categories, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Category, error) {
		var c core.Category
		err := row.Scan(&c.CategoryID, &c.Description)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect categories: %w", err)
	}
	return categories, nil
}

// InsertCategories stores the categories that do not exist yet, in one round trip.
func (s *PostgreSQLStore) InsertCategories(ctx context.Context, categories []core.Category) error {
	categories = uniqueCategories(categories)
	if len(categories) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range categories {
		batch.Queue(`
			INSERT INTO steam_category (category_id, description)
			VALUES ($1, $2)
			ON CONFLICT (category_id) DO NOTHING
		`, c.CategoryID, c.Description)
	}

	br := s.pool.SendBatch(ctx, batch)
	for range categories {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert category: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("insert categories: %w", err)
	}
	return nil
}

// GetCommon returns the cached entry for key, or nil if there is none.
func (s *PostgreSQLStore) GetCommon(ctx context.Context, key string) (*CommonEntry, error) {
	var (
		data      *string
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx, "SELECT data::text, updated_at FROM steam_common WHERE steamids = $1", key).
		Scan(&data, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query common entry: %w", err)
	}

	entry := &CommonEntry{UpdatedAt: updatedAt.UTC()}
	if data != nil {
		entry.Data = []byte(*data)
	}
	return entry, nil
}

// UpsertCommon inserts or replaces the entry for key.
func (s *PostgreSQLStore) UpsertCommon(ctx context.Context, key string, data []byte, updatedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO steam_common (steamids, data, updated_at)
		VALUES ($1, $2::json, $3)
		ON CONFLICT (steamids) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`, key, string(data), updatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert common entry: %w", err)
	}
	return nil
}

// PurgeCommon deletes common entries last updated before cutoff.
func (s *PostgreSQLStore) PurgeCommon(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM steam_common WHERE updated_at < $1", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge common entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close is a no-op; pool lifecycle is managed by storage layer.
func (s *PostgreSQLStore) Close() error {
	return nil
}
