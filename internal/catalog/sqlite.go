package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"steamgate/internal/core"
)

// sqliteMaxVars keeps IN lists below SQLite's bound-parameter limit.
const sqliteMaxVars = 500

// SQLiteStore keeps the catalog in SQLite. JSON columns are stored as TEXT and
// timestamps as RFC 3339 UTC strings.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the catalog tables if needed.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	statements := []struct {
		name string
		sql  string
	}{
		{"steam_app", `
			CREATE TABLE IF NOT EXISTS steam_app (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				steam_appid INTEGER UNIQUE NOT NULL,
				name TEXT NOT NULL,
				categories TEXT NOT NULL DEFAULT '[]',
				header_image TEXT NOT NULL DEFAULT '',
				is_free INTEGER NOT NULL DEFAULT 0,
				platforms TEXT NOT NULL DEFAULT '{}',
				updated_at TEXT NOT NULL
			)
		`},
		{"steam_category", `
			CREATE TABLE IF NOT EXISTS steam_category (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				category_id INTEGER UNIQUE NOT NULL,
				description TEXT NOT NULL
			)
		`},
		{"steam_common", `
			CREATE TABLE IF NOT EXISTS steam_common (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				steamids TEXT UNIQUE NOT NULL,
				data TEXT,
				updated_at TEXT NOT NULL
			)
		`},
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt.sql); err != nil {
			return nil, fmt.Errorf("failed to create %s table: %w", stmt.name, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// GetApps returns the cataloged apps among ids.
func (s *SQLiteStore) GetApps(ctx context.Context, ids []int64) ([]core.App, error) {
	ids = uniqueIDs(ids)
	apps := make([]core.App, 0, len(ids))

	for chunk := range slices.Chunk(ids, sqliteMaxVars) {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		rows, err := s.db.QueryContext(ctx, `
			SELECT steam_appid, name, header_image, is_free, platforms, categories, updated_at
			FROM steam_app
			WHERE steam_appid IN (`+placeholders+`)
		`, args...)
		if err != nil {
			return nil, fmt.Errorf("query apps: %w", err)
		}

		for rows.Next() {
			app, err := scanSQLiteApp(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			apps = append(apps, app)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate app rows: %w", err)
		}
	}
	return apps, nil
}

func scanSQLiteApp(rows *sql.Rows) (core.App, error) {
	var (
		app        core.App
		isFree     int
		platforms  string
		categories string
		updatedAt  string
	)
	if err := rows.Scan(&app.SteamAppID, &app.Name, &app.HeaderImage, &isFree,
		&platforms, &categories, &updatedAt); err != nil {
		return app, fmt.Errorf("scan app row: %w", err)
	}

	app.IsFree = isFree != 0
	if err := json.Unmarshal([]byte(platforms), &app.Platforms); err != nil {
		return app, fmt.Errorf("decode platforms of app %d: %w", app.SteamAppID, err)
	}
	if err := json.Unmarshal([]byte(categories), &app.Categories); err != nil {
		return app, fmt.Errorf("decode categories of app %d: %w", app.SteamAppID, err)
	}
	if app.Categories == nil {
		app.Categories = []int{}
	}
	t, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return app, fmt.Errorf("decode updated_at of app %d: %w", app.SteamAppID, err)
	}
	app.UpdatedAt = t.UTC()
	return app, nil
}

// InsertApp stores app unless its steam_appid already exists.
func (s *SQLiteStore) InsertApp(ctx context.Context, app *core.App) error {
	platforms, err := json.Marshal(app.Platforms)
	if err != nil {
		return fmt.Errorf("encode platforms: %w", err)
	}
	categories := app.Categories
	if categories == nil {
		categories = []int{}
	}
	categoriesJSON, err := json.Marshal(categories)
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}

	isFree := 0
	if app.IsFree {
		isFree = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO steam_app (steam_appid, name, categories, header_image, is_free, platforms, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (steam_appid) DO NOTHING
	`, app.SteamAppID, app.Name, string(categoriesJSON), app.HeaderImage, isFree, string(platforms),
		app.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert app %d: %w", app.SteamAppID, err)
	}
	return nil
}

// GetCategories returns every category ordered by id.
func (s *SQLiteStore) GetCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT category_id, description FROM steam_category ORDER BY category_id")
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]core.Category, 0)
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.CategoryID, &c.Description); err != nil {
			return nil, fmt.Errorf("scan category row: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category rows: %w", err)
	}
	return categories, nil
}

// InsertCategories stores the categories that do not exist yet, in one transaction.
func (s *SQLiteStore) InsertCategories(ctx context.Context, categories []core.Category) error {
	categories = uniqueCategories(categories)
	if len(categories) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO steam_category (category_id, description)
		VALUES (?, ?)
		ON CONFLICT (category_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare category insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range categories {
		if _, err := stmt.ExecContext(ctx, c.CategoryID, c.Description); err != nil {
			return fmt.Errorf("insert category %d: %w", c.CategoryID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit categories: %w", err)
	}
	return nil
}

// GetCommon returns the cached entry for key, or nil if there is none.
func (s *SQLiteStore) GetCommon(ctx context.Context, key string) (*CommonEntry, error) {
	var (
		data      sql.NullString
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, "SELECT data, updated_at FROM steam_common WHERE steamids = ?", key).
		Scan(&data, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query common entry: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("decode common entry updated_at: %w", err)
	}
	entry := &CommonEntry{UpdatedAt: t.UTC()}
	if data.Valid {
		entry.Data = []byte(data.String)
	}
	return entry, nil
}

// UpsertCommon inserts or replaces the entry for key.
func (s *SQLiteStore) UpsertCommon(ctx context.Context, key string, data []byte, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO steam_common (steamids, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (steamids) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, key, string(data), updatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert common entry: %w", err)
	}
	return nil
}

// PurgeCommon deletes common entries last updated before cutoff.
// Timestamps are compared through julianday because RFC 3339 text with
// trimmed fractional seconds does not sort lexically.
func (s *SQLiteStore) PurgeCommon(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM steam_common WHERE julianday(updated_at) < julianday(?)",
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("purge common entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge common entries: %w", err)
	}
	return n, nil
}

// Close is a no-op; the connection lifecycle is managed by storage layer.
func (s *SQLiteStore) Close() error {
	return nil
}
