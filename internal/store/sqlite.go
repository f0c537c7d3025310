package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores session items in a local SQLite file. Used when
// MongoDB is not configured (local development) and in tests; it carries the
// same keyed contract as the MongoDB engine.
type SQLiteRepository struct {
	db   *sql.DB
	path string
}

// NewSQLiteRepository opens (or creates) the SQLite store at path
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Single writer; serialized access keeps per-key write ordering simple
	db.SetMaxOpenConns(1)

	repo := &SQLiteRepository{db: db, path: path}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("✅ SQLite session store initialized at %s", path)
	return repo, nil
}

func (r *SQLiteRepository) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS items (
			pk     TEXT NOT NULL,
			sk     TEXT NOT NULL,
			data   BLOB NOT NULL,
			gsi1pk TEXT DEFAULT '',
			gsi1sk TEXT DEFAULT '',
			PRIMARY KEY (pk, sk)
		);
		CREATE INDEX IF NOT EXISTS idx_items_gsi1
		ON items (gsi1pk, gsi1sk DESC);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("%w: failed to initialize schema: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// GetItem fetches a single item by its composite key
func (r *SQLiteRepository) GetItem(ctx context.Context, pk, sk string) (Item, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT pk, sk, data, gsi1pk, gsi1sk FROM items WHERE pk = ? AND sk = ?", pk, sk)

	var item Item
	err := row.Scan(&item.PK, &item.SK, &item.Data, &item.GSI1PK, &item.GSI1SK)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return item, nil
}

// PutItem writes an item, replacing any existing record under the same key
func (r *SQLiteRepository) PutItem(ctx context.Context, item Item) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO items (pk, sk, data, gsi1pk, gsi1sk)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (pk, sk) DO UPDATE SET
			data = excluded.data,
			gsi1pk = excluded.gsi1pk,
			gsi1sk = excluded.gsi1sk
	`, item.PK, item.SK, item.Data, item.GSI1PK, item.GSI1SK)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// QueryByPrefix returns the items under pk whose SK starts with skPrefix,
// ascending by SK.
func (r *SQLiteRepository) QueryByPrefix(ctx context.Context, pk, skPrefix string) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT pk, sk, data, gsi1pk, gsi1sk FROM items
		WHERE pk = ? AND sk >= ? AND sk < ?
		ORDER BY sk ASC
	`, pk, skPrefix, skPrefix+"\xff")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// QueryByIndex returns items in a recency partition, most recent first
func (r *SQLiteRepository) QueryByIndex(ctx context.Context, gsi1pk string, limit int, startAfter string) ([]Item, error) {
	query := `
		SELECT pk, sk, data, gsi1pk, gsi1sk FROM items
		WHERE gsi1pk = ?
	`
	args := []any{gsi1pk}

	if startAfter != "" {
		query += " AND gsi1sk < ?"
		args = append(args, startAfter)
	}
	query += " ORDER BY gsi1sk DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	return scanItems(rows)
}

func scanItems(rows *sql.Rows) ([]Item, error) {
	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.PK, &item.SK, &item.Data, &item.GSI1PK, &item.GSI1SK); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return items, nil
}

// Name identifies the storage engine
func (r *SQLiteRepository) Name() string { return "sqlite" }

// Ping checks that the store file is reachable
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the underlying database
func (r *SQLiteRepository) Close(_ context.Context) error {
	return r.db.Close()
}
