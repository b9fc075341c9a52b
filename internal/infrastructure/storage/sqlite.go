package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBackend keeps one row per collection holding its JSON snapshot.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	b := &SQLiteBackend{db: db}
	if err := b.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return b, nil
}

func (b *SQLiteBackend) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := b.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

func (b *SQLiteBackend) Save(ctx context.Context, collection string, data []byte) error {
	query := `INSERT INTO collections (name, data, updated_at)
			  VALUES (?, ?, ?)
			  ON CONFLICT(name) DO UPDATE SET
			  data=excluded.data,
			  updated_at=excluded.updated_at`
	if _, err := b.db.ExecContext(ctx, query, collection, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("save %s: %w", collection, err)
	}
	return nil
}

// Load returns nil data when the collection was never saved.
func (b *SQLiteBackend) Load(ctx context.Context, collection string) ([]byte, error) {
	row := b.db.QueryRowContext(ctx, `SELECT data FROM collections WHERE name = ?`, collection)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
