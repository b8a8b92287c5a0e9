package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"heroes/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps the collection in a SQLite table. The position column
// preserves insertion order across reads and writes.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore creates or opens the database at path and applies the schema.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, model.NewStorageError("open", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, model.NewStorageError("open", err)
	}

	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, model.NewStorageError("open", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, model.NewStorageError("open", fmt.Errorf("apply schema: %w", err))
	}
	return &SQLiteStore{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLiteStore) LoadAll(ctx context.Context) (model.Collection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, real_name, universe
		FROM characters
		ORDER BY position
	`)
	if err != nil {
		return nil, model.NewStorageError("load", err)
	}
	defer rows.Close()

	c := model.Collection{}
	for rows.Next() {
		var ch model.Character
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.RealName, &ch.Universe); err != nil {
			return nil, model.NewStorageError("load", err)
		}
		c = append(c, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewStorageError("load", err)
	}
	return c, nil
}

// SaveAll replaces every row inside one transaction.
func (s *SQLiteStore) SaveAll(ctx context.Context, c model.Collection) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.NewStorageError("save", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM characters`); err != nil {
		return model.NewStorageError("save", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO characters (position, id, name, real_name, universe)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return model.NewStorageError("save", err)
	}
	defer stmt.Close()

	for i, ch := range c {
		if _, err = stmt.ExecContext(ctx, i, int64(ch.ID), ch.Name, ch.RealName, ch.Universe); err != nil {
			return model.NewStorageError("save", fmt.Errorf("insert character %d: %w", ch.ID, err))
		}
	}

	if err = tx.Commit(); err != nil {
		return model.NewStorageError("save", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
