// Package store persists conversion results in SQLite, keyed by the BLAKE3
// digest of the input document.
package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	rlerrors "github.com/redlinekit/redline/core/errors"
	"github.com/redlinekit/redline/core/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversions (
	hash        TEXT PRIMARY KEY,
	source_name TEXT NOT NULL,
	markdown    TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL
);`

// Conversion is a stored conversion result.
type Conversion struct {
	Hash       string    `json:"hash"`
	SourceName string    `json:"source_name"`
	Markdown   string    `json:"markdown"`
	CreatedAt  time.Time `json:"created_at"`
}

// Stats describes the contents of a store.
type Stats struct {
	Conversions   int64  `json:"conversions"`
	MarkdownBytes int64  `json:"markdown_bytes"`
	Driver        string `json:"driver"`
	Path          string `json:"path"`
}

// Store is a SQLite-backed conversion store.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (creating if needed) the conversion store at path.
// Use ":memory:" for an ephemeral store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sqlite.Open(path)
	if err != nil {
		return nil, &rlerrors.IOError{Operation: "open", Path: path, Err: err}
	}

	// SQLite serializes writes anyway, and the pure Go driver keeps a
	// separate :memory: database per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, &rlerrors.IOError{Operation: "configure", Path: path, Err: err}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &rlerrors.IOError{Operation: "migrate", Path: path, Err: err}
	}

	logger.Debug("conversion store opened", "path", path, "driver", sqlite.DriverType())
	return &Store{db: db, path: path, logger: logger}, nil
}

// Get returns the conversion stored under hash.
func (s *Store) Get(ctx context.Context, hash string) (*Conversion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT hash, source_name, markdown, created_at FROM conversions WHERE hash = ?`, hash)

	var c Conversion
	if err := row.Scan(&c.Hash, &c.SourceName, &c.Markdown, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, rlerrors.NewNotFound("conversion", hash)
		}
		return nil, &rlerrors.IOError{Operation: "query", Path: s.path, Err: err}
	}
	return &c, nil
}

// Put stores a conversion, replacing any previous result for the same hash.
func (s *Store) Put(ctx context.Context, c *Conversion) error {
	if c.Hash == "" {
		return rlerrors.NewValidation("hash", "conversion hash is empty")
	}

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversions (hash, source_name, markdown, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET
			source_name = excluded.source_name,
			markdown    = excluded.markdown,
			created_at  = excluded.created_at`,
		c.Hash, c.SourceName, c.Markdown, createdAt)
	if err != nil {
		return &rlerrors.IOError{Operation: "write", Path: s.path, Err: err}
	}

	s.logger.Debug("conversion stored", "hash", c.Hash, "source", c.SourceName)
	return nil
}

// Delete removes the conversion stored under hash.
func (s *Store) Delete(ctx context.Context, hash string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversions WHERE hash = ?`, hash)
	if err != nil {
		return &rlerrors.IOError{Operation: "delete", Path: s.path, Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return &rlerrors.IOError{Operation: "delete", Path: s.path, Err: err}
	}
	if affected == 0 {
		return rlerrors.NewNotFound("conversion", hash)
	}
	return nil
}

// Clear removes all conversions and returns the number removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversions`)
	if err != nil {
		return 0, &rlerrors.IOError{Operation: "clear", Path: s.path, Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, &rlerrors.IOError{Operation: "clear", Path: s.path, Err: err}
	}

	s.logger.Debug("conversion store cleared", "removed", affected)
	return affected, nil
}

// Stats returns counts and sizes for the store.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(markdown)), 0) FROM conversions`)

	stats := &Stats{Driver: sqlite.DriverType(), Path: s.path}
	if err := row.Scan(&stats.Conversions, &stats.MarkdownBytes); err != nil {
		return nil, &rlerrors.IOError{Operation: "query", Path: s.path, Err: err}
	}
	return stats, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
