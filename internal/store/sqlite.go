package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteRunner runs statements on a local database file. Used for local
// development and the test suite; the parameter syntax matches the Postgres
// runner ($1..$n), which SQLite accepts natively.
type SQLiteRunner struct {
	db  *sql.DB
	log *zap.Logger
}

// NewSQLiteRunner opens (creating parent directories if needed) a SQLite
// database in WAL mode with a single writer connection.
func NewSQLiteRunner(path string, log *zap.Logger) (*SQLiteRunner, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debug("set busy_timeout failed", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debug("set journal_mode failed", zap.Error(err))
	}
	return &SQLiteRunner{db: db, log: log}, nil
}

// DB exposes the handle so tests and tooling can seed fixture data.
func (r *SQLiteRunner) DB() *sql.DB { return r.db }

// Close closes the underlying handle.
func (r *SQLiteRunner) Close() error { return r.db.Close() }

// Query executes a SELECT and materializes all rows.
func (r *SQLiteRunner) Query(ctx context.Context, query string, params ...any) (*QueryResult, error) {
	if err := ensureSelect(query); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	res := &QueryResult{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	r.log.Debug("sqlite query", zap.Int("rows", len(res.Rows)), zap.Int("cols", len(cols)))
	return res, nil
}
