package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresRunner runs statements on a pgx connection pool.
type PostgresRunner struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// NewPostgresRunner connects a pool from a DATABASE_URL-style DSN.
func NewPostgresRunner(ctx context.Context, dsn string, log *zap.Logger) (*PostgresRunner, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresRunner{pool: pool, log: log}, nil
}

// Close releases the pool.
func (r *PostgresRunner) Close() {
	r.pool.Close()
}

// Query executes a SELECT and materializes all rows.
func (r *PostgresRunner) Query(ctx context.Context, sql string, params ...any) (*QueryResult, error) {
	if err := ensureSelect(sql); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	res := &QueryResult{}
	for _, fd := range rows.FieldDescriptions() {
		res.Columns = append(res.Columns, fd.Name)
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	r.log.Debug("postgres query", zap.Int("rows", len(res.Rows)), zap.Int("cols", len(res.Columns)))
	return res, nil
}
