// Package store executes the validated read-only statements produced by the
// analytics pipeline. Two runners share one result shape: Postgres for
// deployments and SQLite for local development and tests.
package store

import (
	"context"
	"errors"
	"strings"
)

// QueryResult is the driver-neutral result the formatter consumes.
type QueryResult struct {
	Columns []string
	Rows    [][]any
}

// ErrReadOnly rejects any statement that does not start with SELECT. Runners
// enforce this even though the generator already validated: defense in depth
// at the last hop before the database.
var ErrReadOnly = errors.New("runner is read-only, SELECT statements only")

// Runner executes one read-only statement.
type Runner interface {
	Query(ctx context.Context, sql string, params ...any) (*QueryResult, error)
}

func ensureSelect(sql string) error {
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sql)), "SELECT") {
		return ErrReadOnly
	}
	return nil
}
