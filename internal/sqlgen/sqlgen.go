// Package sqlgen turns a recognized intent or a free-form analytic question
// into a SELECT-only SQL statement. The template path is injection-safe by
// construction; the free-form path salvages SQL out of model prose and then
// applies the mandatory safety validation.
package sqlgen

import (
	"errors"
	"fmt"

	"clinquery/internal/llm"
)

// Statement is a parameterized SQL statement. Text uses positional $1..$n
// placeholders and Params always has exactly as many elements.
type Statement struct {
	Text   string
	Params []any
}

// ErrUnsupportedIntent is returned for intent kinds outside the template table.
var ErrUnsupportedIntent = errors.New("unsupported intent")

// NotSelectError means the free-form path produced no usable SELECT
// statement, including empty or garbage model output.
type NotSelectError struct {
	Text string
}

func (e *NotSelectError) Error() string {
	return "generated text is not a SELECT statement"
}

// ForbiddenSQLError means a DML/DDL keyword was present as a standalone
// token outside string literals. Never retried, never salvaged further.
type ForbiddenSQLError struct {
	Token string
}

func (e *ForbiddenSQLError) Error() string {
	return "forbidden SQL keyword: " + e.Token
}

// BuildSQL maps a known intent kind to its fixed parameterized statement.
// Statement text never varies with user input, only bound parameters do.
func BuildSQL(kind llm.Kind, args map[string]any) (Statement, error) {
	switch kind {
	case llm.KindTotalPatients:
		return Statement{
			Text:   "SELECT COUNT(*) FROM patients",
			Params: []any{},
		}, nil
	case llm.KindCountPatientsByTrial:
		return Statement{
			Text:   "SELECT COUNT(*) FROM patients WHERE trial_id = (SELECT id FROM trials WHERE name = $1 LIMIT 1)",
			Params: []any{args["trial_name"]},
		}, nil
	case llm.KindGetFileByName:
		return Statement{
			Text:   "SELECT content FROM files WHERE name = $1 LIMIT 1",
			Params: []any{args["filename"]},
		}, nil
	}
	return Statement{}, fmt.Errorf("%w: %s", ErrUnsupportedIntent, kind)
}
