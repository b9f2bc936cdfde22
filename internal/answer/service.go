package answer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"clinquery/internal/store"
)

// greetings that get the fixed redirect instead of a database round trip.
var greetings = map[string]struct{}{
	"hi": {}, "hii": {}, "hello": {}, "hey": {}, "halo": {}, "hai": {},
}

// SQLGenerator is the free-form SQL capability the service depends on.
// Satisfied by sqlgen.Generator.
type SQLGenerator interface {
	GenerateSemanticSQL(ctx context.Context, question string, addDefaultLimit bool) (string, error)
}

// Service answers one question end to end: question to SQL, SQL to rows,
// rows to reply text. Domain errors propagate to the guardrail layer, which
// owns translation into user-safe strings.
type Service struct {
	sqlgen    SQLGenerator
	runner    store.Runner
	formatter Formatter
	log       *zap.Logger
}

// NewService wires a Service.
func NewService(gen SQLGenerator, runner store.Runner, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{sqlgen: gen, runner: runner, log: log}
}

// Answer handles one question. Blank input and greetings short-circuit with
// fixed strings; everything else runs the full pipeline.
func (s *Service) Answer(ctx context.Context, question string) (string, error) {
	text := strings.TrimSpace(question)
	if text == "" {
		return MsgAskClinical, nil
	}
	if _, ok := greetings[strings.ToLower(text)]; ok {
		return MsgGreeting, nil
	}

	sql, err := s.sqlgen.GenerateSemanticSQL(ctx, text, true)
	if err != nil {
		return "", err
	}
	s.log.Debug("generated sql", zap.String("sql", sql))

	res, err := s.runner.Query(ctx, sql)
	if err != nil {
		return "", err
	}
	if res == nil {
		res = &store.QueryResult{}
	}
	return s.formatter.Format(text, res.Columns, res.Rows), nil
}
