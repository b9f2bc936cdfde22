package sqlgen

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// DefaultLimit caps result sets on the free-form path when the model did not
// write its own LIMIT clause.
const DefaultLimit = 200

const sqlPrompt = `You translate a clinical analytics question into ONE PostgreSQL SELECT statement.
Schema:
  patients(id, trial_id, sex, age)
  trials(id, name)
  files(id, name, content)
Rules: output ONLY the SQL, no markdown, no explanation. SELECT statements only.
Question: %s`

// TextGenerator is the free-text LLM capability this package needs. The llm
// package's Extractor satisfies it.
type TextGenerator interface {
	FreeText(ctx context.Context, prompt string) (string, error)
}

// Generator produces validated free-form SQL from a natural-language
// question.
type Generator struct {
	llm          TextGenerator
	defaultLimit int
	log          *zap.Logger
}

// NewGenerator wires a Generator. Zero limit means DefaultLimit.
func NewGenerator(llm TextGenerator, defaultLimit int, log *zap.Logger) *Generator {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{llm: llm, defaultLimit: defaultLimit, log: log}
}

// GenerateSemanticSQL asks the model for a statement and then sanitizes it.
// Every statement that leaves this method starts with SELECT and carries no
// DML/DDL tokens; callers never see raw model output.
func (g *Generator) GenerateSemanticSQL(ctx context.Context, question string, addDefaultLimit bool) (string, error) {
	raw, err := g.llm.FreeText(ctx, fmt.Sprintf(sqlPrompt, strings.TrimSpace(question)))
	if err != nil {
		return "", err
	}
	sql, err := g.SanitizeSQL(raw, addDefaultLimit)
	if err != nil {
		g.log.Warn("rejected generated sql", zap.String("raw", truncate(raw, 300)), zap.Error(err))
		return "", err
	}
	return sql, nil
}

// SanitizeSQL salvages a SELECT span out of arbitrary text and validates it.
// The forbidden-token scan runs over the FULL input, not just the salvaged
// span: text like "DROP TABLE x; SELECT 1" is rejected outright rather than
// rescued by its trailing SELECT.
func (g *Generator) SanitizeSQL(text string, addDefaultLimit bool) (string, error) {
	sql, err := ensureSelectOnly(text)
	if err != nil {
		return "", err
	}
	if tok := forbiddenToken(text); tok != "" {
		return "", &ForbiddenSQLError{Token: tok}
	}
	if addDefaultLimit {
		sql = ensureLimit(sql, g.defaultLimit)
	}
	return sql, nil
}

var (
	codeFenceLineRe = regexp.MustCompile("(?im)^\\s*```(?:sql)?\\s*$")
	selectSpanRe    = regexp.MustCompile(`(?is)\bselect\b.*?(;|$)`)
	forbiddenRe     = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|truncate|create|grant|revoke)\b`)
	limitClauseRe   = regexp.MustCompile(`(?i)\blimit\s+\d+`)
	lineCommentRe   = regexp.MustCompile(`--[^\n]*`)
	blockCommentRe  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	stringLiteralRe = regexp.MustCompile(`'(?:[^']|'')*'`)
)

// ensureSelectOnly strips fences and comments, then salvages the first
// SELECT-to-semicolon-or-end span. No SELECT anywhere means *NotSelectError.
func ensureSelectOnly(text string) (string, error) {
	t := codeFenceLineRe.ReplaceAllString(text, "")
	t = strings.TrimSpace(stripSQLComments(t))
	if t == "" {
		return "", &NotSelectError{Text: text}
	}
	span := selectSpanRe.FindString(t)
	if span == "" {
		return "", &NotSelectError{Text: text}
	}
	sql := strings.TrimSpace(span)
	if !strings.HasPrefix(strings.ToUpper(sql), "SELECT") {
		return "", &NotSelectError{Text: text}
	}
	return sql, nil
}

// forbiddenToken scans for DML/DDL keywords as standalone tokens, ignoring
// string literals and comments. Returns "" when clean.
func forbiddenToken(text string) string {
	t := stripSQLComments(text)
	t = stringLiteralRe.ReplaceAllString(t, "''")
	if m := forbiddenRe.FindString(t); m != "" {
		return strings.ToUpper(m)
	}
	return ""
}

func stripSQLComments(text string) string {
	t := blockCommentRe.ReplaceAllString(text, " ")
	return lineCommentRe.ReplaceAllString(t, " ")
}

// ensureLimit appends "LIMIT n" when the statement has no LIMIT clause,
// preserving a trailing semicolon. Idempotent.
func ensureLimit(sql string, n int) string {
	if limitClauseRe.MatchString(sql) {
		return sql
	}
	trimmed := strings.TrimRight(strings.TrimSpace(sql), " \t\n")
	semicolon := ""
	if strings.HasSuffix(trimmed, ";") {
		semicolon = ";"
		trimmed = strings.TrimRight(strings.TrimSuffix(trimmed, ";"), " \t\n")
	}
	return fmt.Sprintf("%s LIMIT %d%s", trimmed, n, semicolon)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
