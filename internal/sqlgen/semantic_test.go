package sqlgen

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeTextGenerator struct {
	text string
	err  error
}

func (f *fakeTextGenerator) FreeText(ctx context.Context, prompt string) (string, error) {
	return f.text, f.err
}

func newTestGenerator(text string) *Generator {
	return NewGenerator(&fakeTextGenerator{text: text}, 200, nil)
}

func TestGenerateSemanticSQL_SalvagesFromProse(t *testing.T) {
	blob := "Sure! Here is the query you asked for:\n\n" +
		"SELECT id, name FROM patients WHERE age > 30;\n\n" +
		"Let me know if you need anything else."
	g := newTestGenerator(blob)

	sql, err := g.GenerateSemanticSQL(context.Background(), "patients over thirty", false)
	if err != nil {
		t.Fatalf("GenerateSemanticSQL failed: %v", err)
	}
	if sql != "SELECT id, name FROM patients WHERE age > 30;" {
		t.Errorf("Unexpected salvage result: %q", sql)
	}
}

func TestGenerateSemanticSQL_StripsCodeFence(t *testing.T) {
	g := newTestGenerator("```sql\nSELECT name FROM trials\n```")

	sql, err := g.GenerateSemanticSQL(context.Background(), "list trials", false)
	if err != nil {
		t.Fatalf("GenerateSemanticSQL failed: %v", err)
	}
	if sql != "SELECT name FROM trials" {
		t.Errorf("Unexpected result: %q", sql)
	}
}

func TestGenerateSemanticSQL_ForbiddenBeforeSalvage(t *testing.T) {
	// The trailing SELECT must not rescue a statement that also carries DML.
	g := newTestGenerator("DROP TABLE patients; SELECT 1")

	_, err := g.GenerateSemanticSQL(context.Background(), "anything", false)
	var forbidden *ForbiddenSQLError
	if !errors.As(err, &forbidden) {
		t.Fatalf("Expected *ForbiddenSQLError, got %v", err)
	}
	if forbidden.Token != "DROP" {
		t.Errorf("Expected token DROP, got %s", forbidden.Token)
	}
}

func TestGenerateSemanticSQL_ForbiddenToken(t *testing.T) {
	for _, text := range []string{
		"SELECT id FROM patients; DELETE FROM patients",
		"INSERT INTO patients VALUES (1); SELECT 1",
		"SELECT * FROM patients WHERE id = 1; UPDATE patients SET age = 0",
	} {
		g := newTestGenerator(text)
		_, err := g.GenerateSemanticSQL(context.Background(), "q", false)
		var forbidden *ForbiddenSQLError
		if !errors.As(err, &forbidden) {
			t.Errorf("Expected *ForbiddenSQLError for %q, got %v", text, err)
		}
	}
}

func TestGenerateSemanticSQL_KeywordInsideLiteralIsFine(t *testing.T) {
	g := newTestGenerator("SELECT name FROM trials WHERE name = 'drop zone update'")

	sql, err := g.GenerateSemanticSQL(context.Background(), "q", false)
	if err != nil {
		t.Fatalf("Keywords inside string literals must pass: %v", err)
	}
	if !strings.Contains(sql, "'drop zone update'") {
		t.Errorf("Literal was mangled: %q", sql)
	}
}

func TestGenerateSemanticSQL_Garbage(t *testing.T) {
	for _, text := range []string{"", "   ", "I don't know how to answer that."} {
		g := newTestGenerator(text)
		_, err := g.GenerateSemanticSQL(context.Background(), "q", false)
		var notSelect *NotSelectError
		if !errors.As(err, &notSelect) {
			t.Errorf("Expected *NotSelectError for %q, got %v", text, err)
		}
	}
}

func TestGenerateSemanticSQL_AddsDefaultLimit(t *testing.T) {
	g := newTestGenerator("SELECT id FROM patients;")

	sql, err := g.GenerateSemanticSQL(context.Background(), "q", true)
	if err != nil {
		t.Fatalf("GenerateSemanticSQL failed: %v", err)
	}
	if sql != "SELECT id FROM patients LIMIT 200;" {
		t.Errorf("Expected limit before restored semicolon, got %q", sql)
	}
}

func TestEnsureLimit_Idempotent(t *testing.T) {
	once := ensureLimit("SELECT id FROM patients", 200)
	twice := ensureLimit(once, 200)
	if once != twice {
		t.Errorf("ensureLimit not idempotent: %q vs %q", once, twice)
	}

	withLimit := "SELECT id FROM patients LIMIT 50"
	if got := ensureLimit(withLimit, 200); got != withLimit {
		t.Errorf("Existing LIMIT must be preserved, got %q", got)
	}
}
