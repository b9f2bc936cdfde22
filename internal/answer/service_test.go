package answer

import (
	"context"
	"errors"
	"testing"

	"clinquery/internal/store"
)

type fakeGenerator struct {
	sql   string
	err   error
	calls int
}

func (f *fakeGenerator) GenerateSemanticSQL(ctx context.Context, question string, addDefaultLimit bool) (string, error) {
	f.calls++
	return f.sql, f.err
}

type fakeRunner struct {
	result *store.QueryResult
	err    error
	lastQ  string
}

func (f *fakeRunner) Query(ctx context.Context, sql string, params ...any) (*store.QueryResult, error) {
	f.lastQ = sql
	return f.result, f.err
}

func TestService_BlankInput(t *testing.T) {
	gen := &fakeGenerator{}
	svc := NewService(gen, &fakeRunner{}, nil)

	got, err := svc.Answer(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if got != MsgAskClinical {
		t.Errorf("Expected %q, got %q", MsgAskClinical, got)
	}
	if gen.calls != 0 {
		t.Error("Blank input must not reach SQL generation")
	}
}

func TestService_Greeting(t *testing.T) {
	gen := &fakeGenerator{}
	svc := NewService(gen, &fakeRunner{}, nil)

	for _, q := range []string{"hi", "Hii", "HELLO", "hey", "halo", "hai"} {
		got, err := svc.Answer(context.Background(), q)
		if err != nil {
			t.Fatalf("Answer(%q) failed: %v", q, err)
		}
		if got != MsgGreeting {
			t.Errorf("Answer(%q) = %q, want greeting", q, got)
		}
	}
	if gen.calls != 0 {
		t.Error("Greetings must not reach SQL generation")
	}
}

func TestService_FullPipeline(t *testing.T) {
	gen := &fakeGenerator{sql: "SELECT COUNT(*) FROM patients LIMIT 200"}
	runner := &fakeRunner{result: &store.QueryResult{
		Columns: []string{"count"},
		Rows:    [][]any{{int64(57)}},
	}}
	svc := NewService(gen, runner, nil)

	got, err := svc.Answer(context.Background(), "how many patients are there?")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if got != "There are 57 unique patient entries across all clinical trials." {
		t.Errorf("Unexpected answer: %q", got)
	}
	if runner.lastQ != gen.sql {
		t.Errorf("Runner received %q, want %q", runner.lastQ, gen.sql)
	}
}

func TestService_GeneratorErrorPropagates(t *testing.T) {
	wantErr := errors.New("generation failed")
	svc := NewService(&fakeGenerator{err: wantErr}, &fakeRunner{}, nil)

	_, err := svc.Answer(context.Background(), "something analytical enough")
	if !errors.Is(err, wantErr) {
		t.Fatalf("Expected generator error to propagate, got %v", err)
	}
}

func TestService_RunnerErrorPropagates(t *testing.T) {
	wantErr := errors.New("connection refused")
	svc := NewService(&fakeGenerator{sql: "SELECT 1"}, &fakeRunner{err: wantErr}, nil)

	_, err := svc.Answer(context.Background(), "something analytical enough")
	if !errors.Is(err, wantErr) {
		t.Fatalf("Expected runner error to propagate, got %v", err)
	}
}

func TestService_NilResult(t *testing.T) {
	svc := NewService(&fakeGenerator{sql: "SELECT 1"}, &fakeRunner{}, nil)

	got, err := svc.Answer(context.Background(), "something analytical enough")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if got != MsgNoResults {
		t.Errorf("Nil result must read as no rows, got %q", got)
	}
}
