package guardrails

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinquery/internal/answer"
	"clinquery/internal/llm"
	"clinquery/internal/sqlgen"
)

type fakeEngine struct {
	result any
	err    error
	calls  int
}

func (f *fakeEngine) Generate(ctx context.Context, messages []Message) (any, error) {
	f.calls++
	return f.result, f.err
}

func countingFallback(reply string, err error) (Fallback, *int) {
	calls := new(int)
	return func(ctx context.Context, text string) (string, error) {
		*calls++
		return reply, err
	}, calls
}

func TestRun_BlankInput(t *testing.T) {
	r := NewRouter(nil, nil, nil)
	fallback, calls := countingFallback("backend", nil)

	got := r.Run(context.Background(), "   ", fallback)
	assert.Equal(t, answer.MsgAskClinical, got)
	assert.Zero(t, *calls, "blank input must not reach the backend")
}

func TestRun_OutOfScopeNeverCallsBackend(t *testing.T) {
	r := NewRouter(nil, nil, nil)
	fallback, calls := countingFallback("backend", nil)

	for _, q := range []string{
		"what is the meaning of life?",
		"apa arti hidup sebenarnya",
		"what's your opinion on Trump",
		"siapa presiden terbaik, jokowi atau prabowo?",
		"do you believe in religion",
	} {
		got := r.Run(context.Background(), q, fallback)
		assert.Equal(t, RefusalMsg, got, "question: %s", q)
	}
	assert.Zero(t, *calls, "out-of-scope questions must never reach the backend")
}

func TestRun_ExtraKeywords(t *testing.T) {
	r := NewRouter(NewKeywordClassifier("astrology"), nil, nil)
	fallback, calls := countingFallback("backend", nil)

	got := r.Run(context.Background(), "tell me about astrology", fallback)
	assert.Equal(t, RefusalMsg, got)
	assert.Zero(t, *calls)
}

func TestRun_NoEngineUsesBackend(t *testing.T) {
	r := NewRouter(nil, nil, nil)
	fallback, calls := countingFallback("the answer", nil)

	got := r.Run(context.Background(), "how many patients are enrolled", fallback)
	assert.Equal(t, "the answer", got)
	assert.Equal(t, 1, *calls)
}

func TestRun_EngineRefusalReturnedVerbatim(t *testing.T) {
	engine := &fakeEngine{result: RefusalMsg}
	r := NewRouter(nil, engine, nil)
	fallback, calls := countingFallback("backend", nil)

	got := r.Run(context.Background(), "how many patients are enrolled", fallback)
	assert.Equal(t, RefusalMsg, got)
	assert.Zero(t, *calls)
}

func TestRun_EngineDefersToBackend(t *testing.T) {
	for _, result := range []any{
		DeferMarker,
		"",
		map[string]any{"unknown": "shape"},
		"I'm sorry, I Encountered An Error Processing Your Request just now.",
	} {
		engine := &fakeEngine{result: result}
		r := NewRouter(nil, engine, nil)
		fallback, calls := countingFallback("backend answer", nil)

		got := r.Run(context.Background(), "how many patients are enrolled", fallback)
		assert.Equal(t, "backend answer", got, "engine result: %v", result)
		assert.Equal(t, 1, *calls)
	}
}

func TestRun_EngineErrorFallsBack(t *testing.T) {
	engine := &fakeEngine{err: errors.New("engine exploded")}
	r := NewRouter(nil, engine, nil)
	fallback, calls := countingFallback("backend answer", nil)

	got := r.Run(context.Background(), "how many patients are enrolled", fallback)
	assert.Equal(t, "backend answer", got)
	assert.Equal(t, 1, *calls)
}

func TestRun_EngineAnswerTrusted(t *testing.T) {
	engine := &fakeEngine{result: "There are 42 patients."}
	r := NewRouter(nil, engine, nil)
	fallback, calls := countingFallback("backend", nil)

	got := r.Run(context.Background(), "how many patients are enrolled", fallback)
	assert.Equal(t, "There are 42 patients.", got)
	assert.Zero(t, *calls)
}

func TestNormalizeEngineOutput(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "  hello  ", "hello"},
		{"content map", map[string]any{"content": " hi "}, "hi"},
		{"content non-string", map[string]any{"content": 42}, ""},
		{"messages last assistant", map[string]any{"messages": []any{
			map[string]any{"role": "assistant", "content": "first"},
			map[string]any{"role": "user", "content": "question"},
			map[string]any{"role": "assistant", "content": "last"},
		}}, "last"},
		{"messages skips empty assistant", map[string]any{"messages": []any{
			map[string]any{"role": "assistant", "content": "kept"},
			map[string]any{"role": "assistant", "content": ""},
		}}, "kept"},
		{"list of messages", []any{
			map[string]any{"role": "assistant", "content": "from list"},
		}, "from list"},
		{"list without assistant", []any{
			map[string]any{"role": "user", "content": "q"},
		}, ""},
		{"unknown shape", 3.14, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeEngineOutput(tc.in))
		})
	}
}

func TestSafeBackendCall_ErrorMapping(t *testing.T) {
	r := NewRouter(nil, nil, nil)
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"blocked", &llm.BlockedError{Reason: "SAFETY"}, RefusalMsg},
		{"empty response", llm.ErrEmptyResponse, GenericLLMMsg},
		{"bad schema", llm.ErrBadSchema, GenericLLMMsg},
		{"not select", &sqlgen.NotSelectError{Text: "garbage"}, GenericLLMMsg},
		{"forbidden sql", &sqlgen.ForbiddenSQLError{Token: "DROP"}, GenericLLMMsg},
		{"rate limited", &llm.RateLimitedError{Detail: "quota"}, BackendErrMsg},
		{"unavailable", &llm.UnavailableError{Reason: "app_timeout"}, BackendErrMsg},
		{"database down", errors.New("connection refused"), BackendErrMsg},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fallback, _ := countingFallback("", tc.err)
			got := r.Run(context.Background(), "how many patients are enrolled", fallback)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestSafeBackendCall_NoErrorEscapes(t *testing.T) {
	r := NewRouter(nil, nil, nil)
	fallback := Fallback(func(ctx context.Context, text string) (string, error) {
		return "", errors.New("totally unexpected")
	})
	got := r.Run(context.Background(), "how many patients are enrolled", fallback)
	require.Equal(t, BackendErrMsg, got)
}
