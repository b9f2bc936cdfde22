// Package guardrails is the outermost decision layer: it filters out-of-scope
// questions before any backend work, optionally consults an external policy
// engine, and guarantees that no error from the pipeline ever reaches the
// caller as anything but a fixed user-safe string.
package guardrails

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"clinquery/internal/answer"
	"clinquery/internal/llm"
	"clinquery/internal/sqlgen"
)

// Fixed user-facing strings. RefusalMsg doubles as the recognition token for
// a policy engine that answered with its own out-of-scope rule.
const (
	RefusalMsg    = "Mohon tanyakan pertanyaan yang relevan dengan data klinis."
	GenericLLMMsg = "Maaf, sistem tidak dapat menjawab pertanyaan tersebut. Silakan ajukan pertanyaan yang lebih spesifik terkait data klinis."
	BackendErrMsg = "Maaf, terjadi masalah saat memproses pertanyaan ini di backend. Silakan coba lagi."

	// DeferMarker is the policy-engine convention for "I have no opinion,
	// let the backend answer".
	DeferMarker = "__DEFER_TO_BACKEND__"

	// engineErrorSignature in policy output means the engine hit its own
	// internal failure; its text is never shown.
	engineErrorSignature = "encountered an error processing your request"
)

// Message is one turn in a policy-engine conversation.
type Message struct {
	Role    string
	Content string
}

// PolicyEngine is the optional external moderation hook. Its return shape is
// vendor-defined, so output goes through NormalizeEngineOutput.
type PolicyEngine interface {
	Generate(ctx context.Context, messages []Message) (any, error)
}

// Classifier decides whether a question is out of scope without any backend
// call.
type Classifier interface {
	OutOfScope(text string) bool
}

// Fallback is the backend answer chain.
type Fallback func(ctx context.Context, text string) (string, error)

// defaultOutOfScope is the static keyword list: existential topics, politics,
// and opinion bait, Indonesian and English.
var defaultOutOfScope = []string{
	"meaning of life",
	"arti hidup",
	"love",
	"cinta",
	"religion",
	"agama",
	"trump",
	"biden",
	"prabowo",
	"jokowi",
	"presiden",
	"election",
	"pemilu",
	"politik",
	"politic",
	"opinion on",
}

// KeywordClassifier matches case-insensitive substrings against a static
// list.
type KeywordClassifier struct {
	keywords []string
}

// NewKeywordClassifier returns the default classifier with optional extra
// keywords appended.
func NewKeywordClassifier(extra ...string) *KeywordClassifier {
	kws := make([]string, 0, len(defaultOutOfScope)+len(extra))
	kws = append(kws, defaultOutOfScope...)
	for _, k := range extra {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kws = append(kws, k)
		}
	}
	return &KeywordClassifier{keywords: kws}
}

// OutOfScope reports whether text contains any listed keyword.
func (c *KeywordClassifier) OutOfScope(text string) bool {
	m := strings.ToLower(text)
	for _, k := range c.keywords {
		if strings.Contains(m, k) {
			return true
		}
	}
	return false
}

// NormalizeEngineOutput flattens a policy-engine result into plain text.
// Supported shapes: string; map with "content"; map with "messages" (content
// of the last assistant message with non-empty content); list of role/content
// maps, same rule. Anything else normalizes to "" so the caller defers to the
// backend.
func NormalizeEngineOutput(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		if c, ok := v["content"]; ok {
			s, _ := c.(string)
			return strings.TrimSpace(s)
		}
		if msgs, ok := v["messages"].([]any); ok {
			return lastAssistantContent(msgs)
		}
		return ""
	case []any:
		return lastAssistantContent(v)
	case []Message:
		for i := len(v) - 1; i >= 0; i-- {
			if v[i].Role == "assistant" && strings.TrimSpace(v[i].Content) != "" {
				return strings.TrimSpace(v[i].Content)
			}
		}
		return ""
	}
	return ""
}

func lastAssistantContent(msgs []any) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m, ok := msgs[i].(map[string]any)
		if !ok {
			continue
		}
		if role, _ := m["role"].(string); role != "assistant" {
			continue
		}
		if content, _ := m["content"].(string); strings.TrimSpace(content) != "" {
			return strings.TrimSpace(content)
		}
	}
	return ""
}

// Router is the guardrail entrypoint.
type Router struct {
	classifier Classifier
	engine     PolicyEngine // may be nil
	log        *zap.Logger
}

// NewRouter wires a Router. A nil classifier gets the default keyword list;
// a nil engine means every in-scope question goes straight to the backend.
func NewRouter(classifier Classifier, engine PolicyEngine, log *zap.Logger) *Router {
	if classifier == nil {
		classifier = NewKeywordClassifier()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{classifier: classifier, engine: engine, log: log}
}

// Run filters and routes one question. Never returns an error: every failure
// below this point is translated to a fixed string.
func (r *Router) Run(ctx context.Context, userMessage string, fallback Fallback) string {
	text := strings.TrimSpace(userMessage)
	if text == "" {
		return answer.MsgAskClinical
	}
	if r.classifier.OutOfScope(text) {
		r.log.Info("out-of-scope question refused", zap.String("question", text))
		return RefusalMsg
	}
	if r.engine == nil {
		return r.safeBackendCall(ctx, fallback, text)
	}

	result, err := r.engine.Generate(ctx, []Message{{Role: "user", Content: text}})
	if err != nil {
		r.log.Warn("policy engine error, deferring to backend", zap.Error(err))
		return r.safeBackendCall(ctx, fallback, text)
	}

	engineText := NormalizeEngineOutput(result)
	if engineText == RefusalMsg {
		return engineText
	}
	if engineText == "" || engineText == DeferMarker {
		return r.safeBackendCall(ctx, fallback, text)
	}
	if strings.Contains(strings.ToLower(engineText), engineErrorSignature) {
		r.log.Warn("policy engine reported internal error, deferring to backend")
		return r.safeBackendCall(ctx, fallback, text)
	}
	return engineText
}

// safeBackendCall invokes the backend chain and maps every error to one of
// three fixed strings: safety blocks get the scope refusal, malformed model
// output and unanswerable SQL get the be-more-specific message, everything
// else (rate limits, timeouts, database failures) gets the try-again message.
func (r *Router) safeBackendCall(ctx context.Context, fallback Fallback, text string) string {
	reply, err := fallback(ctx, text)
	if err == nil {
		return reply
	}

	var blocked *llm.BlockedError
	if errors.As(err, &blocked) {
		r.log.Info("prompt blocked", zap.String("question", text), zap.Error(err))
		return RefusalMsg
	}

	var notSelect *sqlgen.NotSelectError
	var forbidden *sqlgen.ForbiddenSQLError
	if errors.Is(err, llm.ErrEmptyResponse) || errors.Is(err, llm.ErrBadSchema) ||
		errors.As(err, &notSelect) || errors.As(err, &forbidden) {
		r.log.Warn("could not answer", zap.String("question", text), zap.Error(err))
		return GenericLLMMsg
	}

	r.log.Error("backend failure", zap.String("question", text), zap.Error(err))
	return BackendErrMsg
}
