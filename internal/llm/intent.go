package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Kind is the closed set of recognized intents. Anything an untrusted source
// hands us that is not in the set is coerced to KindUnsupported, never
// passed through.
type Kind string

const (
	KindTotalPatients        Kind = "TOTAL_PATIENTS"
	KindCountPatientsByTrial Kind = "COUNT_PATIENTS_BY_TRIAL"
	KindGetFileByName        Kind = "GET_FILE_BY_NAME"
	KindUnsupported          Kind = "UNSUPPORTED"
)

// KindFromString uppercases s and coerces unknown values to KindUnsupported.
func KindFromString(s string) Kind {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(s))); k {
	case KindTotalPatients, KindCountPatientsByTrial, KindGetFileByName, KindUnsupported:
		return k
	}
	return KindUnsupported
}

// Intent is the structured result of intent extraction. Field order matters:
// the wire format is a single compact line {"intent":"X","args":{...}}.
type Intent struct {
	Kind Kind           `json:"intent"`
	Args map[string]any `json:"args"`
}

// NewIntent builds an Intent with a non-nil args map.
func NewIntent(kind Kind, args map[string]any) Intent {
	if args == nil {
		args = map[string]any{}
	}
	return Intent{Kind: kind, Args: args}
}

// CompactJSON renders the persisted wire format: one line, no extraneous
// whitespace, keys in order intent then args.
func (i Intent) CompactJSON() (string, error) {
	if i.Args == nil {
		i.Args = map[string]any{}
	}
	b, err := json.Marshal(i)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

const intentPrompt = `Anda adalah agen ekstraksi INTENT. Balas HANYA JSON SATU BARIS TANPA MARKDOWN, tanpa teks lain. Skema: {"intent":"<INTENT>","args":{...}}. INTENT valid: TOTAL_PATIENTS; COUNT_PATIENTS_BY_TRIAL (args: {"trial_name":"<string>"}); GET_FILE_BY_NAME (args: {"filename":"<string>"}). Jika tidak cocok, keluarkan {"intent":"UNSUPPORTED","args":{}}.`

// smallTalk inputs skip the LLM entirely.
var smallTalk = map[string]struct{}{
	"hi": {}, "hai": {}, "halo": {}, "hello": {}, "bye": {},
	"thanks": {}, "thank you": {}, "makasih": {}, "terima kasih": {},
}

// fastpathIntent short-circuits trivially-classifiable input: blank text,
// known small talk, and anything of two words or fewer.
func fastpathIntent(q string) (Intent, bool) {
	s := strings.ToLower(strings.TrimSpace(q))
	if s == "" {
		return NewIntent(KindUnsupported, nil), true
	}
	if _, ok := smallTalk[s]; ok {
		return NewIntent(KindUnsupported, nil), true
	}
	if len(strings.Fields(s)) <= 2 {
		return NewIntent(KindUnsupported, nil), true
	}
	return Intent{}, false
}

// Extractor coordinates the resilient caller, the provider client, safety
// checks, text extraction, and JSON normalization.
type Extractor struct {
	client Client
	caller *Caller
	log    *zap.Logger
}

// NewExtractor wires an Extractor. The client is injected explicitly; there
// is no process-wide singleton, so tests substitute a fake without patching.
func NewExtractor(client Client, caller *Caller, log *zap.Logger) *Extractor {
	if caller == nil {
		caller = NewCaller(22 * time.Second)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{client: client, caller: caller, log: log}
}

var jsonModeConfig = GenerationConfig{
	Temperature:     0,
	ResponseFormat:  "json",
	MaxOutputTokens: 256,
}

var textModeConfig = GenerationConfig{
	Temperature:     0,
	ResponseFormat:  "text",
	MaxOutputTokens: 256,
}

// checkBlocked raises *BlockedError when the prompt was safety-filtered or
// any candidate finished for a safety reason.
func checkBlocked(resp *Response) error {
	if resp == nil {
		return nil
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return &BlockedError{Reason: fb.BlockReason}
	}
	for _, cand := range resp.Candidates {
		switch strings.ToLower(cand.FinishReason) {
		case "safety", "blocked":
			return &BlockedError{Reason: "finish_reason=" + cand.FinishReason}
		}
	}
	return nil
}

// InferIntent classifies one question into the intent schema.
func (e *Extractor) InferIntent(ctx context.Context, question string) (Intent, error) {
	q := strings.TrimSpace(question)
	if intent, ok := fastpathIntent(q); ok {
		return intent, nil
	}

	resp, err := Run(e.caller, func() (*Response, error) {
		return e.client.Generate(ctx, []Part{TextPart(intentPrompt), TextPart(q)}, jsonModeConfig)
	})
	if err != nil {
		return Intent{}, err
	}
	if err := checkBlocked(resp); err != nil {
		return Intent{}, err
	}

	raw := ExtractText(resp)
	if raw == "" {
		return Intent{}, fmt.Errorf("%w: no text in provider response", ErrEmptyResponse)
	}

	obj := TryParseJSON(raw)
	if obj == nil {
		e.log.Warn("invalid intent json", zap.String("raw", truncate(raw, 300)))
		return Intent{}, fmt.Errorf("%w: invalid json", ErrBadSchema)
	}
	rawIntent, hasIntent := obj["intent"]
	rawArgs, hasArgs := obj["args"]
	if !hasIntent && !hasArgs {
		return Intent{}, fmt.Errorf("%w: missing intent and args", ErrBadSchema)
	}

	args, _ := rawArgs.(map[string]any)
	return NewIntent(KindFromString(fmt.Sprint(rawIntent)), args), nil
}

// FreeText asks the model for plain text with the same resilience and
// blocking handling as InferIntent. A blank reply is retried once after a
// short pause before surfacing ErrEmptyResponse.
func (e *Extractor) FreeText(ctx context.Context, prompt string) (string, error) {
	once := func() (string, error) {
		resp, err := Run(e.caller, func() (*Response, error) {
			return e.client.Generate(ctx, []Part{TextPart(strings.TrimSpace(prompt))}, textModeConfig)
		})
		if err != nil {
			return "", err
		}
		if err := checkBlocked(resp); err != nil {
			return "", err
		}
		return ExtractText(resp), nil
	}

	text, err := once()
	if err != nil {
		return "", err
	}
	if text == "" {
		e.caller.sleep(150 * time.Millisecond)
		if text, err = once(); err != nil {
			return "", err
		}
	}
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
