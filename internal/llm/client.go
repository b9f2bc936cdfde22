// Package llm holds the language-model boundary of the analytics pipeline:
// the provider client contract, the resilience wrapper, response text and
// JSON normalization, and intent extraction with its rule-based fallback.
package llm

import "context"

// Part is one element of a generation request: either plain text or an
// inline binary attachment. Attachments are unused by the analytics pipeline
// but are part of the shared contract with the document OCR collaborator.
type Part struct {
	Text     string
	MIMEType string
	Data     []byte
}

// TextPart wraps a string as a request part.
func TextPart(s string) Part { return Part{Text: s} }

// GenerationConfig carries the provider-neutral generation knobs the
// pipeline sets on every call.
type GenerationConfig struct {
	Temperature     float64
	ResponseFormat  string // "json" or "text"
	MaxOutputTokens int
}

// PromptFeedback signals provider-side safety filtering of the prompt.
type PromptFeedback struct {
	BlockReason string
}

// ResponsePart is one text fragment of a candidate.
type ResponsePart struct {
	Text string
}

// Content is the body of a candidate.
type Content struct {
	Parts []ResponsePart
}

// Candidate is one completion alternative.
type Candidate struct {
	Content      Content
	FinishReason string
}

// Response is the provider-shaped reply. The pipeline depends only on this
// shape, never on a vendor SDK type: PromptFeedback.BlockReason for safety
// blocking, Candidates[].Content.Parts[].Text with Text as top-level
// fallback, and Candidates[].FinishReason.
type Response struct {
	PromptFeedback *PromptFeedback
	Candidates     []Candidate
	Text           string
}

// Client is the capability interface a provider implementation must satisfy.
// One implementation per vendor; the pipeline holds only this interface.
type Client interface {
	Generate(ctx context.Context, parts []Part, cfg GenerationConfig) (*Response, error)
}
