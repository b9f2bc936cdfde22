package llm

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// Response text extraction and near-miss JSON repair. Models asked for
// "one-line JSON, no markdown" still wrap output in code fences, use single
// quotes, or bury the object in prose; everything here is best-effort and
// never panics.

var (
	codeFenceRe     = regexp.MustCompile("(?im)^\\s*```(?:json)?\\s*$")
	jsonSlopRe      = regexp.MustCompile(`(?s)\{.*\}`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractText pulls plain text out of a provider response: the concatenated
// non-empty candidate parts first, then the top-level text fallback. Returns
// "" when neither yields non-blank content.
func ExtractText(resp *Response) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if strings.TrimSpace(p.Text) == "" {
				continue
			}
			b.WriteString(p.Text)
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		return s
	}
	return strings.TrimSpace(resp.Text)
}

// StripToJSONLine removes markdown code fences, extracts the first top-level
// {...} span, and compacts it to a single line. Text that still fails a
// strict parse is whitespace-collapsed instead.
func StripToJSONLine(text string) string {
	if text == "" {
		return ""
	}
	t := strings.TrimSpace(codeFenceRe.ReplaceAllString(text, ""))
	if m := jsonSlopRe.FindString(t); m != "" {
		t = strings.TrimSpace(m)
	}
	var compact bytes.Buffer
	if json.Valid([]byte(t)) && json.Compact(&compact, []byte(t)) == nil {
		return compact.String()
	}
	return strings.Join(strings.Fields(t), " ")
}

// TryParseJSON parses text into an object. On a strict-parse failure it
// makes one repair pass (strip fences and slop, drop trailing commas, turn
// unescaped single quotes into double quotes) and parses again. Returns nil
// on total failure.
func TryParseJSON(text string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		return obj
	}

	t := StripToJSONLine(text)
	if t == "" {
		return nil
	}
	t = trailingCommaRe.ReplaceAllString(t, "$1")
	t = replaceUnescapedSingleQuotes(t)

	obj = nil
	if err := json.Unmarshal([]byte(t), &obj); err != nil {
		return nil
	}
	return obj
}

// replaceUnescapedSingleQuotes rewrites ' to " unless preceded by a
// backslash. RE2 has no lookbehind, so this walks the string directly.
func replaceUnescapedSingleQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' && (i == 0 || s[i-1] != '\\') {
			b.WriteByte('"')
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
