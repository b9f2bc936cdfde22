package llm

import (
	"regexp"
	"strings"
)

// Matcher is the deterministic fallback used when the LLM path is disabled
// by configuration or fails to configure. It produces the same Intent shape
// from keyword/regex heuristics, Indonesian and English.
type Matcher struct {
	rules []rule
}

type rule struct {
	re   *regexp.Regexp
	kind Kind
	arg  string // name of the single captured argument, "" when none
}

// NewMatcher returns a matcher covering the closed intent set. Argument
// captures are always the last group of the pattern. More specific rules
// come first: a by-trial question also mentions patient counting.
func NewMatcher() *Matcher {
	return &Matcher{rules: []rule{
		{
			re:   regexp.MustCompile(`(?i)\b(?:patients?|pasien)\b.*?\b(?:in|for|di|pada)\s+(?:trial|uji(?:\s+klinis)?)\s+["']?([\w][\w .-]*?)["']?\s*\??\s*$`),
			kind: KindCountPatientsByTrial,
			arg:  "trial_name",
		},
		{
			re:   regexp.MustCompile(`(?i)\b(?:how many|count|total|berapa(?:\s+banyak)?|jumlah)\b.*\b(?:patients?|pasien)\b`),
			kind: KindTotalPatients,
		},
		{
			re:   regexp.MustCompile(`(?i)\b(?:file|berkas|dokumen)\b.*?\b(?:named|name|bernama)\s+["']?([\w][\w .-]*?)["']?\s*\??\s*$`),
			kind: KindGetFileByName,
			arg:  "filename",
		},
	}}
}

// Match classifies a question without an LLM. Blank input is UNSUPPORTED;
// an unmatched question is ErrNoRuleMatch so the caller can decide whether
// to refuse or fall through to the free-form SQL path.
func (m *Matcher) Match(question string) (Intent, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return NewIntent(KindUnsupported, nil), nil
	}
	for _, r := range m.rules {
		sub := r.re.FindStringSubmatch(q)
		if sub == nil {
			continue
		}
		args := map[string]any{}
		if r.arg != "" {
			args[r.arg] = strings.TrimSpace(sub[len(sub)-1])
		}
		return NewIntent(r.kind, args), nil
	}
	return Intent{}, ErrNoRuleMatch
}
