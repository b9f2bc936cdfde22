// Package answer renders query results into the short human-readable replies
// the chat surface shows, and hosts the service that ties SQL generation,
// execution, and formatting together.
package answer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Fixed user-facing strings. The chat surface is bilingual: scope prompts in
// Indonesian, result phrasing in English, matching the deployed product.
const (
	MsgAskClinical = "Silakan ajukan pertanyaan terkait data klinis."
	MsgGreeting    = "Halo! 👋 Aku asisten yang fokus pada data klinis. Silakan tanyakan hal yang berkaitan dengan uji klinis atau dataset pasien."
	MsgNoResults   = "No results found."
)

var intPrinter = message.NewPrinter(language.English)

// humanInt renders a value as a grouped integer ("12,345"), falling back to
// truncated floats and finally the raw string for non-numeric values.
func humanInt(v any) string {
	switch n := v.(type) {
	case int:
		return intPrinter.Sprintf("%d", n)
	case int32:
		return intPrinter.Sprintf("%d", n)
	case int64:
		return intPrinter.Sprintf("%d", n)
	case float32:
		return intPrinter.Sprintf("%d", int64(n))
	case float64:
		return intPrinter.Sprintf("%d", int64(n))
	}
	s := fmt.Sprint(v)
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return intPrinter.Sprintf("%d", int64(f))
	}
	return s
}

// humanPct renders round(100*num/den) with a "0%" guard for a zero
// denominator.
func humanPct(num, den float64) string {
	if den == 0 {
		return "0%"
	}
	return fmt.Sprintf("%d%%", int(math.Round(num/den*100)))
}

// toFloat converts a database cell to a number.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(fmt.Sprint(v)), 64)
	return f, err == nil
}

// renderTable produces a Markdown table capped at maxRows, appending a single
// ellipsis row when truncated. Results with no usable column names degrade to
// a bullet list.
func renderTable(cols []string, rows [][]any, maxRows int) string {
	if len(rows) == 0 {
		return "(empty)"
	}

	blank := true
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			blank = false
			break
		}
	}
	if blank {
		var lines []string
		for _, row := range rows[:min(len(rows), maxRows)] {
			var cells []string
			for _, v := range row {
				if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
					cells = append(cells, s)
				}
			}
			txt := strings.Join(cells, " | ")
			if txt == "" {
				txt = "(empty row)"
			}
			lines = append(lines, "- "+txt)
		}
		if len(rows) > maxRows {
			lines = append(lines, fmt.Sprintf("- ... (%d more)", len(rows)-maxRows))
		}
		return strings.Join(lines, "\n")
	}

	header := make([]string, len(cols))
	seps := make([]string, len(cols))
	for i, c := range cols {
		header[i] = strings.TrimSpace(c)
		seps[i] = "---"
	}
	lines := []string{
		"| " + strings.Join(header, " | ") + " |",
		"| " + strings.Join(seps, " | ") + " |",
	}
	for _, row := range rows[:min(len(rows), maxRows)] {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = strings.TrimSpace(fmt.Sprint(v))
		}
		lines = append(lines, "| "+strings.Join(cells, " | ")+" |")
	}
	if len(rows) > maxRows {
		lines = append(lines, fmt.Sprintf("| ... | (%d more rows) |", len(rows)-maxRows))
	}
	return strings.Join(lines, "\n")
}

// Formatter turns a query result plus the originating question into the reply
// text. Stateless; methods never error, every input shape maps to something
// printable.
type Formatter struct{}

// plausibleDenominator is the percentage-phrase gate: a single two-cell
// numeric row whose second value can serve as the total. Kept as one
// predicate so the heuristic can be tuned in one place.
func plausibleDenominator(rows [][]any) (num, den float64, ok bool) {
	if len(rows) != 1 || len(rows[0]) != 2 {
		return 0, 0, false
	}
	num, okA := toFloat(rows[0][0])
	den, okB := toFloat(rows[0][1])
	if !okA || !okB || den < num {
		return 0, 0, false
	}
	return num, den, true
}

func (Formatter) percentagePhrase(cols []string, rows [][]any) (string, bool) {
	num, den, ok := plausibleDenominator(rows)
	if !ok {
		return "", false
	}
	if len(cols) == 2 &&
		strings.EqualFold(strings.TrimSpace(cols[0]), "female_count") &&
		strings.EqualFold(strings.TrimSpace(cols[1]), "total_count") {
		return fmt.Sprintf("There are %s female patients, representing %s of %s participants.",
			humanInt(rows[0][0]), humanPct(num, den), humanInt(rows[0][1])), true
	}
	return fmt.Sprintf("There are %s in the requested category, representing %s of %s total.",
		humanInt(rows[0][0]), humanPct(num, den), humanInt(rows[0][1])), true
}

func (Formatter) scalarSentence(question string, value any) string {
	n := humanInt(value)
	ql := strings.ToLower(question)
	if (strings.Contains(ql, "how many") || strings.Contains(ql, "berapa")) && strings.Contains(ql, "patient") {
		return fmt.Sprintf("There are %s unique patient entries across all clinical trials.", n)
	}
	return fmt.Sprintf("The result is %s.", n)
}

func (f Formatter) groupSummary(question string, cols []string, rows [][]any) string {
	lead := fmt.Sprintf("Found %d groups.", len(rows))
	best := math.Inf(-1)
	var bestRow []any
	for _, row := range rows {
		if len(row) < 2 {
			bestRow = nil
			break
		}
		v, ok := toFloat(row[1])
		if !ok {
			bestRow = nil
			break
		}
		if v > best {
			best, bestRow = v, row
		}
	}
	if bestRow != nil {
		label := strings.TrimSpace(fmt.Sprint(bestRow[0]))
		val := humanInt(bestRow[1])
		ql := strings.ToLower(question)
		if strings.Contains(ql, "most") || strings.Contains(ql, "highest") ||
			strings.Contains(ql, "terbanyak") || strings.Contains(ql, "top") {
			lead = fmt.Sprintf("The %s group has the highest value with %s.", label, val)
		} else {
			lead = fmt.Sprintf("Top group: %s with %s.", label, val)
		}
	}
	return lead + "\n\n" + renderTable(cols, rows, 8)
}

// Format is the reply decision tree.
func (f Formatter) Format(question string, cols []string, rows [][]any) string {
	if len(rows) == 0 {
		return MsgNoResults
	}
	if pct, ok := f.percentagePhrase(cols, rows); ok {
		return pct
	}
	if len(rows) == 1 && len(rows[0]) == 1 {
		return f.scalarSentence(question, rows[0][0])
	}
	if len(cols) == 2 {
		return f.groupSummary(question, cols, rows)
	}
	if len(cols) > 1 && len(cols) <= 5 {
		return fmt.Sprintf("Found %d rows.\n\n%s", len(rows), renderTable(cols, rows, 8))
	}
	return "Here are the results:\n\n" + renderTable(cols, rows, 5)
}
