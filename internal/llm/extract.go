package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Model output is rarely pure JSON even when the prompt demands it. ExtractJSON
// walks a fixed list of recovery strategies and returns the first candidate
// that parses; when nothing parses it still returns a repaired best-effort
// string so the caller decides what a broken payload means.
var (
	fencedBlockExpr = regexp.MustCompile("(?s)```(?:[a-zA-Z]+)?\\s*(.*?)```")

	relevanceMarkerExpr = regexp.MustCompile(`"is_relevant"\s*:\s*(?:true|false)`)

	// Balanced braces/brackets with one level of nesting.
	objectExpr = regexp.MustCompile(`(?s)\{(?:[^{}]|\{[^{}]*\})*\}`)
	arrayExpr  = regexp.MustCompile(`(?s)\[(?:[^\[\]]|\[[^\[\]]*\])*\]`)

	trailingCommaExpr = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON recovers a JSON payload from free-form model text. It is pure
// and never panics; the result is not guaranteed to be valid JSON.
func ExtractJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)

	candidates := make([]string, 0, 5)
	if m := fencedBlockExpr.FindStringSubmatch(trimmed); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if m := relevanceObject(trimmed); m != "" {
		candidates = append(candidates, m)
	}
	if m := objectExpr.FindString(trimmed); m != "" {
		candidates = append(candidates, m)
	}
	if m := arrayExpr.FindString(trimmed); m != "" {
		candidates = append(candidates, m)
	}

	for _, candidate := range candidates {
		repaired := fixJSON(candidate)
		if json.Valid([]byte(repaired)) {
			return repaired
		}
	}

	return fixJSON(trimmed)
}

// relevanceObject returns the first balanced object that spans the relevance
// marker field. Walking candidate opening braces left to right keeps an
// enclosing object ahead of a nested marker hit, while brace fragments in the
// surrounding prose either close before the marker or never balance and are
// skipped either way.
func relevanceObject(text string) string {
	marker := relevanceMarkerExpr.FindStringIndex(text)
	if marker == nil {
		return ""
	}

	for offset := 0; offset <= marker[0]; {
		open := strings.Index(text[offset:], "{")
		if open < 0 {
			return ""
		}
		open += offset
		if open > marker[0] {
			return ""
		}
		if end, ok := balancedEnd(text, open); ok && end >= marker[1] {
			return text[open:end]
		}
		offset = open + 1
	}
	return ""
}

// balancedEnd returns the index just past the brace that closes the object
// opened at start. Braces inside string literals are not special-cased; an
// unbalanced region reports false.
func balancedEnd(text string, start int) (int, bool) {
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// fixJSON strips trailing commas preceding a closing brace or bracket, the
// one syntax defect models produce often enough to be worth repairing.
func fixJSON(text string) string {
	return trailingCommaExpr.ReplaceAllString(text, "$1")
}
