package orchestrate

import (
	"strings"
	"unicode"
)

// extractEntities applies the lightweight rule in spec §4.13a: tokenize,
// keep tokens of length > 2 starting with an uppercase letter, lowercase
// them, deduplicate, cap at 10. This is a cover/context signal only; the
// fact extractor provides the semantic extraction.
func extractEntities(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool)
	var out []string
	for _, f := range fields {
		if len(f) <= 2 {
			continue
		}
		r := []rune(f)
		if !unicode.IsUpper(r[0]) {
			continue
		}
		lower := strings.ToLower(f)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, lower)
		if len(out) >= 10 {
			break
		}
	}
	return out
}
