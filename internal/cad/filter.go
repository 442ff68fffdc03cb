package cad

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldMunicipality reduces a jurisdiction name to its comparison form:
// trimmed, lowercased, interior whitespace collapsed, diacritics stripped.
// "  Oxford  Borough " and "OXFORD BOROUGH" fold to the same value;
// "Oxford" does not.
func FoldMunicipality(name string) string {
	folded := strings.ToLower(strings.Join(strings.Fields(name), " "))
	if out, _, err := transform.String(foldTransformer, folded); err == nil {
		folded = out
	}
	return folded
}

// FilterByMunicipality keeps the records whose municipality folds to one of
// the allowed names. Matching is exact after folding, never substring: an
// allow-list entry "Oxford Borough" does not admit "Upper Oxford Township".
// An empty allow list keeps everything.
func FilterByMunicipality(records []Incident, allowed []string) []Incident {
	if len(allowed) == 0 {
		return records
	}
	want := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		if folded := FoldMunicipality(name); folded != "" {
			want[folded] = struct{}{}
		}
	}
	if len(want) == 0 {
		return records
	}
	kept := make([]Incident, 0, len(records))
	for _, rec := range records {
		if _, ok := want[FoldMunicipality(rec.Municipality)]; ok {
			kept = append(kept, rec)
		}
	}
	return kept
}
