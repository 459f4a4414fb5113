package processor

import (
	"strings"
	"unicode"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/resource"
	"github.com/SanteonNL/fhirsearch/models/fhir"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fold lowers case and strips diacritics, so "Müller" and "muller" compare equal.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return cases.Fold().String(stripped)
}

// stringMatchers builds string search: starts-with by default, ":contains" anywhere,
// both ignoring case and accents; ":exact" compares verbatim. Complex elements such as
// HumanName and Address match on any of their string parts.
func stringMatchers(modifier string, values []string) ([]nodeMatcher, error) {
	var compare func(leaf, value string) bool
	switch modifier {
	case "":
		compare = func(leaf, value string) bool { return strings.HasPrefix(fold(leaf), value) }
	case "contains":
		compare = func(leaf, value string) bool { return strings.Contains(fold(leaf), value) }
	case "exact":
		compare = func(leaf, value string) bool { return leaf == value }
	default:
		return nil, unsupportedModifier(fhir.SearchParamTypeString, modifier)
	}

	matchers := make([]nodeMatcher, 0, len(values))
	for _, value := range values {
		want := value
		if modifier != "exact" {
			want = fold(value)
		}
		matchers = append(matchers, func(node *resource.Node) bool {
			for _, leaf := range stringLeaves(node) {
				if compare(leaf, want) {
					return true
				}
			}
			return false
		})
	}
	return matchers, nil
}
