package processor

import (
	"strings"
	"unicode"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/resource"
	"github.com/SanteonNL/fhirsearch/models/fhir"
)

// sameReference compares references that may be written relative, absolute, versioned
// or as a bare id. One must equal the other or end with it at a path boundary.
func sameReference(a, b string) bool {
	a, b = unversioned(a), unversioned(b)
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.HasSuffix(a, "/"+b) || strings.HasSuffix(b, "/"+a)
}

// unversioned drops a trailing /_history/<version>.
func unversioned(ref string) string {
	if i := strings.LastIndex(ref, "/_history/"); i >= 0 && !strings.Contains(ref[i+len("/_history/"):], "/") {
		return ref[:i]
	}
	return ref
}

func referenceText(node *resource.Node) (string, bool) {
	switch node.Kind {
	case resource.String:
		return node.Str, true
	case resource.Object:
		return node.Get("reference").Text()
	}
	return "", false
}

// referenceMatchers builds reference search. A modifier naming a resource type, as in
// subject:Patient=123, restricts matches to references of that type.
func referenceMatchers(modifier string, values []string) ([]nodeMatcher, error) {
	if modifier != "" && !unicode.IsUpper(rune(modifier[0])) {
		return nil, unsupportedModifier(fhir.SearchParamTypeReference, modifier)
	}

	matchers := make([]nodeMatcher, 0, len(values))
	for _, value := range values {
		want := value
		if modifier != "" && !strings.Contains(want, "/") {
			want = modifier + "/" + want
		}
		matchers = append(matchers, func(node *resource.Node) bool {
			ref, ok := referenceText(node)
			if !ok {
				return false
			}
			if modifier != "" && !strings.Contains(ref, modifier+"/") {
				return false
			}
			return sameReference(ref, want)
		})
	}
	return matchers, nil
}

// uriMatchers builds uri search: exact by default, ":below" for URIs under the value
// and ":above" for URIs the value lies under.
func uriMatchers(modifier string, values []string) ([]nodeMatcher, error) {
	var compare func(uri, value string) bool
	switch modifier {
	case "":
		compare = func(uri, value string) bool { return uri == value }
	case "below":
		compare = strings.HasPrefix
	case "above":
		compare = func(uri, value string) bool { return strings.HasPrefix(value, uri) }
	default:
		return nil, unsupportedModifier(fhir.SearchParamTypeUri, modifier)
	}

	matchers := make([]nodeMatcher, 0, len(values))
	for _, value := range values {
		want := value
		matchers = append(matchers, func(node *resource.Node) bool {
			uri, ok := node.Text()
			return ok && node.Kind == resource.String && compare(uri, want)
		})
	}
	return matchers, nil
}
