package processor

import (
	"strings"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/resource"
	"github.com/SanteonNL/fhirsearch/models/fhir"
)

// token is a parsed token search value: code, system|code, |code or system|.
type token struct {
	system    string
	code      string
	hasSystem bool
}

func parseToken(value string) token {
	system, code, found := strings.Cut(value, "|")
	if !found {
		return token{code: value}
	}
	return token{system: system, code: code, hasSystem: true}
}

// matches compares against one system/code pair taken from the resource.
func (t token) matches(system, code string) bool {
	if t.hasSystem && system != t.system {
		return false
	}
	if t.code == "" {
		return t.hasSystem && t.system != ""
	}
	return code == t.code
}

// tokenMatchers builds token search over code and boolean primitives, Coding,
// CodeableConcept, Identifier and ContactPoint. ":not" is handled by the caller by
// negating the combined result; ":text" matches display and text.
func tokenMatchers(modifier string, values []string) ([]nodeMatcher, error) {
	switch modifier {
	case "", "not":
	case "text":
		return stringMatchersOn(values, tokenText), nil
	default:
		return nil, unsupportedModifier(fhir.SearchParamTypeToken, modifier)
	}

	matchers := make([]nodeMatcher, 0, len(values))
	for _, value := range values {
		t := parseToken(value)
		matchers = append(matchers, func(node *resource.Node) bool {
			return matchToken(node, t)
		})
	}
	return matchers, nil
}

func matchToken(node *resource.Node, t token) bool {
	switch node.Kind {
	case resource.String, resource.Bool:
		text, _ := node.Text()
		return t.matches("", text)
	case resource.Object:
		if coding := node.Get("coding"); coding != nil {
			for _, c := range coding.Items {
				if matchToken(c, t) {
					return true
				}
			}
			return false
		}
		system := node.StringField("system")
		if code, ok := node.Get("code").Text(); ok && t.matches(system, code) {
			return true
		}
		if value, ok := node.Get("value").Text(); ok && t.matches(system, value) {
			return true
		}
	}
	return false
}

// tokenText returns the human readable parts of a coded element.
func tokenText(node *resource.Node) []string {
	if node.Kind != resource.Object {
		return nil
	}
	var texts []string
	if text := node.StringField("text"); text != "" {
		texts = append(texts, text)
	}
	if display := node.StringField("display"); display != "" {
		texts = append(texts, display)
	}
	if coding := node.Get("coding"); coding != nil {
		for _, c := range coding.Items {
			texts = append(texts, tokenText(c)...)
		}
	}
	if typ := node.Get("type"); typ != nil {
		texts = append(texts, tokenText(typ)...)
	}
	return texts
}

// stringMatchersOn matches the folded values as prefixes of the texts extract returns.
func stringMatchersOn(values []string, extract func(node *resource.Node) []string) []nodeMatcher {
	matchers := make([]nodeMatcher, 0, len(values))
	for _, value := range values {
		want := fold(value)
		matchers = append(matchers, func(node *resource.Node) bool {
			for _, text := range extract(node) {
				if strings.HasPrefix(fold(text), want) {
					return true
				}
			}
			return false
		})
	}
	return matchers
}
