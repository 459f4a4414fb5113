package processor

import (
	"fmt"
	"strings"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/query"
	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/resource"
	"github.com/SanteonNL/fhirsearch/models/fhir"
)

// nodeMatcher tests one alternative of a parameter value against one resolved element.
type nodeMatcher func(node *resource.Node) bool

// buildMatcher compiles a parameter into a test over every element its paths resolve to.
// The record passes when any element matches any comma separated alternative.
func buildMatcher(paramType fhir.SearchParamType, param query.Param) (func(nodes []*resource.Node) bool, error) {
	if param.Modifier == "missing" {
		switch param.Value {
		case "true":
			return func(nodes []*resource.Node) bool { return len(nodes) == 0 }, nil
		case "false":
			return func(nodes []*resource.Node) bool { return len(nodes) > 0 }, nil
		}
		return nil, fmt.Errorf("invalid :missing value %q", param.Value)
	}

	var (
		alternatives []nodeMatcher
		negate       bool
		err          error
	)
	values := splitValues(param.Value)

	switch paramType {
	case fhir.SearchParamTypeString:
		alternatives, err = stringMatchers(param.Modifier, values)
	case fhir.SearchParamTypeToken:
		negate = param.Modifier == "not"
		alternatives, err = tokenMatchers(param.Modifier, values)
	case fhir.SearchParamTypeDate:
		alternatives, err = dateMatchers(param.Modifier, values)
	case fhir.SearchParamTypeNumber:
		alternatives, err = numberMatchers(param.Modifier, values)
	case fhir.SearchParamTypeQuantity:
		alternatives, err = quantityMatchers(param.Modifier, values)
	case fhir.SearchParamTypeReference:
		alternatives, err = referenceMatchers(param.Modifier, values)
	case fhir.SearchParamTypeUri:
		alternatives, err = uriMatchers(param.Modifier, values)
	case fhir.SearchParamTypeComposite, fhir.SearchParamTypeSpecial:
		return nil, fmt.Errorf("%s parameters cannot be evaluated locally", paramType)
	case "":
		return nil, fmt.Errorf("parameter type unknown")
	default:
		return nil, fmt.Errorf("unsupported parameter type %q", paramType)
	}
	if err != nil {
		return nil, err
	}

	return func(nodes []*resource.Node) bool {
		hit := anyMatch(nodes, alternatives)
		if negate {
			return !hit
		}
		return hit
	}, nil
}

func anyMatch(nodes []*resource.Node, alternatives []nodeMatcher) bool {
	for _, node := range nodes {
		for _, match := range alternatives {
			if match(node) {
				return true
			}
		}
	}
	return false
}

func unsupportedModifier(paramType fhir.SearchParamType, modifier string) error {
	return fmt.Errorf("modifier %q is not supported for %s parameters", modifier, paramType)
}

// splitValues splits a value list on commas. "\," is a literal comma.
func splitValues(value string) []string {
	var (
		values  []string
		current strings.Builder
	)
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c == '\\' && i+1 < len(value) && value[i+1] == ',' {
			current.WriteByte(',')
			i++
			continue
		}
		if c == ',' {
			values = append(values, current.String())
			current.Reset()
			continue
		}
		current.WriteByte(c)
	}
	return append(values, current.String())
}

// comparator is a FHIR search prefix.
type comparator string

const (
	cmpEq comparator = "eq"
	cmpNe comparator = "ne"
	cmpGt comparator = "gt"
	cmpLt comparator = "lt"
	cmpGe comparator = "ge"
	cmpLe comparator = "le"
	cmpSa comparator = "sa"
	cmpEb comparator = "eb"
	cmpAp comparator = "ap"
)

// splitPrefix separates a leading comparator from an ordered value. Values without one
// compare for equality.
func splitPrefix(value string) (comparator, string) {
	if len(value) > 2 {
		switch c := comparator(value[:2]); c {
		case cmpEq, cmpNe, cmpGt, cmpLt, cmpGe, cmpLe, cmpSa, cmpEb, cmpAp:
			if rest := value[2:]; rest[0] >= '0' && rest[0] <= '9' || rest[0] == '-' || rest[0] == '.' {
				return c, rest
			}
		}
	}
	return cmpEq, value
}

// stringLeaves collects every string leaf below node.
func stringLeaves(node *resource.Node) []string {
	if node == nil {
		return nil
	}
	switch node.Kind {
	case resource.String:
		return []string{node.Str}
	case resource.Array:
		var leaves []string
		for _, item := range node.Items {
			leaves = append(leaves, stringLeaves(item)...)
		}
		return leaves
	case resource.Object:
		var leaves []string
		for _, key := range node.Keys() {
			leaves = append(leaves, stringLeaves(node.Get(key))...)
		}
		return leaves
	}
	return nil
}
