// Package query parses FHIR search queries into an ordered parameter list and
// renders reduced queries for the upstream server.
package query

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var ErrInvalidQuery = errors.New("invalid query")

var resourceTypePattern = regexp.MustCompile(`^[A-Z][A-Za-z]+$`)

// Param is one search parameter as written by the caller, e.g. name:exact=Smith.
type Param struct {
	Name     string // The search parameter code (e.g., "gender", "status")
	Modifier string // The modifier (e.g., "exact", "contains")
	Value    string // The raw value, including prefixes and system|code separators
}

// NewParam splits a query key into name and modifier.
func NewParam(key, value string) Param {
	name, modifier, _ := strings.Cut(key, ":")
	return Param{Name: name, Modifier: modifier, Value: value}
}

// Key returns the parameter as it appears on the left-hand side of the query.
func (p Param) Key() string {
	if p.Modifier == "" {
		return p.Name
	}
	return p.Name + ":" + p.Modifier
}

// Spec is a parsed query: a resource type plus the requested parameters in order.
type Spec struct {
	ResourceType string
	Params       []Param
}

// Parse reads <resourceType>[?<name>=<value>&...]. Keys and values are
// percent-decoded; '+' is kept literally because it is meaningful in dates.
func Parse(raw string) (Spec, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "/")
	resourceType, rawParams, _ := strings.Cut(raw, "?")

	var params []Param
	for _, part := range strings.Split(rawParams, "&") {
		if part == "" {
			continue
		}
		rawKey, rawValue, found := strings.Cut(part, "=")
		if !found {
			return Spec{}, fmt.Errorf("%w: parameter %q has no value", ErrInvalidQuery, part)
		}
		key, err := url.PathUnescape(rawKey)
		if err != nil {
			return Spec{}, fmt.Errorf("%w: failed to decode parameter %q: %v", ErrInvalidQuery, rawKey, err)
		}
		value, err := url.PathUnescape(rawValue)
		if err != nil {
			return Spec{}, fmt.Errorf("%w: failed to decode value of %q: %v", ErrInvalidQuery, key, err)
		}
		params = append(params, NewParam(key, value))
	}

	return FromValues(resourceType, params)
}

// FromValues builds a Spec from structured input.
func FromValues(resourceType string, params []Param) (Spec, error) {
	if !resourceTypePattern.MatchString(resourceType) {
		return Spec{}, fmt.Errorf("%w: %q is not a resource type", ErrInvalidQuery, resourceType)
	}

	copied := make([]Param, 0, len(params))
	for _, p := range params {
		if p.Name == "" {
			return Spec{}, fmt.Errorf("%w: parameter without a name", ErrInvalidQuery)
		}
		copied = append(copied, p)
	}

	return Spec{ResourceType: resourceType, Params: copied}, nil
}

// Parameters that steer the result rather than select records.
var resultParameters = map[string]bool{
	"_count":         true,
	"_sort":          true,
	"_include":       true,
	"_revinclude":    true,
	"_elements":      true,
	"_summary":       true,
	"_format":        true,
	"_total":         true,
	"_contained":     true,
	"_containedType": true,
	"_pretty":        true,
}

// IsResultParameter reports whether name shapes the result (paging, sorting, includes)
// instead of selecting records.
func IsResultParameter(name string) bool {
	return resultParameters[name]
}

// IsBroad reports whether the query would fetch every resource of its type: it has no
// parameter that selects records.
func (s Spec) IsBroad() bool {
	for _, p := range s.Params {
		if !IsResultParameter(p.Name) {
			return false
		}
	}
	return true
}

// String renders the canonical unescaped form.
func (s Spec) String() string {
	if len(s.Params) == 0 {
		return s.ResourceType
	}
	parts := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		parts = append(parts, p.Key()+"="+p.Value)
	}
	return s.ResourceType + "?" + strings.Join(parts, "&")
}

// FHIR separators are legal in a query component and stay readable.
var keepSeparators = strings.NewReplacer("%3A", ":", "%7C", "|", "%2C", ",", "%24", "$")

// Encode renders the form sent over the wire: keys and values percent-encoded, order preserved.
func (s Spec) Encode() string {
	if len(s.Params) == 0 {
		return s.ResourceType
	}
	parts := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		key := keepSeparators.Replace(url.QueryEscape(p.Key()))
		value := keepSeparators.Replace(url.QueryEscape(p.Value))
		parts = append(parts, key+"="+value)
	}
	return s.ResourceType + "?" + strings.Join(parts, "&")
}
