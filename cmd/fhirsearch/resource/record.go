package resource

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// OperationOutcomeType is the resource type servers use to report problems inside a result set.
const OperationOutcomeType = "OperationOutcome"

// Record is one resource from a search result, together with its bundle entry metadata.
type Record struct {
	FullURL string
	Search  json.RawMessage
	Root    *Node

	// Original is the resource as the server returned it. It is only set once Root has
	// been changed in place, see Preserve.
	Original *Node
}

// Set is an ordered result set.
type Set []*Record

// NewRecord decodes a resource. The document must be an object carrying a resourceType.
func NewRecord(raw json.RawMessage) (*Record, error) {
	root, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse resource: %w", err)
	}
	if root.Kind != Object {
		return nil, fmt.Errorf("resource is a %s, expected an object", root.Kind)
	}
	if root.StringField("resourceType") == "" {
		return nil, fmt.Errorf("resource has no resourceType")
	}
	return &Record{Root: root}, nil
}

func (r *Record) ResourceType() string {
	return r.Root.StringField("resourceType")
}

func (r *Record) ID() string {
	return r.Root.StringField("id")
}

// IsOutcome reports whether the record is an OperationOutcome rather than data.
func (r *Record) IsOutcome() bool {
	return r.ResourceType() == OperationOutcomeType
}

// Preserve keeps a copy of the resource before it is changed in place. Only the first
// call copies.
func (r *Record) Preserve() {
	if r.Original == nil {
		r.Original = r.Root.Clone()
	}
}

// MarshalJSON implements the json.Marshaler interface
func (r *Record) MarshalJSON() ([]byte, error) {
	return r.Root.MarshalJSON()
}

// Resolve walks a dot separated path and returns every node it reaches. Arrays are
// flattened at each step, so "name.given" yields every given name of every HumanName.
// A leading segment naming the resource type is ignored, and a segment ending in
// "[x]" matches every choice-type variant ("effective[x]" -> effectiveDateTime, effectivePeriod).
func (r *Record) Resolve(path string) []*Node {
	return resolve(r.Root, r.ResourceType(), path)
}

// ResolveOriginal is Resolve on the resource as the server returned it. It returns nil
// when the record was never changed.
func (r *Record) ResolveOriginal(path string) []*Node {
	if r.Original == nil {
		return nil
	}
	return resolve(r.Original, r.ResourceType(), path)
}

func resolve(root *Node, resourceType, path string) []*Node {
	segments := strings.Split(path, ".")
	if len(segments) > 0 && segments[0] == resourceType {
		segments = segments[1:]
	}

	current := []*Node{root}
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		var next []*Node
		for _, node := range current {
			for _, child := range children(node, segment) {
				if child.Kind == Array {
					next = append(next, child.Items...)
				} else if child.Kind != Null {
					next = append(next, child)
				}
			}
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}
	return current
}

func children(node *Node, segment string) []*Node {
	if node == nil || node.Kind != Object {
		return nil
	}

	if prefix, ok := strings.CutSuffix(segment, "[x]"); ok {
		var matches []*Node
		for _, key := range node.keys {
			rest, found := strings.CutPrefix(key, prefix)
			if found && rest != "" && unicode.IsUpper(rune(rest[0])) {
				matches = append(matches, node.fields[key])
			}
		}
		return matches
	}

	if child := node.Get(segment); child != nil {
		return []*Node{child}
	}
	return nil
}
