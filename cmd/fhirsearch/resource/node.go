// Package resource models FHIR resources as an ordered tree of typed nodes so that
// filtering and expansion can walk and rewrite records without reflection over
// generated structs.
package resource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Kind tags the variant held by a Node.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Object
	Array
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Object:
		return "object"
	case Array:
		return "array"
	default:
		return "unknown"
	}
}

// Node is one JSON value. Object fields keep their document order.
type Node struct {
	Kind  Kind
	Bool  bool
	Num   json.Number
	Str   string
	Items []*Node

	keys   []string
	fields map[string]*Node
}

func NewString(s string) *Node {
	return &Node{Kind: String, Str: s}
}

func NewObject() *Node {
	return &Node{Kind: Object, fields: make(map[string]*Node)}
}

func NewArray(items ...*Node) *Node {
	return &Node{Kind: Array, Items: items}
}

// Get returns the named field, or nil when n is not an object or has no such field.
func (n *Node) Get(name string) *Node {
	if n == nil || n.Kind != Object {
		return nil
	}
	return n.fields[name]
}

// Has reports whether the object has the named field.
func (n *Node) Has(name string) bool {
	return n.Get(name) != nil
}

// Set adds or replaces a field. New fields are appended after the existing ones.
func (n *Node) Set(name string, value *Node) {
	if n.Kind != Object {
		return
	}
	if n.fields == nil {
		n.fields = make(map[string]*Node)
	}
	if _, exists := n.fields[name]; !exists {
		n.keys = append(n.keys, name)
	}
	n.fields[name] = value
}

// Delete removes a field and reports whether it was present.
func (n *Node) Delete(name string) bool {
	if n == nil || n.Kind != Object {
		return false
	}
	if _, exists := n.fields[name]; !exists {
		return false
	}
	delete(n.fields, name)
	for i, key := range n.keys {
		if key == name {
			n.keys = append(n.keys[:i], n.keys[i+1:]...)
			break
		}
	}
	return true
}

// Replace swaps field old for name at the same position. When old is absent it behaves like Set.
func (n *Node) Replace(old, name string, value *Node) {
	if n.Kind != Object {
		return
	}
	if _, exists := n.fields[old]; !exists || old == name {
		n.Set(name, value)
		return
	}
	if _, exists := n.fields[name]; exists {
		n.Delete(name)
	}
	for i, key := range n.keys {
		if key == old {
			n.keys[i] = name
			break
		}
	}
	delete(n.fields, old)
	n.fields[name] = value
}

// Keys returns the object's field names in document order.
func (n *Node) Keys() []string {
	if n == nil || n.Kind != Object {
		return nil
	}
	keys := make([]string, len(n.keys))
	copy(keys, n.keys)
	return keys
}

// Append adds an item to an array node.
func (n *Node) Append(item *Node) {
	if n.Kind != Array {
		return
	}
	n.Items = append(n.Items, item)
}

// Text returns the textual form of a primitive node.
func (n *Node) Text() (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Kind {
	case String:
		return n.Str, true
	case Number:
		return n.Num.String(), true
	case Bool:
		if n.Bool {
			return "true", true
		}
		return "false", true
	}
	return "", false
}

// StringField returns the text of a primitive field, or "" when absent.
func (n *Node) StringField(name string) string {
	s, _ := n.Get(name).Text()
	return s
}

// Clone returns a deep copy.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{Kind: n.Kind, Bool: n.Bool, Num: n.Num, Str: n.Str}
	if n.Kind == Object {
		c.fields = make(map[string]*Node, len(n.fields))
		for _, key := range n.keys {
			c.Set(key, n.fields[key].Clone())
		}
	}
	if n.Kind == Array {
		c.Items = make([]*Node, len(n.Items))
		for i, item := range n.Items {
			c.Items[i] = item.Clone()
		}
	}
	return c
}

// MarshalJSON implements the json.Marshaler interface
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *Node) encode(buf *bytes.Buffer) error {
	if n == nil {
		buf.WriteString("null")
		return nil
	}

	switch n.Kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		if n.Bool {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		buf.WriteString(n.Num.String())
	case String:
		return encodeString(buf, n.Str)
	case Array:
		buf.WriteByte('[')
		for i, item := range n.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, key := range n.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := n.fields[key].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("cannot encode node of kind %s", n.Kind)
	}
	return nil
}

// encodeString writes a JSON string without HTML escaping, narrative XHTML stays readable.
func encodeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	encoder := json.NewEncoder(&tmp)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (n *Node) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	parsed, err := decodeNode(decoder)
	if err != nil {
		return err
	}
	if _, err := decoder.Token(); err != io.EOF {
		return fmt.Errorf("unexpected data after JSON value")
	}
	*n = *parsed
	return nil
}

// Parse decodes a JSON document into a Node.
func Parse(data []byte) (*Node, error) {
	n := &Node{}
	if err := n.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return n, nil
}

func decodeNode(decoder *json.Decoder) (*Node, error) {
	tok, err := decoder.Token()
	if err != nil {
		return nil, err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			obj := NewObject()
			for decoder.More() {
				keyTok, err := decoder.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("expected object key, got %v", keyTok)
				}
				child, err := decodeNode(decoder)
				if err != nil {
					return nil, err
				}
				obj.Set(key, child)
			}
			if _, err := decoder.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := NewArray()
			for decoder.More() {
				child, err := decodeNode(decoder)
				if err != nil {
					return nil, err
				}
				arr.Append(child)
			}
			if _, err := decoder.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", v)
	case string:
		return NewString(v), nil
	case json.Number:
		return &Node{Kind: Number, Num: v}, nil
	case bool:
		return &Node{Kind: Bool, Bool: v}, nil
	case nil:
		return &Node{Kind: Null}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}
