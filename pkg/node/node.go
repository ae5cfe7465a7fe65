// Package node defines the configuration tree shared by the document loader and the
// reference resolver. A Node is an immutable tagged value: a mapping, a sequence or a
// scalar. Once built, neither the node nor any of its children can be changed, so
// subtrees may be shared freely between trees.
package node

import (
	"encoding/json"
	"sort"
)

// Kind discriminates the variants a Node can hold.
type Kind int

const (
	Null Kind = iota
	Boolean
	Number
	String
	Sequence
	Mapping
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Boolean:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case Sequence:
		return "sequence"
	case Mapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Node is one value of a configuration tree.
// A nil *Node behaves as Null.
type Node struct {
	kind  Kind
	text  string // string value, or canonical decimal text of a number
	truth bool
	items []*Node
	pairs map[string]*Node
}

var null = &Node{kind: Null}

// NewNull returns the Null node.
func NewNull() *Node {
	return null
}

// NewBool returns a Boolean node.
func NewBool(b bool) *Node {
	return &Node{kind: Boolean, truth: b}
}

// NewString returns a String node.
func NewString(s string) *Node {
	return &Node{kind: String, text: s}
}

// NewNumber returns a Number node holding the given decimal text as is.
func NewNumber(n json.Number) *Node {
	return &Node{kind: Number, text: n.String()}
}

// NewSequence returns a Sequence node. The slice is copied; nil items become Null.
func NewSequence(items ...*Node) *Node {
	copied := make([]*Node, len(items))
	for i, item := range items {
		copied[i] = orNull(item)
	}
	return &Node{kind: Sequence, items: copied}
}

// NewMapping returns a Mapping node. The map is copied; nil values become Null.
func NewMapping(pairs map[string]*Node) *Node {
	copied := make(map[string]*Node, len(pairs))
	for k, v := range pairs {
		copied[k] = orNull(v)
	}
	return &Node{kind: Mapping, pairs: copied}
}

func orNull(n *Node) *Node {
	if n == nil {
		return null
	}
	return n
}

// Kind reports which variant the node holds.
func (n *Node) Kind() Kind {
	if n == nil {
		return Null
	}
	return n.kind
}

// IsNull reports whether the node is Null.
func (n *Node) IsNull() bool {
	return n.Kind() == Null
}

// AsString returns the value of a String node.
func (n *Node) AsString() (string, bool) {
	if n.Kind() != String {
		return "", false
	}
	return n.text, true
}

// AsBool returns the value of a Boolean node.
func (n *Node) AsBool() (bool, bool) {
	if n.Kind() != Boolean {
		return false, false
	}
	return n.truth, true
}

// AsNumber returns the decimal text of a Number node.
func (n *Node) AsNumber() (json.Number, bool) {
	if n.Kind() != Number {
		return "", false
	}
	return json.Number(n.text), true
}

// Len returns the number of items of a Sequence or pairs of a Mapping, and zero otherwise.
func (n *Node) Len() int {
	switch n.Kind() {
	case Sequence:
		return len(n.items)
	case Mapping:
		return len(n.pairs)
	default:
		return 0
	}
}

// Index returns the i-th item of a Sequence.
func (n *Node) Index(i int) (*Node, bool) {
	if n.Kind() != Sequence || i < 0 || i >= len(n.items) {
		return nil, false
	}
	return n.items[i], true
}

// Items returns a copy of the items of a Sequence.
func (n *Node) Items() []*Node {
	if n.Kind() != Sequence {
		return nil
	}
	out := make([]*Node, len(n.items))
	copy(out, n.items)
	return out
}

// Get returns the value stored under key in a Mapping.
func (n *Node) Get(key string) (*Node, bool) {
	if n.Kind() != Mapping {
		return nil, false
	}
	v, ok := n.pairs[key]
	return v, ok
}

// Keys returns the keys of a Mapping in sorted order.
func (n *Node) Keys() []string {
	if n.Kind() != Mapping {
		return nil
	}
	keys := make([]string, 0, len(n.pairs))
	for k := range n.pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether two trees hold the same values.
// Numbers compare by their canonical text.
func (n *Node) Equal(other *Node) bool {
	if n.Kind() != other.Kind() {
		return false
	}
	switch n.Kind() {
	case Null:
		return true
	case Boolean:
		return n.truth == other.truth
	case Number, String:
		return n.text == other.text
	case Sequence:
		if len(n.items) != len(other.items) {
			return false
		}
		for i := range n.items {
			if !n.items[i].Equal(other.items[i]) {
				return false
			}
		}
		return true
	case Mapping:
		if len(n.pairs) != len(other.pairs) {
			return false
		}
		for k, v := range n.pairs {
			ov, ok := other.pairs[k]
			if !ok || !v.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// Render returns the canonical string form used when a value is spliced into a string:
// strings as is, numbers as their decimal text, booleans as "true" or "false", null as
// the empty string, and collections as compact JSON.
func (n *Node) Render() string {
	switch n.Kind() {
	case Null:
		return ""
	case Boolean:
		if n.truth {
			return "true"
		}
		return "false"
	case Number, String:
		return n.text
	default:
		data, err := EncodeJSON(n, "")
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	return n.Render()
}

// Value converts the tree into plain Go values: map[string]any, []any, string,
// json.Number, bool and nil.
func (n *Node) Value() any {
	switch n.Kind() {
	case Boolean:
		return n.truth
	case Number:
		return json.Number(n.text)
	case String:
		return n.text
	case Sequence:
		out := make([]any, len(n.items))
		for i, item := range n.items {
			out[i] = item.Value()
		}
		return out
	case Mapping:
		out := make(map[string]any, len(n.pairs))
		for k, v := range n.pairs {
			out[k] = v.Value()
		}
		return out
	default:
		return nil
	}
}
