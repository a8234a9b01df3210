// Package tree models instance trees exported by the authoring tool and
// reduces them to a canonical form that compares equal regardless of
// child order or float serialization noise.
package tree

import (
	"sort"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a JSON-like value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	m    map[string]Value
}

func Null() Value { return Value{} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// Map wraps m without copying it.
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}

	return Value{kind: KindMap, m: m}
}

func (v Value) Kind() Kind { return v.kind }

// AsBool returns the boolean and whether v is a bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer and whether v is an int.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the float and whether v is a float.
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }

// AsString returns the string and whether v is a string.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsList returns the elements and whether v is a list. The slice is
// shared with v.
func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }

// AsMap returns the entries and whether v is a map. The map is shared
// with v.
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// Text renders a scalar as text: strings as-is, booleans as true/false
// and numbers in their compact encoding. Null, lists and maps report
// false.
func (v Value) Text() (string, bool) {
	switch v.kind {
	case KindString:
		return v.s, true
	case KindBool:
		return strconv.FormatBool(v.b), true
	case KindInt, KindFloat:
		return string(Compact(v)), true
	default:
		return "", false
	}
}

// Get returns the entry for key when v is a map.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}

	e, ok := v.m[key]

	return e, ok
}

// Node is one instance in a tree.
type Node struct {
	Class    string
	Name     string
	Props    map[string]Value
	Attrs    map[string]Value
	Children []Node
}

// Value converts n back into its map form.
func (n Node) Value() Value {
	children := make([]Value, len(n.Children))
	for i, c := range n.Children {
		children[i] = c.Value()
	}

	return Map(map[string]Value{
		"class":    String(n.Class),
		"name":     String(n.Name),
		"props":    Map(copyMap(n.Props)),
		"attrs":    Map(copyMap(n.Attrs)),
		"children": List(children...),
	})
}

// FromValue coerces an arbitrary value into a Node. Anything that is not
// the expected shape becomes the empty value of the right shape; it never
// fails. Values are copied as-is, see Canonicalizer for normalization.
func FromValue(v Value) Node {
	n := Node{
		Props: map[string]Value{},
		Attrs: map[string]Value{},
	}

	m, ok := v.AsMap()
	if !ok {
		return n
	}

	n.Class, _ = m["class"].Text()
	n.Name, _ = m["name"].Text()

	if props, ok := m["props"].AsMap(); ok {
		n.Props = copyMap(props)
	}

	if attrs, ok := m["attrs"].AsMap(); ok {
		n.Attrs = copyMap(attrs)
	}

	if children, ok := m["children"].AsList(); ok {
		for _, c := range children {
			if c.Kind() != KindMap {
				continue
			}

			n.Children = append(n.Children, FromValue(c))
		}
	}

	return n
}

func copyMap(m map[string]Value) map[string]Value {
	out := make(map[string]Value, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
