package tree

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// DefaultDecimals is the float precision used when none is configured.
const DefaultDecimals = 5

// intSnap is how close a rounded float must be to an integer to be
// stored as one.
const intSnap = 1e-12

// Canonicalizer reduces trees to canonical form at a fixed float
// precision. Two trees that differ only in child order, float noise below
// the precision, or integral floats written with a fraction produce
// byte-identical encodings.
type Canonicalizer struct {
	decimals int
}

// NewCanonicalizer returns a Canonicalizer that rounds floats to decimals
// places. Negative values are treated as zero.
func NewCanonicalizer(decimals int) *Canonicalizer {
	if decimals < 0 {
		decimals = 0
	}

	return &Canonicalizer{decimals: decimals}
}

var defaultCanonicalizer = NewCanonicalizer(DefaultDecimals)

// Canonicalize coerces v into a Node and canonicalizes it at the default
// precision.
func Canonicalize(v Value) Node {
	return defaultCanonicalizer.Canonicalize(v)
}

func (c *Canonicalizer) Decimals() int { return c.decimals }

// Canonicalize coerces v into a Node and canonicalizes it.
func (c *Canonicalizer) Canonicalize(v Value) Node {
	return c.Node(FromValue(v))
}

// Node returns the canonical form of n. The input is not modified.
func (c *Canonicalizer) Node(n Node) Node {
	out := Node{
		Class: n.Class,
		Name:  n.Name,
		Props: c.values(n.Props),
		Attrs: c.values(n.Attrs),
	}

	children := make([]Node, len(n.Children))
	for i, child := range n.Children {
		children[i] = c.Node(child)
	}

	out.Children = orderChildren(children)

	return out
}

// Value normalizes numbers inside v. Floats are rounded to the configured
// precision and collapse to integers when the result is integral. Bools
// and integers are left alone.
func (c *Canonicalizer) Value(v Value) Value {
	switch v.kind {
	case KindFloat:
		return c.float(v.f)
	case KindList:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			items[i] = c.Value(item)
		}

		return List(items...)
	case KindMap:
		return Map(c.values(v.m))
	default:
		return v
	}
}

func (c *Canonicalizer) values(m map[string]Value) map[string]Value {
	out := make(map[string]Value, len(m))
	for k, v := range m {
		out[k] = c.Value(v)
	}

	return out
}

func (c *Canonicalizer) float(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Float(f)
	}

	// FormatFloat rounds the exact binary value half-to-even, which keeps
	// results stable across platforms.
	r, err := strconv.ParseFloat(strconv.FormatFloat(f, 'f', c.decimals, 64), 64)
	if err != nil {
		r = f
	}

	whole := math.Round(r)
	if math.Abs(r-whole) < intSnap && math.Abs(whole) < math.MaxInt64 {
		return Int(int64(whole))
	}

	return Float(r)
}

type childKey struct {
	name  string
	class string
	print string
}

func keyOf(n Node) childKey {
	return childKey{name: strings.ToLower(n.Name), class: strings.ToLower(n.Class)}
}

// orderChildren sorts by lowercased (name, class). Children sharing that
// pair are ordered by content fingerprint so the result does not depend
// on input order.
func orderChildren(children []Node) []Node {
	if len(children) == 0 {
		return nil
	}

	keys := make([]childKey, len(children))
	counts := map[childKey]int{}

	for i, c := range children {
		keys[i] = keyOf(c)
		counts[keys[i]]++
	}

	for i, c := range children {
		if counts[keys[i]] > 1 {
			keys[i].print = Fingerprint(c)
		}
	}

	idx := make([]int, len(children))
	for i := range idx {
		idx[i] = i
	}

	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if ka.name != kb.name {
			return ka.name < kb.name
		}

		if ka.class != kb.class {
			return ka.class < kb.class
		}

		return ka.print < kb.print
	})

	out := make([]Node, len(children))
	for i, j := range idx {
		out[i] = children[j]
	}

	return out
}
