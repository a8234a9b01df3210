package tree

// Merge overlays a partial export onto base, defaulting precision.
func Merge(base, overlay Node) Node {
	return defaultCanonicalizer.Merge(base, overlay)
}

// Merge overlays overlay onto base and returns the canonical result.
//
// Class and name come from overlay when non-empty. Props and attrs are
// the union with overlay winning. Children are paired by exact
// (class, name) and occurrence index; paired children merge recursively,
// unmatched overlay children are added and unmatched base children are
// kept. Nothing in base is ever removed.
func (c *Canonicalizer) Merge(base, overlay Node) Node {
	out := Node{
		Class: base.Class,
		Name:  base.Name,
		Props: c.values(base.Props),
		Attrs: c.values(base.Attrs),
	}

	if overlay.Class != "" {
		out.Class = overlay.Class
	}

	if overlay.Name != "" {
		out.Name = overlay.Name
	}

	for k, v := range overlay.Props {
		out.Props[k] = c.Value(v)
	}

	for k, v := range overlay.Attrs {
		out.Attrs[k] = c.Value(v)
	}

	type pairKey struct{ class, name string }

	var order []pairKey

	baseGroups := map[pairKey][]Node{}
	overlayGroups := map[pairKey][]Node{}

	for _, ch := range base.Children {
		k := pairKey{ch.Class, ch.Name}
		if _, seen := baseGroups[k]; !seen {
			order = append(order, k)
		}

		baseGroups[k] = append(baseGroups[k], ch)
	}

	for _, ch := range overlay.Children {
		k := pairKey{ch.Class, ch.Name}
		_, inBase := baseGroups[k]
		_, inOverlay := overlayGroups[k]

		if !inBase && !inOverlay {
			order = append(order, k)
		}

		overlayGroups[k] = append(overlayGroups[k], ch)
	}

	var children []Node

	for _, k := range order {
		b, o := baseGroups[k], overlayGroups[k]
		for i := 0; i < max(len(b), len(o)); i++ {
			switch {
			case i < len(b) && i < len(o):
				children = append(children, c.Merge(b[i], o[i]))
			case i < len(o):
				children = append(children, c.Merge(Node{}, o[i]))
			default:
				children = append(children, c.Node(b[i]))
			}
		}
	}

	out.Children = orderChildren(children)

	return out
}
