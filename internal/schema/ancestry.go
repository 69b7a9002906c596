package schema

// Ancestry maps every element of a tree to its direct parent.
// It is built once per extraction run and never modified afterwards.
type Ancestry map[*Element]*Element

// BuildAncestry indexes the parent of every descendant of root in a single pass
func BuildAncestry(root *Element) Ancestry {
	parents := make(Ancestry)
	var visit func(*Element)
	visit = func(p *Element) {
		for _, c := range p.Children {
			parents[c] = p
			visit(c)
		}
	}
	if root != nil {
		visit(root)
	}
	return parents
}

// Parent returns the direct parent of e, or nil for the root and for unknown elements
func (a Ancestry) Parent(e *Element) *Element {
	return a[e]
}
