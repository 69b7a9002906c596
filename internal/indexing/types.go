package indexing

import "sort"

// Document is one flat, indexable entry extracted from the Data Dictionary
type Document struct {
	Path          string `json:"path"`          // ids_name/node/.../leaf
	Documentation string `json:"documentation"` // Leaf-first hierarchical documentation
	Units         string `json:"units"`         // Concrete units or "none", never "as_parent"
	IDSName       string `json:"ids_name"`
}

// Fields returns the document as a generic JSON object
func (d Document) Fields() map[string]any {
	return map[string]any{
		"path":          d.Path,
		"documentation": d.Documentation,
		"units":         d.Units,
		"ids_name":      d.IDSName,
	}
}

// IDSSet is a set of IDS names. A nil IDSSet selects every IDS in the Data Dictionary,
// an empty non-nil set selects none.
type IDSSet map[string]struct{}

// NewIDSSet builds a set from names, ignoring empty strings
func NewIDSSet(names ...string) IDSSet {
	set := make(IDSSet, len(names))
	for _, name := range names {
		if name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}

// Contains reports whether name is in the set
func (s IDSSet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the names in lexical order
func (s IDSSet) Sorted() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fragments holds node-local documentation keyed by hierarchical path, in insertion order
type Fragments struct {
	paths []string
	docs  map[string]string
}

// NewFragments returns an empty fragment map
func NewFragments() *Fragments {
	return &Fragments{docs: make(map[string]string)}
}

// Set stores the documentation of path. Re-setting a path keeps its original position.
func (f *Fragments) Set(path, doc string) {
	if _, exists := f.docs[path]; !exists {
		f.paths = append(f.paths, path)
	}
	f.docs[path] = doc
}

// Get returns the documentation stored for path
func (f *Fragments) Get(path string) string {
	return f.docs[path]
}

// Paths returns the paths in insertion order
func (f *Fragments) Paths() []string {
	return f.paths
}

// Len returns the number of stored paths
func (f *Fragments) Len() int {
	if f == nil {
		return 0
	}
	return len(f.paths)
}
