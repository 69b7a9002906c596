package indexing

import "github.com/imas/mcp-server/internal/schema"

// ResolveUnits returns the effective units of elem.
//
// An "as_parent" marker is replaced by the parent's units at each step of the walk
// towards boundary, so a chain of markers resolves to the nearest concrete value.
// The walk never reads above boundary. Without a concrete value the result is "none".
func ResolveUnits(elem, boundary *schema.Element, parents schema.Ancestry) string {
	units, _ := elem.Attr("units")

	for walker := elem; walker != nil && walker != boundary; walker = parents.Parent(walker) {
		if units != UnitsAsParent {
			break
		}
		parent := parents.Parent(walker)
		if parent == nil {
			break
		}
		if parentUnits, _ := parent.Attr("units"); parentUnits != "" {
			units = parentUnits
		}
	}

	if units == "" || units == UnitsAsParent {
		return UnitsNone
	}
	return units
}
