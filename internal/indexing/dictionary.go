package indexing

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/imas/mcp-server/internal/schema"
)

// ErrConfiguration wraps fatal problems with the Data Dictionary source
// (missing root, missing version). They are never retried.
var ErrConfiguration = errors.New("data dictionary configuration error")

// DataDictionary is one extraction configuration: a schema source plus an IDS selection.
// Derived values (tree, parent map, version, selection, element count) are computed
// lazily, once, and are read-only afterwards. Each instance owns its own cache.
type DataDictionary struct {
	source   schema.Source
	explicit IDSSet

	root      func() (*schema.Element, error)
	version   func() (string, error)
	ancestry  func() (schema.Ancestry, error)
	selection func() (IDSSet, error)
	total     func() (int, error)
}

// NewDataDictionary creates an extraction configuration. A nil ids selects every IDS.
func NewDataDictionary(source schema.Source, ids IDSSet) *DataDictionary {
	d := &DataDictionary{
		source:   source,
		explicit: ids,
	}
	d.root = sync.OnceValues(d.loadRoot)
	d.version = sync.OnceValues(d.loadVersion)
	d.ancestry = sync.OnceValues(d.buildAncestry)
	d.selection = sync.OnceValues(d.resolveSelection)
	d.total = sync.OnceValues(d.countElements)

	log.Printf("Initializing Data Dictionary with ids set: %s", describeSelection(ids))
	return d
}

func describeSelection(ids IDSSet) string {
	if ids == nil {
		return "all"
	}
	return fmt.Sprintf("%v", ids.Sorted())
}

func (d *DataDictionary) loadRoot() (*schema.Element, error) {
	root, err := d.source.Root()
	if err != nil {
		if errors.Is(err, schema.ErrNoRoot) {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		return nil, err
	}
	return root, nil
}

func (d *DataDictionary) loadVersion() (string, error) {
	if _, err := d.root(); err != nil {
		return "", err
	}
	version, err := d.source.VersionText()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return version, nil
}

func (d *DataDictionary) buildAncestry() (schema.Ancestry, error) {
	root, err := d.root()
	if err != nil {
		return nil, err
	}
	return schema.BuildAncestry(root), nil
}

func (d *DataDictionary) resolveSelection() (IDSSet, error) {
	root, err := d.root()
	if err != nil {
		return nil, err
	}
	return ResolveIDSSet(root, d.explicit), nil
}

func (d *DataDictionary) countElements() (int, error) {
	nodes, err := d.selectedNodes()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, node := range nodes {
		total++ // IDS root
		total += len(node.NamedDescendants())
	}
	log.Printf("Total elements to process: %d", total)
	return total, nil
}

// ResolveIDSSet returns the IDS names to process. A non-nil explicit set is returned
// unchanged, even when empty; otherwise every named IDS in the schema is selected.
func ResolveIDSSet(root *schema.Element, explicit IDSSet) IDSSet {
	if explicit != nil {
		return explicit
	}

	log.Printf("No specific ids set provided, using all IDS names from the Data Dictionary")
	all := make(IDSSet)
	for _, elem := range root.FindAll(IDSTag) {
		if name := elem.Name(); name != "" {
			all[name] = struct{}{}
		}
	}
	if len(all) == 0 {
		log.Printf("Warning: No IDS names found in the Data Dictionary XML")
	}
	return all
}

// Version returns the public Data Dictionary version
func (d *DataDictionary) Version() (string, error) {
	return d.version()
}

// Selection returns the resolved set of IDS names
func (d *DataDictionary) Selection() (IDSSet, error) {
	return d.selection()
}

// IDSNames returns the selected IDS names, sorted
func (d *DataDictionary) IDSNames() ([]string, error) {
	selected, err := d.selection()
	if err != nil {
		return nil, err
	}
	return selected.Sorted(), nil
}

// TotalElements returns the number of IDS roots plus their named descendants
func (d *DataDictionary) TotalElements() (int, error) {
	return d.total()
}

// IndexName returns the content-addressed index name for prefix
func (d *DataDictionary) IndexName(prefix IndexPrefix) (string, error) {
	version, err := d.version()
	if err != nil {
		return "", err
	}
	var subset []string
	if d.explicit != nil {
		subset = d.explicit.Sorted()
	}
	return IndexName(prefix, version, subset), nil
}

// selectedNodes returns the selected IDS elements in schema order
func (d *DataDictionary) selectedNodes() ([]*schema.Element, error) {
	root, err := d.root()
	if err != nil {
		return nil, err
	}
	selected, err := d.selection()
	if err != nil {
		return nil, err
	}

	var nodes []*schema.Element
	for _, node := range root.FindAll(IDSTag) {
		if name := node.Name(); name != "" && selected.Contains(name) {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}
