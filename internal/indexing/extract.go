package indexing

import (
	"context"
	"fmt"
	"iter"
	"log"
	"slices"
	"strings"

	"github.com/imas/mcp-server/internal/schema"
)

// Documents lazily extracts one Document per selected IDS and per named descendant.
//
// Each IDS yields its own entry first, followed by its named descendants in document
// order. sink receives one Advance per visited element; when sink is nil the extractor
// opens its own LogTracker and closes it when the sequence ends, including when the
// consumer stops early. Errors end the sequence: the error is yielded once and nothing
// follows it. Every call walks the tree from scratch.
func (d *DataDictionary) Documents(ctx context.Context, sink ProgressSink) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		version, err := d.version()
		if err != nil {
			yield(Document{}, err)
			return
		}
		log.Printf("Starting extraction for DD version %s", version)

		names, err := d.IDSNames()
		if err != nil {
			yield(Document{}, err)
			return
		}
		log.Printf("Processing %d IDS: %v", len(names), names)

		nodes, err := d.selectedNodes()
		if err != nil {
			yield(Document{}, err)
			return
		}
		if len(nodes) == 0 {
			log.Printf("Warning: No IDS found for ids set: %v", names)
			return
		}

		parents, err := d.ancestry()
		if err != nil {
			yield(Document{}, err)
			return
		}

		if sink == nil {
			total, err := d.total()
			if err != nil {
				yield(Document{}, err)
				return
			}
			tracker := NewLogTracker("Extracting Data Dictionary documents", total)
			defer tracker.Close()
			sink = tracker
		}

		count := 0
		for _, idsNode := range nodes {
			idsName := idsNode.Name()
			if idsName == "" {
				continue
			}
			if err := ctx.Err(); err != nil {
				yield(Document{}, err)
				return
			}

			root := Document{
				Path:          idsName,
				Documentation: idsNode.AttrOr("documentation", ""),
				Units:         idsNode.AttrOr("units", ""),
				IDSName:       idsName,
			}
			if root.Units == "" || root.Units == UnitsAsParent {
				root.Units = UnitsNone
			}
			if !yield(root, nil) {
				return
			}
			count++
			sink.Advance()

			for _, elem := range idsNode.NamedDescendants() {
				doc, ok, err := buildDocument(elem, idsNode, idsName, parents)
				if err != nil {
					log.Printf("Error building document in IDS %s: %v", idsName, err)
					yield(Document{}, err)
					return
				}
				sink.Advance()
				if !ok {
					continue
				}
				if !yield(doc, nil) {
					return
				}
				count++
				if count%ProgressLogInterval == 0 {
					sink.UpdateDescription(fmt.Sprintf("Processing %s", idsName))
					if err := ctx.Err(); err != nil {
						yield(Document{}, err)
						return
					}
				}
			}
		}

		log.Printf("Finished extracting %d document entries from DD", count)
	}
}

// buildDocument walks from elem up to idsNode, collecting the path and the
// node-local documentation of every named element on the way.
// ok is false when the walk collects no named segment.
func buildDocument(elem, idsNode *schema.Element, idsName string, parents schema.Ancestry) (doc Document, ok bool, err error) {
	var names []string
	var named []*schema.Element

	walker := elem
	for walker != idsNode {
		if walker == nil {
			return Document{}, false, fmt.Errorf("element %q is not a descendant of IDS %s", elem.Name(), idsName)
		}
		if name := walker.Name(); name != "" {
			names = append(names, name)
			named = append(named, walker)
		}
		walker = parents.Parent(walker)
	}

	if len(names) == 0 {
		return Document{}, false, nil
	}

	// Collected leaf-first, fragments are inserted root-first
	slices.Reverse(names)
	slices.Reverse(named)

	fragments := NewFragments()
	fragments.Set(idsName, idsNode.AttrOr("documentation", ""))
	for i, node := range named {
		path := idsName + "/" + strings.Join(names[:i+1], "/")
		fragments.Set(path, node.AttrOr("documentation", ""))
	}

	documentation := ComposeDocumentation(fragments)
	if documentation == "" {
		documentation = elem.AttrOr("documentation", "")
	}

	return Document{
		Path:          idsName + "/" + strings.Join(names, "/"),
		Documentation: documentation,
		Units:         ResolveUnits(elem, idsNode, parents),
		IDSName:       idsName,
	}, true, nil
}
