package indexing_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/imas/mcp-server/internal/indexing"
	"github.com/imas/mcp-server/internal/schema"
)

const xyzSchema = `<IDSs>
  <version>3.40.0</version>
  <IDS name="X" documentation="root doc">
    <field name="Y" documentation="child doc" units="m">
      <field name="Z" units="as_parent"/>
    </field>
  </IDS>
</IDSs>`

const richSchema = `<IDSs>
  <version>4.0.0</version>
  <IDS name="equilibrium" documentation="Equilibrium" units="as_parent">
    <field name="time" units="s" documentation="Time"/>
  </IDS>
  <IDS documentation="unnamed IDS is ignored">
    <field name="ghost"/>
  </IDS>
  <IDS name="core_profiles" documentation="Core plasma profiles" units="mixed">
    <field name="profiles_1d" documentation="1D profiles">
      <field name="electrons" documentation="Electron quantities" units="as_parent">
        <field name="temperature" units="eV" documentation="Electron temperature"/>
        <field name="density" units="as_parent"/>
      </field>
      <wrapper>
        <field name="grid" documentation="Radial grid" units="as_parent"/>
      </wrapper>
    </field>
    <field name="chain" units="as_parent">
      <field name="link" units="as_parent">
        <field name="end" units="as_parent"/>
      </field>
    </field>
  </IDS>
</IDSs>`

func newDictionary(t *testing.T, xml string, ids indexing.IDSSet) *indexing.DataDictionary {
	t.Helper()
	return indexing.NewDataDictionary(schema.BytesSource(t.Name(), []byte(xml)), ids)
}

func collect(t *testing.T, d *indexing.DataDictionary, sink indexing.ProgressSink) []indexing.Document {
	t.Helper()
	var docs []indexing.Document
	for doc, err := range d.Documents(context.Background(), sink) {
		if err != nil {
			t.Fatalf("Documents() error = %v", err)
		}
		docs = append(docs, doc)
	}
	return docs
}

type countingSink struct {
	advances     int
	descriptions []string
}

func (s *countingSink) Advance() { s.advances++ }
func (s *countingSink) UpdateDescription(d string) {
	s.descriptions = append(s.descriptions, d)
}

func TestDocuments_EndToEnd(t *testing.T) {
	d := newDictionary(t, xyzSchema, nil)
	docs := collect(t, d, nil)

	if len(docs) != 3 {
		t.Fatalf("Documents() yielded %d records, want 3: %+v", len(docs), docs)
	}

	expected := []indexing.Document{
		{
			Path:          "X",
			Documentation: "root doc",
			Units:         "none",
			IDSName:       "X",
		},
		{
			Path:          "X/Y",
			Documentation: "**X/Y**\nchild doc\n\n## Hierarchical Context\n\n### X\nroot doc",
			Units:         "m",
			IDSName:       "X",
		},
		{
			Path:          "X/Y/Z",
			Documentation: "## Hierarchical Context\n\n### X\nroot doc\n\n#### X/Y\nchild doc",
			Units:         "m",
			IDSName:       "X",
		},
	}

	for i, want := range expected {
		if docs[i] != want {
			t.Errorf("document %d =\n%+v\nwant\n%+v", i, docs[i], want)
		}
	}

	// Leaf text leads when present
	if !strings.HasPrefix(docs[1].Documentation, "**X/Y**\nchild doc") {
		t.Errorf("leaf documentation should come first: %q", docs[1].Documentation)
	}
}

func TestDocuments_UnitsAndPaths(t *testing.T) {
	d := newDictionary(t, richSchema, nil)
	docs := collect(t, d, indexing.NopProgress{})

	byPath := make(map[string]indexing.Document)
	var order []string
	for _, doc := range docs {
		if _, dup := byPath[doc.Path]; dup {
			t.Errorf("duplicate path %s", doc.Path)
		}
		byPath[doc.Path] = doc
		order = append(order, doc.Path)

		if doc.Units == indexing.UnitsAsParent {
			t.Errorf("%s: units must never be the inheritance marker", doc.Path)
		}
		if doc.Units == "" {
			t.Errorf("%s: units must never be empty", doc.Path)
		}
	}

	wantOrder := []string{
		"equilibrium",
		"equilibrium/time",
		"core_profiles",
		"core_profiles/profiles_1d",
		"core_profiles/profiles_1d/electrons",
		"core_profiles/profiles_1d/electrons/temperature",
		"core_profiles/profiles_1d/electrons/density",
		"core_profiles/profiles_1d/grid",
		"core_profiles/chain",
		"core_profiles/chain/link",
		"core_profiles/chain/link/end",
	}
	if got := strings.Join(order, ","); got != strings.Join(wantOrder, ",") {
		t.Errorf("document order =\n%s\nwant\n%s", got, strings.Join(wantOrder, ","))
	}

	units := map[string]string{
		"equilibrium":                                     "none",
		"equilibrium/time":                                "s",
		"core_profiles":                                   "mixed",
		"core_profiles/profiles_1d":                       "none",
		"core_profiles/profiles_1d/electrons":             "mixed",
		"core_profiles/profiles_1d/electrons/temperature": "eV",
		"core_profiles/profiles_1d/electrons/density":     "mixed",
		"core_profiles/profiles_1d/grid":                  "mixed",
		"core_profiles/chain":                             "mixed",
		"core_profiles/chain/link":                        "mixed",
		"core_profiles/chain/link/end":                    "mixed",
	}
	for path, want := range units {
		if got := byPath[path].Units; got != want {
			t.Errorf("%s units = %q, want %q", path, got, want)
		}
	}

	// Unnamed wrapper contributes no path segment and no fragment
	grid := byPath["core_profiles/profiles_1d/grid"]
	if !strings.HasPrefix(grid.Documentation, "**core_profiles/profiles_1d/grid**\nRadial grid") {
		t.Errorf("grid documentation = %q", grid.Documentation)
	}
	if !strings.Contains(grid.Documentation, "#### core_profiles/profiles_1d\n1D profiles") {
		t.Errorf("grid documentation missing parent context: %q", grid.Documentation)
	}

	if _, ok := byPath["ghost"]; ok {
		t.Error("descendants of unnamed IDS must not be extracted")
	}
}

func TestDocuments_Selection(t *testing.T) {
	t.Run("explicit subset", func(t *testing.T) {
		d := newDictionary(t, richSchema, indexing.NewIDSSet("equilibrium"))
		docs := collect(t, d, nil)
		if len(docs) != 2 {
			t.Fatalf("got %d documents, want 2", len(docs))
		}
		for _, doc := range docs {
			if doc.IDSName != "equilibrium" {
				t.Errorf("unexpected IDS %s", doc.IDSName)
			}
		}
	})

	t.Run("empty set processes nothing", func(t *testing.T) {
		d := newDictionary(t, richSchema, indexing.IDSSet{})
		if docs := collect(t, d, nil); len(docs) != 0 {
			t.Errorf("got %d documents, want 0", len(docs))
		}
	})

	t.Run("unknown IDS", func(t *testing.T) {
		d := newDictionary(t, richSchema, indexing.NewIDSSet("missing"))
		if docs := collect(t, d, nil); len(docs) != 0 {
			t.Errorf("got %d documents, want 0", len(docs))
		}
	})

	t.Run("all IDS names", func(t *testing.T) {
		d := newDictionary(t, richSchema, nil)
		names, err := d.IDSNames()
		if err != nil {
			t.Fatalf("IDSNames() error = %v", err)
		}
		if got := strings.Join(names, ","); got != "core_profiles,equilibrium" {
			t.Errorf("IDSNames() = %s", got)
		}
	})
}

func TestDocuments_Progress(t *testing.T) {
	d := newDictionary(t, richSchema, nil)

	total, err := d.TotalElements()
	if err != nil {
		t.Fatalf("TotalElements() error = %v", err)
	}
	// equilibrium: 1 + 1, core_profiles: 1 + 8
	if total != 11 {
		t.Errorf("TotalElements() = %d, want 11", total)
	}

	sink := &countingSink{}
	docs := collect(t, d, sink)
	if sink.advances != total {
		t.Errorf("sink advanced %d times, want %d", sink.advances, total)
	}
	if len(docs) != total {
		t.Errorf("got %d documents, want %d", len(docs), total)
	}
}

func TestDocuments_ProgressDescription(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`<IDSs><version>1.0</version><IDS name="big">`)
	for i := 0; i < 120; i++ {
		sb.WriteString(`<field name="f` + strings.Repeat("x", i+1) + `"/>`)
	}
	sb.WriteString(`</IDS></IDSs>`)

	d := newDictionary(t, sb.String(), nil)
	sink := &countingSink{}
	docs := collect(t, d, sink)

	if len(docs) != 121 {
		t.Fatalf("got %d documents, want 121", len(docs))
	}
	if len(sink.descriptions) != 2 {
		t.Errorf("got %d description updates, want 2", len(sink.descriptions))
	}
	for _, desc := range sink.descriptions {
		if desc != "Processing big" {
			t.Errorf("description = %q", desc)
		}
	}
}

func TestDocuments_EarlyStop(t *testing.T) {
	d := newDictionary(t, richSchema, nil)

	seen := 0
	for _, err := range d.Documents(context.Background(), nil) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen++
		if seen == 3 {
			break
		}
	}
	if seen != 3 {
		t.Errorf("consumed %d documents, want 3", seen)
	}

	// Restartable: a new call walks the whole tree again
	if docs := collect(t, d, nil); len(docs) != 11 {
		t.Errorf("second run yielded %d documents, want 11", len(docs))
	}
}

func TestDocuments_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		xml  string
	}{
		{"missing version", `<IDSs><IDS name="a"/></IDSs>`},
		{"empty document", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDictionary(t, tt.xml, nil)
			count := 0
			var gotErr error
			for _, err := range d.Documents(context.Background(), nil) {
				count++
				gotErr = err
			}
			if count != 1 {
				t.Errorf("expected a single error item, got %d items", count)
			}
			if !errors.Is(gotErr, indexing.ErrConfiguration) {
				t.Errorf("error = %v, want ErrConfiguration", gotErr)
			}
		})
	}
}

func TestDocuments_Cancelled(t *testing.T) {
	d := newDictionary(t, richSchema, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var gotErr error
	for _, err := range d.Documents(ctx, nil) {
		if err != nil {
			gotErr = err
		}
	}
	if !errors.Is(gotErr, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", gotErr)
	}
}

func TestResolveUnits(t *testing.T) {
	root, err := schema.Parse(strings.NewReader(`<IDSs>
	  <IDS name="I" units="T">
	    <field name="a" units="as_parent">
	      <field name="b" units="as_parent"/>
	      <field name="c"/>
	      <field name="d" units="m"/>
	    </field>
	  </IDS>
	  <IDS name="J">
	    <field name="e" units="as_parent"/>
	  </IDS>
	</IDSs>`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	parents := schema.BuildAncestry(root)

	ids := root.FindAll("IDS")
	tests := []struct {
		ids      *schema.Element
		index    int
		expected string
	}{
		{ids[0], 0, "T"},    // a inherits from IDS
		{ids[0], 1, "T"},    // b follows the chain of markers
		{ids[0], 2, "none"}, // c declares nothing
		{ids[0], 3, "m"},    // d is concrete
		{ids[1], 0, "none"}, // e has no concrete ancestor
	}

	for _, tt := range tests {
		elem := tt.ids.NamedDescendants()[tt.index]
		t.Run(elem.Name(), func(t *testing.T) {
			if got := indexing.ResolveUnits(elem, tt.ids, parents); got != tt.expected {
				t.Errorf("ResolveUnits(%s) = %q, want %q", elem.Name(), got, tt.expected)
			}
		})
	}
}
