package schema

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoRoot is returned when the XML input contains no root element
var ErrNoRoot = errors.New("root element not found in XML tree after parsing")

// Attr is a single XML attribute (local name only, namespaces are not used by the Data Dictionary)
type Attr struct {
	Name  string
	Value string
}

// Element is a node of the parsed Data Dictionary tree.
// The tree is read-only once Parse returns.
type Element struct {
	Tag      string
	Attrs    []Attr
	Children []*Element
	Text     string
}

// Attr returns the value of the named attribute and whether it is present
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// AttrOr returns the value of the named attribute, or def when the attribute is absent
func (e *Element) AttrOr(name, def string) string {
	if v, ok := e.Attr(name); ok {
		return v
	}
	return def
}

// Name returns the "name" attribute, empty for unnamed (structural) elements
func (e *Element) Name() string {
	name, _ := e.Attr("name")
	return name
}

// Walk visits every descendant of e (not e itself) in document order.
// Returning false from fn stops the walk.
func (e *Element) Walk(fn func(*Element) bool) bool {
	for _, child := range e.Children {
		if !fn(child) {
			return false
		}
		if !child.Walk(fn) {
			return false
		}
	}
	return true
}

// FindAll returns every descendant with the given tag, in document order
func (e *Element) FindAll(tag string) []*Element {
	var found []*Element
	e.Walk(func(el *Element) bool {
		if el.Tag == tag {
			found = append(found, el)
		}
		return true
	})
	return found
}

// Find returns the first descendant with the given tag, or nil
func (e *Element) Find(tag string) *Element {
	var found *Element
	e.Walk(func(el *Element) bool {
		if el.Tag == tag {
			found = el
			return false
		}
		return true
	})
	return found
}

// NamedDescendants returns every descendant carrying a non-empty name attribute, in document order
func (e *Element) NamedDescendants() []*Element {
	var found []*Element
	e.Walk(func(el *Element) bool {
		if el.Name() != "" {
			found = append(found, el)
		}
		return true
	})
	return found
}

// Parse builds the element tree from XML input
func Parse(r io.Reader) (*Element, error) {
	decoder := xml.NewDecoder(r)

	var stack []*Element
	var root *Element

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			elem := &Element{
				Tag:   t.Name.Local,
				Attrs: convertAttrs(t.Attr),
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, elem)
			} else if root == nil {
				root = elem
			} else {
				return nil, fmt.Errorf("unexpected element %s after document end", t.Name.Local)
			}
			stack = append(stack, elem)

		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}

	if root == nil {
		return nil, ErrNoRoot
	}
	return root, nil
}

func convertAttrs(attrs []xml.Attr) []Attr {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]Attr, 0, len(attrs))
	for _, a := range attrs {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		out = append(out, Attr{Name: a.Name.Local, Value: a.Value})
	}
	return out
}

// TextContent returns the trimmed character data of the element
func (e *Element) TextContent() string {
	return strings.TrimSpace(e.Text)
}
