package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// ErrNoVersion is returned when the Data Dictionary declares no version
var ErrNoVersion = errors.New("version element or its text content not found in XML tree")

// Source gives access to a parsed Data Dictionary.
// Implementations must be safe for repeated calls; the tree is parsed at most once.
type Source interface {
	// Root returns the document element
	Root() (*Element, error)

	// VersionText returns the declared Data Dictionary version
	VersionText() (string, error)
}

// lazySource parses on first use and memoises the result
type lazySource struct {
	name string
	load func() ([]byte, error)
	root func() (*Element, error)
}

func newLazySource(name string, load func() ([]byte, error)) *lazySource {
	s := &lazySource{name: name, load: load}
	s.root = sync.OnceValues(s.parse)
	return s
}

func (s *lazySource) parse() (*Element, error) {
	data, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.name, err)
	}
	root, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.name, err)
	}
	return root, nil
}

func (s *lazySource) Root() (*Element, error) {
	return s.root()
}

func (s *lazySource) VersionText() (string, error) {
	root, err := s.Root()
	if err != nil {
		return "", err
	}
	return VersionOf(root)
}

func (s *lazySource) String() string {
	return s.name
}

// VersionOf returns the text of the first version element under root
func VersionOf(root *Element) (string, error) {
	versionElem := root.Find("version")
	if versionElem == nil {
		return "", ErrNoVersion
	}
	version := versionElem.TextContent()
	if version == "" {
		return "", ErrNoVersion
	}
	return version, nil
}

// FileSource reads the Data Dictionary from a file on disk
func FileSource(path string) Source {
	return newLazySource(path, func() ([]byte, error) {
		return os.ReadFile(path)
	})
}

// FSSource reads the Data Dictionary from a file system, typically an embed.FS
func FSSource(fsys fs.FS, name string) Source {
	return newLazySource(name, func() ([]byte, error) {
		return fs.ReadFile(fsys, name)
	})
}

// BytesSource serves an in-memory Data Dictionary
func BytesSource(name string, data []byte) Source {
	return newLazySource(name, func() ([]byte, error) {
		return data, nil
	})
}
