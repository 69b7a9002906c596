package indexing

import (
	"fmt"
	"strings"
)

const (
	hierarchicalContextHeader = "## Hierarchical Context"
	maxHeaderLevel            = 6
)

// ComposeDocumentation builds one documentation string from path-based fragments.
//
// The deepest path (the leaf) leads, bolded, so the most specific text appears first.
// Every other non-empty fragment follows under a "Hierarchical Context" section, in
// insertion order, with a markdown header whose level grows with the path depth.
// Levels beyond 6 are rendered as bold paths indented two spaces per extra level.
//
// Example, for fragments inserted root-first:
//
//	core_profiles                     -> "Core plasma profiles data"
//	core_profiles/profiles_1d         -> "1D profile data"
//	core_profiles/profiles_1d/t_e     -> "Temperature profile"
//
// the result is
//
//	**core_profiles/profiles_1d/t_e**
//	Temperature profile
//
//	## Hierarchical Context
//
//	### core_profiles
//	Core plasma profiles data
//
//	#### core_profiles/profiles_1d
//	1D profile data
func ComposeDocumentation(fragments *Fragments) string {
	if fragments.Len() == 0 {
		return ""
	}

	paths := fragments.Paths()

	// Deepest path wins, first inserted on ties
	leaf := paths[0]
	leafDepth := strings.Count(leaf, "/")
	for _, p := range paths[1:] {
		if d := strings.Count(p, "/"); d > leafDepth {
			leaf, leafDepth = p, d
		}
	}

	var sections []string
	if doc := fragments.Get(leaf); doc != "" {
		sections = append(sections, fmt.Sprintf("**%s**\n%s", leaf, doc))
	}

	var context []string
	for _, p := range paths {
		if p == leaf {
			continue
		}
		doc := fragments.Get(p)
		if doc == "" {
			continue
		}
		context = append(context, contextBlock(p, doc))
	}

	if len(context) > 0 {
		sections = append(sections, hierarchicalContextHeader)
		sections = append(sections, context...)
	}

	return strings.Join(sections, "\n\n")
}

// contextBlock renders one ancestor fragment
func contextBlock(path, doc string) string {
	depth := strings.Count(path, "/") + 1
	level := depth + 2

	if level <= maxHeaderLevel {
		return fmt.Sprintf("%s %s\n%s", strings.Repeat("#", level), path, doc)
	}

	indent := strings.Repeat("  ", level-maxHeaderLevel)
	return fmt.Sprintf("%s %s**%s**\n%s%s", strings.Repeat("#", maxHeaderLevel), indent, path, indent, doc)
}
