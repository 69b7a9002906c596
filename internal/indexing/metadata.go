package indexing

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var markdownHeaderRegex = regexp.MustCompile(`(?m)^#{1,6}\s*`)

// StripMarkdown removes the header and bold markers added by ComposeDocumentation
// Example: "### core_profiles\n**a/b**" -> "core_profiles\na/b"
func StripMarkdown(text string) string {
	text = markdownHeaderRegex.ReplaceAllString(text, "")
	return strings.ReplaceAll(text, "**", "")
}

// EstimateTokens estimates the token count for a text string
func EstimateTokens(text string) int {
	return len(text) / CharsPerToken
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "as": true, "by": true, "is": true,
	"it": true, "be": true, "with": true, "from": true, "that": true,
	"hierarchical": true, "context": true,
}

// ExtractKeywords extracts key terms from a document path and the start of its documentation.
// Words are split on anything that is not a letter or digit, so "core_profiles/profiles_1d"
// yields "core", "profiles" and "1d". Keywords keep first-seen order and are capped at 10.
func ExtractKeywords(path, documentation string) []string {
	// Add words from first 200 chars of documentation
	preview := StripMarkdown(documentation)
	if len(preview) > 200 {
		preview = preview[:runeStart(preview, 200)]
	}
	words := append(splitWords(path), splitWords(preview)...)

	seen := make(map[string]bool)
	keywords := make([]string, 0, 10)
	for _, word := range words {
		if len(word) < 2 || stopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
		if len(keywords) == 10 {
			break
		}
	}

	return keywords
}

func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// runeStart backs i off to the start of the rune it falls in
func runeStart(text string, i int) int {
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

// SplitText splits text by byte count at word boundaries, with overlap between parts.
// Parts never split a multi-byte rune.
func SplitText(text string, maxChars, overlapChars int) []string {
	if maxChars <= 0 {
		return []string{text}
	}
	var parts []string

	for len(text) > 0 {
		chunkSize := runeStart(text, min(maxChars, len(text)))
		if chunkSize == 0 {
			// A single rune wider than maxChars
			_, chunkSize = utf8.DecodeRuneInString(text)
		}

		// Try to break at word boundary
		if chunkSize < len(text) {
			// Look back for space or newline
			for i := chunkSize; i > chunkSize-100 && i > 0; i-- {
				if text[i] == ' ' || text[i] == '\n' {
					chunkSize = i
					break
				}
			}
		}

		parts = append(parts, text[:chunkSize])

		// Move forward with overlap
		next := chunkSize
		if chunkSize+overlapChars < len(text) && chunkSize > overlapChars {
			if start := runeStart(text, chunkSize-overlapChars); start > 0 {
				next = start
			}
		}
		text = text[next:]
	}

	return parts
}

// TruncateText cuts text to at most maxChars, preferring a word boundary
func TruncateText(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	return strings.TrimSpace(SplitText(text, maxChars, 0)[0])
}

// EmbeddingText is the text representation of a document for embedding models
func EmbeddingText(doc Document) string {
	var sb strings.Builder
	sb.WriteString(doc.Path)
	if doc.Units != "" && doc.Units != UnitsNone {
		sb.WriteString(" [")
		sb.WriteString(doc.Units)
		sb.WriteString("]")
	}
	if doc.Documentation != "" {
		sb.WriteString("\n")
		sb.WriteString(StripMarkdown(doc.Documentation))
	}
	return TruncateText(sb.String(), MaxEmbeddingTokens*CharsPerToken)
}
