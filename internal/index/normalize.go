// Package index converts extracted document content into the uniform
// searchable representation that gets embedded: whitespace-normalized
// prose fragments and linearized tables.
package index

import "strings"

// Normalize joins extracted paragraphs into a single string with every run
// of whitespace (including newlines) collapsed to one space and no leading
// or trailing whitespace. Empty input yields the empty string.
func Normalize(paragraphs []string) string {
	return strings.Join(strings.Fields(strings.Join(paragraphs, "\n")), " ")
}
