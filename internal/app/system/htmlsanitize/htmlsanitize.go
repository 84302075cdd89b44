// Package htmlsanitize strips dangerous HTML from user-supplied text
// before it is stored. Bug descriptions and comments accept limited
// formatting, so we allow the UGC tag set and nothing else.
package htmlsanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// policy allows common user-generated-content formatting (paragraphs,
// emphasis, lists, links with safe schemes, code blocks) and strips
// everything else, including scripts and event handler attributes.
var policy = bluemonday.UGCPolicy()

// Sanitize returns s with disallowed tags and attributes removed.
// Sanitization happens once, on write; stored content is trusted on
// read. Input with no markup passes through byte-for-byte, so plain
// text containing comparison operators ("5 < 10") is never entity-escaped.
func Sanitize(s string) string {
	if !ContainsMarkup(s) {
		return s
	}
	return policy.Sanitize(s)
}

// ContainsMarkup reports whether s contains anything that looks like an
// HTML tag.
func ContainsMarkup(s string) bool {
	return strings.Contains(s, "<") && strings.Contains(s, ">")
}
