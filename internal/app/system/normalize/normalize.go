// internal/app/system/normalize/normalize.go
package normalize

import "strings"

// Email lowercases and trims an email address so lookups and the
// unique index behave case-insensitively.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims surrounding whitespace. Case is preserved; the _ci
// companion field handles case-insensitive matching.
func Name(s string) string {
	return strings.TrimSpace(s)
}

// Role lowercases and trims a role string before validation.
func Role(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Status lowercases and trims a bug status so "Open" and "open"
// compare equal before enum validation.
func Status(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Priority lowercases and trims a bug priority.
func Priority(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
