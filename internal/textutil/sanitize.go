package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxSegmentBytes is the common per-component limit on Linux and macOS.
const maxSegmentBytes = 255

// PathSegment makes name usable as a single path component. Separators
// become dashes, reserved and control characters are dropped, and the result
// is cut to a filesystem-safe length on a rune boundary.
func PathSegment(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == '/' || r == '\\' || r == ':':
			b.WriteByte('-')
		case strings.ContainsRune(`*?"<>|`, r), unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Trim(strings.TrimSpace(b.String()), ".")
	for len(out) > maxSegmentBytes {
		_, size := utf8.DecodeLastRuneInString(out)
		out = out[:len(out)-size]
	}
	return out
}

// Slug lowercases value and collapses every run of characters outside
// [a-z0-9-] into one underscore. Empty results become "unknown".
func Slug(value string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(value) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "unknown"
	}
	return out
}

// Truncate shortens value to at most limit runes, marking the cut with an
// ellipsis.
func Truncate(value string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	if limit == 1 {
		return string(runes[:1])
	}
	return string(runes[:limit-1]) + "…"
}
