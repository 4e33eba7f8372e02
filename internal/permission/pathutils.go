// ABOUTME: Path normalization for model-proposed paths: Unicode spaces, NFC/NFD, tilde expansion
// ABOUTME: Picks the on-disk spelling when the proposed one differs only by Unicode form

package permission

import (
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeSpaces replaces Unicode space characters with ASCII space (U+0020).
func NormalizeSpaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isUnicodeSpace(r) {
			b.WriteByte(' ')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isUnicodeSpace(r rune) bool {
	switch {
	case r == '\u00A0': // no-break space
		return true
	case r >= '\u2000' && r <= '\u200A':
		return true
	case r == '\u202F', r == '\u205F', r == '\u3000':
		return true
	}
	return false
}

// ExpandPath strips a leading "@" (models sometimes prepend it), expands a
// leading "~" to the home directory, and normalizes Unicode spaces.
func ExpandPath(path string) string {
	path = strings.TrimPrefix(path, "@")

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = home + path[1:]
		}
	}

	return NormalizeSpaces(path)
}

// existingVariant returns the first Unicode spelling of p that exists on
// disk, or p itself when none does.
func existingVariant(p string) string {
	if _, err := os.Lstat(p); err == nil {
		return p
	}

	candidates := []string{
		norm.NFC.String(p),
		norm.NFD.String(p),
		strings.ReplaceAll(p, "\u2019", "'"),
		norm.NFD.String(strings.ReplaceAll(p, "\u2019", "'")),
	}
	for _, c := range candidates {
		if c == p {
			continue
		}
		if _, err := os.Lstat(c); err == nil {
			return c
		}
	}
	return p
}
