package sheet

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var whitespace = regexp.MustCompile(`\s+`)

// CanonicalColumn normalizes a header label: trimmed, upper-cased, accents
// stripped, whitespace collapsed, dots removed. "Aliment." becomes "ALIMENT".
func CanonicalColumn(label string) string {
	name := strings.ToUpper(strings.TrimSpace(label))
	name = stripAccents(name)
	name = whitespace.ReplaceAllString(name, " ")
	name = strings.ReplaceAll(name, ".", "")
	return strings.TrimSpace(name)
}

func stripAccents(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return out
}
