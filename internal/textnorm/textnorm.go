// Package textnorm cleans feed text before it is stored or matched against keywords.
package textnorm

import (
	"strings"
	"unicode"
)

var invisible = strings.NewReplacer(
	"\u200b", "",
	"\u200c", "",
	"\u200d", "",
	"\ufeff", "",
)

// Normalize removes zero-width and BOM characters, collapses every run of
// whitespace into a single space and trims both ends.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(invisible.Replace(s)), " ")
}

// ForMatch prepares text for substring keyword lookup: normalized, lower-cased,
// with every rune that is not a letter, number or space replaced by a space.
func ForMatch(s string) string {
	lowered := strings.ToLower(Normalize(s))
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, lowered)
}
