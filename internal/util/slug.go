package util

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// đ/Đ carry a stroke, not a combining mark, so NFD leaves them intact.
var strokeReplacer = strings.NewReplacer("đ", "d", "Đ", "D")

// RemoveDiacritics strips Vietnamese tone and vowel marks: "Áo Sơ Mi" -> "Ao So Mi".
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strokeReplacer.Replace(s))
	if err != nil {
		return s
	}
	return out
}

// Slugify lowercases s, strips diacritics, turns every run of
// non-alphanumeric characters into a single hyphen and trims hyphens.
func Slugify(s string) string {
	s = strings.ToLower(RemoveDiacritics(s))

	var b strings.Builder
	b.Grow(len(s))
	pendingHyphen := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}
