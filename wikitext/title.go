package wikitext

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// NormalizeTitle puts a page title in the form MediaWiki stores it for
// display: spaces instead of underscores, runs of whitespace collapsed,
// Unicode NFC, and an upper-case first letter.
func NormalizeTitle(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.Join(strings.Fields(s), " ")
	s = norm.NFC.String(s)
	return ucfirst(s)
}

func ucfirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
