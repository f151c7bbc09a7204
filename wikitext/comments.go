package wikitext

import (
	"regexp"
	"strings"
)

// StripComments removes <!-- ... --> sections. An unterminated comment runs
// to the end of the string, as MediaWiki treats it.
func StripComments(s string) string {
	if !strings.Contains(s, "<!--") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], "<!--") {
			i = skipComment(s, i)
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// skipComment returns the offset just past the comment starting at i
func skipComment(s string, i int) int {
	end := strings.Index(s[i+4:], "-->")
	if end < 0 {
		return len(s)
	}
	return i + 4 + end + 3
}

// FindEndMarker locates the first {{name}} at or after from. The first
// letter of the name may be in either case and whitespace is allowed inside
// the braces.
func FindEndMarker(text string, from int, name string) (start, end int, ok bool) {
	if from < 0 || from > len(text) {
		return 0, 0, false
	}
	loc := endMarkerPattern(name).FindStringIndex(text[from:])
	if loc == nil {
		return 0, 0, false
	}
	return from + loc[0], from + loc[1], true
}

func endMarkerPattern(name string) *regexp.Regexp {
	name = strings.TrimSpace(name)
	first, rest := "", ""
	for i, r := range name {
		first = string(r)
		rest = name[i+len(first):]
		break
	}
	head := regexp.QuoteMeta(first)
	if upper, lower := strings.ToUpper(first), strings.ToLower(first); upper != lower {
		head = "[" + regexp.QuoteMeta(upper) + regexp.QuoteMeta(lower) + "]"
	}
	// Spaces and underscores are interchangeable in template names
	body := strings.ReplaceAll(regexp.QuoteMeta(rest), " ", "[ _]")
	return regexp.MustCompile(`\{\{\s*` + head + body + `\s*\}\}`)
}
