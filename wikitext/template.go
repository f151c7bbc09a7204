// Package wikitext reads the parts of MediaWiki markup the report bot needs:
// template invocations, HTML comments, the end marker, and plain-text excerpts.
package wikitext

import (
	"strconv"
	"strings"
)

// Template is one parsed {{...}} invocation
type Template struct {
	// Name as written, comments stripped and trimmed
	Name string
	// Text is the exact source, braces included. It is how the template is
	// found again when the page is rewritten.
	Text string
	// Start is the byte offset of Text in the page
	Start int
	// Params maps parameter names to comment-stripped, trimmed values.
	// Positional parameters are keyed "1", "2", ...
	Params map[string]string
}

// End is the byte offset just past the template
func (t Template) End() int {
	return t.Start + len(t.Text)
}

// Get returns the parameter value, or "" when absent
func (t Template) Get(name string) string {
	return t.Params[name]
}

// FindTemplates returns every top-level invocation of the named template in
// source order. Templates nested inside other templates are not returned.
func FindTemplates(text, name string) []Template {
	want := normalizeTemplateName(name)

	var found []Template
	for i := 0; i < len(text); {
		switch {
		case strings.HasPrefix(text[i:], "<!--"):
			i = skipComment(text, i)
		case hasPrefixFold(text[i:], "<nowiki>"):
			i = skipNowiki(text, i)
		case strings.HasPrefix(text[i:], "{{"):
			end, ok := matchBraces(text, i)
			if !ok {
				return found
			}
			if tpl, ok := parseTemplate(text[i:end], i); ok && normalizeTemplateName(tpl.Name) == want {
				found = append(found, tpl)
			}
			i = end
		default:
			i++
		}
	}
	return found
}

// ParseTemplate parses src, which must be exactly one {{...}} invocation
func ParseTemplate(src string) (Template, bool) {
	if !strings.HasPrefix(src, "{{") {
		return Template{}, false
	}
	end, ok := matchBraces(src, 0)
	if !ok || end != len(src) {
		return Template{}, false
	}
	return parseTemplate(src, 0)
}

// matchBraces returns the offset just past the "}}" closing the "{{" at
// start. Comments and nowiki sections are skipped.
func matchBraces(text string, start int) (int, bool) {
	depth := 0
	for i := start; i < len(text); {
		switch {
		case strings.HasPrefix(text[i:], "<!--"):
			i = skipComment(text, i)
		case hasPrefixFold(text[i:], "<nowiki>"):
			i = skipNowiki(text, i)
		case strings.HasPrefix(text[i:], "{{"):
			depth++
			i += 2
		case strings.HasPrefix(text[i:], "}}"):
			depth--
			i += 2
			if depth == 0 {
				return i, true
			}
		default:
			i++
		}
	}
	return 0, false
}

// parseTemplate splits "{{name|a|k=v}}" into name and parameters
func parseTemplate(src string, offset int) (Template, bool) {
	inner := src[2 : len(src)-2]
	parts := splitTopLevel(inner, '|')

	name := strings.TrimSpace(StripComments(parts[0]))
	if name == "" || strings.HasPrefix(name, "{") || strings.HasPrefix(name, "#") {
		// parser functions and template parameters are not invocations
		return Template{}, false
	}

	tpl := Template{
		Name:   name,
		Text:   src,
		Start:  offset,
		Params: make(map[string]string, len(parts)-1),
	}

	positional := 0
	for _, part := range parts[1:] {
		if eq := indexTopLevel(part, '='); eq >= 0 {
			key := strings.TrimSpace(StripComments(part[:eq]))
			tpl.Params[key] = strings.TrimSpace(StripComments(part[eq+1:]))
			continue
		}
		positional++
		tpl.Params[strconv.Itoa(positional)] = strings.TrimSpace(StripComments(part))
	}
	return tpl, true
}

// splitTopLevel splits s on sep where sep is not inside {{ }}, [[ ]] or a comment
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	last := 0
	walkTopLevel(s, func(i int) bool {
		if s[i] == sep {
			parts = append(parts, s[last:i])
			last = i + 1
		}
		return true
	})
	return append(parts, s[last:])
}

func indexTopLevel(s string, c byte) int {
	found := -1
	walkTopLevel(s, func(i int) bool {
		if s[i] == c {
			found = i
			return false
		}
		return true
	})
	return found
}

// walkTopLevel calls fn for every byte offset outside nested constructs
// until fn returns false
func walkTopLevel(s string, fn func(i int) bool) {
	braces, links := 0, 0
	for i := 0; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], "<!--"):
			i = skipComment(s, i)
		case hasPrefixFold(s[i:], "<nowiki>"):
			i = skipNowiki(s, i)
		case strings.HasPrefix(s[i:], "{{"):
			braces++
			i += 2
		case strings.HasPrefix(s[i:], "}}") && braces > 0:
			braces--
			i += 2
		case strings.HasPrefix(s[i:], "[["):
			links++
			i += 2
		case strings.HasPrefix(s[i:], "]]") && links > 0:
			links--
			i += 2
		default:
			if braces == 0 && links == 0 && !fn(i) {
				return
			}
			i++
		}
	}
}

// normalizeTemplateName makes "template:database_report" and
// "Database report" compare equal
func normalizeTemplateName(name string) string {
	name = strings.TrimSpace(StripComments(name))
	if len(name) > len("template:") && strings.EqualFold(name[:len("template:")], "template:") {
		name = name[len("template:"):]
	}
	return NormalizeTitle(name)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func skipNowiki(s string, i int) int {
	end := indexFold(s[i:], "</nowiki>")
	if end < 0 {
		return len(s)
	}
	return i + end + len("</nowiki>")
}

func indexFold(s, substr string) int {
	return strings.Index(strings.ToLower(s), strings.ToLower(substr))
}
