package wikitext

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	refPattern       = regexp.MustCompile(`(?is)<ref[^>/]*/>|<ref[^>]*>.*?</ref\s*>`)
	headingPattern   = regexp.MustCompile(`(?m)^=+[^=\n].*=+[ \t]*$`)
	tagPattern       = regexp.MustCompile(`(?s)<[^>]+>`)
	externalPattern  = regexp.MustCompile(`\[(?:https?:)?//[^\s\]]+(?:\s+([^\]]*))?\]`)
	emphasisPattern  = regexp.MustCompile(`'{2,}`)
	blankLinePattern = regexp.MustCompile(`\n[ \t]*\n`)
	sentenceEnd      = regexp.MustCompile(`[.!?]["')\]]*(\s|$)`)
	behaviorSwitch   = regexp.MustCompile(`__[A-Z]+__`)
)

// Link namespaces whose links are dropped instead of replaced by their label
var droppedLinkPrefixes = []string{"file:", "image:", "category:", "media:"}

// Extract turns page wikitext into a short plain-text excerpt of its lead
// section. The result is cut at the first sentence end after soft runes,
// or at hard runes (with "…") when no sentence ends in between.
func Extract(text string, soft, hard int) string {
	text = StripComments(text)
	text = refPattern.ReplaceAllString(text, "")
	text = removeTemplates(text)
	text = removeTables(text)

	if loc := headingPattern.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}

	text = replaceLinks(text)
	text = externalPattern.ReplaceAllString(text, "$1")
	text = emphasisPattern.ReplaceAllString(text, "")
	text = tagPattern.ReplaceAllString(text, "")
	text = behaviorSwitch.ReplaceAllString(text, "")

	var paragraphs []string
	for _, p := range blankLinePattern.Split(text, -1) {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	return truncate(strings.Join(paragraphs, " "), soft, hard)
}

func truncate(s string, soft, hard int) string {
	if hard <= 0 || utf8.RuneCountInString(s) <= soft {
		return s
	}

	softByte := runeOffset(s, soft)
	hardByte := runeOffset(s, hard)

	if loc := sentenceEnd.FindStringIndex(s[softByte:]); loc != nil {
		sentence := strings.TrimSpace(s[:softByte+loc[1]])
		if utf8.RuneCountInString(sentence) <= hard {
			return sentence
		}
	}

	if hardByte >= len(s) {
		return s
	}
	cut := s[:hardByte]
	if sp := strings.LastIndexByte(cut, ' '); sp > softByte {
		cut = cut[:sp]
	}
	return strings.TrimRight(cut, " ,;:") + "…"
}

// runeOffset returns the byte offset of the n-th rune, or len(s)
func runeOffset(s string, n int) int {
	if n <= 0 {
		return 0
	}
	count := 0
	for i := range s {
		if count == n {
			return i
		}
		count++
	}
	return len(s)
}

// removeTemplates drops every {{...}} including nested ones
func removeTemplates(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], "{{") {
			end, ok := matchBraces(s, i)
			if !ok {
				break
			}
			i = end
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// removeTables drops {| ... |} blocks, which open and close at line starts
func removeTables(s string) string {
	var out []string
	depth := 0
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "{|"):
			depth++
		case depth > 0 && strings.HasPrefix(trimmed, "|}"):
			depth--
		case depth == 0:
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// replaceLinks turns [[target|label]] into label and [[target]] into target,
// and removes file and category links entirely
func replaceLinks(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		if !strings.HasPrefix(s[i:], "[[") {
			b.WriteByte(s[i])
			i++
			continue
		}
		end := matchLink(s, i)
		if end < 0 {
			b.WriteString(s[i:])
			break
		}
		inner := s[i+2 : end-2]
		i = end

		target := strings.TrimSpace(inner)
		if pipe := strings.IndexByte(inner, '|'); pipe >= 0 {
			target = strings.TrimSpace(inner[:pipe])
		}
		lower := strings.ToLower(target)
		dropped := false
		for _, prefix := range droppedLinkPrefixes {
			if strings.HasPrefix(lower, prefix) {
				dropped = true
				break
			}
		}
		if dropped {
			continue
		}

		if pipe := strings.LastIndexByte(inner, '|'); pipe >= 0 {
			b.WriteString(replaceLinks(inner[pipe+1:]))
		} else {
			b.WriteString(strings.TrimPrefix(target, ":"))
		}
	}
	return b.String()
}

// matchLink returns the offset past the "]]" closing the "[[" at start, or -1
func matchLink(s string, start int) int {
	depth := 0
	for i := start; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], "[["):
			depth++
			i += 2
		case strings.HasPrefix(s[i:], "]]"):
			depth--
			i += 2
			if depth == 0 {
				return i
			}
		default:
			i++
		}
	}
	return -1
}
