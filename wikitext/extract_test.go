package wikitext

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	page := `{{Short description|Town in England}}
{{Infobox settlement
| name = Example
| population = {{formatnum:1234}}
}}
[[File:Example.jpg|thumb|A [[view]] of the town]]
'''Example''' is a [[town]] in [[Kent|the county of Kent]], [[England]].<ref>{{cite web|url=http://x}}</ref> It has a [https://example.org website].

{| class="wikitable"
| a || b
|}
It is old.<!-- hidden -->

== History ==
Founded long ago.
[[Category:Towns]]`

	got := Extract(page, 250, 500)
	assert.Equal(t, "Example is a town in the county of Kent, England. It has a website. It is old.", got)
}

func TestExtractTruncatesAtSentence(t *testing.T) {
	text := "First sentence is here. Second sentence follows it. Third one."

	assert.Equal(t, "First sentence is here. Second sentence follows it.", Extract(text, 30, 100))
	assert.Equal(t, "First sentence is here.", Extract(text, 10, 100))
}

func TestExtractHardLimit(t *testing.T) {
	text := strings.Repeat("word ", 100)

	got := Extract(text, 20, 40)
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 41)
}

func TestExtractShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "Tiny.", Extract("Tiny.", 250, 500))
	assert.Equal(t, "", Extract("{{Only a template}}", 250, 500))
}
