package tabulator

import (
	"context"
	"regexp"
	"strings"

	"github.com/sdzerobot/sdzerobot/wikitext"
)

// Comment makes edit summaries safe to show in a table.
//
//	comments = col, ...
type Comment struct {
	columns []int
}

var (
	sectionComment = regexp.MustCompile(`/\*\s*(.*?)\s*\*/`)
	newlines       = regexp.MustCompile(`\s*[\r\n]+\s*`)

	summaryEscaper = strings.NewReplacer(
		"{{", "&#123;&#123;",
		"}}", "&#125;&#125;",
		"~~~", "&#126;&#126;&#126;",
		"<", "&lt;",
		">", "&gt;",
	)
)

func (c *Comment) Name() string { return "comments" }

func (c *Comment) active() bool { return len(c.columns) > 0 }

func (c *Comment) readConfig(t wikitext.Template, w *Warnings) {
	c.columns = parseColumnList(c.Name(), t.Get(c.Name()), w)
}

func (c *Comment) apply(_ context.Context, _ *Env, rows []Row, w *Warnings) ([]Row, error) {
	for _, col := range c.columns {
		if col > width(rows) {
			w.Add("comments: column %d does not exist", col)
			continue
		}
		rows = MapColumn(rows, col, FormatSummary)
	}
	return rows, nil
}

// FormatSummary renders an edit summary the way page histories show it:
// section markers become "→section:", markup that would expand or break
// the table is neutralised, and [[links]] are kept.
func FormatSummary(s string) string {
	s = newlines.ReplaceAllString(s, " ")
	s = summaryEscaper.Replace(s)
	s = sectionComment.ReplaceAllStringFunc(s, func(m string) string {
		section := sectionComment.FindStringSubmatch(m)[1]
		if section == "" {
			return "→"
		}
		return "→" + section + ":"
	})
	return strings.TrimSpace(s)
}
