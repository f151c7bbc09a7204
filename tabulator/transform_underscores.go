package tabulator

import (
	"context"

	"github.com/sdzerobot/sdzerobot/wikitext"
)

// Underscores replaces underscores with spaces.
//
//	remove_underscores = col, ...
type Underscores struct {
	columns []int
}

func (u *Underscores) Name() string { return "remove_underscores" }

func (u *Underscores) active() bool { return len(u.columns) > 0 }

func (u *Underscores) readConfig(t wikitext.Template, w *Warnings) {
	u.columns = parseColumnList(u.Name(), t.Get(u.Name()), w)
}

func (u *Underscores) apply(_ context.Context, _ *Env, rows []Row, w *Warnings) ([]Row, error) {
	for _, col := range u.columns {
		if col > width(rows) {
			w.Add("remove_underscores: column %d does not exist", col)
			continue
		}
		rows = MapColumn(rows, col, spaces)
	}
	return rows, nil
}
