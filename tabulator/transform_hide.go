package tabulator

import (
	"context"

	"github.com/sdzerobot/sdzerobot/wikitext"
)

// Hide removes columns from the output. The query can select columns that
// other transformations need (a namespace, say) without showing them.
//
//	hide = col, ...
type Hide struct {
	columns []int // ascending, unique
}

func (h *Hide) Name() string { return "hide" }

func (h *Hide) active() bool { return len(h.columns) > 0 }

func (h *Hide) readConfig(t wikitext.Template, w *Warnings) {
	h.columns = parseColumnList(h.Name(), t.Get(h.Name()), w)
}

func (h *Hide) apply(_ context.Context, _ *Env, rows []Row, w *Warnings) ([]Row, error) {
	cols := width(rows)
	for removed, col := range h.columns {
		if col > cols {
			w.Add("hide: column %d does not exist", col)
			continue
		}
		// Each removal shifts later columns one to the left
		rows = RemoveColumn(rows, col-removed)
	}
	return rows, nil
}
