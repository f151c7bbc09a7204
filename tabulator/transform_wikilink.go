package tabulator

import (
	"context"
	"strings"

	"github.com/sdzerobot/sdzerobot/wikitext"
)

// Wikilink turns titles into links.
//
//	wikilinks = col:ns[:show], ...
//
// ns is a namespace number or cN to read it from column N. With show the
// link label keeps the namespace prefix.
type Wikilink struct {
	entries []wikilinkEntry
}

type wikilinkEntry struct {
	column int
	ns     nsRef
	show   bool
}

func (l *Wikilink) Name() string { return "wikilinks" }

func (l *Wikilink) active() bool { return len(l.entries) > 0 }

func (l *Wikilink) readConfig(t wikitext.Template, w *Warnings) {
	for _, entry := range splitEntries(t.Get(l.Name())) {
		fields := splitFields(entry)
		if len(fields) < 2 || len(fields) > 3 {
			w.Add("Invalid wikilinks entry %q: expected column:namespace[:show]", entry)
			continue
		}
		col, ok := parseColumn(fields[0])
		if !ok {
			w.Add("Invalid wikilinks entry %q: %q is not a column number", entry, fields[0])
			continue
		}
		ns, ok := parseNamespace(fields[1])
		if !ok {
			w.Add("Invalid wikilinks entry %q: %q is not a namespace number or column reference", entry, fields[1])
			continue
		}
		e := wikilinkEntry{column: col, ns: ns}
		if len(fields) == 3 {
			if !strings.EqualFold(fields[2], "show") {
				w.Add("Invalid wikilinks entry %q: third field must be \"show\"", entry)
				continue
			}
			e.show = true
		}
		l.entries = append(l.entries, e)
	}
}

func (l *Wikilink) apply(_ context.Context, env *Env, rows []Row, w *Warnings) ([]Row, error) {
	for _, e := range l.entries {
		if e.column > width(rows) {
			w.Add("wikilinks: column %d does not exist", e.column)
			continue
		}
		out := make([]Row, len(rows))
		for i, row := range rows {
			next := append(Row(nil), row...)
			next[e.column-1].Value = link(env, e, row)
			out[i] = next
		}
		rows = out
	}
	return rows, nil
}

func link(env *Env, e wikilinkEntry, row Row) string {
	title, _ := row.At(e.column)
	if title == "" {
		return ""
	}
	ns, ok := e.ns.resolve(row)
	if !ok {
		return spaces(title)
	}
	full, ok := qualify(env, ns, title)
	if !ok {
		return spaces(title)
	}
	if ns == 0 {
		return "[[" + full + "]]"
	}
	if e.show {
		return "[[:" + full + "]]"
	}
	return "[[:" + full + "|" + spaces(title) + "]]"
}

func spaces(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}
