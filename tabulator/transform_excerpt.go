package tabulator

import (
	"context"
	"strconv"

	"github.com/sdzerobot/sdzerobot/wikitext"
)

const (
	defaultSoftLimit = 250
	defaultHardLimit = 500
	maxExcerptBatch  = 100
)

// Excerpt adds a column with a short plain-text excerpt of the page named
// in another column.
//
//	excerpts = src[:dest[:ns[:soft[:hard]]]], ...
//
// dest defaults to src+1, ns to 0 (or cN to read it from column N), and the
// soft and hard limits to 250 and 500 characters.
type Excerpt struct {
	entries []excerptEntry
}

type excerptEntry struct {
	source int
	dest   int
	ns     nsRef
	soft   int
	hard   int
}

func (x *Excerpt) Name() string { return "excerpts" }

func (x *Excerpt) active() bool { return len(x.entries) > 0 }

func (x *Excerpt) readConfig(t wikitext.Template, w *Warnings) {
	for _, entry := range splitEntries(t.Get(x.Name())) {
		fields := splitFields(entry)
		if len(fields) > 5 {
			w.Add("Invalid excerpts entry %q: too many fields", entry)
			continue
		}
		src, ok := parseColumn(fields[0])
		if !ok {
			w.Add("Invalid excerpts entry %q: %q is not a column number", entry, fields[0])
			continue
		}
		e := excerptEntry{source: src, dest: src + 1, soft: defaultSoftLimit, hard: defaultHardLimit}

		if len(fields) > 1 && fields[1] != "" {
			if e.dest, ok = parseColumn(fields[1]); !ok {
				w.Add("Invalid excerpts entry %q: %q is not a column number", entry, fields[1])
				continue
			}
		}
		if len(fields) > 2 && fields[2] != "" {
			if e.ns, ok = parseNamespace(fields[2]); !ok {
				w.Add("Invalid excerpts entry %q: %q is not a namespace number or column reference", entry, fields[2])
				continue
			}
		}
		if len(fields) > 3 && fields[3] != "" {
			n, err := strconv.Atoi(fields[3])
			if err != nil || n < 1 {
				w.Add("Invalid excerpts entry %q: soft limit %q is not a positive number", entry, fields[3])
				continue
			}
			e.soft = n
		}
		if len(fields) > 4 && fields[4] != "" {
			n, err := strconv.Atoi(fields[4])
			if err != nil || n < 1 {
				w.Add("Invalid excerpts entry %q: hard limit %q is not a positive number", entry, fields[4])
				continue
			}
			e.hard = n
		}
		if e.hard < e.soft {
			w.Add("excerpts entry %q: hard limit is below the soft limit, using %d for both", entry, e.soft)
			e.hard = e.soft
		}
		x.entries = append(x.entries, e)
	}
}

func (x *Excerpt) apply(ctx context.Context, env *Env, rows []Row, w *Warnings) ([]Row, error) {
	for _, e := range x.entries {
		titles := make([]string, len(rows))
		var unique []string
		seen := map[string]bool{}
		for i, row := range rows {
			title, ok := excerptTitle(env, e, row)
			if !ok {
				continue
			}
			titles[i] = title
			if !seen[title] {
				seen[title] = true
				unique = append(unique, title)
			}
		}

		excerpts, err := fetchExcerpts(ctx, env, unique, e.soft, e.hard)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			w.Add("Failed to fetch excerpts for column %d: %v", e.source, err)
		}

		i := 0
		rows = AddColumn(rows, e.dest, "Excerpt", func(Row) string {
			v := excerpts[titles[i]]
			i++
			return v
		})
	}
	return rows, nil
}

func excerptTitle(env *Env, e excerptEntry, row Row) (string, bool) {
	raw, ok := row.At(e.source)
	if !ok || raw == "" {
		return "", false
	}
	ns, ok := e.ns.resolve(row)
	if !ok {
		return "", false
	}
	title, ok := qualify(env, ns, raw)
	if !ok {
		return "", false
	}
	return wikitext.NormalizeTitle(title), true
}

// fetchExcerpts asks the source for unique titles in batches
func fetchExcerpts(ctx context.Context, env *Env, titles []string, soft, hard int) (map[string]string, error) {
	out := map[string]string{}
	if env == nil || env.Excerpts == nil || len(titles) == 0 {
		return out, nil
	}

	size := env.ExcerptBatchSize
	if size <= 0 || size > maxExcerptBatch {
		size = maxExcerptBatch
	}

	for start := 0; start < len(titles); start += size {
		end := start + size
		if end > len(titles) {
			end = len(titles)
		}
		batch, err := env.Excerpts.Excerpts(ctx, titles[start:end], soft, hard)
		if err != nil {
			return out, err
		}
		for k, v := range batch {
			out[k] = v
		}
	}
	return out, nil
}
