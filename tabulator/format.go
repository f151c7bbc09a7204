package tabulator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NoItems is the whole output of a report with an empty result
const NoItems = "No items retrieved."

const defaultTableClass = "wikitable sortable"

// PageInfo is run metadata shown in footers and notices
type PageInfo struct {
	QueryRuntime time.Duration
	LastUpdated  time.Time
	// Replag is the replica's replication lag; a notice is shown above ReplagThreshold
	Replag          time.Duration
	ReplagThreshold time.Duration
}

// Paginate splits rows into chunks of cfg.Pagination rows, at most
// cfg.MaxPages of them. Rows past the last page are dropped.
func Paginate(rows []Row, pagination, maxPages int) [][]Row {
	if len(rows) == 0 {
		return nil
	}
	if pagination <= 0 || len(rows) <= pagination {
		return [][]Row{rows}
	}
	var pages [][]Row
	for start := 0; start < len(rows) && len(pages) < maxPages; start += pagination {
		end := start + pagination
		if end > len(rows) {
			end = len(rows)
		}
		pages = append(pages, rows[start:end])
	}
	return pages
}

// Format renders rows as one wikitext body per output page. Transformations
// run on every page before anything is rendered so that their warnings can
// all be shown on the first page.
func Format(ctx context.Context, cfg Config, env *Env, rows []Row, info PageInfo, w *Warnings) ([]string, error) {
	if len(rows) == 0 {
		return []string{NoItems}, nil
	}

	chunks := Paginate(rows, cfg.Pagination, cfg.MaxPages)
	for i, chunk := range chunks {
		transformed, err := applyAll(ctx, env, cfg.Transformations, chunk, w)
		if err != nil {
			return nil, err
		}
		chunks[i] = transformed
	}

	bodies := make([]string, len(chunks))
	for i, chunk := range chunks {
		var b strings.Builder
		if i == 0 {
			writeNotices(&b, info, w)
		}
		renderRows(&b, cfg, chunk)
		writeFooter(&b, len(chunk), i+1, len(chunks), info)
		bodies[i] = b.String()
	}
	return bodies, nil
}

func writeNotices(b *strings.Builder, info PageInfo, w *Warnings) {
	if info.ReplagThreshold > 0 && info.Replag > info.ReplagThreshold {
		fmt.Fprintf(b, "{{Database report/replag|lag=%s}}\n", HumanDuration(info.Replag))
	}
	for _, msg := range w.List() {
		fmt.Fprintf(b, "{{Database report/warning|message=%s}}\n", EscapeParam(msg))
	}
}

func renderRows(b *strings.Builder, cfg Config, rows []Row) {
	if cfg.SkipTable {
		if cfg.HeaderTemplate != "" {
			fmt.Fprintf(b, "{{%s}}\n", cfg.HeaderTemplate)
		}
		for _, row := range rows {
			b.WriteString(rowTemplate(cfg, row))
			b.WriteByte('\n')
		}
		return
	}

	class := cfg.TableClass
	if class == "" {
		class = defaultTableClass
	}
	fmt.Fprintf(b, "{| class=\"%s\"", class)
	if cfg.TableStyle != "" {
		fmt.Fprintf(b, " style=\"%s\"", cfg.TableStyle)
	}
	b.WriteByte('\n')

	if cfg.RowTemplate != "" && cfg.HeaderTemplate != "" {
		fmt.Fprintf(b, "{{%s}}\n", cfg.HeaderTemplate)
	} else {
		for i, col := range rows[0].Columns() {
			if width, ok := cfg.Widths[i+1]; ok {
				fmt.Fprintf(b, "! style=\"width: %s\" | %s\n", width, col)
			} else {
				fmt.Fprintf(b, "! %s\n", col)
			}
		}
	}

	for _, row := range rows {
		if cfg.RowTemplate != "" {
			b.WriteString(rowTemplate(cfg, row))
			b.WriteByte('\n')
			continue
		}
		b.WriteString("|-\n| ")
		b.WriteString(strings.Join(row.Values(), " || "))
		b.WriteByte('\n')
	}
	b.WriteString("|}\n")
}

// rowTemplate renders {{Tpl|v1|v2}}, or {{Tpl|col1=v1|col2=v2}} with named
// params. A positional value containing "=" is numbered explicitly so it is
// not read as a named parameter.
func rowTemplate(cfg Config, row Row) string {
	var b strings.Builder
	b.WriteString("{{")
	b.WriteString(cfg.RowTemplate)
	for i, c := range row {
		b.WriteByte('|')
		switch {
		case cfg.RowTemplateNamedParams:
			b.WriteString(c.Column)
			b.WriteByte('=')
		case strings.Contains(c.Value, "="):
			b.WriteString(strconv.Itoa(i + 1))
			b.WriteByte('=')
		}
		b.WriteString(c.Value)
	}
	b.WriteString("}}")
	return b.String()
}

func writeFooter(b *strings.Builder, count, page, numPages int, info PageInfo) {
	fmt.Fprintf(b, "{{Database report/footer|count=%d|page=%d|num_pages=%d|query_runtime=%.2f|last_updated=%s}}",
		count, page, numPages, info.QueryRuntime.Seconds(), info.LastUpdated.UTC().Format("2006-01-02 15:04 (UTC)"))
}

// EscapeParam makes s safe as a template parameter value
func EscapeParam(s string) string {
	return paramEscaper.Replace(s)
}

var paramEscaper = strings.NewReplacer(
	"|", "&#124;",
	"{{", "&#123;&#123;",
	"}}", "&#125;&#125;",
)

// HumanDuration renders a lag such as "2 hours, 5 minutes"
func HumanDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	days := int(d / (24 * time.Hour))
	hours := int(d/time.Hour) % 24
	minutes := int(d/time.Minute) % 60

	var parts []string
	add := func(n int, unit string) {
		if n == 0 {
			return
		}
		if n == 1 {
			parts = append(parts, "1 "+unit)
		} else {
			parts = append(parts, strconv.Itoa(n)+" "+unit+"s")
		}
	}
	add(days, "day")
	add(hours, "hour")
	add(minutes, "minute")
	if len(parts) == 0 {
		return "less than a minute"
	}
	return strings.Join(parts, ", ")
}
