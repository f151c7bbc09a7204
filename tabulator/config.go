package tabulator

import (
	"sort"
	"strconv"
	"strings"

	"github.com/sdzerobot/sdzerobot/errors"
	"github.com/sdzerobot/sdzerobot/wikitext"
)

// Limits bound what a report may ask for
type Limits struct {
	DefaultMaxPages int
	MaxPagesCap     int
}

// DefaultLimits are the limits used when none are configured
func DefaultLimits() Limits {
	return Limits{DefaultMaxPages: 5, MaxPagesCap: 20}
}

// Config is the typed form of one report template
type Config struct {
	SQL string

	// Pagination is the number of rows per page, 0 for a single page
	Pagination int
	MaxPages   int

	// Widths maps 1-based output column positions to CSS widths
	Widths     map[int]string
	TableStyle string
	TableClass string

	RowTemplate            string
	RowTemplateNamedParams bool
	HeaderTemplate         string
	SkipTable              bool

	// Interval is the refresh interval in days, 0 for on demand only
	Interval int

	// Transformations in application order
	Transformations []Transformation
}

// ErrConfig marks report configuration mistakes that are shown on the page
var ErrConfig = errors.New("invalid report configuration")

// ParseConfig reads a report template. It never fails: bad entries become
// warnings, and missing required settings are reported by Validate.
func ParseConfig(t wikitext.Template, limits Limits) (Config, *Warnings) {
	w := &Warnings{}
	cfg := Config{
		SQL:                    parseSQL(t.Get("sql")),
		TableStyle:             t.Get("table_style"),
		TableClass:             t.Get("table_class"),
		RowTemplate:            t.Get("row_template"),
		RowTemplateNamedParams: parseBool(t.Get("row_template_named_params")),
		HeaderTemplate:         t.Get("header_template"),
		SkipTable:              parseBool(t.Get("skip_table")),
	}

	if n, err := strconv.Atoi(t.Get("pagination")); err == nil && n > 0 {
		cfg.Pagination = n
	}

	cfg.MaxPages = limits.DefaultMaxPages
	if raw := t.Get("max_pages"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.MaxPages = n
		} else {
			w.Add("Invalid max_pages value %q, using %d", raw, limits.DefaultMaxPages)
		}
	}
	if cfg.MaxPages > limits.MaxPagesCap {
		cfg.MaxPages = limits.MaxPagesCap
	}
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}

	if raw := t.Get("interval"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			cfg.Interval = n
		} else {
			w.Add("Invalid interval %q: expected a number of days", raw)
		}
	}

	cfg.Widths = parseWidths(t.Get("widths"), w)

	cfg.Transformations = newTransformations()
	for _, tr := range cfg.Transformations {
		tr.readConfig(t, w)
	}
	return cfg, w
}

// Validate reports configuration that prevents the report from running
func (c Config) Validate() error {
	if strings.TrimSpace(c.SQL) == "" {
		return errors.Mark(errors.New("No SQL query given in the sql parameter"), ErrConfig)
	}
	if c.SkipTable && c.RowTemplate == "" {
		return errors.Mark(errors.New("skip_table requires row_template to be set"), ErrConfig)
	}
	return nil
}

// parseSQL drops semicolons so only a single statement can be sent, and
// undoes the {{!}} escape authors need for pipes inside template parameters
func parseSQL(raw string) string {
	sql := strings.ReplaceAll(raw, "{{!}}", "|")
	sql = strings.ReplaceAll(sql, ";", "")
	return strings.TrimSpace(sql)
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "0", "no", "false", "n", "off":
		return false
	}
	return true
}

// parseWidths reads "col:width, ..." e.g. "1:10em, 3:200px"
func parseWidths(raw string, w *Warnings) map[int]string {
	widths := map[int]string{}
	for _, entry := range splitEntries(raw) {
		fields := splitFields(entry)
		if len(fields) != 2 || fields[1] == "" {
			w.Add("Invalid widths entry %q: expected column:width", entry)
			continue
		}
		col, ok := parseColumn(fields[0])
		if !ok {
			w.Add("Invalid widths entry %q: %q is not a column number", entry, fields[0])
			continue
		}
		widths[col] = fields[1]
	}
	return widths
}

// splitEntries splits a comma separated parameter, dropping empty entries
func splitEntries(raw string) []string {
	var out []string
	for _, e := range strings.Split(raw, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func splitFields(entry string) []string {
	fields := strings.Split(entry, ":")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

// parseColumn parses a 1-based column number
func parseColumn(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// parseColumnList parses "2, 4, 2" into unique ascending positions
func parseColumnList(param, raw string, w *Warnings) []int {
	seen := map[int]bool{}
	var cols []int
	for _, entry := range splitEntries(raw) {
		col, ok := parseColumn(entry)
		if !ok {
			w.Add("Invalid %s entry %q: expected a column number", param, entry)
			continue
		}
		if !seen[col] {
			seen[col] = true
			cols = append(cols, col)
		}
	}
	sort.Ints(cols)
	return cols
}

// nsRef is a namespace given literally or read from another column ("c3")
type nsRef struct {
	id     int
	column int
}

func parseNamespace(s string) (nsRef, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "c") || strings.HasPrefix(s, "C") {
		col, ok := parseColumn(s[1:])
		return nsRef{column: col}, ok
	}
	id, err := strconv.Atoi(s)
	if err != nil {
		return nsRef{}, false
	}
	return nsRef{id: id}, true
}

// resolve returns the namespace number for the row
func (n nsRef) resolve(row Row) (int, bool) {
	if n.column == 0 {
		return n.id, true
	}
	raw, ok := row.At(n.column)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return id, true
}
