package tabulator

// Cell is one column value of a row
type Cell struct {
	Column string
	Value  string
}

// Row is an ordered list of cells. Positions are 1-based throughout the
// package because report authors count columns from 1.
type Row []Cell

// At returns the value at the 1-based position idx
func (r Row) At(idx int) (string, bool) {
	if idx < 1 || idx > len(r) {
		return "", false
	}
	return r[idx-1].Value, true
}

// Columns returns the column names in order
func (r Row) Columns() []string {
	cols := make([]string, len(r))
	for i, c := range r {
		cols[i] = c.Column
	}
	return cols
}

// Values returns the values in order
func (r Row) Values() []string {
	vals := make([]string, len(r))
	for i, c := range r {
		vals[i] = c.Value
	}
	return vals
}

// NewRows zips column names with each value slice
func NewRows(columns []string, values [][]string) []Row {
	rows := make([]Row, len(values))
	for i, vals := range values {
		row := make(Row, len(columns))
		for j, col := range columns {
			row[j].Column = col
			if j < len(vals) {
				row[j].Value = vals[j]
			}
		}
		rows[i] = row
	}
	return rows
}

// AddColumn inserts a column at the 1-based position idx in every row,
// shifting later columns right. idx is clamped to [1, len+1].
func AddColumn(rows []Row, idx int, name string, fn func(Row) string) []Row {
	out := make([]Row, len(rows))
	for i, row := range rows {
		pos := idx
		if pos < 1 {
			pos = 1
		}
		if pos > len(row)+1 {
			pos = len(row) + 1
		}
		next := make(Row, 0, len(row)+1)
		next = append(next, row[:pos-1]...)
		next = append(next, Cell{Column: name, Value: fn(row)})
		next = append(next, row[pos-1:]...)
		out[i] = next
	}
	return out
}

// RemoveColumn removes the column at the 1-based position idx.
// An out of range position leaves the rows unchanged.
func RemoveColumn(rows []Row, idx int) []Row {
	out := make([]Row, len(rows))
	for i, row := range rows {
		if idx < 1 || idx > len(row) {
			out[i] = append(Row(nil), row...)
			continue
		}
		next := make(Row, 0, len(row)-1)
		next = append(next, row[:idx-1]...)
		next = append(next, row[idx:]...)
		out[i] = next
	}
	return out
}

// MapColumn replaces the value at the 1-based position idx with fn(value)
func MapColumn(rows []Row, idx int, fn func(string) string) []Row {
	out := make([]Row, len(rows))
	for i, row := range rows {
		next := append(Row(nil), row...)
		if idx >= 1 && idx <= len(next) {
			next[idx-1].Value = fn(next[idx-1].Value)
		}
		out[i] = next
	}
	return out
}

// width is the column count of the first row, 0 for no rows
func width(rows []Row) int {
	if len(rows) == 0 {
		return 0
	}
	return len(rows[0])
}
