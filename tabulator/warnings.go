package tabulator

import "fmt"

// Warnings collects problems that do not stop a report. They are shown on
// the first page of the output.
type Warnings struct {
	list []string
}

// Add records a formatted warning. Repeats of a warning are dropped, as
// transformations run once per output page.
func (w *Warnings) Add(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	for _, existing := range w.list {
		if existing == msg {
			return
		}
	}
	w.list = append(w.list, msg)
}

// List returns the warnings in the order they were added
func (w *Warnings) List() []string {
	if w == nil {
		return nil
	}
	return append([]string(nil), w.list...)
}

// Len returns the number of warnings
func (w *Warnings) Len() int {
	if w == nil {
		return 0
	}
	return len(w.list)
}
