package tabulator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sdzerobot/sdzerobot/errors"
	"github.com/sdzerobot/sdzerobot/mwapi"
	"github.com/sdzerobot/sdzerobot/replica"
	"github.com/sdzerobot/sdzerobot/wikitext"
)

var testNamespaces = mwapi.Namespaces{
	0:  {ID: 0, Name: ""},
	2:  {ID: 2, Name: "User", Canonical: "User"},
	4:  {ID: 4, Name: "Wikipedia", Canonical: "Project"},
	10: {ID: 10, Name: "Template", Canonical: "Template"},
	14: {ID: 14, Name: "Category", Canonical: "Category"},
}

// fakeWiki keeps pages in memory and records edits
type fakeWiki struct {
	mu       sync.Mutex
	pages    map[string]mwapi.Page
	edits    []mwapi.EditRequest
	embedded []string
	// redirects maps a title to the page it redirects to
	redirects map[string]string
	// editErr, when set, decides the error of each edit attempt
	editErr func(req mwapi.EditRequest, attempt int) error
	fetches  int
}

func newFakeWiki(pages map[string]string) *fakeWiki {
	f := &fakeWiki{pages: map[string]mwapi.Page{}}
	for title, text := range pages {
		f.pages[title] = mwapi.Page{Title: title, Text: text, Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
		f.embedded = append(f.embedded, title)
	}
	sort.Strings(f.embedded)
	return f
}

func (f *fakeWiki) Page(_ context.Context, title string) (*mwapi.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	p, ok := f.pages[title]
	if !ok {
		return nil, errors.NewNotFoundError("page %s", title)
	}
	return &p, nil
}

func (f *fakeWiki) Pages(_ context.Context, titles []string) ([]mwapi.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []mwapi.Page
	index := map[string]int{}
	for _, title := range titles {
		target := title
		if to, ok := f.redirects[title]; ok {
			target = to
		}
		i, seen := index[target]
		if !seen {
			p, ok := f.pages[target]
			if !ok {
				p = mwapi.Page{Title: target, Missing: true}
			}
			p.Aliases = nil
			i = len(out)
			index[target] = i
			out = append(out, p)
		}
		if target != title {
			out[i].Aliases = append(out[i].Aliases, title)
		}
	}
	return out, nil
}

func (f *fakeWiki) Edit(_ context.Context, req mwapi.EditRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt := 0
	for _, e := range f.edits {
		if e.Title == req.Title {
			attempt++
		}
	}
	f.edits = append(f.edits, req)
	if f.editErr != nil {
		if err := f.editErr(req, attempt); err != nil {
			return err
		}
	}
	f.pages[req.Title] = mwapi.Page{Title: req.Title, Text: req.Text}
	return nil
}

func (f *fakeWiki) EmbeddedIn(context.Context, string, []int) ([]string, error) {
	return f.embedded, nil
}

func (f *fakeWiki) Namespaces(context.Context) (mwapi.Namespaces, error) {
	return testNamespaces, nil
}

func (f *fakeWiki) text(title string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages[title].Text
}

func (f *fakeWiki) editCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.edits)
}

// fakeQuery returns canned results keyed by SQL
type fakeQuery struct {
	mu      sync.Mutex
	results map[string]*replica.Result
	errs    map[string]error
	queries []string
}

func (q *fakeQuery) Query(_ context.Context, sql string) (*replica.Result, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queries = append(q.queries, sql)
	if err, ok := q.errs[sql]; ok {
		return nil, err
	}
	if res, ok := q.results[sql]; ok {
		return res, nil
	}
	return &replica.Result{}, nil
}

type staticReplag time.Duration

func (s staticReplag) Get(context.Context) (time.Duration, error) {
	return time.Duration(s), nil
}

// fakeExcerpts returns "Excerpt of <title>" for every title except missing ones
type fakeExcerpts struct {
	batches [][]string
	missing map[string]bool
	err     error
}

func (f *fakeExcerpts) Excerpts(_ context.Context, titles []string, _, _ int) (map[string]string, error) {
	f.batches = append(f.batches, append([]string(nil), titles...))
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]string{}
	for _, t := range titles {
		if !f.missing[t] {
			out[t] = "Excerpt of " + t
		}
	}
	return out, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func tpl(params map[string]string) wikitext.Template {
	return wikitext.Template{Name: "Database report", Params: params}
}

func rowsOf(columns []string, values ...[]string) []Row {
	return NewRows(columns, values)
}

func pageWithText(title, text string) mwapi.Page {
	return mwapi.Page{Title: title, Text: text, Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}
