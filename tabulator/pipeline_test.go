package tabulator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sdzerobot/sdzerobot/errors"
	"github.com/sdzerobot/sdzerobot/history"
	qtest "github.com/sdzerobot/sdzerobot/internal/testing"
	"github.com/sdzerobot/sdzerobot/metrics"
	"github.com/sdzerobot/sdzerobot/mwapi"
	"github.com/sdzerobot/sdzerobot/replica"
)

const reportPage = "Wikipedia:Database reports/Test"

type pipelineFixture struct {
	wiki     *fakeWiki
	query    *fakeQuery
	store    *history.Store
	sink     *recordingSink
	pipeline *Pipeline
}

func newPipelineFixture(t *testing.T, pageText string) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		wiki:  newFakeWiki(map[string]string{reportPage: pageText}),
		query: &fakeQuery{results: map[string]*replica.Result{}, errs: map[string]error{}},
		store: history.NewStore(qtest.CreateTestDB(t)),
		sink:  &recordingSink{},
	}
	f.pipeline = NewPipeline(Deps{
		Wiki:       f.wiki,
		Namespaces: f.wiki,
		Excerpts:   NewWikiExcerpts(f.wiki),
		Query:      f.query,
		Replag:     staticReplag(time.Minute),
		History:    f.store,
		Metrics:    metrics.New(),
		Events:     f.sink,
		Logger:     zaptest.NewLogger(t).Sugar(),
	}, DefaultOptions())
	return f
}

func queryError(t *testing.T, err error) error {
	t.Helper()
	return replica.Classify(err, replica.DefaultTimeout)
}

func TestRunPageCompleted(t *testing.T) {
	tplText := "{{Database report\n|sql=SELECT page_title, page_namespace FROM page\n|wikilinks=1:c2\n|hide=2\n}}"
	f := newPipelineFixture(t, "Intro\n"+tplText+"\n{{Database report end}}")
	f.query.results["SELECT page_title, page_namespace FROM page"] = &replica.Result{
		Columns: []string{"page_title", "page_namespace"},
		Rows:    [][]string{{"Foo_bar", "0"}, {"Sandbox", "2"}},
		Runtime: 2 * time.Second,
	}

	results, err := f.pipeline.RunPage(context.Background(), reportPage)
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, Completed, res.Outcome, "%v", res.Err)
	assert.NoError(t, res.Err)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, 1, res.Pages)
	assert.NotEmpty(t, res.RunID)

	region, ok := ExtractRegion(f.wiki.text(reportPage), tplText)
	require.True(t, ok)
	assert.Contains(t, region, "| [[Foo bar]]\n")
	assert.Contains(t, region, "| [[:User:Sandbox|Sandbox]]\n")
	assert.NotContains(t, region, "page_namespace")

	runs, err := f.store.ForPage(context.Background(), reportPage, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, history.OutcomeCompleted, runs[0].Outcome)
	assert.Equal(t, 2, runs[0].Rows)

	require.Len(t, f.sink.events, 2)
	assert.Equal(t, EventStarted, f.sink.events[0].Type)
	assert.Equal(t, EventFinished, f.sink.events[1].Type)
	assert.Equal(t, history.TriggerManual, f.sink.events[1].Trigger)
}

func TestRunTemplateConfigErrorIsHandled(t *testing.T) {
	tplText := "{{Database report|pagination=10}}"
	f := newPipelineFixture(t, tplText)

	results, err := f.pipeline.RunPage(context.Background(), reportPage)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, Handled, results[0].Outcome)
	assert.True(t, errors.Is(results[0].Err, ErrConfig))
	assert.Empty(t, f.query.queries)

	region, ok := ExtractRegion(f.wiki.text(reportPage), tplText)
	require.True(t, ok)
	assert.Equal(t, "{{error|1=No SQL query given in the sql parameter}}", region)
}

func TestRunTemplateSQLErrorIsHandled(t *testing.T) {
	tplText := "{{Database report|sql=SELEC 1}}"
	f := newPipelineFixture(t, tplText)
	f.query.errs["SELEC 1"] = queryError(t, &mysql.MySQLError{Number: 1064, Message: "You have an error in your SQL syntax"})

	results, err := f.pipeline.RunPage(context.Background(), reportPage)
	require.NoError(t, err)

	assert.Equal(t, Handled, results[0].Outcome)
	region, _ := ExtractRegion(f.wiki.text(reportPage), tplText)
	assert.True(t, strings.HasPrefix(region, "{{error|1=SQL Error: ER_PARSE_ERROR: You have an error in your SQL syntax Consider testing"), region)
}

func TestRunTemplateTimeoutIsHandled(t *testing.T) {
	tplText := "{{Database report|sql=SELECT slow}}"
	f := newPipelineFixture(t, tplText)
	f.query.errs["SELECT slow"] = queryError(t, &mysql.MySQLError{Number: 1969, Message: "max_statement_time exceeded"})

	results, err := f.pipeline.RunPage(context.Background(), reportPage)
	require.NoError(t, err)

	assert.Equal(t, Handled, results[0].Outcome)
	assert.Contains(t, f.wiki.text(reportPage), "600 seconds")
}

func TestFatalTemplateDoesNotStopSiblings(t *testing.T) {
	first := "{{Database report|sql=SELECT a}}"
	second := "{{Database report|sql=SELECT b}}"
	f := newPipelineFixture(t, first+"\n{{Database report end}}\n"+second+"\n{{Database report end}}")
	f.query.errs["SELECT a"] = queryError(t, &mysql.MySQLError{Number: 1040, Message: "Too many connections"})
	f.query.results["SELECT b"] = &replica.Result{Columns: []string{"x"}, Rows: [][]string{{"1"}}}

	results, err := f.pipeline.RunPage(context.Background(), reportPage)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, Fatal, results[0].Outcome)
	assert.ErrorIs(t, results[0].Err, errors.ErrTooManyConnections)
	assert.Equal(t, Completed, results[1].Outcome)

	// The fatal template's region is untouched
	region, ok := ExtractRegion(f.wiki.text(reportPage), first)
	require.True(t, ok)
	assert.Empty(t, region)
	assert.Equal(t, 1, f.wiki.editCount())
}

func TestRunPageEmptyResult(t *testing.T) {
	tplText := "{{Database report|sql=SELECT nothing}}"
	f := newPipelineFixture(t, tplText)

	results, err := f.pipeline.RunPage(context.Background(), reportPage)
	require.NoError(t, err)

	assert.Equal(t, Completed, results[0].Outcome)
	region, _ := ExtractRegion(f.wiki.text(reportPage), tplText)
	assert.Equal(t, NoItems, region)
}

func TestRunPageWithoutTemplate(t *testing.T) {
	f := newPipelineFixture(t, "no report here")

	_, err := f.pipeline.RunPage(context.Background(), reportPage)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestRunPageBusy(t *testing.T) {
	f := newPipelineFixture(t, "{{Database report|sql=SELECT 1}}")

	require.True(t, f.pipeline.acquire(reportPage))
	assert.True(t, f.pipeline.Busy("Wikipedia:Database_reports/Test"))

	_, err := f.pipeline.RunPage(context.Background(), reportPage)
	assert.ErrorIs(t, err, errors.ErrBusy)

	f.pipeline.release(reportPage)
	_, err = f.pipeline.RunPage(context.Background(), reportPage)
	assert.NoError(t, err)
}

func TestRunSelectedSkipsOtherTemplates(t *testing.T) {
	first := "{{Database report|sql=SELECT a}}"
	second := "{{Database report|sql=SELECT b}}"
	f := newPipelineFixture(t, first+"\n"+second)

	results, err := f.pipeline.RunSelected(context.Background(), reportPage, map[string]bool{history.TemplateKey(second): true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"SELECT b"}, f.query.queries)
}

func TestUnfilled(t *testing.T) {
	filled := "{{Database report|sql=SELECT a}}"
	added := "{{Database report|sql=SELECT b}}"
	text := filled + "\nold output\n{{Database report end}}\n" + added + "\n"
	f := newPipelineFixture(t, text)

	keys := f.pipeline.Unfilled(text)
	assert.Equal(t, map[string]bool{history.TemplateKey(added): true}, keys)
	assert.Empty(t, f.pipeline.Unfilled(filled+"\n{{database report end}}"))
	assert.Empty(t, f.pipeline.Unfilled("no reports"))

	above := added + "\n" + filled + "\nold output\n{{Database report end}}"
	assert.Equal(t, map[string]bool{history.TemplateKey(added): true}, f.pipeline.Unfilled(above))
}

func TestSaveFailureFallbackIsHandled(t *testing.T) {
	tplText := "{{Database report|sql=SELECT 1}}"
	f := newPipelineFixture(t, tplText)
	f.query.results["SELECT 1"] = &replica.Result{Columns: []string{"x"}, Rows: [][]string{{"1"}}}
	f.wiki.editErr = func(_ mwapi.EditRequest, attempt int) error {
		if attempt == 0 {
			return &mwapi.APIError{Code: "spamblacklist", Info: "blocked link"}
		}
		return nil
	}

	results, err := f.pipeline.RunPage(context.Background(), reportPage)
	require.NoError(t, err)
	assert.Equal(t, Handled, results[0].Outcome)
}

func TestTriggerFromContext(t *testing.T) {
	assert.Equal(t, history.TriggerManual, TriggerFromContext(context.Background()))
	assert.Equal(t, history.TriggerWeb, TriggerFromContext(WithTrigger(context.Background(), history.TriggerWeb)))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "handled", Handled.String())
	assert.Equal(t, "fatal", Fatal.String())
}

func TestWikiExcerpts(t *testing.T) {
	wiki := newFakeWiki(map[string]string{
		"Foo": "'''Foo''' is a [[bar|thing]]. More text.",
	})
	wiki.redirects = map[string]string{"Old foo": "Foo", "Older foo": "Foo"}

	got, err := NewWikiExcerpts(wiki).Excerpts(context.Background(), []string{"Old foo", "Foo", "Older foo", "Missing"}, 250, 500)
	require.NoError(t, err)
	assert.Equal(t, "Foo is a thing. More text.", got["Foo"])
	assert.Equal(t, got["Foo"], got["Old foo"])
	assert.Equal(t, got["Foo"], got["Older foo"])
	_, ok := got["Missing"]
	assert.False(t, ok)
}
