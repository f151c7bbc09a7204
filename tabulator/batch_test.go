package tabulator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdzerobot/sdzerobot/history"
	"github.com/sdzerobot/sdzerobot/replica"
)

func TestBatchSelectsDueTemplates(t *testing.T) {
	weekly := "{{Database report|sql=SELECT weekly|interval=7}}"
	onDemand := "{{Database report|sql=SELECT manual}}"
	daily := "{{Database report|sql=SELECT daily|interval=1}}"

	f := newPipelineFixture(t, weekly+"\n"+onDemand)
	f.wiki.pages["Wikipedia:Database reports/Daily"] = pageWithText("Wikipedia:Database reports/Daily", daily)
	f.wiki.embedded = []string{reportPage, "Wikipedia:Database reports/Daily", "Wikipedia:Database reports/Deleted"}

	ctx := context.Background()
	now := time.Now()

	// The weekly report saved two days ago is not due; the daily one is
	run, err := f.store.Start(ctx, reportPage, history.TemplateKey(weekly), history.TriggerBatch)
	require.NoError(t, err)
	require.NoError(t, f.store.Finish(ctx, run.ID, history.Summary{Outcome: history.OutcomeCompleted}))
	run, err = f.store.Start(ctx, "Wikipedia:Database reports/Daily", history.TemplateKey(daily), history.TriggerBatch)
	require.NoError(t, err)
	require.NoError(t, f.store.Finish(ctx, run.ID, history.Summary{Outcome: history.OutcomeHandled}))

	b := NewBatch(f.pipeline, f.wiki, f.store, 2, []int{4})
	b.now = func() time.Time { return now.Add(2 * 24 * time.Hour) }

	due, err := b.Select(ctx)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "Wikipedia:Database reports/Daily", due[0].Title)
	assert.Equal(t, map[string]bool{history.TemplateKey(daily): true}, due[0].Keys)

	b.now = func() time.Time { return now.Add(8 * 24 * time.Hour) }
	due, err = b.Select(ctx)
	require.NoError(t, err)
	require.Len(t, due, 2)
}

func TestBatchRun(t *testing.T) {
	tplText := "{{Database report|sql=SELECT 1|interval=1}}"
	f := newPipelineFixture(t, tplText)
	f.query.results["SELECT 1"] = &replica.Result{Columns: []string{"n"}, Rows: [][]string{{"1"}}}

	b := NewBatch(f.pipeline, f.wiki, f.store, 1, nil)
	summary, err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Pages)
	assert.Equal(t, 1, summary.Templates)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, 1, summary.Count(Completed))
	assert.Zero(t, summary.Skipped)

	require.Len(t, f.sink.events, 2)
	assert.Equal(t, history.TriggerBatch, f.sink.events[0].Trigger)

	// Saved just now, so nothing is due on the next run
	summary, err = b.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Templates)
}

func TestBatchSkipsBusyPage(t *testing.T) {
	f := newPipelineFixture(t, "{{Database report|sql=SELECT 1|interval=1}}")
	require.True(t, f.pipeline.acquire(reportPage))
	defer f.pipeline.release(reportPage)

	summary, err := NewBatch(f.pipeline, f.wiki, f.store, 1, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, summary.Results)
}
