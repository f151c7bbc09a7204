package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdzerobot/sdzerobot/config"
	"github.com/sdzerobot/sdzerobot/history"
	qtest "github.com/sdzerobot/sdzerobot/internal/testing"
	"github.com/sdzerobot/sdzerobot/tabulator"
)

func TestWikiOptions(t *testing.T) {
	opts := wikiOptions(config.WikiConfig{
		APIURL:         "https://test.wikipedia.org/w/api.php",
		Username:       "Bot@reports",
		MaxLagSeconds:  5,
		EditsPerMinute: 10,
		TimeoutSeconds: 30,
	})
	assert.Equal(t, "https://test.wikipedia.org/w/api.php", opts.APIURL)
	assert.Equal(t, "Bot@reports", opts.Username)
	assert.Equal(t, 5, opts.MaxLag)
	assert.Equal(t, 30*time.Second, opts.Timeout)
}

func TestCountOutcome(t *testing.T) {
	results := []tabulator.Result{
		{Outcome: tabulator.Completed},
		{Outcome: tabulator.Fatal},
		{Outcome: tabulator.Fatal},
	}
	assert.Equal(t, 2, countOutcome(results, tabulator.Fatal))
	assert.Equal(t, 0, countOutcome(results, tabulator.Handled))
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	configForce = false
	require.NoError(t, runConfigInit(ConfigCmd, []string{path}))
	_, err := os.Stat(path)
	require.NoError(t, err)

	err = runConfigInit(ConfigCmd, []string{path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	configForce = true
	defer func() { configForce = false }()
	assert.NoError(t, runConfigInit(ConfigCmd, []string{path}))
}

func TestLastCompleted(t *testing.T) {
	ctx := context.Background()
	store := history.NewStore(qtest.CreateTestDB(t))
	page := "Wikipedia:Database reports/Foo"
	done := history.TemplateKey("{{Database report|sql=SELECT 1}}")
	broken := history.TemplateKey("{{Database report|sql=SELECT 2}}")

	run, err := store.Start(ctx, page, done, history.TriggerManual)
	require.NoError(t, err)
	require.NoError(t, store.Finish(ctx, run.ID, history.Summary{Outcome: history.OutcomeCompleted}))
	run, err = store.Start(ctx, page, broken, history.TriggerManual)
	require.NoError(t, err)
	require.NoError(t, store.Finish(ctx, run.ID, history.Summary{Outcome: history.OutcomeFatal, Error: "boom"}))

	runs, err := store.ForPage(ctx, page, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	data, err := lastCompleted(ctx, store, page, append(runs, runs...))
	require.NoError(t, err)
	require.Len(t, data, 3)

	byKey := map[string]string{}
	for _, row := range data[1:] {
		byKey[row[0]] = row[1]
	}
	assert.Equal(t, "never", byKey[shortKey(broken)])
	assert.NotEqual(t, "never", byKey[shortKey(done)])
}
