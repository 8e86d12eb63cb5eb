package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verdict/internal/backtest"
	"verdict/internal/config"
	"verdict/internal/evaluation"
	"verdict/internal/fieldtype"
	"verdict/internal/lists"
	"verdict/internal/outcomes"
	"verdict/internal/rules"
)

func newTestBacktestRunner(t *testing.T, infra *TestInfra) (*backtest.Runner, *evaluation.MongoResultStore) {
	t.Helper()

	compiler, err := rules.NewCompiler()
	require.NoError(t, err)

	registry := fieldtype.NewRegistry(fieldtype.NewRepository(infra.PostgresDB), createTestLogger())
	require.NoError(t, registry.Reload(context.Background()))

	vocab := outcomes.NewVocabularyProvider(outcomes.NewRepository(infra.PostgresDB))
	resolver := lists.NewRedisResolver(infra.RedisClient, time.Second, createTestLogger())
	store := evaluation.NewResultStore(infra.MongoDB)

	runner := backtest.NewRunner(compiler, vocab, store, registry, resolver, config.BacktestConfig{
		Workers:   1,
		QueueSize: 4,
	}, createTestLogger())

	return runner, store
}

func waitForJob(t *testing.T, runner *backtest.Runner, id string) *backtest.JobView {
	t.Helper()

	var view *backtest.JobView
	require.Eventually(t, func() bool {
		view = runner.Job(id)
		return view != nil &&
			(view.Status == backtest.StatusCompleted || view.Status == backtest.StatusFailed)
	}, 10*time.Second, 50*time.Millisecond)
	return view
}

func TestBacktestFlow_CandidateDiff(t *testing.T) {
	infra := SetupTestInfra(t)
	ctx := context.Background()

	seedOutcomes(t, infra.PostgresDB, "HOLD")
	seedFieldType(t, infra.PostgresDB, "amount", "integer", "")

	runner, store := newTestBacktestRunner(t, infra)

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	amounts := map[string]int64{"evt-1": 15000, "evt-2": 8000, "evt-3": 3000}
	outcomesByEvent := map[string]string{"evt-1": "HOLD", "evt-2": "", "evt-3": ""}
	i := 0
	for _, id := range []string{"evt-1", "evt-2", "evt-3"} {
		r := storedProductionResult(id, base.Add(time.Duration(i)*time.Minute),
			map[string]interface{}{"amount": amounts[id]}, "high-amount", outcomesByEvent[id])
		require.NoError(t, store.Save(ctx, r))
		i++
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go runner.Start(runCtx)

	view, err := runner.Submit(backtest.SubmitRequest{
		RuleID: "high-amount",
		Source: `event.amount > 5000 ? decide("HOLD") : skip()`,
		Window: backtest.Window{From: base, To: base.Add(time.Hour), Limit: 100},
	})
	require.NoError(t, err)

	done := waitForJob(t, runner, view.ID)
	require.Equal(t, backtest.StatusCompleted, done.Status)
	require.NotNil(t, done.Result)

	assert.Equal(t, 3, done.Result.EventsReplayed)
	assert.Equal(t, 1, done.Result.ChangedCount)
	assert.Equal(t, map[string]int{"HOLD": 1}, done.Result.OldDistribution)
	assert.Equal(t, map[string]int{"HOLD": 2}, done.Result.NewDistribution)
}

func TestBacktestFlow_DatetimeFieldReplaysUnchanged(t *testing.T) {
	infra := SetupTestInfra(t)
	ctx := context.Background()

	seedOutcomes(t, infra.PostgresDB, "HOLD")
	seedFieldType(t, infra.PostgresDB, "created_at", "datetime", "")

	runner, store := newTestBacktestRunner(t, infra)

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	source := `event.created_at > timestamp("2026-06-01T00:00:00Z") ? decide("HOLD") : skip()`
	for i, id := range []string{"evt-1", "evt-2"} {
		r := storedProductionResult(id, base.Add(time.Duration(i)*time.Minute),
			map[string]interface{}{"created_at": base.Add(time.Duration(i) * time.Minute)},
			"recent-event", "HOLD")
		require.NoError(t, store.Save(ctx, r))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go runner.Start(runCtx)

	// The stored datetime survives the Mongo round-trip, so an unchanged
	// source reports zero changed entries.
	view, err := runner.Submit(backtest.SubmitRequest{
		RuleID: "recent-event",
		Source: source,
		Window: backtest.Window{From: base, To: base.Add(time.Hour), Limit: 100},
	})
	require.NoError(t, err)

	done := waitForJob(t, runner, view.ID)
	require.Equal(t, backtest.StatusCompleted, done.Status)
	require.NotNil(t, done.Result)

	assert.Equal(t, 2, done.Result.EventsReplayed)
	assert.Zero(t, done.Result.ChangedCount)
	assert.Equal(t, map[string]int{"HOLD": 2}, done.Result.NewDistribution)
}

func TestBacktestFlow_InvalidCandidateFails(t *testing.T) {
	infra := SetupTestInfra(t)

	seedOutcomes(t, infra.PostgresDB, "HOLD")

	runner, _ := newTestBacktestRunner(t, infra)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Start(runCtx)

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	view, err := runner.Submit(backtest.SubmitRequest{
		RuleID: "high-amount",
		Source: `decide("NOT_IN_VOCABULARY")`,
		Window: backtest.Window{From: base, To: base.Add(time.Hour)},
	})
	require.NoError(t, err)

	done := waitForJob(t, runner, view.ID)
	assert.Equal(t, backtest.StatusFailed, done.Status)
	assert.NotEmpty(t, done.Error)
	assert.Nil(t, done.Result)
}
