package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"verdict/internal/config"
	"verdict/internal/engine"
	"verdict/internal/evaluation"
	"verdict/internal/executor"
	"verdict/internal/fieldtype"
	"verdict/internal/lists"
	"verdict/internal/outcomes"
	"verdict/internal/rules"
)

type evaluationStack struct {
	repo    rules.Repository
	service *evaluation.Service
	store   *evaluation.MongoResultStore
	cache   *executor.Cache
}

func newEvaluationStack(t *testing.T, infra *TestInfra, shadowEnabled bool) *evaluationStack {
	t.Helper()

	compiler, err := rules.NewCompiler()
	require.NoError(t, err)

	registry := fieldtype.NewRegistry(fieldtype.NewRepository(infra.PostgresDB), createTestLogger())
	require.NoError(t, registry.Reload(context.Background()))

	repo := rules.NewRepository(infra.PostgresDB)
	vocab := outcomes.NewVocabularyProvider(outcomes.NewRepository(infra.PostgresDB))
	cache := executor.NewCache(repo, vocab, compiler, createTestLogger())
	resolver := lists.NewRedisResolver(infra.RedisClient, time.Second, createTestLogger())
	eng := engine.New(resolver, createTestLogger())
	store := evaluation.NewResultStore(infra.MongoDB)

	service := evaluation.NewService(registry, cache, eng, store, config.EvaluationConfig{
		ShadowEnabled:      shadowEnabled,
		ResultWriteTimeout: 5 * time.Second,
	}, createTestLogger())

	return &evaluationStack{repo: repo, service: service, store: store, cache: cache}
}

func deployProductionRule(t *testing.T, repo rules.Repository, ruleID, source string) {
	t.Helper()
	ctx := context.Background()

	err := repo.WithinTx(ctx, func(tx rules.Tx) error {
		rev, err := tx.NextRevision(ctx, ruleID)
		if err != nil {
			return err
		}
		if err := tx.InsertRevision(ctx, &rules.RuleRevision{
			RuleID:   ruleID,
			Revision: rev,
			Source:   source,
			Outcomes: []string{},
			State:    "active",
		}); err != nil {
			return err
		}

		cfg, err := tx.GetCurrentConfig(ctx, "production")
		if err != nil {
			return err
		}
		var entries []rules.ConfigEntry
		if cfg != nil {
			entries = cfg.Entries
		}
		return tx.InsertConfig(ctx, &rules.RulesetConfig{
			Generation: "production",
			Entries:    append(entries, rules.ConfigEntry{RuleID: ruleID, Revision: rev}),
		})
	})
	require.NoError(t, err)
}

func TestEvaluationFlow_ProductionDecision(t *testing.T) {
	infra := SetupTestInfra(t)
	ctx := context.Background()

	seedOutcomes(t, infra.PostgresDB, "HOLD", "DENY")
	seedFieldType(t, infra.PostgresDB, "amount", "integer", "")
	seedFieldType(t, infra.PostgresDB, "country", "string", "")
	seedRedisList(t, infra, "embargoed", "IR", "KP")

	stack := newEvaluationStack(t, infra, false)
	deployProductionRule(t, stack.repo, "high-amount", `event.amount > 10000 ? decide("HOLD") : skip()`)
	deployProductionRule(t, stack.repo, "embargo", `event.country in lists["embargoed"] ? decide("DENY") : skip()`)

	resp, err := stack.service.Evaluate(ctx, evaluation.EvaluateRequest{
		EventID: "evt-1",
		Fields: map[string]interface{}{
			"amount":  "15000",
			"country": "IR",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"DENY", "HOLD"}, resp.Outcomes)
	assert.Equal(t, "HOLD", resp.Decisions["high-amount"].Outcome)
	assert.Equal(t, "DENY", resp.Decisions["embargo"].Outcome)
	assert.Equal(t, 2, resp.ConfigVersion)

	// The result lands in the production store with normalized fields.
	window, err := stack.store.ProductionWindow(ctx,
		"high-amount", time.Now().Add(-time.Minute), time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, int64(15000), window[0].Fields["amount"])
}

func TestEvaluationFlow_NoMatchingRules(t *testing.T) {
	infra := SetupTestInfra(t)

	seedOutcomes(t, infra.PostgresDB, "HOLD")
	seedFieldType(t, infra.PostgresDB, "amount", "integer", "")

	stack := newEvaluationStack(t, infra, false)
	deployProductionRule(t, stack.repo, "high-amount", `event.amount > 10000 ? decide("HOLD") : skip()`)

	resp, err := stack.service.Evaluate(context.Background(), evaluation.EvaluateRequest{
		EventID: "evt-2",
		Fields:  map[string]interface{}{"amount": int64(100)},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Outcomes)
	assert.False(t, resp.Decisions["high-amount"].Matched)
}

func TestEvaluationFlow_EmptyConfiguration(t *testing.T) {
	infra := SetupTestInfra(t)

	seedOutcomes(t, infra.PostgresDB, "HOLD")

	stack := newEvaluationStack(t, infra, false)

	resp, err := stack.service.Evaluate(context.Background(), evaluation.EvaluateRequest{
		EventID: "evt-3",
		Fields:  map[string]interface{}{"amount": int64(100)},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Outcomes)
	assert.Empty(t, resp.Decisions)
}

func TestEvaluationFlow_ShadowResultRecorded(t *testing.T) {
	infra := SetupTestInfra(t)
	ctx := context.Background()

	seedOutcomes(t, infra.PostgresDB, "HOLD", "DENY")
	seedFieldType(t, infra.PostgresDB, "amount", "integer", "")

	stack := newEvaluationStack(t, infra, true)
	deployProductionRule(t, stack.repo, "high-amount", `event.amount > 10000 ? decide("HOLD") : skip()`)

	// A stricter candidate sits in shadow as an inline draft.
	err := stack.repo.WithinTx(ctx, func(tx rules.Tx) error {
		return tx.InsertConfig(ctx, &rules.RulesetConfig{
			Generation: "shadow",
			Entries: []rules.ConfigEntry{
				{RuleID: "high-amount", Source: `event.amount > 5000 ? decide("DENY") : skip()`},
			},
		})
	})
	require.NoError(t, err)

	resp, err := stack.service.Evaluate(ctx, evaluation.EvaluateRequest{
		EventID: "evt-4",
		Fields:  map[string]interface{}{"amount": int64(8000)},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Outcomes)

	shadow := infra.MongoDB.Collection("shadow_results")
	count, err := shadow.CountDocuments(ctx, bson.M{"event_id": "evt-4"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
