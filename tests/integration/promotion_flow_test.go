package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"verdict/internal/evaluation"
	"verdict/internal/executor"
	"verdict/internal/outcomes"
	"verdict/internal/promotion"
	"verdict/internal/rules"
	pkgerrors "verdict/pkg/errors"
)

func newTestCoordinator(t *testing.T, infra *TestInfra) (*promotion.Coordinator, rules.Repository, *executor.Cache) {
	t.Helper()

	compiler, err := rules.NewCompiler()
	require.NoError(t, err)

	repo := rules.NewRepository(infra.PostgresDB)
	vocab := outcomes.NewVocabularyProvider(outcomes.NewRepository(infra.PostgresDB))
	cache := executor.NewCache(repo, vocab, compiler, createTestLogger())
	store := evaluation.NewResultStore(infra.MongoDB)

	coordinator := promotion.NewCoordinator(repo, compiler, vocab, store, cache, nil, "", createTestLogger())
	return coordinator, repo, cache
}

func TestPromotionFlow_DeployAndPromote(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, true, false)
	ctx := context.Background()

	seedOutcomes(t, infra.PostgresDB, "HOLD")

	coordinator, repo, cache := newTestCoordinator(t, infra)

	source := `event.amount > 10000 ? decide("HOLD") : skip()`
	require.NoError(t, coordinator.DeployToShadow(ctx, "high-amount", "high amount hold", source, "alice"))

	// The shadow cache serves the draft.
	rs, err := cache.Current(ctx, "shadow")
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Len())

	require.NoError(t, coordinator.Promote(ctx, "high-amount", "bob", "observation window passed"))

	rev, err := repo.GetCurrentRevision(ctx, "high-amount")
	require.NoError(t, err)
	require.NotNil(t, rev)
	assert.Equal(t, 1, rev.Revision)
	assert.Equal(t, source, rev.Source)
	assert.Equal(t, []string{"HOLD"}, rev.Outcomes)

	prod, err := repo.GetCurrentConfig(ctx, "production")
	require.NoError(t, err)
	entry, ok := prod.Entry("high-amount")
	require.True(t, ok)
	assert.Equal(t, 1, entry.Revision)

	shadow, err := repo.GetCurrentConfig(ctx, "shadow")
	require.NoError(t, err)
	_, ok = shadow.Entry("high-amount")
	assert.False(t, ok)

	// Caches were invalidated: production now compiles the promoted revision.
	rs, err = cache.Current(ctx, "production")
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())
	assert.Equal(t, 1, rs.Rules[0].Revision)

	rs, err = cache.Current(ctx, "shadow")
	require.NoError(t, err)
	assert.Equal(t, 0, rs.Len())
}

func TestPromotionFlow_RepeatedPromotionsIncrementRevision(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, true, false)
	ctx := context.Background()

	seedOutcomes(t, infra.PostgresDB, "HOLD")

	coordinator, repo, _ := newTestCoordinator(t, infra)

	require.NoError(t, coordinator.DeployToShadow(ctx, "r-1", "", `event.amount > 10000 ? decide("HOLD") : skip()`, "alice"))
	require.NoError(t, coordinator.Promote(ctx, "r-1", "alice", ""))

	require.NoError(t, coordinator.DeployToShadow(ctx, "r-1", "", `event.amount > 20000 ? decide("HOLD") : skip()`, "alice"))
	require.NoError(t, coordinator.Promote(ctx, "r-1", "alice", ""))

	rev, err := repo.GetCurrentRevision(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, 2, rev.Revision)

	revisions, err := repo.ListRevisions(ctx, "r-1")
	require.NoError(t, err)
	assert.Len(t, revisions, 2)
}

func TestPromotionFlow_PromoteWithoutDeployFails(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, true, false)

	seedOutcomes(t, infra.PostgresDB, "HOLD")

	coordinator, _, _ := newTestCoordinator(t, infra)

	err := coordinator.Promote(context.Background(), "ghost", "bob", "")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestPromotionFlow_RemoveFromShadowPurgesHistory(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, true, false)
	ctx := context.Background()

	seedOutcomes(t, infra.PostgresDB, "HOLD")

	coordinator, repo, _ := newTestCoordinator(t, infra)
	store := evaluation.NewResultStore(infra.MongoDB)

	require.NoError(t, coordinator.DeployToShadow(ctx, "r-1", "", `decide("HOLD")`, "alice"))

	// Accumulated shadow history for the rule disappears with it.
	shadowResult := storedProductionResult("evt-1", time.Now(), nil, "r-1", "HOLD")
	shadowResult.Generation = "shadow"
	require.NoError(t, store.Save(ctx, shadowResult))

	require.NoError(t, coordinator.RemoveFromShadow(ctx, "r-1", "bob"))

	cfg, err := repo.GetCurrentConfig(ctx, "shadow")
	require.NoError(t, err)
	_, ok := cfg.Entry("r-1")
	assert.False(t, ok)

	count, err := infra.MongoDB.Collection("shadow_results").CountDocuments(ctx, bson.M{"event_id": "evt-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
