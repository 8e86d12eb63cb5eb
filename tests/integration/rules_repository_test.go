package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verdict/internal/rules"
)

func TestRulesRepository_InsertAndGetRevision(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	repo := rules.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	err := repo.WithinTx(ctx, func(tx rules.Tx) error {
		rev, err := tx.NextRevision(ctx, "high-amount")
		if err != nil {
			return err
		}
		assert.Equal(t, 1, rev)

		return tx.InsertRevision(ctx, &rules.RuleRevision{
			RuleID:       "high-amount",
			Name:         "high amount hold",
			Revision:     rev,
			Source:       `event.amount > 10000 ? decide("HOLD") : skip()`,
			Outcomes:     []string{"HOLD"},
			State:        "active",
			ChangedBy:    "alice",
			ChangeReason: "initial version",
		})
	})
	require.NoError(t, err)

	rev, err := repo.GetRevision(ctx, "high-amount", 1)
	require.NoError(t, err)
	require.NotNil(t, rev)
	assert.Equal(t, "high amount hold", rev.Name)
	assert.Equal(t, []string{"HOLD"}, rev.Outcomes)
	assert.Equal(t, "active", rev.State)
	assert.False(t, rev.CreatedAt.IsZero())
}

func TestRulesRepository_RevisionSequence(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	repo := rules.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := repo.WithinTx(ctx, func(tx rules.Tx) error {
			rev, err := tx.NextRevision(ctx, "r-1")
			if err != nil {
				return err
			}
			return tx.InsertRevision(ctx, &rules.RuleRevision{
				RuleID:   "r-1",
				Revision: rev,
				Source:   `decide("HOLD")`,
				Outcomes: []string{"HOLD"},
				State:    "active",
			})
		})
		require.NoError(t, err)
	}

	current, err := repo.GetCurrentRevision(ctx, "r-1")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, 3, current.Revision)

	list, err := repo.ListRevisions(ctx, "r-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 3, list[0].Revision)
	assert.Equal(t, 1, list[2].Revision)
}

func TestRulesRepository_MissingRevisionIsNil(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	repo := rules.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	rev, err := repo.GetRevision(ctx, "ghost", 1)
	require.NoError(t, err)
	assert.Nil(t, rev)

	current, err := repo.GetCurrentRevision(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestRulesRepository_ConfigVersioning(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	repo := rules.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	cfg, err := repo.GetCurrentConfig(ctx, "production")
	require.NoError(t, err)
	assert.Nil(t, cfg)

	for i := 0; i < 2; i++ {
		err := repo.WithinTx(ctx, func(tx rules.Tx) error {
			return tx.InsertConfig(ctx, &rules.RulesetConfig{
				Generation: "production",
				Entries: []rules.ConfigEntry{
					{RuleID: "r-1", Revision: 1},
				},
				ChangedBy: "alice",
			})
		})
		require.NoError(t, err)
	}

	cfg, err = repo.GetCurrentConfig(ctx, "production")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 2, cfg.Version)
	require.Len(t, cfg.Entries, 1)
	assert.Equal(t, "r-1", cfg.Entries[0].RuleID)

	// Generations version independently.
	shadow, err := repo.GetCurrentConfig(ctx, "shadow")
	require.NoError(t, err)
	assert.Nil(t, shadow)
}

func TestRulesRepository_TxRollback(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	repo := rules.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	err := repo.WithinTx(ctx, func(tx rules.Tx) error {
		if err := tx.InsertConfig(ctx, &rules.RulesetConfig{
			Generation: "production",
			Entries:    []rules.ConfigEntry{{RuleID: "r-1", Revision: 1}},
		}); err != nil {
			return err
		}
		// Violates the generation check constraint; the whole tx rolls back.
		return tx.InsertConfig(ctx, &rules.RulesetConfig{
			Generation: "not-a-generation",
		})
	})
	require.Error(t, err)

	cfg, err := repo.GetCurrentConfig(ctx, "production")
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestRulesRepository_DraftEntriesRoundTrip(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	repo := rules.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	err := repo.WithinTx(ctx, func(tx rules.Tx) error {
		return tx.InsertConfig(ctx, &rules.RulesetConfig{
			Generation: "shadow",
			Entries: []rules.ConfigEntry{
				{RuleID: "draft-1", Name: "candidate", Source: `decide("HOLD")`},
			},
			ChangedBy: "alice",
		})
	})
	require.NoError(t, err)

	cfg, err := repo.GetCurrentConfig(ctx, "shadow")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.Len(t, cfg.Entries, 1)
	assert.True(t, cfg.Entries[0].IsDraft())
	assert.Equal(t, `decide("HOLD")`, cfg.Entries[0].Source)
}
