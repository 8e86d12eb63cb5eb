package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "verdict/pkg/errors"
)

func TestBuildRuleset(t *testing.T) {
	c, err := NewCompiler()
	require.NoError(t, err)

	entries := []BuildEntry{
		{RuleID: "r-1", Revision: 2, Source: `event.amount > 10000 ? decide("HOLD") : skip()`},
		{RuleID: "r-2", Revision: 1, Source: `event.country in lists["embargoed"] ? decide("DENY") : skip()`},
		{RuleID: "r-3", Revision: 5, Source: `event.velocity in lists["hot_devices"] ? decide("REVIEW") : skip()`},
	}

	rs, err := c.BuildRuleset("production", 7, entries, testVocabulary())
	require.NoError(t, err)

	assert.Equal(t, "production", rs.Generation)
	assert.Equal(t, 7, rs.ConfigVersion)
	require.Equal(t, 3, rs.Len())

	// Deployment order is preserved exactly.
	assert.Equal(t, "r-1", rs.Rules[0].RuleID)
	assert.Equal(t, "r-2", rs.Rules[1].RuleID)
	assert.Equal(t, "r-3", rs.Rules[2].RuleID)

	assert.Equal(t, []string{"embargoed", "hot_devices"}, rs.Lists())
}

func TestBuildRulesetAllOrNothing(t *testing.T) {
	c, err := NewCompiler()
	require.NoError(t, err)

	entries := []BuildEntry{
		{RuleID: "r-1", Revision: 1, Source: `decide("HOLD")`},
		{RuleID: "r-2", Revision: 1, Source: `decide("NOT_IN_VOCABULARY")`},
		{RuleID: "r-3", Revision: 1, Source: `decide("DENY")`},
	}

	rs, err := c.BuildRuleset("production", 1, entries, testVocabulary())
	require.Error(t, err)
	assert.Nil(t, rs)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrUnknownOutcome))
}

func TestBuildRulesetEmpty(t *testing.T) {
	c, err := NewCompiler()
	require.NoError(t, err)

	rs, err := c.BuildRuleset("shadow", 0, nil, testVocabulary())
	require.NoError(t, err)
	assert.Equal(t, 0, rs.Len())
	assert.Empty(t, rs.Lists())
}
