package integration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"verdict/internal/engine"
	"verdict/internal/evaluation"
	"verdict/internal/logger"
)

const containerStartupTimeout = 60

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func seedOutcomes(t *testing.T, db *sql.DB, names ...string) {
	t.Helper()
	for _, name := range names {
		_, err := db.Exec(
			`INSERT INTO outcomes (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`,
			name,
		)
		require.NoError(t, err)
	}
}

func seedFieldType(t *testing.T, db *sql.DB, fieldName, fieldType, format string) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO field_types (field_name, field_type, format)
		 VALUES ($1, $2, NULLIF($3, ''))
		 ON CONFLICT (field_name) DO UPDATE SET field_type = $2, format = NULLIF($3, '')`,
		fieldName, fieldType, format,
	)
	require.NoError(t, err)
}

func seedRedisList(t *testing.T, infra *TestInfra, name string, members ...interface{}) {
	t.Helper()
	require.NoError(t, infra.RedisClient.SAdd(context.Background(), "list:"+name, members...).Err())
}

func storedProductionResult(eventID string, timestamp time.Time, fields map[string]interface{}, ruleID, outcome string) *evaluation.StoredResult {
	decision := engine.RuleDecision{
		RuleID:  ruleID,
		Outcome: outcome,
		Matched: outcome != "",
	}

	result := &evaluation.StoredResult{
		EventID:       eventID,
		Timestamp:     timestamp,
		Generation:    "production",
		ConfigVersion: 1,
		Fields:        fields,
		Decisions:     map[string]engine.RuleDecision{ruleID: decision},
		OutcomeCounts: map[string]int{},
		EvaluatedAt:   timestamp,
	}
	if outcome != "" {
		result.OutcomeCounts[outcome] = 1
		result.Outcomes = []string{outcome}
	}
	return result
}
