package evaluation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestNormalizeDecodedFieldsRestoresDatetimes(t *testing.T) {
	createdAt := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	stored := StoredResult{
		EventID:   "evt-dt",
		Timestamp: createdAt,
		Fields: map[string]interface{}{
			"created_at": createdAt,
			"amount":     int64(15000),
			"tags":       []interface{}{"vip", createdAt},
			"card": map[string]interface{}{
				"issued_at": createdAt,
			},
		},
	}

	raw, err := bson.Marshal(stored)
	require.NoError(t, err)

	var decoded StoredResult
	require.NoError(t, bson.Unmarshal(raw, &decoded))

	// The driver decodes interface{} datetimes as primitive.DateTime.
	_, isDriverType := decoded.Fields["created_at"].(primitive.DateTime)
	require.True(t, isDriverType)

	fields := normalizeDecodedFields(decoded.Fields)

	assert.Equal(t, createdAt, fields["created_at"])
	assert.Equal(t, int64(15000), fields["amount"])
	assert.Equal(t, []interface{}{"vip", createdAt}, fields["tags"])
	assert.Equal(t, map[string]interface{}{"issued_at": createdAt}, fields["card"])
}

func TestNormalizeDecodedFieldsLeavesPlainValues(t *testing.T) {
	fields := map[string]interface{}{
		"country": "DE",
		"amount":  int64(500),
		"vip":     true,
	}

	assert.Equal(t, fields, normalizeDecodedFields(fields))
}
