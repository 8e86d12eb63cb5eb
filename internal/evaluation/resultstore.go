package evaluation

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"verdict/internal/constants"
)

// ResultStore persists evaluation results append-only, serves the historical
// windows backtests replay, and purges shadow history when a rule's shadow
// observation window restarts.
type ResultStore interface {
	Save(ctx context.Context, result *StoredResult) error
	ProductionWindow(ctx context.Context, ruleID string, from, to time.Time, limit int) ([]StoredResult, error)
	PurgeShadowResults(ctx context.Context, ruleID string) error
}

type MongoResultStore struct {
	production *mongo.Collection
	shadow     *mongo.Collection
}

func NewResultStore(db *mongo.Database) *MongoResultStore {
	return &MongoResultStore{
		production: db.Collection(constants.ProductionResultsCollection),
		shadow:     db.Collection(constants.ShadowResultsCollection),
	}
}

func (s *MongoResultStore) Save(ctx context.Context, result *StoredResult) error {
	coll := s.production
	if result.Generation == constants.GenerationShadow {
		coll = s.shadow
	}

	if _, err := coll.InsertOne(ctx, result); err != nil {
		return fmt.Errorf("failed to save %s result: %w", result.Generation, err)
	}
	return nil
}

// ProductionWindow returns stored production results that evaluated the given
// rule, with timestamps inside [from, to), oldest first, capped at limit.
func (s *MongoResultStore) ProductionWindow(ctx context.Context, ruleID string, from, to time.Time, limit int) ([]StoredResult, error) {
	if limit <= 0 || limit > constants.MaxBacktestWindowLimit {
		limit = constants.DefaultBacktestWindowLimit
	}

	filter := bson.M{
		"timestamp": bson.M{
			"$gte": from,
			"$lt":  to,
		},
		"decisions." + ruleID: bson.M{"$exists": true},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := s.production.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query production results: %w", err)
	}
	defer cursor.Close(ctx)

	var results []StoredResult
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode production results: %w", err)
	}

	for i := range results {
		results[i].Fields = normalizeDecodedFields(results[i].Fields)
	}

	return results, nil
}

// normalizeDecodedFields undoes the driver's interface{} decoding so replayed
// events carry the same value types the evaluation path stored: datetimes come
// back as primitive.DateTime, arrays as primitive.A, documents as primitive.M.
func normalizeDecodedFields(fields map[string]interface{}) map[string]interface{} {
	for name, value := range fields {
		fields[name] = normalizeDecodedValue(value)
	}
	return fields
}

func normalizeDecodedValue(value interface{}) interface{} {
	switch v := value.(type) {
	case primitive.DateTime:
		return v.Time().UTC()
	case primitive.A:
		out := make([]interface{}, len(v))
		for i, el := range v {
			out[i] = normalizeDecodedValue(el)
		}
		return out
	case primitive.M:
		out := make(map[string]interface{}, len(v))
		for k, el := range v {
			out[k] = normalizeDecodedValue(el)
		}
		return out
	default:
		return value
	}
}

// PurgeShadowResults drops every shadow result that covered the given rule,
// restarting its shadow observation window.
func (s *MongoResultStore) PurgeShadowResults(ctx context.Context, ruleID string) error {
	filter := bson.M{"decisions." + ruleID: bson.M{"$exists": true}}
	if _, err := s.shadow.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("failed to purge shadow results for rule %s: %w", ruleID, err)
	}
	return nil
}
