package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"verdict/internal/constants"
)

// EnsureResultCollections creates the indexes the result stores rely on:
// backtest windows filter production results by timestamp, and shadow purges
// match on per-rule decision subdocuments.
func EnsureResultCollections(ctx context.Context, db *mongo.Database) error {
	for _, name := range []string{
		constants.ProductionResultsCollection,
		constants.ShadowResultsCollection,
	} {
		collection := db.Collection(name)

		indexes := []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "timestamp", Value: 1}},
				Options: options.Index().SetName("idx_" + name + "_timestamp"),
			},
			{
				Keys:    bson.D{{Key: "event_id", Value: 1}},
				Options: options.Index().SetName("idx_" + name + "_event_id"),
			},
			{
				Keys:    bson.D{{Key: "evaluated_at", Value: -1}},
				Options: options.Index().SetName("idx_" + name + "_evaluated_at"),
			},
		}

		if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
			if !strings.Contains(err.Error(), "already exists") {
				return fmt.Errorf("failed to create %s indexes: %w", name, err)
			}
		}
	}

	return nil
}
