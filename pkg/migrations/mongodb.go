package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureMongoCollection creates the code-mapping indexes. The unique
// (system, code) index backs the duplicate-key conflict on insert.
func EnsureMongoCollection(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection("code_mappings")

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "system", Value: 1}, {Key: "code", Value: 1}},
			Options: options.Index().SetName("idx_code_mappings_system_code").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "system", Value: 1}},
			Options: options.Index().SetName("idx_code_mappings_system"),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}
	return nil
}
