package codes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	pkgerrors "trackerbridge/pkg/errors"
)

type Repository interface {
	Create(ctx context.Context, mapping *Mapping) error
	ListBySystem(ctx context.Context, system string) ([]Mapping, error)
	Get(ctx context.Context, id string) (*Mapping, error)
	Delete(ctx context.Context, id string) error
}

type mongoRepository struct {
	collection *mongo.Collection
}

func NewRepository(db *mongo.Database) Repository {
	return &mongoRepository{collection: db.Collection("code_mappings")}
}

func (r *mongoRepository) Create(ctx context.Context, mapping *Mapping) error {
	if mapping.ID == "" {
		mapping.ID = uuid.New().String()
	}
	now := time.Now()
	mapping.CreatedAt = now
	mapping.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, mapping)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return pkgerrors.ErrConflict.WithCause(err).
				WithMessage("mapping for %s/%s already exists", mapping.System, mapping.Code)
		}
		return fmt.Errorf("failed to create code mapping: %w", err)
	}
	return nil
}

func (r *mongoRepository) ListBySystem(ctx context.Context, system string) ([]Mapping, error) {
	filter := bson.M{"system": system, "enabled": true}
	opts := options.Find().SetSort(bson.D{{Key: "code", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list code mappings: %w", err)
	}
	defer cursor.Close(ctx)

	var mappings []Mapping
	if err := cursor.All(ctx, &mappings); err != nil {
		return nil, fmt.Errorf("failed to decode code mappings: %w", err)
	}
	return mappings, nil
}

func (r *mongoRepository) Get(ctx context.Context, id string) (*Mapping, error) {
	var mapping Mapping
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&mapping)
	if err == mongo.ErrNoDocuments {
		return nil, pkgerrors.ErrNotFound.WithMessage("code mapping %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get code mapping: %w", err)
	}
	return &mapping, nil
}

func (r *mongoRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete code mapping: %w", err)
	}
	if result.DeletedCount == 0 {
		return pkgerrors.ErrNotFound.WithMessage("code mapping %s not found", id)
	}
	return nil
}
