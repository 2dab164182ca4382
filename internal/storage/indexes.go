package storage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IndexSpec names the collections of one document kind so the required
// secondary indexes can be created: isSoftDeleted everywhere, and for
// history-tracked kinds the isRecent pointer plus a unique (_root, version)
// pair that makes the version chain append-only at the store boundary.
type IndexSpec struct {
	Collection     string
	TrackHistory   bool
	RootCollection string
}

// EnsureIndexes creates the indexes each kind needs. It is idempotent and
// runs once at startup.
func (s *MongoStore) EnsureIndexes(ctx context.Context, specs []IndexSpec) error {
	for _, spec := range specs {
		models := []mongo.IndexModel{
			{Keys: bson.D{{Key: "isSoftDeleted", Value: 1}}},
		}
		if spec.TrackHistory {
			models = append(models,
				mongo.IndexModel{Keys: bson.D{{Key: "isRecent", Value: 1}}},
				mongo.IndexModel{
					Keys:    bson.D{{Key: "_root", Value: 1}, {Key: "version", Value: 1}},
					Options: options.Index().SetUnique(true),
				},
			)
		}
		if _, err := s.db.Collection(spec.Collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("creating indexes for %s: %w", spec.Collection, err)
		}

		if spec.TrackHistory {
			rootModels := []mongo.IndexModel{
				{Keys: bson.D{{Key: "isSoftDeleted", Value: 1}}},
			}
			if _, err := s.db.Collection(spec.RootCollection).Indexes().CreateMany(ctx, rootModels); err != nil {
				return fmt.Errorf("creating indexes for %s: %w", spec.RootCollection, err)
			}
		}
	}
	return nil
}
