package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/docstore/internal/common"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore adapts a mongo database to the Store interface.
type MongoStore struct {
	db *mongo.Database
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) Collection(name string) Collection {
	return &mongoCollection{c: s.db.Collection(name)}
}

type mongoCollection struct {
	c *mongo.Collection
}

func (m *mongoCollection) CountDocuments(ctx context.Context, filter bson.M) (int64, error) {
	n, err := m.c.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

func (m *mongoCollection) Find(ctx context.Context, filter bson.M, opts *FindOptions) ([]bson.M, error) {
	fo := options.Find()
	if opts != nil {
		if len(opts.Sort) > 0 {
			sort := bson.D{}
			for _, f := range opts.Sort {
				dir := 1
				if f.Desc {
					dir = -1
				}
				sort = append(sort, bson.E{Key: f.Key, Value: dir})
			}
			fo.SetSort(sort)
		}
		if opts.Limit > 0 {
			fo.SetLimit(opts.Limit)
		}
		if opts.Skip > 0 {
			fo.SetSkip(opts.Skip)
		}
	}

	cur, err := m.c.Find(ctx, filter, fo)
	if err != nil {
		return nil, fmt.Errorf("finding documents: %w", err)
	}
	var out []bson.M
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("reading cursor: %w", err)
	}
	return out, nil
}

func (m *mongoCollection) FindOne(ctx context.Context, filter bson.M) (bson.M, error) {
	var doc bson.M
	err := m.c.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding document: %w", err)
	}
	return doc, nil
}

func (m *mongoCollection) InsertOne(ctx context.Context, doc bson.M) error {
	if _, err := m.c.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

func (m *mongoCollection) FindOneAndUpdate(ctx context.Context, filter, update bson.M) (bson.M, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc bson.M
	err := m.c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating document: %w", err)
	}
	return doc, nil
}

func (m *mongoCollection) FindOneAndReplace(ctx context.Context, filter, replacement bson.M) (bson.M, error) {
	opts := options.FindOneAndReplace().SetReturnDocument(options.After)
	var doc bson.M
	err := m.c.FindOneAndReplace(ctx, filter, replacement, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("replacing document: %w", err)
	}
	return doc, nil
}

func (m *mongoCollection) FindOneAndDelete(ctx context.Context, filter bson.M) (bson.M, error) {
	var doc bson.M
	err := m.c.FindOneAndDelete(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("deleting document: %w", err)
	}
	return doc, nil
}

func (m *mongoCollection) UpdateMany(ctx context.Context, filter, update bson.M) (int64, error) {
	res, err := m.c.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("updating documents: %w", err)
	}
	return res.ModifiedCount, nil
}

func (m *mongoCollection) DeleteMany(ctx context.Context, filter bson.M) (int64, error) {
	res, err := m.c.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("deleting documents: %w", err)
	}
	return res.DeletedCount, nil
}
