// Package storage adapts normalized documents and queries to primitive store
// operations. The Store/Collection interfaces have two implementations: a
// MongoDB adapter for production and an in-memory adapter backing the tests.
package storage

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// Store hands out collections by name.
type Store interface {
	Collection(name string) Collection
}

// SortField is one key of a sort specification.
type SortField struct {
	Key  string
	Desc bool
}

// FindOptions narrows a Find call. Zero values mean "no limit/skip/sort".
type FindOptions struct {
	Sort  []SortField
	Limit int64
	Skip  int64
}

// Collection exposes the primitive operations the versioning subsystem is
// built from. Filter and update documents are plain BSON maps produced by the
// storage-layer converter. Single-document lookups return
// common.ErrNotFound when nothing matches.
type Collection interface {
	CountDocuments(ctx context.Context, filter bson.M) (int64, error)
	Find(ctx context.Context, filter bson.M, opts *FindOptions) ([]bson.M, error)
	FindOne(ctx context.Context, filter bson.M) (bson.M, error)
	InsertOne(ctx context.Context, doc bson.M) error
	// FindOneAndUpdate applies update to the first match and returns the
	// post-update document.
	FindOneAndUpdate(ctx context.Context, filter, update bson.M) (bson.M, error)
	// FindOneAndReplace swaps the first match for replacement and returns
	// the post-replace document.
	FindOneAndReplace(ctx context.Context, filter, replacement bson.M) (bson.M, error)
	// FindOneAndDelete removes the first match and returns it.
	FindOneAndDelete(ctx context.Context, filter bson.M) (bson.M, error)
	UpdateMany(ctx context.Context, filter, update bson.M) (int64, error)
	DeleteMany(ctx context.Context, filter bson.M) (int64, error)
}
