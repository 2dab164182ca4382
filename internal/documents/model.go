// Package documents implements the optimistic-concurrency and history
// subsystem: versioned documents, optional append-only version chains with a
// single recent row per chain, soft and hard deletes, and batch variants with
// partial-success semantics.
package documents

import (
	"time"

	"github.com/dmitrijs2005/docstore/internal/schema"
	"github.com/dmitrijs2005/docstore/internal/session"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Reserved field names. These are owned by the subsystem and can never be set
// from caller candidates.
const (
	FieldID            = "_id"
	FieldVersion       = "version"
	FieldIsSoftDeleted = "isSoftDeleted"
	FieldCreatedAt     = "createdAt"
	FieldUpdatedAt     = "updatedAt"
	FieldSoftDeletedAt = "softDeletedAt"
	FieldIsRecent      = "isRecent"
	FieldRoot          = "_root"
)

var reservedFields = map[string]struct{}{
	FieldID:            {},
	FieldVersion:       {},
	FieldIsSoftDeleted: {},
	FieldCreatedAt:     {},
	FieldUpdatedAt:     {},
	FieldSoftDeletedAt: {},
	FieldIsRecent:      {},
	FieldRoot:          {},
}

// IsReservedField reports whether name is owned by the subsystem.
func IsReservedField(name string) bool {
	_, ok := reservedFields[name]
	return ok
}

// Kind describes one document kind: its collection, schema and whether every
// version is kept as an immutable history row.
type Kind struct {
	Name         string
	Definition   *schema.Definition
	TrackHistory bool
}

// Collection is the physical collection holding the documents of this kind.
func (k Kind) Collection() string { return k.Name }

// RootCollection is the physical collection holding the chain anchors of a
// history-tracked kind.
func (k Kind) RootCollection() string { return k.Name + "_roots" }

// Document is a stored document: the schema fields plus the reserved ones.
// The typed accessors below decode the reserved fields regardless of whether
// they came back from the BSON decoder or the in-memory store.
type Document map[string]any

func (d Document) ID() primitive.ObjectID {
	id, _ := d[FieldID].(primitive.ObjectID)
	return id
}

func (d Document) Version() int64 {
	switch v := d[FieldVersion].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	}
	return 0
}

func (d Document) IsSoftDeleted() bool {
	b, _ := d[FieldIsSoftDeleted].(bool)
	return b
}

func (d Document) CreatedAt() time.Time {
	t, _ := docTime(d[FieldCreatedAt])
	return t
}

func (d Document) UpdatedAt() (time.Time, bool) {
	return docTime(d[FieldUpdatedAt])
}

func (d Document) SoftDeletedAt() (time.Time, bool) {
	return docTime(d[FieldSoftDeletedAt])
}

func (d Document) IsRecent() bool {
	b, _ := d[FieldIsRecent].(bool)
	return b
}

func (d Document) Root() (primitive.ObjectID, bool) {
	id, ok := d[FieldRoot].(primitive.ObjectID)
	return id, ok
}

func docTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case primitive.DateTime:
		return t.Time(), true
	}
	return time.Time{}, false
}

// Ref identifies one document at the version the caller last saw; batch
// operations take a list of these.
type Ref struct {
	ID      primitive.ObjectID
	Version int64
}

// Options carries the per-call scope settings: an externally owned session
// and/or an explicit request for a transactional scope. History-tracked
// mutations are transactional regardless of Transactional, because they span
// more than one physical write.
type Options struct {
	Session       session.Session
	Transactional bool
}

// QueryOptions extends Options for reads.
type QueryOptions struct {
	Options
	Sort  []SortField
	Limit int64
	Skip  int64
	// IncludeSoftDeleted lifts the default isSoftDeleted=false filter.
	IncludeSoftDeleted bool
}

// SortField mirrors storage.SortField so callers of this package do not need
// to import the storage adapter.
type SortField struct {
	Key  string
	Desc bool
}
