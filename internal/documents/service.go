package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/docstore/internal/common"
	"github.com/dmitrijs2005/docstore/internal/convert"
	"github.com/dmitrijs2005/docstore/internal/logging"
	"github.com/dmitrijs2005/docstore/internal/redact"
	"github.com/dmitrijs2005/docstore/internal/schema"
	"github.com/dmitrijs2005/docstore/internal/session"
	"github.com/dmitrijs2005/docstore/internal/storage"
	"github.com/dmitrijs2005/docstore/internal/value"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Service is the entry point of the storage core. Candidates are validated
// and converted on the way in, versions are checked on every mutation, and
// read results pass through persona redaction on the way out.
type Service struct {
	store    storage.Store
	sessions session.Manager
	conv     *convert.Converter
	logger   logging.Logger
	now      func() time.Time
}

func NewService(store storage.Store, sessions session.Manager, languages *schema.Languages, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{
		store:    store,
		sessions: sessions,
		conv:     convert.New(languages),
		logger:   logger,
		now:      time.Now,
	}
}

// ValidateEdgeCandidate checks a candidate the way the edge layer must:
// unknown fields are a hard failure. The controller calls this before letting
// a request anywhere near the store.
func (s *Service) ValidateEdgeCandidate(kind Kind, candidate value.Value) error {
	_, err := s.conv.Convert(candidate, kind.Definition, convert.LayerController)
	return err
}

// Create validates candidate and stores it as version 0 of a new document.
// For a history-tracked kind the root anchor and the first chain row are
// created in one transaction.
func (s *Service) Create(ctx context.Context, kind Kind, candidate value.Value, opts Options) (Document, error) {
	fields, err := s.convertFields(kind, candidate)
	if err != nil {
		return nil, err
	}

	log := s.opLogger(kind)
	now := s.now().UTC()
	coll := s.store.Collection(kind.Collection())

	var created Document
	transactional := kind.TrackHistory || opts.Transactional

	err = session.WithScope(ctx, s.sessions, opts.Session, transactional, func(ctx context.Context) error {
		doc := bson.M{}
		for k, v := range fields {
			doc[k] = v
		}
		doc[FieldID] = primitive.NewObjectID()
		doc[FieldVersion] = int64(0)
		doc[FieldIsSoftDeleted] = false
		doc[FieldCreatedAt] = now

		if kind.TrackHistory {
			rootID := primitive.NewObjectID()
			root := bson.M{
				FieldID:            rootID,
				FieldVersion:       int64(0),
				FieldIsSoftDeleted: false,
				FieldCreatedAt:     now,
			}
			if err := s.store.Collection(kind.RootCollection()).InsertOne(ctx, root); err != nil {
				return err
			}
			doc[FieldIsRecent] = true
			doc[FieldRoot] = rootID
		}

		if err := coll.InsertOne(ctx, doc); err != nil {
			return err
		}
		created = Document(doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating document: %w", err)
	}

	log.Info(ctx, "document created", "id", created.ID().Hex())
	return created, nil
}

// Get returns the document with the given id — for history-tracked kinds,
// the recent row. Soft-deleted documents are returned so callers can inspect
// the flag; Query is the operation that hides them.
func (s *Service) Get(ctx context.Context, kind Kind, id primitive.ObjectID, persona string, opts Options) (Document, error) {
	filter := bson.M{FieldID: id}
	if kind.TrackHistory {
		filter[FieldIsRecent] = true
	}

	var doc Document
	err := session.WithScope(ctx, s.sessions, opts.Session, false, func(ctx context.Context) error {
		found, err := s.store.Collection(kind.Collection()).FindOne(ctx, filter)
		if err != nil {
			return err
		}
		doc = Document(found)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.redacted(doc, kind, persona), nil
}

// Query returns the documents matching the filter candidate. The filter is
// validated against the kind's schema; recency and soft-delete constraints
// are injected by the subsystem, never by the caller.
func (s *Service) Query(ctx context.Context, kind Kind, filter value.Value, persona string, opts QueryOptions) ([]Document, error) {
	storeFilter, err := s.readFilter(kind, filter, opts.IncludeSoftDeleted)
	if err != nil {
		return nil, err
	}

	findOpts := &storage.FindOptions{Limit: opts.Limit, Skip: opts.Skip}
	for _, f := range opts.Sort {
		findOpts.Sort = append(findOpts.Sort, storage.SortField{Key: f.Key, Desc: f.Desc})
	}

	var docs []Document
	err = session.WithScope(ctx, s.sessions, opts.Session, false, func(ctx context.Context) error {
		found, err := s.store.Collection(kind.Collection()).Find(ctx, storeFilter, findOpts)
		if err != nil {
			return err
		}
		docs = make([]Document, 0, len(found))
		for _, d := range found {
			docs = append(docs, s.redacted(Document(d), kind, persona))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Count returns the number of documents matching the filter candidate under
// the same injected constraints as Query.
func (s *Service) Count(ctx context.Context, kind Kind, filter value.Value, opts QueryOptions) (int64, error) {
	storeFilter, err := s.readFilter(kind, filter, opts.IncludeSoftDeleted)
	if err != nil {
		return 0, err
	}

	var n int64
	err = session.WithScope(ctx, s.sessions, opts.Session, false, func(ctx context.Context) error {
		count, err := s.store.Collection(kind.Collection()).CountDocuments(ctx, storeFilter)
		if err != nil {
			return err
		}
		n = count
		return nil
	})
	return n, err
}

// Update applies candidate to the single document matching selector, provided
// the stored version equals expectedVersion. Fields the candidate does not
// mention keep their stored values. History-tracked kinds get a new immutable
// row; the old row stays as history with isRecent flipped off.
func (s *Service) Update(ctx context.Context, kind Kind, selector value.Value, candidate value.Value, expectedVersion int64, opts Options) (Document, error) {
	storeSelector, err := s.convertFields(kind, selector)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, kind, bson.M(storeSelector), candidate, expectedVersion, false, opts)
}

// UpdateByID is Update with an identifier selector.
func (s *Service) UpdateByID(ctx context.Context, kind Kind, id primitive.ObjectID, candidate value.Value, expectedVersion int64, opts Options) (Document, error) {
	return s.update(ctx, kind, bson.M{FieldID: id}, candidate, expectedVersion, false, opts)
}

// Replace is Update with full-replacement semantics: candidate becomes the
// document's entire new content and fields it does not mention are dropped.
// The version protocol and history behavior are the same as Update's.
func (s *Service) Replace(ctx context.Context, kind Kind, selector value.Value, candidate value.Value, expectedVersion int64, opts Options) (Document, error) {
	storeSelector, err := s.convertFields(kind, selector)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, kind, bson.M(storeSelector), candidate, expectedVersion, true, opts)
}

// ReplaceByID is Replace with an identifier selector.
func (s *Service) ReplaceByID(ctx context.Context, kind Kind, id primitive.ObjectID, candidate value.Value, expectedVersion int64, opts Options) (Document, error) {
	return s.update(ctx, kind, bson.M{FieldID: id}, candidate, expectedVersion, true, opts)
}

func (s *Service) update(ctx context.Context, kind Kind, selector bson.M, candidate value.Value, expectedVersion int64, replace bool, opts Options) (Document, error) {
	fields, err := s.convertFields(kind, candidate)
	if err != nil {
		return nil, err
	}

	log := s.opLogger(kind)
	coll := s.store.Collection(kind.Collection())
	transactional := kind.TrackHistory || opts.Transactional

	var updated Document
	err = session.WithScope(ctx, s.sessions, opts.Session, transactional, func(ctx context.Context) error {
		current, err := s.readSingle(ctx, coll, kind, selector)
		if err != nil {
			return err
		}
		if err := checkVersion(current.Version(), expectedVersion); err != nil {
			return err
		}
		now := s.now().UTC()

		if kind.TrackHistory {
			updated, err = s.updateChain(ctx, kind, coll, current, fields, expectedVersion, replace, now)
			return err
		}

		cas := bson.M{FieldID: current.ID(), FieldVersion: expectedVersion}

		if replace {
			next := bson.M{}
			for k, v := range fields {
				next[k] = v
			}
			next[FieldID] = current.ID()
			next[FieldVersion] = expectedVersion + 1
			next[FieldIsSoftDeleted] = current.IsSoftDeleted()
			next[FieldCreatedAt] = current.CreatedAt()
			next[FieldUpdatedAt] = now

			replaced, err := coll.FindOneAndReplace(ctx, cas, next)
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrConcurrentModification
			}
			if err != nil {
				return err
			}
			updated = Document(replaced)
			return nil
		}

		set := bson.M{}
		for k, v := range fields {
			set[k] = v
		}
		set[FieldVersion] = expectedVersion + 1
		set[FieldUpdatedAt] = now

		next, err := coll.FindOneAndUpdate(ctx, cas, bson.M{"$set": set})
		if errors.Is(err, common.ErrNotFound) {
			// The row moved between our read and the compare-and-swap.
			return common.ErrConcurrentModification
		}
		if err != nil {
			return err
		}
		updated = Document(next)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info(ctx, "document updated", "id", updated.ID().Hex(), "version", updated.Version())
	return updated, nil
}

// updateChain appends the next version row and repoints the chain. With
// replace set, the new row carries only the candidate's fields; otherwise the
// superseded row's fields carry forward.
func (s *Service) updateChain(ctx context.Context, kind Kind, coll storage.Collection, current Document, fields bson.M, expectedVersion int64, replace bool, now time.Time) (Document, error) {
	prev, err := coll.FindOneAndUpdate(ctx,
		bson.M{FieldID: current.ID(), FieldVersion: expectedVersion, FieldIsRecent: true},
		bson.M{"$set": bson.M{FieldIsRecent: false}})
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.ErrConcurrentModification
	}
	if err != nil {
		return nil, err
	}

	rootID, ok := current.Root()
	if !ok {
		return nil, fmt.Errorf("%w: chain row %s has no root", common.ErrInternal, current.ID().Hex())
	}

	next := bson.M{}
	if !replace {
		// Unspecified fields carry forward from the superseded row.
		for k, v := range prev {
			if IsReservedField(k) {
				continue
			}
			next[k] = v
		}
	}
	for k, v := range fields {
		next[k] = v
	}
	next[FieldID] = primitive.NewObjectID()
	next[FieldVersion] = expectedVersion + 1
	next[FieldIsSoftDeleted] = current.IsSoftDeleted()
	next[FieldCreatedAt] = now
	next[FieldIsRecent] = true
	next[FieldRoot] = rootID

	if err := coll.InsertOne(ctx, next); err != nil {
		return nil, err
	}

	// The root mirrors the chain's highest version.
	_, err = s.store.Collection(kind.RootCollection()).FindOneAndUpdate(ctx,
		bson.M{FieldID: rootID},
		bson.M{"$set": bson.M{FieldVersion: expectedVersion + 1}})
	if err != nil {
		return nil, err
	}
	return Document(next), nil
}

// SoftDelete marks a document deleted, keeping it versioned. For a
// history-tracked kind the flag is set on the root and propagated to every
// row of the chain without appending a new row; the root's version is
// incremented and stays authoritative for any later version check.
func (s *Service) SoftDelete(ctx context.Context, kind Kind, id primitive.ObjectID, expectedVersion int64, opts Options) (Document, error) {
	log := s.opLogger(kind)
	coll := s.store.Collection(kind.Collection())
	transactional := kind.TrackHistory || opts.Transactional

	var deleted Document
	err := session.WithScope(ctx, s.sessions, opts.Session, transactional, func(ctx context.Context) error {
		filter := bson.M{FieldID: id}
		if kind.TrackHistory {
			filter[FieldIsRecent] = true
		}
		current, err := s.readSingle(ctx, coll, kind, filter)
		if err != nil {
			return err
		}
		now := s.now().UTC()

		if kind.TrackHistory {
			deleted, err = s.softDeleteChain(ctx, kind, coll, current, expectedVersion, now)
			return err
		}

		if err := checkVersion(current.Version(), expectedVersion); err != nil {
			return err
		}
		next, err := coll.FindOneAndUpdate(ctx,
			bson.M{FieldID: current.ID(), FieldVersion: expectedVersion},
			bson.M{"$set": bson.M{
				FieldIsSoftDeleted: true,
				FieldSoftDeletedAt: now,
				FieldVersion:       expectedVersion + 1,
			}})
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrConcurrentModification
		}
		if err != nil {
			return err
		}
		deleted = Document(next)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info(ctx, "document soft-deleted", "id", deleted.ID().Hex())
	return deleted, nil
}

// softDeleteChain checks the version against the root — the chain's
// authoritative counter — then flags the root and every row sharing it.
func (s *Service) softDeleteChain(ctx context.Context, kind Kind, coll storage.Collection, current Document, expectedVersion int64, now time.Time) (Document, error) {
	rootID, ok := current.Root()
	if !ok {
		return nil, fmt.Errorf("%w: chain row %s has no root", common.ErrInternal, current.ID().Hex())
	}
	roots := s.store.Collection(kind.RootCollection())

	root, err := roots.FindOne(ctx, bson.M{FieldID: rootID})
	if err != nil {
		return nil, err
	}
	if err := checkVersion(Document(root).Version(), expectedVersion); err != nil {
		return nil, err
	}

	_, err = roots.FindOneAndUpdate(ctx,
		bson.M{FieldID: rootID, FieldVersion: expectedVersion},
		bson.M{
			"$set": bson.M{FieldIsSoftDeleted: true, FieldSoftDeletedAt: now},
			"$inc": bson.M{FieldVersion: int64(1)},
		})
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.ErrConcurrentModification
	}
	if err != nil {
		return nil, err
	}

	// Every row of the chain is flagged; no new version row is appended and
	// the per-row versions stay as written.
	if _, err := coll.UpdateMany(ctx,
		bson.M{FieldRoot: rootID},
		bson.M{"$set": bson.M{FieldIsSoftDeleted: true, FieldSoftDeletedAt: now}}); err != nil {
		return nil, err
	}

	after, err := coll.FindOne(ctx, bson.M{FieldID: current.ID()})
	if err != nil {
		return nil, err
	}
	return Document(after), nil
}

// SoftDeleteMany soft-deletes each referenced document independently and
// returns only the successes; one item's failure never aborts the batch.
func (s *Service) SoftDeleteMany(ctx context.Context, kind Kind, refs []Ref, opts Options) ([]Document, error) {
	log := s.opLogger(kind)

	out := make([]Document, 0, len(refs))
	for _, ref := range refs {
		doc, err := s.SoftDelete(ctx, kind, ref.ID, ref.Version, opts)
		if err != nil {
			log.Warn(ctx, "skipping document in batch soft-delete", "id", ref.ID.Hex(), "error", err.Error())
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

// Delete removes a document permanently. For a history-tracked kind the root
// and every chain row go together in one transaction; the returned count is
// the number of removed rows including the root.
func (s *Service) Delete(ctx context.Context, kind Kind, id primitive.ObjectID, opts Options) (int64, error) {
	log := s.opLogger(kind)
	coll := s.store.Collection(kind.Collection())
	transactional := kind.TrackHistory || opts.Transactional

	var removed int64
	err := session.WithScope(ctx, s.sessions, opts.Session, transactional, func(ctx context.Context) error {
		if !kind.TrackHistory {
			if _, err := coll.FindOneAndDelete(ctx, bson.M{FieldID: id}); err != nil {
				return err
			}
			removed = 1
			return nil
		}

		row, err := coll.FindOne(ctx, bson.M{FieldID: id})
		if err != nil {
			return err
		}
		rootID, ok := Document(row).Root()
		if !ok {
			return fmt.Errorf("%w: chain row %s has no root", common.ErrInternal, id.Hex())
		}

		n, err := coll.DeleteMany(ctx, bson.M{FieldRoot: rootID})
		if err != nil {
			return err
		}
		if _, err := s.store.Collection(kind.RootCollection()).FindOneAndDelete(ctx, bson.M{FieldID: rootID}); err != nil {
			return err
		}
		removed = n + 1
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Info(ctx, "document deleted", "id", id.Hex(), "removed", removed)
	return removed, nil
}

// convertFields runs the storage-layer conversion and strips any reserved
// field a candidate tried to smuggle in.
func (s *Service) convertFields(kind Kind, candidate value.Value) (bson.M, error) {
	out, err := s.conv.Convert(candidate, kind.Definition, convert.LayerStorage)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return bson.M{}, nil
	}
	fields, ok := out.(bson.M)
	if !ok {
		return nil, common.NewBadInput("", "expected an object")
	}
	for k := range fields {
		if IsReservedField(k) {
			delete(fields, k)
		}
	}
	return fields, nil
}

func (s *Service) readFilter(kind Kind, filter value.Value, includeSoftDeleted bool) (bson.M, error) {
	out, err := s.convertFields(kind, filter)
	if err != nil {
		return nil, err
	}
	if kind.TrackHistory {
		out[FieldIsRecent] = true
	}
	if !includeSoftDeleted {
		out[FieldIsSoftDeleted] = false
	}
	return out, nil
}

// readSingle fetches the document a mutation targets: for history kinds the
// recent row. Zero matches is ErrNotFound; more than one is a defect in the
// caller's selector.
func (s *Service) readSingle(ctx context.Context, coll storage.Collection, kind Kind, selector bson.M) (Document, error) {
	filter := bson.M{}
	for k, v := range selector {
		filter[k] = v
	}
	if kind.TrackHistory {
		filter[FieldIsRecent] = true
	}

	docs, err := coll.Find(ctx, filter, &storage.FindOptions{Limit: 2})
	if err != nil {
		return nil, err
	}
	switch len(docs) {
	case 0:
		return nil, common.ErrNotFound
	case 1:
		return Document(docs[0]), nil
	}
	return nil, common.ErrSingularityViolation
}

func (s *Service) redacted(doc Document, kind Kind, persona string) Document {
	if persona == "" {
		return doc
	}
	return Document(redact.Redact(map[string]any(doc), kind.Definition, persona))
}

func (s *Service) opLogger(kind Kind) logging.Logger {
	return s.logger.With("op_id", uuid.NewString(), "kind", kind.Name)
}

// checkVersion is the optimistic-concurrency arbiter: the stored version must
// equal what the client last saw. No last-write-wins, no internal retry.
func checkVersion(current, expected int64) error {
	if current < expected {
		return common.ErrStaleClient
	}
	if current > expected {
		return common.ErrConcurrentModification
	}
	return nil
}
