package documents

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/docstore/internal/common"
	"github.com/dmitrijs2005/docstore/internal/logging"
	"github.com/dmitrijs2005/docstore/internal/schema"
	"github.com/dmitrijs2005/docstore/internal/session"
	"github.com/dmitrijs2005/docstore/internal/storage"
	"github.com/dmitrijs2005/docstore/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func testDefinition(t *testing.T) *schema.Definition {
	t.Helper()
	def := &schema.Definition{
		Kind: schema.KindObject,
		Properties: map[string]*schema.Definition{
			"title": {Kind: schema.KindString},
			"count": {Kind: schema.KindInt32},
			"secret": {
				Kind:      schema.KindString,
				Forbidden: &schema.PersonaRule{Personas: []string{"guest"}},
			},
		},
	}
	require.NoError(t, def.Validate())
	return def
}

func newTestEnv(t *testing.T) (*Service, *storage.MemoryStore, *session.MemoryManager) {
	t.Helper()
	store := storage.NewMemoryStore()
	mgr := session.NewMemoryManager()
	langs, err := schema.NewLanguages("en", "lv")
	require.NoError(t, err)
	return NewService(store, mgr, langs, logging.NewNopLogger()), store, mgr
}

func plainKind(t *testing.T) Kind {
	return Kind{Name: "articles", Definition: testDefinition(t)}
}

func historyKind(t *testing.T) Kind {
	return Kind{Name: "articles", Definition: testDefinition(t), TrackHistory: true}
}

func candidate(fields map[string]value.Value) value.Value {
	return value.Map(fields)
}

func TestCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("plain document starts at version zero", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestEnv(t)
		kind := plainKind(t)

		doc, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("hello"),
			"count": value.Int(3),
		}), Options{})
		require.NoError(t, err)

		assert.False(t, doc.ID().IsZero())
		assert.Equal(t, int64(0), doc.Version())
		assert.False(t, doc.IsSoftDeleted())
		assert.Equal(t, "hello", doc["title"])
	})

	t.Run("unknown fields are skipped below the edge", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestEnv(t)
		kind := plainKind(t)

		doc, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title":    value.String("hello"),
			"mystery":  value.String("dropped"),
			"_version": value.Int(99),
		}), Options{})
		require.NoError(t, err)

		assert.NotContains(t, doc, "mystery")
		assert.Equal(t, int64(0), doc.Version())
	})

	t.Run("history kind anchors a root and marks the row recent", func(t *testing.T) {
		t.Parallel()
		svc, store, _ := newTestEnv(t)
		kind := historyKind(t)

		doc, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("hello"),
		}), Options{})
		require.NoError(t, err)
		assert.True(t, doc.IsRecent())

		rootID, ok := doc.Root()
		require.True(t, ok)

		roots, err := store.Collection(kind.RootCollection()).Find(ctx, bson.M{}, nil)
		require.NoError(t, err)
		require.Len(t, roots, 1)
		assert.Equal(t, rootID, Document(roots[0]).ID())
		assert.Equal(t, int64(0), Document(roots[0]).Version())
	})
}

func TestValidateEdgeCandidate(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestEnv(t)
	kind := plainKind(t)

	err := svc.ValidateEdgeCandidate(kind, candidate(map[string]value.Value{
		"title": value.String("ok"),
	}))
	assert.NoError(t, err)

	err = svc.ValidateEdgeCandidate(kind, candidate(map[string]value.Value{
		"mystery": value.String("nope"),
	}))
	assert.ErrorIs(t, err, common.ErrBadInput)
}

func TestGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("missing document", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestEnv(t)
		kind := plainKind(t)

		_, err := svc.Get(ctx, kind, primitive.NewObjectID(), "", Options{})
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("soft-deleted documents are still returned", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestEnv(t)
		kind := plainKind(t)

		doc, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("hello"),
		}), Options{})
		require.NoError(t, err)

		_, err = svc.SoftDelete(ctx, kind, doc.ID(), 0, Options{})
		require.NoError(t, err)

		got, err := svc.Get(ctx, kind, doc.ID(), "", Options{})
		require.NoError(t, err)
		assert.True(t, got.IsSoftDeleted())
	})

	t.Run("persona redaction drops forbidden fields", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestEnv(t)
		kind := plainKind(t)

		doc, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title":  value.String("hello"),
			"secret": value.String("s3cret"),
		}), Options{})
		require.NoError(t, err)

		got, err := svc.Get(ctx, kind, doc.ID(), "guest", Options{})
		require.NoError(t, err)
		assert.NotContains(t, got, "secret")
		assert.Equal(t, "hello", got["title"])

		got, err = svc.Get(ctx, kind, doc.ID(), "editor", Options{})
		require.NoError(t, err)
		assert.Equal(t, "s3cret", got["secret"])
	})
}

func TestUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("plain update bumps the version in place", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestEnv(t)
		kind := plainKind(t)

		doc, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("hello"),
			"count": value.Int(1),
		}), Options{})
		require.NoError(t, err)

		updated, err := svc.UpdateByID(ctx, kind, doc.ID(), candidate(map[string]value.Value{
			"count": value.Int(2),
		}), 0, Options{})
		require.NoError(t, err)

		assert.Equal(t, doc.ID(), updated.ID())
		assert.Equal(t, int64(1), updated.Version())
		assert.Equal(t, "hello", updated["title"])
		_, ok := updated.UpdatedAt()
		assert.True(t, ok)
	})

	t.Run("version mismatch", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestEnv(t)
		kind := plainKind(t)

		doc, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("hello"),
		}), Options{})
		require.NoError(t, err)

		_, err = svc.UpdateByID(ctx, kind, doc.ID(), candidate(map[string]value.Value{
			"title": value.String("later"),
		}), 0, Options{})
		require.NoError(t, err)

		// The client is behind: someone already wrote version 1.
		_, err = svc.UpdateByID(ctx, kind, doc.ID(), candidate(map[string]value.Value{
			"title": value.String("lost race"),
		}), 0, Options{})
		assert.ErrorIs(t, err, common.ErrConcurrentModification)

		// The client is ahead of the store.
		_, err = svc.UpdateByID(ctx, kind, doc.ID(), candidate(map[string]value.Value{
			"title": value.String("time traveller"),
		}), 7, Options{})
		assert.ErrorIs(t, err, common.ErrStaleClient)
	})

	t.Run("selector matching more than one document", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestEnv(t)
		kind := plainKind(t)

		for i := 0; i < 2; i++ {
			_, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
				"title": value.String("twin"),
			}), Options{})
			require.NoError(t, err)
		}

		_, err := svc.Update(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("twin"),
		}), candidate(map[string]value.Value{
			"count": value.Int(1),
		}), 0, Options{})
		assert.ErrorIs(t, err, common.ErrSingularityViolation)
	})

	t.Run("history update appends a row and repoints the chain", func(t *testing.T) {
		t.Parallel()
		svc, store, _ := newTestEnv(t)
		kind := historyKind(t)

		doc, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("hello"),
			"count": value.Int(1),
		}), Options{})
		require.NoError(t, err)

		updated, err := svc.UpdateByID(ctx, kind, doc.ID(), candidate(map[string]value.Value{
			"count": value.Int(2),
		}), 0, Options{})
		require.NoError(t, err)

		assert.NotEqual(t, doc.ID(), updated.ID())
		assert.Equal(t, int64(1), updated.Version())
		assert.Equal(t, "hello", updated["title"], "unspecified fields carry forward")

		rootID, _ := doc.Root()
		rows, err := store.Collection(kind.Collection()).Find(ctx, bson.M{FieldRoot: rootID}, nil)
		require.NoError(t, err)
		require.Len(t, rows, 2)

		recent := 0
		for _, r := range rows {
			if Document(r).IsRecent() {
				recent++
			}
		}
		assert.Equal(t, 1, recent, "exactly one recent row per chain")

		root, err := store.Collection(kind.RootCollection()).FindOne(ctx, bson.M{FieldID: rootID})
		require.NoError(t, err)
		assert.Equal(t, int64(1), Document(root).Version())
	})

	t.Run("versions grow one at a time", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestEnv(t)
		kind := historyKind(t)

		doc, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"count": value.Int(0),
		}), Options{})
		require.NoError(t, err)

		id := doc.ID()
		for v := int64(0); v < 4; v++ {
			next, err := svc.UpdateByID(ctx, kind, id, candidate(map[string]value.Value{
				"count": value.Int(v + 1),
			}), v, Options{})
			require.NoError(t, err)
			require.Equal(t, v+1, next.Version())
			id = next.ID()
		}
	})
}

func TestReplace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("plain replace drops unspecified fields", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestEnv(t)
		kind := plainKind(t)

		doc, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("hello"),
			"count": value.Int(1),
		}), Options{})
		require.NoError(t, err)

		replaced, err := svc.ReplaceByID(ctx, kind, doc.ID(), candidate(map[string]value.Value{
			"count": value.Int(2),
		}), 0, Options{})
		require.NoError(t, err)

		assert.Equal(t, doc.ID(), replaced.ID())
		assert.Equal(t, int64(1), replaced.Version())
		assert.NotContains(t, replaced, "title", "replacement is the whole new content")
		assert.EqualValues(t, 2, replaced["count"])
		assert.Equal(t, doc.CreatedAt(), replaced.CreatedAt(), "creation time survives replacement")
		_, ok := replaced.UpdatedAt()
		assert.True(t, ok)
	})

	t.Run("version mismatch", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestEnv(t)
		kind := plainKind(t)

		doc, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("hello"),
		}), Options{})
		require.NoError(t, err)

		_, err = svc.ReplaceByID(ctx, kind, doc.ID(), candidate(map[string]value.Value{
			"title": value.String("late"),
		}), 4, Options{})
		assert.ErrorIs(t, err, common.ErrStaleClient)
	})

	t.Run("history replace appends a row without carry-forward", func(t *testing.T) {
		t.Parallel()
		svc, store, _ := newTestEnv(t)
		kind := historyKind(t)

		doc, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("hello"),
			"count": value.Int(1),
		}), Options{})
		require.NoError(t, err)

		replaced, err := svc.ReplaceByID(ctx, kind, doc.ID(), candidate(map[string]value.Value{
			"count": value.Int(2),
		}), 0, Options{})
		require.NoError(t, err)

		assert.NotEqual(t, doc.ID(), replaced.ID())
		assert.Equal(t, int64(1), replaced.Version())
		assert.NotContains(t, replaced, "title")
		assert.True(t, replaced.IsRecent())

		// The superseded row keeps its content as history.
		rootID, _ := doc.Root()
		rows, err := store.Collection(kind.Collection()).Find(ctx, bson.M{FieldRoot: rootID}, nil)
		require.NoError(t, err)
		require.Len(t, rows, 2)

		recent := 0
		for _, r := range rows {
			if Document(r).IsRecent() {
				recent++
			} else {
				assert.Equal(t, "hello", r["title"])
			}
		}
		assert.Equal(t, 1, recent, "exactly one recent row per chain")

		root, err := store.Collection(kind.RootCollection()).FindOne(ctx, bson.M{FieldID: rootID})
		require.NoError(t, err)
		assert.Equal(t, int64(1), Document(root).Version())
	})
}

func TestQuery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("soft-deleted documents are hidden by default", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestEnv(t)
		kind := plainKind(t)

		kept, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("kept"),
		}), Options{})
		require.NoError(t, err)

		gone, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("gone"),
		}), Options{})
		require.NoError(t, err)
		_, err = svc.SoftDelete(ctx, kind, gone.ID(), 0, Options{})
		require.NoError(t, err)

		docs, err := svc.Query(ctx, kind, value.Value{}, "", QueryOptions{})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, kept.ID(), docs[0].ID())

		docs, err = svc.Query(ctx, kind, value.Value{}, "", QueryOptions{IncludeSoftDeleted: true})
		require.NoError(t, err)
		assert.Len(t, docs, 2)
	})

	t.Run("history kinds return only recent rows", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestEnv(t)
		kind := historyKind(t)

		doc, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("v0"),
		}), Options{})
		require.NoError(t, err)
		_, err = svc.UpdateByID(ctx, kind, doc.ID(), candidate(map[string]value.Value{
			"title": value.String("v1"),
		}), 0, Options{})
		require.NoError(t, err)

		docs, err := svc.Query(ctx, kind, value.Value{}, "", QueryOptions{})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "v1", docs[0]["title"])
	})

	t.Run("sort and limit", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestEnv(t)
		kind := plainKind(t)

		for _, n := range []int64{2, 3, 1} {
			_, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
				"count": value.Int(n),
			}), Options{})
			require.NoError(t, err)
		}

		docs, err := svc.Query(ctx, kind, value.Value{}, "", QueryOptions{
			Sort:  []SortField{{Key: "count", Desc: true}},
			Limit: 2,
		})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.EqualValues(t, 3, docs[0]["count"])
		assert.EqualValues(t, 2, docs[1]["count"])
	})

	t.Run("filter with unknown field is not an error below the edge", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestEnv(t)
		kind := plainKind(t)

		_, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("hello"),
		}), Options{})
		require.NoError(t, err)

		docs, err := svc.Query(ctx, kind, candidate(map[string]value.Value{
			"mystery": value.String("nope"),
		}), "", QueryOptions{})
		require.NoError(t, err)
		assert.Len(t, docs, 1)
	})

	t.Run("persona redaction applies to every result", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestEnv(t)
		kind := plainKind(t)

		for i := 0; i < 2; i++ {
			_, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
				"secret": value.String("s3cret"),
			}), Options{})
			require.NoError(t, err)
		}

		docs, err := svc.Query(ctx, kind, value.Value{}, "guest", QueryOptions{})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		for _, d := range docs {
			assert.NotContains(t, d, "secret")
		}
	})
}

func TestCount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := newTestEnv(t)
	kind := plainKind(t)

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("x"),
		}), Options{})
		require.NoError(t, err)
	}
	doc, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
		"title": value.String("x"),
	}), Options{})
	require.NoError(t, err)
	_, err = svc.SoftDelete(ctx, kind, doc.ID(), 0, Options{})
	require.NoError(t, err)

	n, err := svc.Count(ctx, kind, value.Value{}, QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = svc.Count(ctx, kind, value.Value{}, QueryOptions{IncludeSoftDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestSoftDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("plain document is flagged and bumped", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestEnv(t)
		kind := plainKind(t)

		doc, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("hello"),
		}), Options{})
		require.NoError(t, err)

		deleted, err := svc.SoftDelete(ctx, kind, doc.ID(), 0, Options{})
		require.NoError(t, err)
		assert.True(t, deleted.IsSoftDeleted())
		assert.Equal(t, int64(1), deleted.Version())
		_, ok := deleted.SoftDeletedAt()
		assert.True(t, ok)
	})

	t.Run("version mismatch", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestEnv(t)
		kind := plainKind(t)

		doc, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("hello"),
		}), Options{})
		require.NoError(t, err)

		_, err = svc.SoftDelete(ctx, kind, doc.ID(), 5, Options{})
		assert.ErrorIs(t, err, common.ErrStaleClient)
	})

	t.Run("history chain is flagged without new rows", func(t *testing.T) {
		t.Parallel()
		svc, store, _ := newTestEnv(t)
		kind := historyKind(t)

		doc, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("v0"),
		}), Options{})
		require.NoError(t, err)
		updated, err := svc.UpdateByID(ctx, kind, doc.ID(), candidate(map[string]value.Value{
			"title": value.String("v1"),
		}), 0, Options{})
		require.NoError(t, err)

		// The root carries the chain's version after an update.
		deleted, err := svc.SoftDelete(ctx, kind, updated.ID(), 1, Options{})
		require.NoError(t, err)
		assert.True(t, deleted.IsSoftDeleted())

		rootID, _ := doc.Root()
		rows, err := store.Collection(kind.Collection()).Find(ctx, bson.M{FieldRoot: rootID}, nil)
		require.NoError(t, err)
		require.Len(t, rows, 2, "soft delete appends no row")

		// Row versions stay as written; only the flag changes.
		versions := map[int64]bool{}
		for _, r := range rows {
			assert.True(t, Document(r).IsSoftDeleted())
			versions[Document(r).Version()] = true
		}
		assert.Equal(t, map[int64]bool{0: true, 1: true}, versions)

		root, err := store.Collection(kind.RootCollection()).FindOne(ctx, bson.M{FieldID: rootID})
		require.NoError(t, err)
		assert.Equal(t, int64(2), Document(root).Version())
		assert.True(t, Document(root).IsSoftDeleted())
	})

	t.Run("history version check runs against the root", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestEnv(t)
		kind := historyKind(t)

		doc, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("v0"),
		}), Options{})
		require.NoError(t, err)

		_, err = svc.SoftDelete(ctx, kind, doc.ID(), 3, Options{})
		assert.ErrorIs(t, err, common.ErrStaleClient)
	})
}

func TestSoftDeleteMany(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := newTestEnv(t)
	kind := plainKind(t)

	var refs []Ref
	for i := 0; i < 3; i++ {
		doc, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("batch"),
		}), Options{})
		require.NoError(t, err)
		refs = append(refs, Ref{ID: doc.ID(), Version: 0})
	}
	// The middle reference is behind; its failure must not stop the batch.
	refs[1].Version = 9

	deleted, err := svc.SoftDeleteMany(ctx, kind, refs, Options{})
	require.NoError(t, err)
	require.Len(t, deleted, 2)
	assert.Equal(t, refs[0].ID, deleted[0].ID())
	assert.Equal(t, refs[2].ID, deleted[1].ID())

	// The failed one is untouched and can be retried with the right version.
	got, err := svc.Get(ctx, kind, refs[1].ID, "", Options{})
	require.NoError(t, err)
	assert.False(t, got.IsSoftDeleted())
}

func TestDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("plain document is removed", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestEnv(t)
		kind := plainKind(t)

		doc, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("hello"),
		}), Options{})
		require.NoError(t, err)

		n, err := svc.Delete(ctx, kind, doc.ID(), Options{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = svc.Get(ctx, kind, doc.ID(), "", Options{})
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("missing document", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestEnv(t)

		_, err := svc.Delete(ctx, plainKind(t), primitive.NewObjectID(), Options{})
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("history chain goes with its root", func(t *testing.T) {
		t.Parallel()
		svc, store, _ := newTestEnv(t)
		kind := historyKind(t)

		doc, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("v0"),
		}), Options{})
		require.NoError(t, err)
		updated, err := svc.UpdateByID(ctx, kind, doc.ID(), candidate(map[string]value.Value{
			"title": value.String("v1"),
		}), 0, Options{})
		require.NoError(t, err)

		// Any row of the chain identifies it, recent or not.
		n, err := svc.Delete(ctx, kind, updated.ID(), Options{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), n, "two rows plus the root")

		rows, err := store.Collection(kind.Collection()).Find(ctx, bson.M{}, nil)
		require.NoError(t, err)
		assert.Empty(t, rows)
		roots, err := store.Collection(kind.RootCollection()).Find(ctx, bson.M{}, nil)
		require.NoError(t, err)
		assert.Empty(t, roots)
	})
}

func TestSessionScoping(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("history mutation runs in an internal session ended once", func(t *testing.T) {
		t.Parallel()
		svc, _, mgr := newTestEnv(t)
		kind := historyKind(t)

		_, err := svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("hello"),
		}), Options{})
		require.NoError(t, err)

		sessions := mgr.Sessions()
		require.Len(t, sessions, 1)
		assert.Equal(t, 1, sessions[0].EndCount())
		assert.Equal(t, 1, sessions[0].TransactionCount())
	})

	t.Run("external session is never ended here", func(t *testing.T) {
		t.Parallel()
		svc, _, mgr := newTestEnv(t)
		kind := historyKind(t)

		external, err := mgr.StartSession(ctx)
		require.NoError(t, err)

		_, err = svc.Create(ctx, kind, candidate(map[string]value.Value{
			"title": value.String("hello"),
		}), Options{Session: external})
		require.NoError(t, err)

		sessions := mgr.Sessions()
		require.Len(t, sessions, 1, "no internal session beside the external one")
		assert.Equal(t, 0, sessions[0].EndCount())
	})

	t.Run("plain mutation without transactional opt starts nothing", func(t *testing.T) {
		t.Parallel()
		svc, _, mgr := newTestEnv(t)

		_, err := svc.Create(ctx, plainKind(t), candidate(map[string]value.Value{
			"title": value.String("hello"),
		}), Options{})
		require.NoError(t, err)
		assert.Empty(t, mgr.Sessions())
	})

	t.Run("transactional opt starts one internal session", func(t *testing.T) {
		t.Parallel()
		svc, _, mgr := newTestEnv(t)

		_, err := svc.Create(ctx, plainKind(t), candidate(map[string]value.Value{
			"title": value.String("hello"),
		}), Options{Transactional: true})
		require.NoError(t, err)

		sessions := mgr.Sessions()
		require.Len(t, sessions, 1)
		assert.Equal(t, 1, sessions[0].EndCount())
	})
}

func TestCheckVersion(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		current  int64
		expected int64
		want     error
	}{
		{"match", 3, 3, nil},
		{"client behind", 3, 1, common.ErrConcurrentModification},
		{"client ahead", 3, 5, common.ErrStaleClient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := checkVersion(tt.current, tt.expected)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}
