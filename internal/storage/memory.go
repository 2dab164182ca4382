package storage

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/docstore/internal/common"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore is the in-memory Store used by the test suite. It supports the
// filter/update subset the versioning subsystem actually generates: equality
// matching, $regex matchers, and $set/$inc updates.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]*memoryCollection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

func (s *MemoryStore) Collection(name string) Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		c = &memoryCollection{}
		s.collections[name] = c
	}
	return c
}

type memoryCollection struct {
	mu   sync.Mutex
	docs []bson.M
}

func (m *memoryCollection) CountDocuments(ctx context.Context, filter bson.M) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range m.docs {
		if matches(d, filter) {
			n++
		}
	}
	return n, nil
}

func (m *memoryCollection) Find(ctx context.Context, filter bson.M, opts *FindOptions) ([]bson.M, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []bson.M
	for _, d := range m.docs {
		if matches(d, filter) {
			out = append(out, copyDoc(d))
		}
	}
	if opts != nil {
		if len(opts.Sort) > 0 {
			sortDocs(out, opts.Sort)
		}
		if opts.Skip > 0 {
			if opts.Skip >= int64(len(out)) {
				out = nil
			} else {
				out = out[opts.Skip:]
			}
		}
		if opts.Limit > 0 && int64(len(out)) > opts.Limit {
			out = out[:opts.Limit]
		}
	}
	return out, nil
}

func (m *memoryCollection) FindOne(ctx context.Context, filter bson.M) (bson.M, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if matches(d, filter) {
			return copyDoc(d), nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *memoryCollection) InsertOne(ctx context.Context, doc bson.M) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := copyDoc(doc)
	if _, ok := c["_id"]; !ok {
		c["_id"] = primitive.NewObjectID()
	}
	m.docs = append(m.docs, c)
	return nil
}

func (m *memoryCollection) FindOneAndUpdate(ctx context.Context, filter, update bson.M) (bson.M, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if matches(d, filter) {
			applyUpdate(d, update)
			return copyDoc(d), nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *memoryCollection) FindOneAndReplace(ctx context.Context, filter, replacement bson.M) (bson.M, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.docs {
		if matches(d, filter) {
			next := copyDoc(replacement)
			if _, ok := next["_id"]; !ok {
				next["_id"] = d["_id"]
			}
			m.docs[i] = next
			return copyDoc(next), nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *memoryCollection) FindOneAndDelete(ctx context.Context, filter bson.M) (bson.M, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.docs {
		if matches(d, filter) {
			m.docs = append(m.docs[:i], m.docs[i+1:]...)
			return d, nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *memoryCollection) UpdateMany(ctx context.Context, filter, update bson.M) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range m.docs {
		if matches(d, filter) {
			applyUpdate(d, update)
			n++
		}
	}
	return n, nil
}

func (m *memoryCollection) DeleteMany(ctx context.Context, filter bson.M) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []bson.M
	var n int64
	for _, d := range m.docs {
		if matches(d, filter) {
			n++
			continue
		}
		kept = append(kept, d)
	}
	m.docs = kept
	return n, nil
}

func matches(doc, filter bson.M) bool {
	for k, fv := range filter {
		dv, ok := doc[k]
		if !ok {
			return false
		}
		if rx, isRegex := fv.(primitive.Regex); isRegex {
			s, isString := dv.(string)
			if !isString || !regexMatch(rx, s) {
				return false
			}
			continue
		}
		if !equalValues(dv, fv) {
			return false
		}
	}
	return true
}

func regexMatch(rx primitive.Regex, s string) bool {
	pattern := rx.Pattern
	if strings.Contains(rx.Options, "i") {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func equalValues(a, b any) bool {
	if an, aok := asInt64(a); aok {
		bn, bok := asInt64(b)
		return bok && an == bn
	}
	if af, aok := asFloat64(a); aok {
		bf, bok := asFloat64(b)
		return bok && af == bf
	}
	if at, aok := asTime(a); aok {
		bt, bok := asTime(b)
		return bok && at.Equal(bt)
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case primitive.ObjectID:
		y, ok := b.(primitive.ObjectID)
		return ok && x == y
	}
	return false
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case primitive.DateTime:
		return x.Time(), true
	}
	return time.Time{}, false
}

func applyUpdate(doc, update bson.M) {
	if set, ok := update["$set"].(bson.M); ok {
		for k, v := range set {
			doc[k] = copyValue(v)
		}
	}
	if inc, ok := update["$inc"].(bson.M); ok {
		for k, v := range inc {
			cur, _ := asInt64(doc[k])
			delta, _ := asInt64(v)
			doc[k] = cur + delta
		}
	}
}

func copyDoc(d bson.M) bson.M {
	out := make(bson.M, len(d))
	for k, v := range d {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch x := v.(type) {
	case bson.M:
		return copyDoc(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = copyValue(e)
		}
		return out
	case bson.A:
		out := make(bson.A, len(x))
		for i, e := range x {
			out[i] = copyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = copyValue(e)
		}
		return out
	}
	return v
}

func sortDocs(docs []bson.M, fields []SortField) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			c := compareValues(docs[i][f.Key], docs[j][f.Key])
			if c == 0 {
				continue
			}
			if f.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareValues(a, b any) int {
	if an, ok := asInt64(a); ok {
		if bn, ok := asInt64(b); ok {
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			}
			return 0
		}
	}
	if af, ok := asFloat64(a); ok {
		if bf, ok := asFloat64(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	if at, ok := asTime(a); ok {
		if bt, ok := asTime(b); ok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			}
			return 0
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs)
	}
	return 0
}
