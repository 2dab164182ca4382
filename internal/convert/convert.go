// Package convert implements the recursive validate-convert engine: it checks
// an untyped candidate tree against a schema definition and produces a
// normalized value ready for the requesting layer.
//
// The output shape is layer-dependent. The storage layer receives BSON-tagged
// values (int32, primitive.ObjectID, primitive.DateTime, primitive.Regex)
// because the store would otherwise default numbers to 64-bit doubles; the
// edge and business layers receive plain Go values.
package convert

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/dmitrijs2005/docstore/internal/common"
	"github.com/dmitrijs2005/docstore/internal/schema"
	"github.com/dmitrijs2005/docstore/internal/value"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Layer is the caller's position in the stack. It decides both the output
// representation and how unknown object fields are treated: the controller
// layer rejects them, inner layers skip them silently because they may
// legitimately carry internal-only fields.
type Layer int

const (
	LayerController Layer = iota
	LayerService
	LayerStorage
)

// Converter validates candidates against definitions. It is stateless apart
// from the configured language set and safe for concurrent use.
type Converter struct {
	languages *schema.Languages
}

func New(languages *schema.Languages) *Converter {
	return &Converter{languages: languages}
}

// Convert validates candidate against def and returns the normalized value
// for the given layer. A Null candidate yields (nil, nil) without recursing.
// Any rule violation returns a common.BadInputError carrying the field path;
// a failure anywhere aborts the whole conversion.
func (c *Converter) Convert(candidate value.Value, def *schema.Definition, layer Layer) (any, error) {
	return c.convert(candidate, def, layer, "")
}

func (c *Converter) convert(v value.Value, def *schema.Definition, layer Layer, path string) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if def.IsMultilingual {
		return c.convertMultilingual(v, def, layer, path)
	}

	switch def.Kind {
	case schema.KindBool:
		return convertBool(v, path)
	case schema.KindInt32:
		return convertInt32(v, layer, path)
	case schema.KindDouble:
		return convertDouble(v, path)
	case schema.KindString:
		return convertString(v, layer, path)
	case schema.KindObjectID:
		return convertObjectID(v, layer, path)
	case schema.KindDate:
		return convertDate(v, layer, path)
	case schema.KindObject:
		return c.convertObject(v, def, layer, path)
	case schema.KindArray:
		return c.convertArray(v, def, layer, path)
	}
	return nil, common.NewBadInput(path, "invalid definition kind")
}

func convertBool(v value.Value, path string) (any, error) {
	switch v.Kind() {
	case value.KindBool:
		return v.AsBool(), nil
	case value.KindString:
		switch v.AsString() {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return nil, common.NewBadInput(path, "expected a boolean")
}

func convertInt32(v value.Value, layer Layer, path string) (any, error) {
	var n int64
	switch v.Kind() {
	case value.KindInt:
		n = v.AsInt()
	case value.KindDouble:
		f := v.AsDouble()
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return nil, common.NewBadInput(path, "expected an integer")
		}
		n = int64(f)
	case value.KindString:
		parsed, err := strconv.ParseInt(v.AsString(), 10, 64)
		if err != nil {
			return nil, common.NewBadInput(path, "expected an integer, got %q", v.AsString())
		}
		n = parsed
	default:
		return nil, common.NewBadInput(path, "expected an integer")
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, common.NewBadInput(path, "integer out of 32-bit range")
	}
	if layer == LayerStorage {
		return int32(n), nil
	}
	return n, nil
}

func convertDouble(v value.Value, path string) (any, error) {
	var f float64
	switch v.Kind() {
	case value.KindInt:
		f = float64(v.AsInt())
	case value.KindDouble:
		f = v.AsDouble()
	case value.KindString:
		parsed, err := strconv.ParseFloat(v.AsString(), 64)
		if err != nil {
			return nil, common.NewBadInput(path, "expected a number, got %q", v.AsString())
		}
		f = parsed
	default:
		return nil, common.NewBadInput(path, "expected a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, common.NewBadInput(path, "expected a finite number")
	}
	return f, nil
}

func convertString(v value.Value, layer Layer, path string) (any, error) {
	switch v.Kind() {
	case value.KindString:
		return v.AsString(), nil
	case value.KindRegex:
		// Pattern-based read: the wrapped pattern is validated as a string
		// and the wrapper itself is preserved in the output.
		pattern, options := v.AsRegex()
		return regexOutput(pattern, options, layer), nil
	case value.KindMap:
		if pattern, options, ok := regexWrapper(v.AsMap()); ok {
			return regexOutput(pattern, options, layer), nil
		}
	}
	return nil, common.NewBadInput(path, "expected a string")
}

// regexWrapper recognizes the {"$regex": pattern[, "$options": opts]} form.
func regexWrapper(m map[string]value.Value) (pattern, options string, ok bool) {
	p, has := m["$regex"]
	if !has || p.Kind() != value.KindString {
		return "", "", false
	}
	for k := range m {
		if k != "$regex" && k != "$options" {
			return "", "", false
		}
	}
	if o, has := m["$options"]; has {
		if o.Kind() != value.KindString {
			return "", "", false
		}
		options = o.AsString()
	}
	return p.AsString(), options, true
}

func regexOutput(pattern, options string, layer Layer) any {
	if layer == LayerStorage {
		return primitive.Regex{Pattern: pattern, Options: options}
	}
	out := map[string]any{"$regex": pattern}
	if options != "" {
		out["$options"] = options
	}
	return out
}

func convertObjectID(v value.Value, layer Layer, path string) (any, error) {
	var oid primitive.ObjectID
	switch v.Kind() {
	case value.KindObjectID:
		oid = v.AsObjectID()
	case value.KindString:
		s := v.AsString()
		parsed, err := primitive.ObjectIDFromHex(s)
		// The round-trip check rejects inputs the hex parser would accept
		// but not reproduce, e.g. uppercase digits.
		if err != nil || parsed.Hex() != s {
			return nil, common.NewBadInput(path, "expected an object id")
		}
		oid = parsed
	default:
		return nil, common.NewBadInput(path, "expected an object id")
	}
	if layer == LayerStorage {
		return oid, nil
	}
	return oid.Hex(), nil
}

func convertDate(v value.Value, layer Layer, path string) (any, error) {
	var t time.Time
	switch v.Kind() {
	case value.KindTime:
		t = v.AsTime()
	case value.KindString:
		parsed, err := time.Parse(time.RFC3339Nano, v.AsString())
		if err != nil {
			return nil, common.NewBadInput(path, "expected an RFC 3339 date, got %q", v.AsString())
		}
		t = parsed
	default:
		return nil, common.NewBadInput(path, "expected a date")
	}
	if layer == LayerStorage {
		return primitive.NewDateTimeFromTime(t.UTC()), nil
	}
	return t, nil
}

func (c *Converter) convertObject(v value.Value, def *schema.Definition, layer Layer, path string) (any, error) {
	if v.Kind() != value.KindMap {
		return nil, common.NewBadInput(path, "expected an object")
	}
	in := v.AsMap()

	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := newMap(layer)
	for _, k := range keys {
		child, known := def.Properties[k]
		if !known {
			if layer == LayerController {
				return nil, common.NewBadInput(childPath(path, k), "unknown field")
			}
			continue
		}
		converted, err := c.convert(in[k], child, layer, childPath(path, k))
		if err != nil {
			return nil, err
		}
		if converted == nil {
			continue
		}
		setKey(out, k, converted)
	}
	return out, nil
}

func (c *Converter) convertArray(v value.Value, def *schema.Definition, layer Layer, path string) (any, error) {
	switch v.Kind() {
	case value.KindSequence:
		in := v.AsSequence()
		out := newSequence(layer, len(in))
		for i, e := range in {
			converted, err := c.convert(e, def.Items, layer, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			out = appendSequence(out, converted)
		}
		return out, nil
	case value.KindMap, value.KindRegex:
		// A matcher instead of an assignment: the candidate targets the
		// array's elements, so it is converted against the items definition.
		return c.convert(v, def.Items, layer, path)
	}
	return nil, common.NewBadInput(path, "expected an array")
}

func (c *Converter) convertMultilingual(v value.Value, def *schema.Definition, layer Layer, path string) (any, error) {
	if v.Kind() != value.KindMap {
		return nil, common.NewBadInput(path, "expected a map of language tags")
	}
	in := v.AsMap()

	tags := make([]string, 0, len(in))
	for tag := range in {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	inner := def.WithoutMultilingual()
	out := newMap(layer)
	for _, tag := range tags {
		if !c.languages.Contains(tag) {
			return nil, common.NewBadInput(childPath(path, tag), "language %q is not configured", tag)
		}
		converted, err := c.convert(in[tag], inner, layer, childPath(path, tag))
		if err != nil {
			return nil, err
		}
		if converted == nil {
			continue
		}
		setKey(out, tag, converted)
	}
	return out, nil
}

func childPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func newMap(layer Layer) any {
	if layer == LayerStorage {
		return bson.M{}
	}
	return map[string]any{}
}

func setKey(m any, k string, v any) {
	switch x := m.(type) {
	case bson.M:
		x[k] = v
	case map[string]any:
		x[k] = v
	}
}

func newSequence(layer Layer, capacity int) any {
	if layer == LayerStorage {
		return make(bson.A, 0, capacity)
	}
	return make([]any, 0, capacity)
}

func appendSequence(s any, v any) any {
	switch x := s.(type) {
	case bson.A:
		return append(x, v)
	case []any:
		return append(x, v)
	}
	return s
}
