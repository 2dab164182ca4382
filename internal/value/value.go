// Package value defines the candidate tree: the untyped input a caller hands
// to the storage core before validation. It is a closed tagged variant so the
// converter can match on kinds exhaustively instead of probing with type
// assertions all over the place.
package value

import (
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Kind discriminates the variants of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDouble
	KindString
	KindTime
	KindObjectID
	KindRegex
	KindSequence
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindTime:
		return "time"
	case KindObjectID:
		return "objectid"
	case KindRegex:
		return "regex"
	case KindSequence:
		return "sequence"
	case KindMap:
		return "map"
	}
	return "invalid"
}

// Value is one node of a candidate tree. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string // string payload, or regex pattern
	opts string // regex options
	t    time.Time
	oid  primitive.ObjectID
	seq  []Value
	m    map[string]Value
}

// Null is the absent/missing marker.
var Null = Value{}

func Bool(b bool) Value              { return Value{kind: KindBool, b: b} }
func Int(i int64) Value              { return Value{kind: KindInt, i: i} }
func Double(f float64) Value         { return Value{kind: KindDouble, f: f} }
func String(s string) Value          { return Value{kind: KindString, s: s} }
func Time(t time.Time) Value         { return Value{kind: KindTime, t: t} }
func ObjectID(id primitive.ObjectID) Value { return Value{kind: KindObjectID, oid: id} }

// Regex is a pattern matcher, the {"$regex": ...} wrapper used for
// pattern-based reads.
func Regex(pattern, options string) Value {
	return Value{kind: KindRegex, s: pattern, opts: options}
}

func Sequence(items ...Value) Value { return Value{kind: KindSequence, seq: items} }

func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() bool                   { return v.b }
func (v Value) AsInt() int64                   { return v.i }
func (v Value) AsDouble() float64              { return v.f }
func (v Value) AsString() string               { return v.s }
func (v Value) AsTime() time.Time              { return v.t }
func (v Value) AsObjectID() primitive.ObjectID { return v.oid }
func (v Value) AsRegex() (pattern, options string) { return v.s, v.opts }
func (v Value) AsSequence() []Value            { return v.seq }
func (v Value) AsMap() map[string]Value        { return v.m }

// FromAny decodes an arbitrary Go value (typically the result of JSON or BSON
// decoding) into a candidate tree. Unsupported types are an error, not a panic.
func FromAny(in any) (Value, error) {
	switch x := in.(type) {
	case nil:
		return Null, nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		// uint is 64 bits wide on most platforms, so it can overflow int64
		// the same way uint64 does.
		if uint64(x) > math.MaxInt64 {
			return Null, fmt.Errorf("value out of range: %d", x)
		}
		return Int(int64(x)), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Null, fmt.Errorf("value out of range: %d", x)
		}
		return Int(int64(x)), nil
	case float32:
		return Double(float64(x)), nil
	case float64:
		return Double(x), nil
	case string:
		return String(x), nil
	case time.Time:
		return Time(x), nil
	case primitive.DateTime:
		return Time(x.Time()), nil
	case primitive.ObjectID:
		return ObjectID(x), nil
	case primitive.Regex:
		return Regex(x.Pattern, x.Options), nil
	case []any:
		return fromSequence(x)
	case primitive.A:
		return fromSequence(x)
	case map[string]any:
		return fromMap(x)
	case primitive.M:
		return fromMap(x)
	}
	return Null, fmt.Errorf("unsupported candidate type %T", in)
}

func fromSequence(in []any) (Value, error) {
	items := make([]Value, 0, len(in))
	for i, e := range in {
		v, err := FromAny(e)
		if err != nil {
			return Null, fmt.Errorf("element %d: %w", i, err)
		}
		items = append(items, v)
	}
	return Sequence(items...), nil
}

func fromMap(in map[string]any) (Value, error) {
	m := make(map[string]Value, len(in))
	for k, e := range in {
		v, err := FromAny(e)
		if err != nil {
			return Null, fmt.Errorf("key %q: %w", k, err)
		}
		m[k] = v
	}
	return Map(m), nil
}

// Equal reports deep equality of two candidate trees. Int and Double compare
// as distinct kinds; callers wanting numeric coercion should convert first.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindDouble:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindTime:
		return v.t.Equal(o.t)
	case KindObjectID:
		return v.oid == o.oid
	case KindRegex:
		return v.s == o.s && v.opts == o.opts
	case KindSequence:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, a := range v.m {
			b, ok := o.m[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}
