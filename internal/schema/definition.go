// Package schema describes the declarative shape of a document kind: scalar
// kinds, nested objects, arrays, per-field visibility rules and optional
// multilingual expansion. Definitions are built once at startup and are
// read-only afterwards, so they are safe to share across concurrent requests.
package schema

import "fmt"

// Kind is the type of a definition node. Exactly one of the scalar kinds,
// KindObject or KindArray is active per node.
type Kind int

const (
	KindInvalid Kind = iota
	KindBool
	KindInt32
	KindDouble
	KindString
	KindObjectID
	KindDate
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt32:
		return "int32"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindObjectID:
		return "objectid"
	case KindDate:
		return "date"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	}
	return "invalid"
}

// IsScalar reports whether k is one of the scalar kinds.
func (k Kind) IsScalar() bool {
	return k >= KindBool && k <= KindDate
}

// Definition is one node of a document schema.
//
// Invariant: Properties is set iff Kind == KindObject, Items is set iff
// Kind == KindArray. Validate enforces this recursively.
type Definition struct {
	Kind           Kind
	Properties     map[string]*Definition // KindObject only
	Items          *Definition            // KindArray only
	IsMultilingual bool
	Forbidden      *PersonaRule
}

// Validate checks the exactly-one-kind invariant on d and all its children.
func (d *Definition) Validate() error {
	return d.validate("")
}

func (d *Definition) validate(path string) error {
	if d == nil {
		return fmt.Errorf("%s: nil definition", pathOrRoot(path))
	}
	switch d.Kind {
	case KindObject:
		if d.Items != nil {
			return fmt.Errorf("%s: object definition must not have items", pathOrRoot(path))
		}
		if d.Properties == nil {
			return fmt.Errorf("%s: object definition requires properties", pathOrRoot(path))
		}
		for name, child := range d.Properties {
			if err := child.validate(childPath(path, name)); err != nil {
				return err
			}
		}
	case KindArray:
		if d.Properties != nil {
			return fmt.Errorf("%s: array definition must not have properties", pathOrRoot(path))
		}
		if d.Items == nil {
			return fmt.Errorf("%s: array definition requires items", pathOrRoot(path))
		}
		if err := d.Items.validate(path + "[]"); err != nil {
			return err
		}
	default:
		if !d.Kind.IsScalar() {
			return fmt.Errorf("%s: invalid kind", pathOrRoot(path))
		}
		if d.Properties != nil || d.Items != nil {
			return fmt.Errorf("%s: scalar definition must not have properties or items", pathOrRoot(path))
		}
	}
	return nil
}

// WithoutMultilingual returns a shallow copy of d with the multilingual flag
// cleared. The multilingual expansion validates each per-language value
// against this copy.
func (d *Definition) WithoutMultilingual() *Definition {
	if !d.IsMultilingual {
		return d
	}
	c := *d
	c.IsMultilingual = false
	return &c
}

func pathOrRoot(path string) string {
	if path == "" {
		return "(root)"
	}
	return path
}

func childPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

// PersonaRule marks a field as hidden from certain caller personas: either
// from everyone, or from an explicit set.
type PersonaRule struct {
	All      bool
	Personas []string
}

// ForbiddenForAll hides the field from every persona.
func ForbiddenForAll() *PersonaRule { return &PersonaRule{All: true} }

// ForbiddenFor hides the field from the listed personas only.
func ForbiddenFor(personas ...string) *PersonaRule {
	return &PersonaRule{Personas: personas}
}

// Matches reports whether the rule hides the field from the given persona.
// A nil rule never matches.
func (r *PersonaRule) Matches(persona string) bool {
	if r == nil {
		return false
	}
	if r.All {
		return true
	}
	for _, p := range r.Personas {
		if p == persona {
			return true
		}
	}
	return false
}
