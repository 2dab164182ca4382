// Package redact strips persona-forbidden fields from already-stored
// documents. It runs on read results only and never changes what is
// persisted.
package redact

import (
	"github.com/dmitrijs2005/docstore/internal/schema"
	"go.mongodb.org/mongo-driver/bson"
)

// Redact returns a copy of doc with every field removed whose definition node
// is forbidden for the given persona. An empty persona is a pass-through.
// Forbidden subtrees are discarded whole; recursion never descends into them.
func Redact(doc map[string]any, def *schema.Definition, persona string) map[string]any {
	if persona == "" || doc == nil {
		return doc
	}
	out, _ := redactValue(doc, def, persona).(map[string]any)
	return out
}

func redactValue(val any, def *schema.Definition, persona string) any {
	if def == nil || val == nil {
		return val
	}
	if def.IsMultilingual {
		return redactLanguages(val, def.WithoutMultilingual(), persona)
	}
	switch def.Kind {
	case schema.KindObject:
		return redactObject(val, def, persona)
	case schema.KindArray:
		return redactArray(val, def, persona)
	}
	return val
}

func redactObject(val any, def *schema.Definition, persona string) any {
	in, ok := asMap(val)
	if !ok {
		return val
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		child, known := def.Properties[k]
		if !known {
			// Reserved and internal-only fields carry no visibility rules.
			out[k] = v
			continue
		}
		if child.Forbidden.Matches(persona) {
			continue
		}
		out[k] = redactValue(v, child, persona)
	}
	return out
}

func redactArray(val any, def *schema.Definition, persona string) any {
	in, ok := asSequence(val)
	if !ok {
		return val
	}
	out := make([]any, 0, len(in))
	for _, e := range in {
		out = append(out, redactValue(e, def.Items, persona))
	}
	return out
}

func redactLanguages(val any, inner *schema.Definition, persona string) any {
	in, ok := asMap(val)
	if !ok {
		return val
	}
	out := make(map[string]any, len(in))
	for tag, v := range in {
		out[tag] = redactValue(v, inner, persona)
	}
	return out
}

func asMap(val any) (map[string]any, bool) {
	switch x := val.(type) {
	case map[string]any:
		return x, true
	case bson.M:
		return x, true
	}
	return nil, false
}

func asSequence(val any) ([]any, bool) {
	switch x := val.(type) {
	case []any:
		return x, true
	case bson.A:
		return x, true
	}
	return nil, false
}
