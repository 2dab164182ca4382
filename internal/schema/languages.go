package schema

import (
	"fmt"
	"sort"

	"golang.org/x/text/language"
)

// Languages is the process-wide set of language tags allowed in multilingual
// fields. It is built once from configuration and shared read-only.
type Languages struct {
	tags map[string]struct{}
}

// NewLanguages parses and canonicalizes the given BCP 47 tags.
func NewLanguages(tags ...string) (*Languages, error) {
	if len(tags) == 0 {
		return nil, fmt.Errorf("at least one language tag is required")
	}
	set := make(map[string]struct{}, len(tags))
	for _, raw := range tags {
		tag, err := language.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid language tag %q: %v", raw, err)
		}
		set[tag.String()] = struct{}{}
	}
	return &Languages{tags: set}, nil
}

// Contains reports whether the given tag is a member of the configured set.
// Unparseable tags are simply not members.
func (l *Languages) Contains(raw string) bool {
	if l == nil {
		return false
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return false
	}
	_, ok := l.tags[tag.String()]
	return ok
}

// Tags returns the canonical tags in sorted order.
func (l *Languages) Tags() []string {
	out := make([]string, 0, len(l.tags))
	for t := range l.tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
