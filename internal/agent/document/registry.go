package document

import (
	"fmt"
	"strings"
)

// Registry resolves a MIME type to an extractor. Resolution is positional:
// the first registered extractor claiming the exact type or its wildcard
// wins, regardless of which of the two matched.
type Registry struct {
	extractors []Extractor
}

// NewRegistry keeps extractors in the given order.
func NewRegistry(extractors ...Extractor) *Registry {
	return &Registry{extractors: append([]Extractor(nil), extractors...)}
}

// Extractors returns the registered extractors in resolution order.
func (r *Registry) Extractors() []Extractor {
	return append([]Extractor(nil), r.extractors...)
}

// Resolve returns the extractor for mimeType, or false when none claims it.
func (r *Registry) Resolve(mimeType string) (Extractor, bool) {
	mimeType = NormalizeMimeType(mimeType)
	if mimeType == "" {
		return nil, false
	}
	wildcard := Wildcard(mimeType)

	for _, e := range r.extractors {
		for _, t := range e.MimeTypes() {
			if t == mimeType || t == wildcard {
				return e, true
			}
		}
	}
	return nil, false
}

// Validate checks the registry invariants: names are non-empty and unique,
// every extractor claims at least one type, and no exact type is claimed
// twice. Wildcards may overlap exact types.
func (r *Registry) Validate() error {
	names := make(map[string]struct{}, len(r.extractors))
	claimed := make(map[string]string)

	for i, e := range r.extractors {
		name := e.Name()
		if name == "" {
			return fmt.Errorf("extractor %d has an empty name", i)
		}
		if _, dup := names[name]; dup {
			return fmt.Errorf("duplicate extractor name %q", name)
		}
		names[name] = struct{}{}

		types := e.MimeTypes()
		if len(types) == 0 {
			return fmt.Errorf("extractor %q claims no mime types", name)
		}
		for _, t := range types {
			if owner, dup := claimed[t]; dup {
				return fmt.Errorf("mime type %q claimed by both %q and %q", t, owner, name)
			}
			claimed[t] = name
		}
	}
	return nil
}

// NormalizeMimeType lower-cases mimeType and strips parameters
// ("text/plain; charset=utf-8" -> "text/plain").
func NormalizeMimeType(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// Wildcard returns the "type/*" form of mimeType.
func Wildcard(mimeType string) string {
	major, _, _ := strings.Cut(mimeType, "/")
	return major + "/*"
}
