// Package override resolves the layered property override model: article
// overrides beat category overrides beat raw stored values.
package override

import (
	"context"
	"fmt"

	"github.com/kabelbinder-discount/PDM/internal/storage"
)

// Key identifies one effective property: a standard name in one language.
type Key struct {
	Name     string
	Language storage.Language
}

// PropertySet is an insertion-ordered mapping from property keys to values.
type PropertySet struct {
	keys   []Key
	values map[Key]string
}

// NewPropertySet creates an empty property set.
func NewPropertySet() *PropertySet {
	return &PropertySet{values: make(map[Key]string)}
}

// Set stores the value, keeping the key's original position when it already
// exists and appending it otherwise.
func (s *PropertySet) Set(key Key, value string) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// SetIfPresent overwrites the value only when the key already exists.
func (s *PropertySet) SetIfPresent(key Key, value string) {
	if _, ok := s.values[key]; ok {
		s.values[key] = value
	}
}

// Get returns the value for a key.
func (s *PropertySet) Get(key Key) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (s *PropertySet) Keys() []Key { return s.keys }

// Len returns the number of entries.
func (s *PropertySet) Len() int { return len(s.keys) }

// Clone returns an independent copy preserving insertion order.
func (s *PropertySet) Clone() *PropertySet {
	c := NewPropertySet()
	for _, k := range s.keys {
		c.Set(k, s.values[k])
	}
	return c
}

// Resolver merges a base property set with the two override tiers.
type Resolver struct {
	products  *storage.ProductRepository
	overrides *storage.OverrideRepository
}

// NewResolver creates a resolver over the given repositories.
func NewResolver(repos *storage.Repositories) *Resolver {
	return &Resolver{products: repos.Products, overrides: repos.Overrides}
}

// Resolve applies category then article overrides to the base set and
// returns the effective properties. Precedence is strict: an article
// override always wins over a category override, which wins over the raw
// value.
//
// The tiers behave asymmetrically on purpose: a category override only
// overwrites keys already present in the base set and never introduces a new
// one, while an article override overwrites unconditionally and may add
// previously absent keys. This mirrors the long-standing shop data and is
// flagged for product-owner review rather than silently changed.
func (r *Resolver) Resolve(ctx context.Context, articleID string, base *PropertySet) (*PropertySet, error) {
	resolved := base.Clone()

	category, err := r.products.Category(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("look up category of %s: %w", articleID, err)
	}
	if category != "" {
		categoryOverrides, err := r.overrides.ListForCategory(ctx, category)
		if err != nil {
			return nil, fmt.Errorf("load category overrides for %s: %w", category, err)
		}
		for _, o := range categoryOverrides {
			resolved.SetIfPresent(Key{Name: o.Name, Language: o.Language}, o.Value)
		}
	}

	articleOverrides, err := r.overrides.ListForArticle(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("load article overrides for %s: %w", articleID, err)
	}
	for _, o := range articleOverrides {
		resolved.Set(Key{Name: o.Name, Language: o.Language}, o.Value)
	}

	return resolved, nil
}
