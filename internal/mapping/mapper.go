// Package mapping maintains learned aliases between vendor attribute names
// and standard property names, with fuzzy suggestions for unmapped names.
package mapping

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kabelbinder-discount/PDM/internal/observability"
	"github.com/kabelbinder-discount/PDM/internal/storage"
)

// suggestionThreshold is the minimum similarity score for a suggestion.
const suggestionThreshold = 0.6

// maxSuggestions caps the suggestions returned per candidate.
const maxSuggestions = 3

// Key identifies a mapping: one vendor name in one language.
type Key struct {
	OriginalName string
	Language     storage.Language
}

// Suggestion is one fuzzy-match candidate for an unmapped attribute name.
type Suggestion struct {
	StandardName string
	Score        float64
}

// Mapper caches all persisted attribute mappings in memory. The cache is the
// only cross-call shared state; Reload re-synchronizes it after mappings are
// modified outside AddMapping.
type Mapper struct {
	logger      *observability.Logger
	mappings    *storage.MappingRepository
	definitions *storage.DefinitionRepository
	cache       map[Key]string
}

// NewMapper creates a mapper and loads all mappings into memory.
func NewMapper(ctx context.Context, logger *observability.Logger, repos *storage.Repositories) (*Mapper, error) {
	m := &Mapper{
		logger:      logger,
		mappings:    repos.Mappings,
		definitions: repos.Definitions,
	}
	if err := m.Reload(ctx); err != nil {
		return nil, fmt.Errorf("load attribute mappings: %w", err)
	}
	return m, nil
}

// Reload replaces the in-memory cache with the persisted mappings.
func (m *Mapper) Reload(ctx context.Context) error {
	stored, err := m.mappings.List(ctx)
	if err != nil {
		return err
	}
	cache := make(map[Key]string, len(stored))
	for _, am := range stored {
		cache[Key{OriginalName: am.OriginalName, Language: am.Language}] = am.StandardName
	}
	m.cache = cache
	return nil
}

// GetStandardName returns the mapped standard name, or the original name
// unchanged when no mapping exists.
func (m *Mapper) GetStandardName(originalName string, lang storage.Language) string {
	if std, ok := m.cache[Key{OriginalName: originalName, Language: lang}]; ok {
		return std
	}
	return originalName
}

// AddMapping upserts a human-entered mapping (confidence 1.0). On success
// the cache reflects it immediately; on storage failure the cache is left
// untouched and the error is reported to the caller.
func (m *Mapper) AddMapping(ctx context.Context, originalName, standardName string, lang storage.Language) error {
	err := m.mappings.Upsert(ctx, storage.AttributeMapping{
		OriginalName: originalName,
		Language:     lang,
		StandardName: standardName,
		Confidence:   1.0,
	})
	if err != nil {
		m.logger.Error().Err(err).
			Str("original_name", originalName).
			Str("standard_name", standardName).
			Msg("failed to save attribute mapping")
		return err
	}
	m.cache[Key{OriginalName: originalName, Language: lang}] = standardName
	return nil
}

// Known reports whether the name exists as a mapped original in any
// language.
func (m *Mapper) Known(originalName string) bool {
	for key := range m.cache {
		if key.OriginalName == originalName {
			return true
		}
	}
	return false
}

// SuggestMappings computes fuzzy-match suggestions for candidate names that
// are not yet mapped. Per candidate it returns at most three canonical names
// scoring above 0.6, best first. The similarity heuristic is a crude
// character-overlap measure, suitable only for ranking suggestions a human
// reviews; suggestions are never applied automatically.
func (m *Mapper) SuggestMappings(ctx context.Context, candidates []string) (map[string][]Suggestion, error) {
	defs, err := m.definitions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load property definitions: %w", err)
	}

	var canonical []string
	for _, d := range defs {
		canonical = append(canonical, d.Names()...)
	}

	suggestions := make(map[string][]Suggestion)
	for _, name := range candidates {
		if m.Known(name) {
			continue
		}
		var matches []Suggestion
		for _, std := range canonical {
			if score := similarity(name, std); score > suggestionThreshold {
				matches = append(matches, Suggestion{StandardName: std, Score: score})
			}
		}
		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].Score > matches[j].Score
		})
		if len(matches) > maxSuggestions {
			matches = matches[:maxSuggestions]
		}
		suggestions[name] = matches
	}
	return suggestions, nil
}

// similarity scores two names between 0 and 1, case-insensitively. A
// substring relation scores 0.8; otherwise the score is the shared character
// set size over the larger unique character set. Intentionally approximate,
// not an edit distance.
func similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.8
	}

	setA := charSet(a)
	setB := charSet(b)
	shared := 0
	for r := range setA {
		if setB[r] {
			shared++
		}
	}
	max := len(setA)
	if len(setB) > max {
		max = len(setB)
	}
	if max == 0 {
		return 0
	}
	return float64(shared) / float64(max)
}

func charSet(s string) map[rune]bool {
	set := make(map[rune]bool, len(s))
	for _, r := range s {
		set[r] = true
	}
	return set
}
