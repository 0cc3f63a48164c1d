// Package analytics aggregates fault records into rankings of repeated
// occurrences.
package analytics

import (
	"sort"
	"strings"

	"github.com/rpattn/reiteradas/internal/domain"
)

// RankableFields are the fields rankings can be built on.
var RankableFields = []string{domain.FieldElemento, domain.FieldCausa, domain.FieldAlimentador}

// Causes that describe customer connection work rather than network faults.
var blockedCauses = map[string]struct{}{
	"defeito em conexao ramal concentrico": {},
	"defeito em conexao":                   {},
	"defeito em ramal de ligação":          {},
	"defeito em ramal de ligacao":          {},
	"defeito em conexao de medidor":        {},
}

// Entry is one ranked value with its occurrences.
type Entry struct {
	Name        string                  `json:"name"`
	Count       int                     `json:"count"`
	Occurrences []domain.RecordDocument `json:"occurrences,omitempty"`
}

// Options narrows a ranking.
type Options struct {
	// Top keeps only the first Top entries when positive.
	Top int
	// MinCount drops entries seen fewer times.
	MinCount int
	// WithOccurrences keeps the matching records on every entry.
	WithOccurrences bool
}

// IsRankable reports whether field can be ranked.
func IsRankable(field string) bool {
	for _, f := range RankableFields {
		if f == field {
			return true
		}
	}
	return false
}

// Rank counts records per value of field, most frequent first and ties
// by name. Empty values are ignored, as are connection causes when ranking
// by CAUSA.
func Rank(records []domain.RecordDocument, field string, opts Options) []Entry {
	index := make(map[string]int)
	var entries []Entry
	for _, record := range records {
		value := record.Fields.Get(field)
		if value == "" {
			continue
		}
		if field == domain.FieldCausa {
			if _, blocked := blockedCauses[strings.ToLower(value)]; blocked {
				continue
			}
		}
		pos, ok := index[value]
		if !ok {
			pos = len(entries)
			index[value] = pos
			entries = append(entries, Entry{Name: value})
		}
		entries[pos].Count++
		if opts.WithOccurrences {
			entries[pos].Occurrences = append(entries[pos].Occurrences, record)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})

	if opts.MinCount > 1 {
		kept := entries[:0]
		for _, e := range entries {
			if e.Count >= opts.MinCount {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	if opts.Top > 0 && len(entries) > opts.Top {
		entries = entries[:opts.Top]
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries
}

// Occurrences returns the records whose field equals value, newest first.
func Occurrences(records []domain.RecordDocument, field, value string) []domain.RecordDocument {
	value = strings.TrimSpace(value)
	matches := []domain.RecordDocument{}
	for _, record := range records {
		if record.Fields.Get(field) == value {
			matches = append(matches, record)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Fields.Get(domain.FieldData) > matches[j].Fields.Get(domain.FieldData)
	})
	return matches
}
