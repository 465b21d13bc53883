// Package search ranks species reference entries against free-text
// queries. Matching runs in three tiers so cheap exact hits come first:
// exact name equality, substring containment, then bounded fuzzy matching
// for misspellings.
package search

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"fieldlog/pkg/domain"
)

// MaxResults caps every search so a short query cannot flood the caller.
const MaxResults = 20

// fuzzyThreshold is the largest normalized edit distance still considered
// a match: distance divided by query length, at most 0.3.
const fuzzyThreshold = 0.3

type indexedEntry struct {
	entry domain.SpeciesEntry
	// lowercased searchable names: every vernacular plus the scientific
	// name, precomputed once at build time.
	names []string
}

// Index is an immutable in-memory search index over one dataset version.
// Rebuild it when the reference data reloads.
type Index struct {
	entries []indexedEntry
}

// New builds an index over the given entries. Entry order is preserved as
// the tie-break within each tier.
func New(entries []domain.SpeciesEntry) *Index {
	idx := &Index{entries: make([]indexedEntry, 0, len(entries))}
	for _, e := range entries {
		names := make([]string, 0, len(e.VernacularNames)+1)
		for _, name := range sortedValues(e.VernacularNames) {
			if name != "" {
				names = append(names, strings.ToLower(name))
			}
		}
		if e.ScientificName != "" {
			names = append(names, strings.ToLower(e.ScientificName))
		}
		idx.entries = append(idx.entries, indexedEntry{entry: e, names: names})
	}
	return idx
}

// Size returns the number of indexed entries.
func (idx *Index) Size() int {
	return len(idx.entries)
}

// Search returns up to MaxResults entries for the query, exact matches
// first, then substring matches, then fuzzy matches ordered by ascending
// edit distance. An entry appears at most once, in its best tier. Blank
// queries match nothing.
func (idx *Index) Search(query string) []domain.SpeciesEntry {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var results []domain.SpeciesEntry
	matched := make(map[string]struct{})
	add := func(e domain.SpeciesEntry) bool {
		if _, dup := matched[e.ID]; dup {
			return len(results) < MaxResults
		}
		matched[e.ID] = struct{}{}
		results = append(results, e)
		return len(results) < MaxResults
	}

	for _, ie := range idx.entries {
		if matchesExact(ie.names, q) && !add(ie.entry) {
			return results
		}
	}
	for _, ie := range idx.entries {
		if matchesSubstring(ie.names, q) && !add(ie.entry) {
			return results
		}
	}

	type scored struct {
		entry domain.SpeciesEntry
		dist  float64
	}
	var fuzzy []scored
	qLen := len([]rune(q))
	for _, ie := range idx.entries {
		if _, dup := matched[ie.entry.ID]; dup {
			continue
		}
		if d, ok := bestDistance(ie.names, q, qLen); ok {
			fuzzy = append(fuzzy, scored{entry: ie.entry, dist: d})
		}
	}
	sort.SliceStable(fuzzy, func(i, j int) bool { return fuzzy[i].dist < fuzzy[j].dist })
	for _, s := range fuzzy {
		if !add(s.entry) {
			break
		}
	}
	return results
}

func matchesExact(names []string, q string) bool {
	for _, name := range names {
		if name == q {
			return true
		}
	}
	return false
}

func matchesSubstring(names []string, q string) bool {
	for _, name := range names {
		if strings.Contains(name, q) {
			return true
		}
	}
	return false
}

// bestDistance returns the smallest normalized edit distance between the
// query and any same-length window of any indexed name, when it clears the
// threshold. Sliding a query-sized window keeps a short prefix query close
// to a long name instead of paying for the whole tail.
func bestDistance(names []string, q string, qLen int) (float64, bool) {
	best := -1.0
	for _, name := range names {
		runes := []rune(name)
		if len(runes) < qLen {
			d := float64(levenshtein.ComputeDistance(name, q)) / float64(qLen)
			if d <= fuzzyThreshold && (best < 0 || d < best) {
				best = d
			}
			continue
		}
		for start := 0; start+qLen <= len(runes); start++ {
			window := string(runes[start : start+qLen])
			d := float64(levenshtein.ComputeDistance(window, q)) / float64(qLen)
			if d <= fuzzyThreshold && (best < 0 || d < best) {
				best = d
			}
		}
	}
	return best, best >= 0
}

// sortedValues returns map values in key order so index builds are
// deterministic.
func sortedValues(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}
