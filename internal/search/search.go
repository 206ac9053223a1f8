// Package search filters media collections by name.
package search

import (
	"strings"

	lfuzzy "github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sahilm/fuzzy"

	"github.com/mmcdole/mediasync/internal/domain"
)

// Result is one filtered record with match metadata for highlighting
type Result struct {
	Record         domain.MediaRecord
	Index          int   // Position in the source collection
	MatchedIndexes []int // Character positions that matched
}

// nameIndex implements fuzzy.Source over lowercase record names
type nameIndex struct {
	lowerNames []string
}

func (idx nameIndex) String(i int) string { return idx.lowerNames[i] }

func (idx nameIndex) Len() int { return len(idx.lowerNames) }

func newNameIndex(coll domain.MediaCollection) nameIndex {
	names := make([]string, len(coll))
	for i, r := range coll {
		names[i] = strings.ToLower(r.Name)
	}
	return nameIndex{lowerNames: names}
}

// Filter returns the records whose name fuzzily matches query, best match
// first. An empty query returns every record in collection order.
func Filter(coll domain.MediaCollection, query string) []Result {
	query = strings.TrimSpace(query)
	if query == "" {
		results := make([]Result, len(coll))
		for i, r := range coll {
			results[i] = Result{Record: r, Index: i}
		}
		return results
	}

	matches := fuzzy.FindFrom(strings.ToLower(query), newNameIndex(coll))

	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{
			Record:         coll[m.Index],
			Index:          m.Index,
			MatchedIndexes: m.MatchedIndexes,
		}
	}
	return results
}

// Closest returns the record whose name best matches name: an exact
// case-insensitive match wins, otherwise the fuzzy match with the smallest
// edit distance.
func Closest(coll domain.MediaCollection, name string) (domain.MediaRecord, bool) {
	name = strings.TrimSpace(name)
	if name == "" || len(coll) == 0 {
		return domain.MediaRecord{}, false
	}

	for _, r := range coll {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}

	idx := newNameIndex(coll)
	ranks := lfuzzy.RankFindFold(name, idx.lowerNames)
	if len(ranks) == 0 {
		return domain.MediaRecord{}, false
	}

	best := ranks[0]
	for _, r := range ranks[1:] {
		if r.Distance < best.Distance || (r.Distance == best.Distance && r.OriginalIndex < best.OriginalIndex) {
			best = r
		}
	}
	return coll[best.OriginalIndex], true
}
