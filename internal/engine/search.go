// ABOUTME: Fuzzy search over every collection of the engine
// ABOUTME: Ranks identifiers and display names with sahilm/fuzzy

package engine

import (
	"github.com/sahilm/fuzzy"

	"github.com/mauromedda/pkgsync/internal/pkginfo"
)

// recordSource exposes records to fuzzy matching by "identifier displayName".
type recordSource []pkginfo.Record

func (s recordSource) String(i int) string { return s[i].Identifier + " " + s[i].DisplayName }
func (s recordSource) Len() int            { return len(s) }

// Search fuzzy-matches query against managed installed and available
// packages, best match first. An empty query returns both lists in order.
func (e *Engine) Search(query string) []pkginfo.Record {
	pool := make(recordSource, 0, len(e.coll.Installed)+len(e.coll.Available))
	pool = append(pool, e.coll.Installed...)
	pool = append(pool, e.coll.Available...)
	if query == "" {
		return pool
	}

	matches := fuzzy.FindFrom(query, pool)
	out := make([]pkginfo.Record, len(matches))
	for i, m := range matches {
		out[i] = pool[m.Index]
	}
	return out
}
