package tracker

import (
	"sort"

	"github.com/askdocs/askdocs/internal/corpus"
)

// Changes partitions the current document set against the previous
// fingerprint set. Added and Modified documents need re-chunking and
// re-embedding; Removed documents' chunks are deleted; Unchanged documents
// are untouched, which is what keeps reindexing incremental.
type Changes struct {
	Added     []corpus.Document
	Modified  []corpus.Document
	Removed   []string // document IDs no longer present
	Unchanged []corpus.Document
}

// Diff compares current documents against the previous fingerprints.
// A nil or empty previous set is the first-run case: everything is Added.
func Diff(previous map[string]string, current []corpus.Document) Changes {
	var c Changes
	seen := make(map[string]bool, len(current))

	for _, doc := range current {
		seen[doc.ID] = true
		prev, ok := previous[doc.ID]
		switch {
		case !ok:
			c.Added = append(c.Added, doc)
		case prev != doc.Fingerprint:
			c.Modified = append(c.Modified, doc)
		default:
			c.Unchanged = append(c.Unchanged, doc)
		}
	}

	for id := range previous {
		if !seen[id] {
			c.Removed = append(c.Removed, id)
		}
	}
	sort.Strings(c.Removed)
	return c
}
