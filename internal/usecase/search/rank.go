package search

import (
	"cmp"
	"slices"

	"github.com/kailas-cloud/dmodel/internal/domain/search/ordering"
	"github.com/kailas-cloud/dmodel/internal/shard"
	"github.com/kailas-cloud/dmodel/internal/textindex"
)

// candidate is one matching document. Candidates are collected in shard
// order then record order, so a stable sort breaks ties the same way.
type candidate struct {
	doc   *shard.Document
	score float64
	title string
}

// rank orders candidates in place. Relevance is always best first; the
// other keys honour order and put documents without the key last.
func rank(cands []candidate, by ordering.Sort, order ordering.Order) {
	desc := order == ordering.Descending
	var cmpFn func(a, b candidate) int

	switch by {
	case ordering.Relevance:
		cmpFn = func(a, b candidate) int { return cmp.Compare(b.score, a.score) }
	case ordering.SequenceNumber:
		cmpFn = func(a, b candidate) int {
			return compareOptional(a.doc.HasSequence, b.doc.HasSequence,
				cmp.Compare(a.doc.SequenceNumber, b.doc.SequenceNumber), desc)
		}
	case ordering.Date:
		cmpFn = func(a, b candidate) int {
			return compareOptional(a.doc.LastModified != "", b.doc.LastModified != "",
				cmp.Compare(a.doc.LastModified, b.doc.LastModified), desc)
		}
	case ordering.Alphabetical:
		for i := range cands {
			cands[i].title = textindex.Fold(cands[i].doc.Title)
		}
		cmpFn = func(a, b candidate) int {
			return compareOptional(a.title != "", b.title != "", cmp.Compare(a.title, b.title), desc)
		}
	default:
		return
	}
	slices.SortStableFunc(cands, cmpFn)
}

// compareOptional orders present keys by c (reversed when desc) and absent
// keys after every present one.
func compareOptional(aHas, bHas bool, c int, desc bool) int {
	switch {
	case aHas && !bHas:
		return -1
	case !aHas && bHas:
		return 1
	case !aHas && !bHas:
		return 0
	case desc:
		return -c
	default:
		return c
	}
}
