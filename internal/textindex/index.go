package textindex

import (
	"slices"
	"sort"
	"strings"
)

// Fields selects which document fields a search looks at.
type Fields uint8

// Searchable fields.
const (
	Title Fields = 1 << iota
	Body
)

// Score weights. A title hit outranks any number of body hits of one term in
// ordinary documents; prefix expansions count half.
const (
	titleWeight  = 10.0
	bodyWeight   = 1.0
	prefixFactor = 0.5
	// maxExpansions bounds how many indexed terms a prefix may expand to.
	maxExpansions = 256
)

type posting struct {
	doc   int
	title int
	body  int
}

// Builder accumulates documents for an Index. Documents must be added with
// increasing ids.
type Builder struct {
	postings map[string][]posting
	docs     int
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{postings: make(map[string][]posting)}
}

// Add indexes one document.
func (b *Builder) Add(doc int, title, body string) {
	counts := make(map[string]*posting)
	get := func(term string) *posting {
		p, ok := counts[term]
		if !ok {
			p = &posting{doc: doc}
			counts[term] = p
		}
		return p
	}
	for _, tok := range Tokens(title) {
		get(tok).title++
	}
	for _, tok := range Tokens(body) {
		get(tok).body++
	}
	for term, p := range counts {
		b.postings[term] = append(b.postings[term], *p)
	}
	b.docs++
}

// Build freezes the builder into a searchable index.
func (b *Builder) Build() *Index {
	terms := make([]string, 0, len(b.postings))
	for t := range b.postings {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return &Index{postings: b.postings, terms: terms, docs: b.docs}
}

// Index is an immutable inverted index. Safe for concurrent use.
type Index struct {
	postings map[string][]posting
	terms    []string
	docs     int
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int { return ix.docs }

// Search returns the score of every document containing all query terms in
// the selected fields. With prefixLast the final term also matches any
// indexed term it prefixes.
func (ix *Index) Search(query string, fields Fields, prefixLast bool) map[int]float64 {
	terms := Tokens(query)
	if len(terms) == 0 {
		return nil
	}
	var acc map[int]float64
	for i, term := range terms {
		scores := ix.termScores(term, fields, prefixLast && i == len(terms)-1)
		if acc == nil {
			acc = scores
		} else {
			for doc, s := range acc {
				if add, ok := scores[doc]; ok {
					acc[doc] = s + add
				} else {
					delete(acc, doc)
				}
			}
		}
		if len(acc) == 0 {
			return nil
		}
	}
	return acc
}

func (ix *Index) termScores(term string, fields Fields, prefix bool) map[int]float64 {
	scores := make(map[int]float64)
	ix.accumulate(scores, term, fields, 1)
	if !prefix {
		return scores
	}
	start := sort.SearchStrings(ix.terms, term)
	expanded := 0
	for _, t := range ix.terms[start:] {
		if !strings.HasPrefix(t, term) || expanded == maxExpansions {
			break
		}
		if t != term {
			ix.accumulate(scores, t, fields, prefixFactor)
		}
		expanded++
	}
	return scores
}

func (ix *Index) accumulate(scores map[int]float64, term string, fields Fields, factor float64) {
	for _, p := range ix.postings[term] {
		var s float64
		if fields&Title != 0 {
			s += float64(p.title) * titleWeight
		}
		if fields&Body != 0 {
			s += float64(p.body) * bodyWeight
		}
		if s > 0 {
			scores[p.doc] += s * factor
		}
	}
}

// Terms returns the indexed vocabulary in sorted order.
func (ix *Index) Terms() []string { return slices.Clone(ix.terms) }
