package model

import "slices"

// Article is a readable document, typically HTML or PDF.
type Article struct {
	Content
	authors          []string
	temporalCoverage []string
	outgoingLinks    []string
	tableOfContents  []TOCEntry
	source           string
	sourceName       string
	published        string
}

func parseArticle(c Content, f *fields) *Article {
	return &Article{
		Content:          c,
		authors:          f.strs("authors"),
		temporalCoverage: f.strs("temporalCoverage"),
		outgoingLinks:    f.strs("outgoingLinks"),
		tableOfContents:  f.toc("tableOfContents"),
		source:           f.str("source"),
		sourceName:       f.str("sourceName"),
		published:        f.str("published"),
	}
}

// Kind returns KindArticle.
func (a *Article) Kind() Kind { return KindArticle }

// Authors returns the article authors.
func (a *Article) Authors() []string { return slices.Clone(a.authors) }

// TemporalCoverage returns the dates the article covers.
func (a *Article) TemporalCoverage() []string { return slices.Clone(a.temporalCoverage) }

// OutgoingLinks returns links found in the article body.
func (a *Article) OutgoingLinks() []string { return slices.Clone(a.outgoingLinks) }

// TableOfContents returns the ordered table of contents.
func (a *Article) TableOfContents() []TOCEntry { return slices.Clone(a.tableOfContents) }

// Source returns the source format, e.g. "wikipedia" or "pdf".
func (a *Article) Source() string { return a.source }

// SourceName returns the human readable source name.
func (a *Article) SourceName() string { return a.sourceName }

// Published returns the publication date string.
func (a *Article) Published() string { return a.published }

func (a *Article) encode(tree map[string]any) {
	a.Content.encode(tree)
	putStrings(tree, "authors", a.authors)
	putStrings(tree, "temporalCoverage", a.temporalCoverage)
	putStrings(tree, "outgoingLinks", a.outgoingLinks)
	if a.tableOfContents != nil {
		toc := make([]any, len(a.tableOfContents))
		for i, e := range a.tableOfContents {
			toc[i] = e.tree()
		}
		tree["tableOfContents"] = toc
	}
	putString(tree, "source", a.source)
	putString(tree, "sourceName", a.sourceName)
	putString(tree, "published", a.published)
}
