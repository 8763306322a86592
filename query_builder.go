package dmodel

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/dmodel/internal/domain/model"
	"github.com/kailas-cloud/dmodel/internal/domain/search/match"
	"github.com/kailas-cloud/dmodel/internal/domain/search/ordering"
	"github.com/kailas-cloud/dmodel/internal/domain/search/query"
)

// QueryBuilder is a fluent builder for queries.
//
//	page, err := client.Query().
//		Terms("flotation").Match(MatchTitle).
//		AllTags("physics").
//		Limit(10).
//		Do(ctx)
type QueryBuilder struct {
	client *Client
	opts   query.Options
}

// App targets the content of appID instead of the default application.
func (b *QueryBuilder) App(appID string) *QueryBuilder {
	b.opts.AppID = appID
	return b
}

// Terms sets the search terms. A Match must be set with them.
func (b *QueryBuilder) Terms(terms string) *QueryBuilder {
	b.opts.SearchTerms = terms
	return b
}

// Match sets the fields the terms are matched against.
func (b *QueryBuilder) Match(m Match) *QueryBuilder {
	b.opts.Match = match.Match(m)
	return b
}

// Mode sets how the last term is matched. Defaults to ModeIncremental.
func (b *QueryBuilder) Mode(m Mode) *QueryBuilder {
	b.opts.Mode = match.Mode(m)
	return b
}

// Sort sets the result order. Defaults to SortRelevance.
func (b *QueryBuilder) Sort(s Sort) *QueryBuilder {
	b.opts.Sort = ordering.Sort(s)
	return b
}

// Order sets the direction of a non-relevance sort.
func (b *QueryBuilder) Order(o Order) *QueryBuilder {
	b.opts.Order = ordering.Order(o)
	return b
}

// Type restricts results to t and the types derived from it.
func (b *QueryBuilder) Type(t Type) *QueryBuilder {
	b.opts.Kind = model.Kind(t)
	return b
}

// AllTags requires every tag.
func (b *QueryBuilder) AllTags(tags ...string) *QueryBuilder {
	b.opts.TagsMatchAll = append(b.opts.TagsMatchAll, tags...)
	return b
}

// AnyTags requires at least one of the tags.
func (b *QueryBuilder) AnyTags(tags ...string) *QueryBuilder {
	b.opts.TagsMatchAny = append(b.opts.TagsMatchAny, tags...)
	return b
}

// ExcludeTags drops results carrying any of the tags.
func (b *QueryBuilder) ExcludeTags(tags ...string) *QueryBuilder {
	b.opts.ExcludedTags = append(b.opts.ExcludedTags, tags...)
	return b
}

// IDs restricts results to the given content ids.
func (b *QueryBuilder) IDs(ids ...string) *QueryBuilder {
	b.opts.IDs = append(b.opts.IDs, ids...)
	return b
}

// ExcludeIDs drops the given content ids.
func (b *QueryBuilder) ExcludeIDs(ids ...string) *QueryBuilder {
	b.opts.ExcludedIDs = append(b.opts.ExcludedIDs, ids...)
	return b
}

// ContentType requires the content type.
func (b *QueryBuilder) ContentType(ct string) *QueryBuilder {
	b.opts.ContentType = ct
	return b
}

// ExcludeContentType drops results of the content type.
func (b *QueryBuilder) ExcludeContentType(ct string) *QueryBuilder {
	b.opts.ExcludedContentType = ct
	return b
}

// Limit sets the page size.
func (b *QueryBuilder) Limit(n int) *QueryBuilder {
	b.opts.Limit = n
	return b
}

// Offset skips the first n results.
func (b *QueryBuilder) Offset(n int) *QueryBuilder {
	b.opts.Offset = n
	return b
}

// After moves the builder to the page following p.
func (b *QueryBuilder) After(p Page) *QueryBuilder {
	b.opts.Offset = p.NextOffset
	return b
}

// Do validates and runs the query.
func (b *QueryBuilder) Do(ctx context.Context) (Page, error) {
	q, err := query.New(b.opts)
	if err != nil {
		return Page{}, fmt.Errorf("query: %w", err)
	}
	res, err := b.client.engine.Query(ctx, q)
	if err != nil {
		return Page{}, fmt.Errorf("query: %w", err)
	}

	models := res.Models()
	objects := make([]Object, 0, len(models))
	for _, m := range models {
		objects = append(objects, objectFromModel(m))
	}
	return Page{
		Objects:    objects,
		UpperBound: res.UpperBound(),
		NextOffset: res.Next().Offset(),
		HasMore:    res.HasMore(),
	}, nil
}
