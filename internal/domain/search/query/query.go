package query

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/kailas-cloud/dmodel/internal/domain"
	"github.com/kailas-cloud/dmodel/internal/domain/ekn"
	"github.com/kailas-cloud/dmodel/internal/domain/model"
	"github.com/kailas-cloud/dmodel/internal/domain/search/filter"
	"github.com/kailas-cloud/dmodel/internal/domain/search/match"
	"github.com/kailas-cloud/dmodel/internal/domain/search/ordering"
)

// Query parameter limits.
const (
	// MaxTermsLength is the maximum allowed search terms length.
	MaxTermsLength = 4096
	DefaultLimit   = 20
	MaxLimit       = 1000
)

// Options are the raw query parameters. Zero values select defaults.
type Options struct {
	AppID               string
	SearchTerms         string
	Match               match.Match
	Mode                match.Mode
	Sort                ordering.Sort
	Order               ordering.Order
	Kind                model.Kind
	TagsMatchAll        []string
	TagsMatchAny        []string
	ExcludedTags        []string
	IDs                 []string
	ExcludedIDs         []string
	ContentType         string
	ExcludedContentType string
	Limit               int
	Offset              int
}

// Query is a validated, immutable search request.
type Query struct {
	opts              Options
	stopwordFreeTerms string
	filters           filter.Expression
}

// New validates and normalizes query parameters. Every failure wraps domain.ErrQuery.
// Defaults: mode=incremental, sort=relevance, order=asc, limit=20.
func New(o Options) (Query, error) {
	o.SearchTerms = strings.TrimSpace(o.SearchTerms)
	if len(o.SearchTerms) > MaxTermsLength {
		return Query{}, fmt.Errorf("%w: search terms too long (max %d chars)", domain.ErrQuery, MaxTermsLength)
	}
	if o.SearchTerms != "" && o.Match == "" {
		return Query{}, fmt.Errorf("%w: match is required when search terms are set", domain.ErrQuery)
	}
	if o.Match != "" && !o.Match.IsValid() {
		return Query{}, fmt.Errorf("%w: invalid match: %q", domain.ErrQuery, o.Match)
	}
	if o.Mode == "" {
		o.Mode = match.Incremental
	}
	if !o.Mode.IsValid() {
		return Query{}, fmt.Errorf("%w: invalid mode: %q", domain.ErrQuery, o.Mode)
	}
	if o.Sort == "" {
		o.Sort = ordering.Relevance
	}
	if !o.Sort.IsValid() {
		return Query{}, fmt.Errorf("%w: invalid sort: %q", domain.ErrQuery, o.Sort)
	}
	if o.Order == "" {
		o.Order = ordering.Ascending
	}
	if !o.Order.IsValid() {
		return Query{}, fmt.Errorf("%w: invalid order: %q", domain.ErrQuery, o.Order)
	}
	if o.Kind != "" && !o.Kind.IsValid() {
		return Query{}, fmt.Errorf("%w: invalid type filter: %q", domain.ErrQuery, o.Kind)
	}
	if o.Offset < 0 {
		return Query{}, fmt.Errorf("%w: offset must not be negative", domain.ErrQuery)
	}
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Limit > MaxLimit {
		o.Limit = MaxLimit
	}
	var err error
	if o.IDs, err = canonicalIDs(o.IDs); err != nil {
		return Query{}, fmt.Errorf("%w: %w", domain.ErrQuery, err)
	}
	if o.ExcludedIDs, err = canonicalIDs(o.ExcludedIDs); err != nil {
		return Query{}, fmt.Errorf("%w: %w", domain.ErrQuery, err)
	}

	o.TagsMatchAll = slices.Clone(o.TagsMatchAll)
	o.TagsMatchAny = slices.Clone(o.TagsMatchAny)
	o.ExcludedTags = slices.Clone(o.ExcludedTags)

	filters, err := buildFilters(o)
	if err != nil {
		return Query{}, fmt.Errorf("%w: %w", domain.ErrQuery, err)
	}
	return Query{opts: o, filters: filters}, nil
}

// canonicalIDs validates ids and rewrites them to their record form.
func canonicalIDs(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out := make([]string, len(ids))
	for i, raw := range ids {
		id, err := ekn.Parse(raw)
		if err != nil {
			return nil, err
		}
		out[i] = id.Record().String()
	}
	return out, nil
}

func buildFilters(o Options) (filter.Expression, error) {
	must, err := filter.Matches(filter.Tag, o.TagsMatchAll...)
	if err != nil {
		return filter.Expression{}, err
	}
	ct, err := filter.Matches(filter.ContentType, o.ContentType)
	if err != nil {
		return filter.Expression{}, err
	}
	must = append(must, ct...)

	should, err := filter.Matches(filter.Tag, o.TagsMatchAny...)
	if err != nil {
		return filter.Expression{}, err
	}

	var mustNot []filter.Condition
	for _, group := range []struct {
		field  filter.Field
		values []string
	}{
		{filter.Tag, o.ExcludedTags},
		{filter.ID, o.ExcludedIDs},
		{filter.ContentType, []string{o.ExcludedContentType}},
	} {
		conds, err := filter.Matches(group.field, group.values...)
		if err != nil {
			return filter.Expression{}, err
		}
		mustNot = append(mustNot, conds...)
	}
	return filter.NewExpression(must, should, mustNot)
}

// Normalized re-validates q and fills defaults. A zero Query becomes the first
// page of a match-everything query.
func (q Query) Normalized() (Query, error) {
	n, err := New(q.opts)
	if err != nil {
		return Query{}, err
	}
	n.stopwordFreeTerms = q.stopwordFreeTerms
	return n, nil
}

// Options returns a copy of the normalized parameters.
func (q Query) Options() Options {
	o := q.opts
	o.TagsMatchAll = slices.Clone(o.TagsMatchAll)
	o.TagsMatchAny = slices.Clone(o.TagsMatchAny)
	o.ExcludedTags = slices.Clone(o.ExcludedTags)
	o.IDs = slices.Clone(o.IDs)
	o.ExcludedIDs = slices.Clone(o.ExcludedIDs)
	return o
}

// AppID returns the application the query targets; empty means the engine default.
func (q Query) AppID() string { return q.opts.AppID }

// SearchTerms returns the terms as given.
func (q Query) SearchTerms() string { return q.opts.SearchTerms }

// StopwordFreeTerms returns the terms with stopwords removed, if the query was fixed.
func (q Query) StopwordFreeTerms() string { return q.stopwordFreeTerms }

// Terms returns the terms the engine matches: stopword-free when available.
func (q Query) Terms() string {
	if q.stopwordFreeTerms != "" {
		return q.stopwordFreeTerms
	}
	return q.opts.SearchTerms
}

// Match returns the match mode.
func (q Query) Match() match.Match { return q.opts.Match }

// Mode returns the term mode.
func (q Query) Mode() match.Mode { return q.opts.Mode }

// Sort returns the sort key.
func (q Query) Sort() ordering.Sort { return q.opts.Sort }

// Order returns the sort direction.
func (q Query) Order() ordering.Order { return q.opts.Order }

// Kind returns the type filter; empty means any variant.
func (q Query) Kind() model.Kind { return q.opts.Kind }

// IDs returns the id allow-list; empty means any id.
func (q Query) IDs() []string { return slices.Clone(q.opts.IDs) }

// Filters returns the tag, id and content type filter expression.
func (q Query) Filters() filter.Expression { return q.filters }

// Limit returns the page size.
func (q Query) Limit() int { return q.opts.Limit }

// Offset returns the index of the first result.
func (q Query) Offset() int { return q.opts.Offset }

// WithStopwordFreeTerms returns a copy carrying the fixed terms.
func (q Query) WithStopwordFreeTerms(terms string) Query {
	q.stopwordFreeTerms = strings.TrimSpace(terms)
	return q
}

// WithAppID returns a copy targeting appID.
func (q Query) WithAppID(appID string) Query {
	q.opts.AppID = appID
	return q
}

// Next returns the query for the page after this one.
func (q Query) Next() Query {
	q.opts.Offset += q.opts.Limit
	return q
}

// Key returns a canonical string identifying the query, independent of list order.
func (q Query) Key() string {
	var b strings.Builder
	field := func(name, v string) {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strconv.Quote(v))
		b.WriteByte(';')
	}
	list := func(name string, v []string) {
		sorted := slices.Clone(v)
		slices.Sort(sorted)
		field(name, strings.Join(sorted, "\x1f"))
	}
	field("app", q.opts.AppID)
	field("terms", q.Terms())
	field("match", string(q.opts.Match))
	field("mode", string(q.opts.Mode))
	field("sort", string(q.opts.Sort))
	field("order", string(q.opts.Order))
	field("kind", string(q.opts.Kind))
	list("all", q.opts.TagsMatchAll)
	list("any", q.opts.TagsMatchAny)
	list("xtags", q.opts.ExcludedTags)
	list("ids", q.opts.IDs)
	list("xids", q.opts.ExcludedIDs)
	field("ct", q.opts.ContentType)
	field("xct", q.opts.ExcludedContentType)
	field("limit", strconv.Itoa(q.opts.Limit))
	field("offset", strconv.Itoa(q.opts.Offset))
	return b.String()
}
