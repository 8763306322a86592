// Package search executes structured queries over the shards of a domain.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/dmodel/internal/domain"
	"github.com/kailas-cloud/dmodel/internal/domain/model"
	"github.com/kailas-cloud/dmodel/internal/domain/search/match"
	"github.com/kailas-cloud/dmodel/internal/domain/search/query"
	"github.com/kailas-cloud/dmodel/internal/domain/search/results"
	"github.com/kailas-cloud/dmodel/internal/metrics"
	"github.com/kailas-cloud/dmodel/internal/shard"
	"github.com/kailas-cloud/dmodel/internal/textindex"
)

// Service runs queries. It is safe for concurrent use.
type Service struct {
	cache   Cache
	logger  *zap.Logger
	indexes indexes
}

// New creates a query service. cache can be nil.
func New(cache Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cache: cache, logger: logger}
}

// Query executes q against dom and returns one ranked page. A shard failure
// fails the whole query with domain.ErrQuery; no partial page is returned.
func (s *Service) Query(ctx context.Context, dom Domain, q query.Query) (results.Results, error) {
	start := time.Now()
	res, err := s.query(ctx, dom, q)
	metrics.QueryDuration.Observe(time.Since(start).Seconds())
	metrics.QueriesTotal.WithLabelValues(metrics.Status(err, nil)).Inc()
	return res, err
}

// FixQuery returns q with the stopwords of dom's shards removed from its
// terms. Terms made only of stopwords are kept as they are.
func (s *Service) FixQuery(dom Domain, q query.Query) query.Query {
	if q.SearchTerms() == "" {
		return q
	}
	var stopwords []string
	for _, sh := range dom.Shards() {
		stopwords = append(stopwords, sh.Stopwords()...)
	}
	fixed := textindex.RemoveStopwords(q.SearchTerms(), stopwords)
	if fixed == q.SearchTerms() {
		return q
	}
	return q.WithStopwordFreeTerms(fixed)
}

// Evict drops the indexes of closed shards.
func (s *Service) Evict(shards []shard.Shard) {
	s.indexes.evict(shards)
}

func (s *Service) query(ctx context.Context, dom Domain, q query.Query) (results.Results, error) {
	q, err := q.Normalized()
	if err != nil {
		return results.Results{}, err
	}
	if err := ctx.Err(); err != nil {
		return results.Results{}, domain.Cancelled(err)
	}

	shards := dom.Shards()
	if len(shards) == 0 {
		return results.New(nil, 0, q.Next()), nil
	}
	q = s.FixQuery(dom, q)

	key := q.Key()
	if s.cache != nil {
		if page, ok := s.cache.Get(ctx, dom.AppID(), key); ok {
			models, err := resolve(ctx, dom, page.IDs)
			if err == nil {
				return results.New(models, page.UpperBound, q.Next()), nil
			}
			if errors.Is(err, domain.ErrCancelled) {
				return results.Results{}, err
			}
			s.logger.Debug("cached page is stale", zap.String("app_id", dom.AppID()), zap.Error(err))
		}
	}

	cands, err := s.collect(ctx, shards, q)
	if err != nil {
		return results.Results{}, err
	}
	rank(cands, q.Sort(), q.Order())

	upperBound := len(cands)
	from := min(q.Offset(), upperBound)
	to := min(from+q.Limit(), upperBound)
	ids := make([]string, 0, to-from)
	for _, c := range cands[from:to] {
		ids = append(ids, c.doc.ID)
	}

	models, err := resolve(ctx, dom, ids)
	if err != nil {
		return results.Results{}, err
	}
	if s.cache != nil {
		s.cache.Put(ctx, dom.AppID(), key, results.Page{IDs: ids, UpperBound: upperBound})
	}

	s.logger.Debug("query executed",
		zap.String("app_id", dom.AppID()),
		zap.String("terms", q.Terms()),
		zap.Int("shards", len(shards)),
		zap.Int("upper_bound", upperBound),
		zap.Int("returned", len(models)),
	)
	return results.New(models, upperBound, q.Next()), nil
}

// collect evaluates q over every shard in order. Only the first occurrence
// of an id is evaluated, matching how the domain resolves it.
func (s *Service) collect(ctx context.Context, shards []shard.Shard, q query.Query) ([]candidate, error) {
	var ids map[string]struct{}
	if allow := q.IDs(); len(allow) > 0 {
		ids = make(map[string]struct{}, len(allow))
		for _, id := range allow {
			ids[id] = struct{}{}
		}
	}
	fields := textindex.Title
	if q.Match() == match.TitleSynopsis {
		fields |= textindex.Body
	}
	terms := q.Terms()
	filters := q.Filters()

	seen := make(map[string]struct{})
	var cands []candidate
	for _, sh := range shards {
		if err := ctx.Err(); err != nil {
			return nil, domain.Cancelled(err)
		}
		docs, text, err := s.indexes.get(sh).load(ctx, sh)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrQuery, &domain.ShardError{Path: sh.Path(), Err: err})
		}

		var scores map[int]float64
		if terms != "" {
			scores = text.Search(terms, fields, q.Mode() == match.Incremental)
		}
		for i := range docs {
			d := &docs[i]
			if d.ID == "" {
				continue
			}
			// A copy shadowed by an earlier shard never matches, even when
			// the earlier copy does not.
			if _, dup := seen[d.ID]; dup {
				continue
			}
			seen[d.ID] = struct{}{}

			score := 0.0
			if terms != "" {
				var ok bool
				if score, ok = scores[i]; !ok {
					continue
				}
			}
			if !accept(d, q, ids) || !filters.Matches(d) {
				continue
			}
			cands = append(cands, candidate{doc: d, score: score})
		}
	}
	return cands, nil
}

func accept(d *shard.Document, q query.Query, ids map[string]struct{}) bool {
	if k := q.Kind(); k != "" && !d.Kind.Is(k) {
		return false
	}
	if ids != nil {
		if _, ok := ids[d.ID]; !ok {
			return false
		}
	}
	return true
}

// resolve loads the models of a page in order. Any failure fails the page.
func resolve(ctx context.Context, dom Domain, ids []string) ([]model.Model, error) {
	models := make([]model.Model, 0, len(ids))
	for _, id := range ids {
		m, err := dom.GetObject(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrCancelled) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: resolve %s: %w", domain.ErrQuery, id, err)
		}
		models = append(models, m)
	}
	return models, nil
}
