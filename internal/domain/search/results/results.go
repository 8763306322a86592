package results

import (
	"slices"

	"github.com/kailas-cloud/dmodel/internal/domain/model"
	"github.com/kailas-cloud/dmodel/internal/domain/search/query"
)

// testingUpperBound is the fixed upper bound reported by NewForTesting.
const testingUpperBound = 42

// Results is one page of ranked query results.
type Results struct {
	models     []model.Model
	upperBound int
	next       query.Query
}

// New creates a results page. Models are kept in rank order.
func New(models []model.Model, upperBound int, next query.Query) Results {
	if upperBound < 0 {
		upperBound = 0
	}
	return Results{models: slices.Clone(models), upperBound: upperBound, next: next}
}

// NewForTesting wraps models with a fixed upper bound of 42 and an empty next query.
func NewForTesting(models []model.Model) Results {
	return Results{models: slices.Clone(models), upperBound: testingUpperBound}
}

// Models returns the page in rank order.
func (r Results) Models() []model.Model { return slices.Clone(r.models) }

// Len returns the number of models on this page.
func (r Results) Len() int { return len(r.models) }

// UpperBound returns the total number of matching records, independent of page size.
func (r Results) UpperBound() int { return r.upperBound }

// Next returns the query that fetches the following page.
func (r Results) Next() query.Query { return r.next }

// HasMore reports whether records remain past this page.
func (r Results) HasMore() bool {
	return r.next.Offset() < r.upperBound
}

// Page is the storable form of a results page: model ids in rank order plus
// the upper bound.
type Page struct {
	IDs        []string
	UpperBound int
}

// IDs returns the ids of the page models in rank order.
func (r Results) IDs() []string {
	ids := make([]string, len(r.models))
	for i, m := range r.models {
		ids[i] = m.Base().ID()
	}
	return ids
}
