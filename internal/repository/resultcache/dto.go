package resultcache

import "github.com/kailas-cloud/dmodel/internal/domain/search/results"

type pageDTO struct {
	IDs        []string `json:"ids"`
	UpperBound int      `json:"upper_bound"`
}

func toDTO(p results.Page) pageDTO {
	return pageDTO{IDs: p.IDs, UpperBound: p.UpperBound}
}

func (d pageDTO) toDomain() results.Page {
	return results.Page{IDs: d.IDs, UpperBound: d.UpperBound}
}
