package chi

import (
	"fmt"
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/kailas-cloud/dmodel/internal/domain/model"
	"github.com/kailas-cloud/dmodel/internal/domain/search/match"
	"github.com/kailas-cloud/dmodel/internal/domain/search/ordering"
	"github.com/kailas-cloud/dmodel/internal/domain/search/query"
)

// bindParam binds one form-style query parameter into dest. Absent optional
// parameters leave dest untouched.
func bindParam(r *http.Request, name string, required bool, dest any) error {
	if err := runtime.BindQueryParameter("form", true, required, name, r.URL.Query(), dest); err != nil {
		return fmt.Errorf("parameter %s: %w", name, err)
	}
	return nil
}

// queryOptionsFromRequest reads the query parameters of GET /v1/query.
// Value validation is left to query.New.
func queryOptionsFromRequest(r *http.Request) (query.Options, error) {
	var o query.Options
	var matchParam, modeParam, sortParam, orderParam, kindParam string
	params := []struct {
		name string
		dest any
	}{
		{"app_id", &o.AppID},
		{"terms", &o.SearchTerms},
		{"match", &matchParam},
		{"mode", &modeParam},
		{"sort", &sortParam},
		{"order", &orderParam},
		{"type", &kindParam},
		{"tags_all", &o.TagsMatchAll},
		{"tags_any", &o.TagsMatchAny},
		{"tags_excluded", &o.ExcludedTags},
		{"ids", &o.IDs},
		{"excluded_ids", &o.ExcludedIDs},
		{"content_type", &o.ContentType},
		{"excluded_content_type", &o.ExcludedContentType},
		{"limit", &o.Limit},
		{"offset", &o.Offset},
	}
	for _, p := range params {
		if err := bindParam(r, p.name, false, p.dest); err != nil {
			return query.Options{}, err
		}
	}
	o.Match = match.Match(matchParam)
	o.Mode = match.Mode(modeParam)
	o.Sort = ordering.Sort(sortParam)
	o.Order = ordering.Order(orderParam)
	o.Kind = model.Kind(kindParam)
	return o, nil
}
