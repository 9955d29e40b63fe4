package pipeline

import (
	"context"
	"fmt"

	"github.com/vidpulse/vidpulse/pkg/model"
)

// Materials runs a free-text search for source material, ranked by viral
// score. It is the search-strategy variant of the trending flow with its
// own fingerprint, so repeated research queries inside the TTL are free.
func (e *Engine) Materials(ctx context.Context, params model.SearchParams, saved []model.SavedChannel) ([]model.ScoredVideo, error) {
	if params.Query == "" {
		return nil, fmt.Errorf("materials search requires a query")
	}
	params.Strategy = model.StrategySearch
	return e.Trending(ctx, params, saved)
}
