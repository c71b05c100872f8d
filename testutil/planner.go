package testutil

import (
	"github.com/autom8ter/quarry"
	"github.com/autom8ter/quarry/errors"
	"github.com/samber/lo"
)

// NaivePlanner is a deterministic quarry.QueryPlanner double. It enumerates
// one fetch(ixscan) candidate per index whose first key field appears in the
// filter, plus a collection scan when the options allow one. It performs no
// cost analysis - candidate order follows catalog order.
type NaivePlanner struct{}

func (NaivePlanner) Plan(cq *quarry.CanonicalQuery, params quarry.PlannerParams) ([]*quarry.QuerySolution, error) {
	var solutions []*quarry.QuerySolution
	fields := cq.Filter().Fields()
	for _, entry := range params.Indexes {
		if entry.Plugin != quarry.IndexPluginBTree {
			continue
		}
		if len(entry.KeyPattern) == 0 || !lo.Contains(fields, entry.KeyPattern[0].Field) {
			continue
		}
		sol := &quarry.QuerySolution{
			Root:  quarry.Fetch(quarry.IxScan(entry.KeyPattern, 1, quarry.AllValuesBounds(entry.KeyPattern))),
			Cache: &quarry.SolutionCacheData{Payload: entry.Name},
		}
		solutions = append(solutions, sol)
	}
	if params.Options&quarry.IncludeCollScan != 0 {
		solutions = append(solutions, &quarry.QuerySolution{
			Root: &quarry.SolutionNode{Kind: quarry.KindCollScan, Filter: cq.Filter()},
		})
	}
	if len(solutions) == 0 {
		return nil, nil
	}
	return solutions, nil
}

func (p NaivePlanner) PlanFromCache(cq *quarry.CanonicalQuery, params quarry.PlannerParams, cached *quarry.CachedSolution) (*quarry.CachedPlan, error) {
	if cached == nil || cached.Data == nil {
		return nil, errors.New(errors.Internal, "empty cached solution")
	}
	name, ok := cached.Data.Payload.(string)
	if !ok {
		return nil, errors.New(errors.Internal, "unrecognized cache payload: %#v", cached.Data.Payload)
	}
	for _, entry := range params.Indexes {
		if entry.Name != name {
			continue
		}
		return &quarry.CachedPlan{
			Solution: &quarry.QuerySolution{
				Root:  quarry.Fetch(quarry.IxScan(entry.KeyPattern, 1, quarry.AllValuesBounds(entry.KeyPattern))),
				Cache: &quarry.SolutionCacheData{Payload: entry.Name},
			},
		}, nil
	}
	return nil, errors.New(errors.NotFound, "cached index no longer exists: %s", name)
}

func (NaivePlanner) Analyze(cq *quarry.CanonicalQuery, params quarry.PlannerParams, root *quarry.SolutionNode) (*quarry.QuerySolution, error) {
	if root == nil {
		return nil, errors.New(errors.Internal, "nil data access root")
	}
	projection := cq.Parsed().Projection
	if len(projection) == 0 {
		return &quarry.QuerySolution{Root: root}, nil
	}
	return &quarry.QuerySolution{Root: quarry.Projection(projection, root)}, nil
}
