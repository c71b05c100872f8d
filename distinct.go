package quarry

import (
	"context"
	"strings"

	"github.com/autom8ter/quarry/errors"
	"github.com/samber/lo"
	"github.com/tidwall/sjson"
)

// GetRunnerDistinct dispatches a distinct over the given field. When an index
// prefixed by the field exists the dispatcher steers toward a covered
// distinct-scan plan; otherwise it falls back to the general path.
func (d *Dispatcher) GetRunnerDistinct(ctx context.Context, col Collection, rawQuery []byte, field string) (Runner, error) {
	if col == nil {
		return nil, errors.New(errors.Internal, "getRunnerDistinct requires a collection")
	}
	if field == "" {
		return nil, errors.New(errors.BadValue, "no field name specified for distinct")
	}
	if strings.Contains(field, "$") {
		return nil, errors.New(errors.BadValue, "positional operator not allowed in distinct field: %s", field)
	}

	projection, err := distinctProjection(field)
	if err != nil {
		return nil, err
	}
	cq, err := d.canonicalize(col.Namespace(), rawQuery, ParsedOptions{Projection: projection})
	if err != nil {
		return nil, err
	}

	// only indexes prefixed by the distinct field can skip between distinct keys
	indexes := lo.Filter(col.Indexes(), func(entry IndexEntry, _ int) bool {
		return len(entry.KeyPattern) > 0 && entry.KeyPattern[0].Field == field
	})
	if len(indexes) == 0 {
		return d.GetRunner(ctx, col, cq, OptionDefault)
	}
	params := PlannerParams{Options: NoTableScan, Indexes: indexes}

	// with no predicate a bare distinct scan over the whole index answers the
	// query, bypassing the planner entirely
	if cq.Filter().IsEmpty() {
		if entry, found := pickDistinctIndex(indexes); found {
			node := &SolutionNode{
				Kind:       KindDistinct,
				KeyPattern: entry.KeyPattern,
				Direction:  1,
				Bounds:     AllValuesBounds(entry.KeyPattern),
				FieldNo:    0,
			}
			sol, err := d.planner.Analyze(cq, params, node)
			if err == nil && sol != nil {
				d.logger.Debug(ctx, "dispatch: fast distinct", map[string]any{"index": entry.Name})
				return d.singleSolution(col, cq, sol)
			}
			d.logger.Debug(ctx, "dispatch: fast distinct analysis failed", map[string]any{
				"index": entry.Name,
				"error": err,
			})
		}
	}

	solutions, err := d.planner.Plan(cq, params)
	if err != nil || len(solutions) == 0 {
		return d.GetRunner(ctx, col, cq, OptionDefault)
	}
	for i, sol := range solutions {
		if !turnIxscanIntoDistinct(sol, field) {
			continue
		}
		disposeAllExcept(solutions, i)
		d.logger.Debug(ctx, "dispatch: distinct rewrite", map[string]any{"solution": sol.String()})
		return d.singleSolution(col, cq, sol)
	}
	for _, sol := range solutions {
		sol.Dispose()
	}
	return d.GetRunner(ctx, col, cq, OptionDefault)
}

// turnIxscanIntoDistinct rewrites a projection(ixscan) solution so the scan
// skips directly between distinct values of the field instead of visiting
// every key. Returns false and leaves the solution intact when the shape does
// not qualify.
func turnIxscanIntoDistinct(sol *QuerySolution, field string) bool {
	if sol == nil || sol.Root == nil {
		return false
	}
	root := sol.Root
	if root.Kind != KindProjection {
		return false
	}
	ix := root.child()
	if ix == nil || ix.Kind != KindIxScan || ix.Filter != nil || ix.Bounds.SimpleRange {
		return false
	}
	fieldNo := ix.KeyPattern.PositionOf(field)
	if fieldNo < 0 {
		return false
	}
	distinct := &SolutionNode{
		Kind:       KindDistinct,
		KeyPattern: ix.KeyPattern,
		Direction:  ix.Direction,
		Bounds:     ix.Bounds,
		FieldNo:    fieldNo,
	}
	root.Children[0] = distinct
	return true
}

// pickDistinctIndex selects the cheapest usable index from the restricted
// list: the plain b-tree index with the fewest key fields. Special indexes
// (text, geo, hashed) cannot serve a distinct scan.
func pickDistinctIndex(indexes []IndexEntry) (IndexEntry, bool) {
	var (
		best  IndexEntry
		found bool
	)
	for _, entry := range indexes {
		if entry.Plugin != IndexPluginBTree {
			continue
		}
		if !found || len(entry.KeyPattern) < len(best.KeyPattern) {
			best = entry
			found = true
		}
	}
	return best, found
}

// distinctProjection synthesizes the implicit projection that steers the
// planner toward covered plans: {_id: 0, <field>: 1}, or {_id: 1} when the
// distinct field is _id itself
func distinctProjection(field string) ([]byte, error) {
	if field == "_id" {
		return []byte(`{"_id":1}`), nil
	}
	projection, err := sjson.SetBytes([]byte(`{"_id":0}`), escapePath(field), 1)
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "failed to build distinct projection for field: %s", field)
	}
	return projection, nil
}

// escapePath escapes dots so sjson treats the field as a literal key
func escapePath(field string) string {
	return strings.ReplaceAll(field, ".", `\.`)
}
