package quarry

import (
	"context"
	"encoding/json"

	"github.com/autom8ter/quarry/errors"
)

// Dispatcher chooses an execution strategy for canonical queries and
// materializes runners. The planner, stage builder, sharding catalog and
// canonicalizer are injected so tests can substitute deterministic doubles.
type Dispatcher struct {
	planner  QueryPlanner
	stages   StageBuilder
	sharding ShardingCatalog
	canon    Canonicalizer
	logger   Logger
	cfg      Config
}

// canUseIDHack returns true when the query can be answered by a direct _id
// index lookup: a simple id filter and none of explain/showRecordId/tailable
func canUseIDHack(cq *CanonicalQuery) bool {
	parsed := cq.Parsed()
	return parsed.SimpleID &&
		!parsed.Explain &&
		!parsed.ShowRecordID &&
		!parsed.Tailable
}

// GetRunner returns a runner for the canonical query. On success the query's
// ownership transfers into the runner. The runner is not registered with the
// cursor registry - that is the caller's scoped concern (RegistrationGuard).
func (d *Dispatcher) GetRunner(ctx context.Context, col Collection, cq *CanonicalQuery, opts PlannerOption) (Runner, error) {
	if cq == nil {
		return nil, errors.New(errors.Internal, "nil canonical query")
	}

	// Callers include internal clients, so the collection may be gone.
	if col == nil {
		return newEOFRunner(cq, cq.Namespace()), nil
	}

	if canUseIDHack(cq) {
		if _, ok := col.IDIndex(); ok {
			d.logger.Debug(ctx, "dispatch: idhack", map[string]any{"query": cq.String()})
			return newIDHackRunner(col, cq), nil
		}
	}

	params := d.plannerParams(cq, col, opts)

	if cq.Parsed().Tailable {
		if !col.Capped() {
			return nil, errors.New(errors.BadValue, "tailable cursor requested on non capped collection")
		}
		if cq.Parsed().HasSort() && !cq.Parsed().IsNaturalSort() {
			return nil, errors.New(errors.BadValue,
				"invalid sort specified for tailable cursor: %s", string(cq.Parsed().Sort))
		}
	}

	if runner, ok, err := d.runnerFromCache(ctx, col, cq, params); err != nil {
		return nil, err
	} else if ok {
		return runner, nil
	}

	if d.cfg.EnableIndexIntersection {
		params.Options |= IndexIntersection
	}
	params.Options |= KeepMutations

	solutions, err := d.planner.Plan(cq, params)
	if err != nil {
		return nil, errors.Wrap(err, errors.BadValue, "planner returned error: %s", cq.String())
	}
	if len(solutions) == 0 {
		return nil, errors.New(errors.BadValue, "No query solutions")
	}

	if params.Options&PrivateIsCount != 0 {
		for i, sol := range solutions {
			if !turnIxscanIntoCount(sol) {
				continue
			}
			disposeAllExcept(solutions, i)
			d.logger.Debug(ctx, "dispatch: count rewrite", map[string]any{"solution": sol.String()})
			// count rewrites are never fed back to the plan cache
			sol.Cache = nil
			return d.singleSolution(col, cq, sol)
		}
	}

	if len(solutions) == 1 {
		return d.singleSolution(col, cq, solutions[0])
	}

	// Workaround: multi-plan selection can pick a blocking-sort plan that
	// never fills the requested batch. When a batch size and a sort are both
	// present, run the first non-blocking candidate outright instead of
	// trialing. Do not remove without a selection fix that picks the
	// non-blocking plan in the same cases.
	if cq.Parsed().NToReturn > 0 && cq.Parsed().HasSort() {
		for i, sol := range solutions {
			if sol.HasSortStage {
				continue
			}
			disposeAllExcept(solutions, i)
			d.logger.Debug(ctx, "dispatch: non-blocking sort preferred", map[string]any{"solution": sol.String()})
			return d.singleSolution(col, cq, sol)
		}
	}

	mpr := newMultiPlanRunner(col, cq, d.logger)
	for _, sol := range solutions {
		if sol.Cache != nil {
			sol.Cache.IndexFilterApplied = params.IndexFiltersApplied
		}
		stage, ws, err := d.stages.Build(col, cq, sol)
		if err != nil {
			desc := sol.String()
			for _, other := range solutions {
				other.Dispose()
			}
			return nil, errors.Wrap(err, errors.Internal, "stage builder failed: %s", desc)
		}
		mpr.addPlan(sol, stage, ws)
	}
	return mpr, nil
}

// runnerFromCache consults the collection's plan cache. Cache and rebuild
// failures are swallowed (cache-miss semantics); only stage-builder failures
// surface.
func (d *Dispatcher) runnerFromCache(ctx context.Context, col Collection, cq *CanonicalQuery, params PlannerParams) (Runner, bool, error) {
	cache := col.PlanCache()
	if cache == nil || !cache.ShouldCache(cq) {
		return nil, false, nil
	}
	cached := cache.Get(cq)
	if cached == nil {
		return nil, false, nil
	}
	planned, err := d.planner.PlanFromCache(cq, params, cached)
	if err != nil || planned == nil || planned.Solution == nil {
		d.logger.Debug(ctx, "dispatch: cached plan rebuild failed", map[string]any{
			"query": cq.String(),
			"error": err,
		})
		return nil, false, nil
	}
	primary, backup := planned.Solution, planned.Backup

	if cq.Parsed().NToReturn > 0 && cq.Parsed().HasSort() && backup != nil {
		// Same blocking-sort workaround as the planning path: run the
		// non-blocking backup instead of the cached winner.
		primary.Dispose()
		runner, err := d.singleSolution(col, cq, backup)
		if err != nil {
			return nil, false, err
		}
		return runner, true, nil
	}

	if params.Options&PrivateIsCount != 0 && turnIxscanIntoCount(primary) {
		backup.Dispose()
		primary.Cache = nil
		runner, err := d.singleSolution(col, cq, primary)
		if err != nil {
			return nil, false, err
		}
		return runner, true, nil
	}

	stage, ws, err := d.stages.Build(col, cq, primary)
	if err != nil {
		desc := primary.String()
		primary.Dispose()
		backup.Dispose()
		return nil, false, errors.Wrap(err, errors.Internal, "stage builder failed: %s", desc)
	}
	return newCachedPlanRunner(col, cq, cached, primary, backup, stage, ws, d.stages), true, nil
}

func (d *Dispatcher) singleSolution(col Collection, cq *CanonicalQuery, sol *QuerySolution) (Runner, error) {
	stage, ws, err := d.stages.Build(col, cq, sol)
	if err != nil {
		desc := sol.String()
		sol.Dispose()
		return nil, errors.Wrap(err, errors.Internal, "stage builder failed: %s", desc)
	}
	return newSingleSolutionRunner(col, cq, sol, stage, ws), nil
}

// GetRunnerRaw dispatches a raw document query. Simple id queries against a
// collection with an _id index short-circuit to the idhack runner without
// producing a canonical query at all; everything else canonicalizes first.
func (d *Dispatcher) GetRunnerRaw(ctx context.Context, col Collection, ns string, rawQuery []byte, opts PlannerOption) (Runner, error) {
	if col != nil && IsSimpleIDQuery(rawQuery) {
		if _, ok := col.IDIndex(); ok {
			d.logger.Debug(ctx, "dispatch: raw idhack", map[string]any{"ns": ns})
			return newIDHackRunnerRaw(col, ns, rawQuery), nil
		}
	}
	cq, err := d.canonicalize(ns, rawQuery, ParsedOptions{})
	if err != nil {
		return nil, err
	}
	return d.GetRunner(ctx, col, cq, opts)
}

// GetRunnerCount dispatches a count. The rewritten solution counts keys inside
// the index rather than fetching documents when the bounds allow it.
func (d *Dispatcher) GetRunnerCount(ctx context.Context, col Collection, rawQuery []byte, hint json.RawMessage) (Runner, error) {
	if col == nil {
		return nil, errors.New(errors.Internal, "getRunnerCount requires a collection")
	}
	cq, err := d.canonicalize(col.Namespace(), rawQuery, ParsedOptions{Hint: hint})
	if err != nil {
		return nil, err
	}
	return d.GetRunner(ctx, col, cq, PrivateIsCount)
}

func (d *Dispatcher) canonicalize(ns string, rawQuery []byte, opts ParsedOptions) (*CanonicalQuery, error) {
	if d.canon == nil {
		return nil, errors.New(errors.Internal, "no canonicalizer configured")
	}
	return d.canon.Canonicalize(ns, rawQuery, opts)
}

func disposeAllExcept(solutions []*QuerySolution, keep int) {
	for i, sol := range solutions {
		if i != keep {
			sol.Dispose()
		}
	}
}
