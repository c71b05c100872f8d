package quarry

import (
	"context"

	"github.com/segmentio/ksuid"
)

// cachedPlanRunner drives a solution rebuilt from the plan cache. When the
// primary plan dies mid-execution and a backup solution is present, the
// runner falls over to the backup and keeps going.
type cachedPlanRunner struct {
	id          string
	col         Collection
	cq          *CanonicalQuery
	cached      *CachedSolution
	sol         *QuerySolution
	backup      *QuerySolution
	stage       PlanStage
	ws          *WorkingSet
	stages      StageBuilder
	usingBackup bool
	killed      bool
	err         error
}

func newCachedPlanRunner(col Collection, cq *CanonicalQuery, cached *CachedSolution, sol, backup *QuerySolution, stage PlanStage, ws *WorkingSet, stages StageBuilder) *cachedPlanRunner {
	return &cachedPlanRunner{
		id:     ksuid.New().String(),
		col:    col,
		cq:     cq,
		cached: cached,
		sol:    sol,
		backup: backup,
		stage:  stage,
		ws:     ws,
		stages: stages,
	}
}

func (r *cachedPlanRunner) Next(ctx context.Context) (*Document, RecordID, RunnerState) {
	for {
		if r.killed {
			return nil, 0, RunnerDead
		}
		doc, rid, state := r.stage.Next(ctx)
		switch state {
		case StageAdvanced:
			return doc, rid, RunnerAdvanced
		case StageNeedTime:
			continue
		case StageEOF:
			return nil, 0, RunnerEOF
		default:
			if r.backup != nil && !r.usingBackup {
				if r.fallOverToBackup(ctx) {
					continue
				}
			}
			r.err = r.stage.Err()
			return nil, 0, RunnerDead
		}
	}
}

func (r *cachedPlanRunner) fallOverToBackup(ctx context.Context) bool {
	stage, ws, err := r.stages.Build(r.col, r.cq, r.backup)
	if err != nil {
		return false
	}
	r.usingBackup = true
	r.stage = stage
	r.ws = ws
	return true
}

func (r *cachedPlanRunner) Err() error { return r.err }

func (r *cachedPlanRunner) SaveState() error {
	r.stage.SaveState()
	return nil
}

func (r *cachedPlanRunner) RestoreState() error {
	r.stage.RestoreState()
	return nil
}

func (r *cachedPlanRunner) Invalidate(rid RecordID, kind InvalidationKind) {
	r.stage.Invalidate(rid, kind)
}

func (r *cachedPlanRunner) Kill() { r.killed = true }

func (r *cachedPlanRunner) Collection() Collection { return r.col }

func (r *cachedPlanRunner) Namespace() string { return r.cq.Namespace() }

func (r *cachedPlanRunner) Explain() (*Document, error) {
	return NewDocumentFrom(map[string]any{
		"id":          r.id,
		"type":        "cachedPlan",
		"ns":          r.cq.Namespace(),
		"solution":    r.sol.String(),
		"usingBackup": r.usingBackup,
		"hasBackup":   r.backup != nil,
	})
}
