package quarry

import (
	"context"

	"github.com/segmentio/ksuid"
)

// singleSolutionRunner drives exactly one chosen solution to completion
type singleSolutionRunner struct {
	id     string
	col    Collection
	cq     *CanonicalQuery
	sol    *QuerySolution
	stage  PlanStage
	ws     *WorkingSet
	killed bool
	err    error
}

func newSingleSolutionRunner(col Collection, cq *CanonicalQuery, sol *QuerySolution, stage PlanStage, ws *WorkingSet) *singleSolutionRunner {
	return &singleSolutionRunner{
		id:    ksuid.New().String(),
		col:   col,
		cq:    cq,
		sol:   sol,
		stage: stage,
		ws:    ws,
	}
}

func (r *singleSolutionRunner) Next(ctx context.Context) (*Document, RecordID, RunnerState) {
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
			r.err = r.stage.Err()
			return nil, 0, RunnerDead
		}
	}
}

func (r *singleSolutionRunner) Err() error { return r.err }

func (r *singleSolutionRunner) SaveState() error {
	r.stage.SaveState()
	return nil
}

func (r *singleSolutionRunner) RestoreState() error {
	r.stage.RestoreState()
	return nil
}

func (r *singleSolutionRunner) Invalidate(rid RecordID, kind InvalidationKind) {
	r.stage.Invalidate(rid, kind)
}

func (r *singleSolutionRunner) Kill() { r.killed = true }

func (r *singleSolutionRunner) Collection() Collection { return r.col }

func (r *singleSolutionRunner) Namespace() string { return r.cq.Namespace() }

func (r *singleSolutionRunner) Explain() (*Document, error) {
	return NewDocumentFrom(map[string]any{
		"id":       r.id,
		"type":     "singleSolution",
		"ns":       r.cq.Namespace(),
		"solution": r.sol.String(),
	})
}
