package quarry

import (
	"context"

	"github.com/autom8ter/machine/v4"
	"github.com/autom8ter/quarry/errors"
	"github.com/segmentio/ksuid"
)

// defaultTrialWorks bounds how many times each candidate is advanced while
// auditioning plans
const defaultTrialWorks = 1000

type trialResult struct {
	doc *Document
	rid RecordID
}

type candidatePlan struct {
	solution *QuerySolution
	stage    PlanStage
	ws       *WorkingSet
	// results buffers documents produced during the trial so the winner
	// replays them before resuming its stage
	results  []trialResult
	advanced int
	eof      bool
	dead     bool
}

// multiPlanRunner auditions every candidate solution for a bounded trial
// period, picks the most productive one, feeds the winner back to the plan
// cache, and then executes the winner. Candidates advance concurrently during
// the trial; each candidate's stage tree is only ever touched by one
// goroutine.
type multiPlanRunner struct {
	id         string
	col        Collection
	cq         *CanonicalQuery
	logger     Logger
	candidates []*candidatePlan
	winner     *candidatePlan
	backup     *candidatePlan
	trialWorks int
	killed     bool
	err        error
}

func newMultiPlanRunner(col Collection, cq *CanonicalQuery, logger Logger) *multiPlanRunner {
	return &multiPlanRunner{
		id:         ksuid.New().String(),
		col:        col,
		cq:         cq,
		logger:     logger,
		trialWorks: defaultTrialWorks,
	}
}

// addPlan hands the runner a candidate solution with its stage tree and
// working set. Ownership of all three transfers to the runner.
func (r *multiPlanRunner) addPlan(sol *QuerySolution, stage PlanStage, ws *WorkingSet) {
	r.candidates = append(r.candidates, &candidatePlan{
		solution: sol,
		stage:    stage,
		ws:       ws,
	})
}

func (r *multiPlanRunner) pickBestPlan(ctx context.Context) error {
	m := machine.New()
	for _, cand := range r.candidates {
		cand := cand
		m.Go(ctx, func(ctx context.Context) error {
			for i := 0; i < r.trialWorks; i++ {
				doc, rid, state := cand.stage.Next(ctx)
				switch state {
				case StageAdvanced:
					cand.results = append(cand.results, trialResult{doc: doc, rid: rid})
					cand.advanced++
				case StageNeedTime:
				case StageEOF:
					cand.eof = true
					return nil
				default:
					cand.dead = true
					return nil
				}
			}
			return nil
		})
	}
	if err := m.Wait(); err != nil {
		return err
	}

	var best *candidatePlan
	for _, cand := range r.candidates {
		if cand.dead {
			continue
		}
		if best == nil || cand.advanced > best.advanced {
			best = cand
		}
	}
	if best == nil {
		return errors.New(errors.Internal, "all candidate plans died during trial")
	}
	r.winner = best

	// a blocking-sort winner keeps a non-blocking understudy around
	if best.solution.HasSortStage {
		for _, cand := range r.candidates {
			if cand != best && !cand.dead && !cand.solution.HasSortStage {
				r.backup = cand
				break
			}
		}
	}

	r.logger.Debug(ctx, "multiplan: winner selected", map[string]any{
		"ns":         r.cq.Namespace(),
		"candidates": len(r.candidates),
		"solution":   best.solution.String(),
		"advanced":   best.advanced,
	})
	r.updateCache()
	return nil
}

// updateCache records the winning solution skeleton under the query's shape
func (r *multiPlanRunner) updateCache() {
	cache := r.col.PlanCache()
	if cache == nil || !cache.ShouldCache(r.cq) {
		return
	}
	if r.winner.solution.Cache == nil {
		return
	}
	_ = cache.Put(r.cq, &CachedSolution{
		Shape: r.cq.Shape(),
		Data:  r.winner.solution.Cache,
	})
}

func (r *multiPlanRunner) Next(ctx context.Context) (*Document, RecordID, RunnerState) {
	if r.killed {
		return nil, 0, RunnerDead
	}
	if r.winner == nil {
		if err := r.pickBestPlan(ctx); err != nil {
			r.err = err
			return nil, 0, RunnerDead
		}
	}
	for {
		if r.killed {
			return nil, 0, RunnerDead
		}
		if len(r.winner.results) > 0 {
			next := r.winner.results[0]
			r.winner.results = r.winner.results[1:]
			return next.doc, next.rid, RunnerAdvanced
		}
		if r.winner.eof {
			return nil, 0, RunnerEOF
		}
		doc, rid, state := r.winner.stage.Next(ctx)
		switch state {
		case StageAdvanced:
			return doc, rid, RunnerAdvanced
		case StageNeedTime:
			continue
		case StageEOF:
			r.winner.eof = true
			return nil, 0, RunnerEOF
		default:
			if r.backup != nil {
				r.winner = r.backup
				r.backup = nil
				continue
			}
			r.err = r.winner.stage.Err()
			return nil, 0, RunnerDead
		}
	}
}

func (r *multiPlanRunner) Err() error { return r.err }

func (r *multiPlanRunner) SaveState() error {
	for _, cand := range r.candidates {
		cand.stage.SaveState()
	}
	return nil
}

func (r *multiPlanRunner) RestoreState() error {
	for _, cand := range r.candidates {
		cand.stage.RestoreState()
	}
	return nil
}

// Invalidate forwards the event to every candidate and, for a deletion, flushes
// buffered trial results that reference the record
func (r *multiPlanRunner) Invalidate(rid RecordID, kind InvalidationKind) {
	for _, cand := range r.candidates {
		cand.stage.Invalidate(rid, kind)
		if kind != InvalidationDeletion {
			continue
		}
		kept := cand.results[:0]
		for _, res := range cand.results {
			if res.rid != rid {
				kept = append(kept, res)
			}
		}
		cand.results = kept
	}
}

func (r *multiPlanRunner) Kill() { r.killed = true }

func (r *multiPlanRunner) Collection() Collection { return r.col }

func (r *multiPlanRunner) Namespace() string { return r.cq.Namespace() }

func (r *multiPlanRunner) Explain() (*Document, error) {
	explain := map[string]any{
		"id":         r.id,
		"type":       "multiPlan",
		"ns":         r.cq.Namespace(),
		"candidates": len(r.candidates),
	}
	if r.winner != nil {
		explain["winner"] = r.winner.solution.String()
	}
	return NewDocumentFrom(explain)
}
