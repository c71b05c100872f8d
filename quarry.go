// Package quarry is the query execution dispatcher of a document-oriented
// database: given a canonicalized query against a collection, it chooses an
// execution strategy and returns a runner that produces matching documents.
package quarry

import (
	"context"
	"sync"
)

// RecordID locates a document in collection storage. Zero means "no record".
type RecordID uint64

// InvalidationKind describes why a record is being invalidated
type InvalidationKind int

const (
	// InvalidationDeletion - the record is being removed
	InvalidationDeletion InvalidationKind = iota
	// InvalidationMutation - the record is being rewritten in place
	InvalidationMutation
)

// RunnerState is the result of advancing a runner
type RunnerState int

const (
	// RunnerAdvanced - a document was produced
	RunnerAdvanced RunnerState = iota
	// RunnerEOF - the runner is exhausted
	RunnerEOF
	// RunnerDead - the runner failed and will produce nothing further
	RunnerDead
)

// StageState is the result of advancing a plan stage
type StageState int

const (
	// StageAdvanced - a document was produced
	StageAdvanced StageState = iota
	// StageNeedTime - no document yet, call again
	StageNeedTime
	// StageEOF - the stage is exhausted
	StageEOF
	// StageDead - the stage failed and will produce nothing further
	StageDead
)

// Runner is an opaque iterator over the documents matching a query. On success a
// runner owns its canonical query and the solution(s) it was built from.
type Runner interface {
	// Next advances the runner. The record id is only meaningful when the state is RunnerAdvanced.
	Next(ctx context.Context) (*Document, RecordID, RunnerState)
	// Err returns the error that killed the runner, if any
	Err() error
	// SaveState prepares the runner for a yield
	SaveState() error
	// RestoreState resumes the runner after a yield
	RestoreState() error
	// Invalidate tells the runner a record it may reference is going away
	Invalidate(rid RecordID, kind InvalidationKind)
	// Kill transitions the runner to the dead state
	Kill()
	// Collection returns the runner's collection (nil for the EOF case)
	Collection() Collection
	// Namespace returns the namespace the runner was dispatched against
	Namespace() string
	// Explain describes the strategy the dispatcher chose
	Explain() (*Document, error)
}

// PlanStage is one executable node of a stage tree built by a StageBuilder.
// Stage execution itself is external to the dispatcher - runners only drive it.
type PlanStage interface {
	Next(ctx context.Context) (*Document, RecordID, StageState)
	Err() error
	SaveState()
	RestoreState()
	Invalidate(rid RecordID, kind InvalidationKind)
}

// WorkingSet is the per-query scratchpad through which stages exchange
// intermediate rows. The dispatcher builds at most one per solution that
// enters a runner.
type WorkingSet struct {
	mu   sync.Mutex
	next int
	live map[int]struct{}
}

// NewWorkingSet allocates an empty working set
func NewWorkingSet() *WorkingSet {
	return &WorkingSet{live: map[int]struct{}{}}
}

// Allocate reserves a member slot and returns its id
func (w *WorkingSet) Allocate() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.next
	w.next++
	w.live[id] = struct{}{}
	return id
}

// Free releases a member slot
func (w *WorkingSet) Free(id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.live, id)
}

// Live returns the number of reserved member slots
func (w *WorkingSet) Live() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.live)
}

// StageBuilder materializes an executable stage tree and working set from a solution
type StageBuilder interface {
	Build(col Collection, cq *CanonicalQuery, sol *QuerySolution) (PlanStage, *WorkingSet, error)
}

// CachedSolution is the opaque handle a plan cache returns on a hit
type CachedSolution struct {
	Shape string             `json:"shape"`
	Data  *SolutionCacheData `json:"data"`
}

// CachedPlan is the result of rebuilding a cached solution via the planner
type CachedPlan struct {
	// Solution is the primary rebuilt solution
	Solution *QuerySolution
	// Backup routes around the blocking-sort edge case; nil when not applicable
	Backup *QuerySolution
}

// QueryPlanner enumerates candidate solutions for a canonical query. The
// planner itself is external to the dispatcher.
type QueryPlanner interface {
	// Plan returns the candidate solutions for the query
	Plan(cq *CanonicalQuery, params PlannerParams) ([]*QuerySolution, error)
	// PlanFromCache rebuilds a solution from a cached entry
	PlanFromCache(cq *CanonicalQuery, params PlannerParams, cached *CachedSolution) (*CachedPlan, error)
	// Analyze runs the planner's analysis pass over a hand-built data access
	// tree, producing a complete solution
	Analyze(cq *CanonicalQuery, params PlannerParams, root *SolutionNode) (*QuerySolution, error)
}

// PlanCache maps canonical-query shapes to previously chosen solution
// skeletons. The dispatcher only reads; the multi-plan runner writes winners.
type PlanCache interface {
	// Get returns the cached solution for the query, or nil on a miss
	Get(cq *CanonicalQuery) *CachedSolution
	// Put stores the solution for the query's shape
	Put(cq *CanonicalQuery, cs *CachedSolution) error
	// ShouldCache decides whether the query is cacheable at all
	ShouldCache(cq *CanonicalQuery) bool
}

// ShardingCatalog resolves sharding metadata for a namespace
type ShardingCatalog interface {
	// Metadata returns the shard key pattern for the namespace if it is sharded
	Metadata(ns string) (KeyPattern, bool)
}

// CursorRegistry tracks live runners so invalidations on DDL and yield events
// can reach them
type CursorRegistry interface {
	Register(r Runner)
	Deregister(r Runner)
}

// Canonicalizer parses a raw document query into a canonical query.
// Canonicalization is external to the dispatcher.
type Canonicalizer interface {
	Canonicalize(ns string, rawQuery []byte, opts ParsedOptions) (*CanonicalQuery, error)
}

// Collection is the read surface of a collection the dispatcher consumes. The
// dispatcher assumes the metadata is stable for the duration of a single
// dispatch call (the caller holds a collection read lock).
type Collection interface {
	// Namespace returns the collection's namespace, ex: db.users
	Namespace() string
	// Capped returns true for capped collections
	Capped() bool
	// Indexes returns descriptors for the collection's ready indexes
	Indexes() []IndexEntry
	// IDIndex returns the collection's _id index if one exists
	IDIndex() (IndexEntry, bool)
	// AllowedIndices returns an owned snapshot of the index filter configured
	// for the given query shape, if any
	AllowedIndices(shape string) ([]KeyPattern, bool)
	// PlanCache returns the collection's plan cache (nil for none)
	PlanCache() PlanCache
	// Registry returns the collection's cursor registry (nil for none)
	Registry() CursorRegistry
	// DocumentByID resolves a document directly through the _id index
	DocumentByID(ctx context.Context, id any) (*Document, RecordID, error)
}
