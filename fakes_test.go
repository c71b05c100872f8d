package quarry_test

import (
	"context"
	"sync"
	"testing"

	"github.com/autom8ter/quarry"
	"github.com/autom8ter/quarry/errors"
	"github.com/spf13/cast"
	"github.com/stretchr/testify/assert"
)

type fakeCollection struct {
	ns        string
	capped    bool
	indexes   []quarry.IndexEntry
	noIDIndex bool
	allowed   map[string][]quarry.KeyPattern
	cache     quarry.PlanCache
	registry  *quarry.InMemRegistry
	docs      map[string]*quarry.Document
}

func newFakeCollection(ns string) *fakeCollection {
	return &fakeCollection{
		ns: ns,
		indexes: []quarry.IndexEntry{
			{Name: "_id_", KeyPattern: quarry.KeyPattern{{Field: "_id", Order: 1}}},
		},
		allowed:  map[string][]quarry.KeyPattern{},
		registry: quarry.NewInMemRegistry(),
		docs:     map[string]*quarry.Document{},
	}
}

func (c *fakeCollection) Namespace() string { return c.ns }

func (c *fakeCollection) Capped() bool { return c.capped }

func (c *fakeCollection) Indexes() []quarry.IndexEntry { return c.indexes }

func (c *fakeCollection) IDIndex() (quarry.IndexEntry, bool) {
	if c.noIDIndex {
		return quarry.IndexEntry{}, false
	}
	for _, entry := range c.indexes {
		if len(entry.KeyPattern) == 1 && entry.KeyPattern[0].Field == "_id" {
			return entry, true
		}
	}
	return quarry.IndexEntry{}, false
}

func (c *fakeCollection) AllowedIndices(shape string) ([]quarry.KeyPattern, bool) {
	patterns, ok := c.allowed[shape]
	return patterns, ok
}

func (c *fakeCollection) PlanCache() quarry.PlanCache { return c.cache }

func (c *fakeCollection) Registry() quarry.CursorRegistry { return c.registry }

func (c *fakeCollection) DocumentByID(ctx context.Context, id any) (*quarry.Document, quarry.RecordID, error) {
	doc, ok := c.docs[cast.ToString(id)]
	if !ok {
		return nil, 0, errors.New(errors.NotFound, "document not found: %v", id)
	}
	return doc, 1, nil
}

type fakePlanner struct {
	mu         sync.Mutex
	solutions  []*quarry.QuerySolution
	planErr    error
	cached     *quarry.CachedPlan
	cachedErr  error
	analyzeErr error
	planCalls  int
	lastParams quarry.PlannerParams
	lastCQ     *quarry.CanonicalQuery
}

func (p *fakePlanner) Plan(cq *quarry.CanonicalQuery, params quarry.PlannerParams) ([]*quarry.QuerySolution, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.planCalls++
	p.lastParams = params
	p.lastCQ = cq
	if p.planErr != nil {
		return nil, p.planErr
	}
	return p.solutions, nil
}

func (p *fakePlanner) PlanFromCache(cq *quarry.CanonicalQuery, params quarry.PlannerParams, cached *quarry.CachedSolution) (*quarry.CachedPlan, error) {
	if p.cachedErr != nil {
		return nil, p.cachedErr
	}
	return p.cached, nil
}

func (p *fakePlanner) Analyze(cq *quarry.CanonicalQuery, params quarry.PlannerParams, root *quarry.SolutionNode) (*quarry.QuerySolution, error) {
	if p.analyzeErr != nil {
		return nil, p.analyzeErr
	}
	projection := cq.Parsed().Projection
	if len(projection) == 0 {
		return &quarry.QuerySolution{Root: root}, nil
	}
	return &quarry.QuerySolution{Root: quarry.Projection(projection, root)}, nil
}

type fakePlanCache struct {
	mu      sync.Mutex
	entries map[string]*quarry.CachedSolution
	should  bool
	puts    int
}

func newFakePlanCache(should bool) *fakePlanCache {
	return &fakePlanCache{entries: map[string]*quarry.CachedSolution{}, should: should}
}

func (c *fakePlanCache) Get(cq *quarry.CanonicalQuery) *quarry.CachedSolution {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[cq.Shape()]
}

func (c *fakePlanCache) Put(cq *quarry.CanonicalQuery, cs *quarry.CachedSolution) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cq.Shape()] = cs
	c.puts++
	return nil
}

func (c *fakePlanCache) ShouldCache(cq *quarry.CanonicalQuery) bool { return c.should }

type stubStage struct {
	mu       sync.Mutex
	docs     []*quarry.Document
	rids     []quarry.RecordID
	needTime int
	dieAfter int
	pos      int
	err      error
}

func newStubStage(docs ...*quarry.Document) *stubStage {
	return &stubStage{docs: docs, dieAfter: -1}
}

func (s *stubStage) Next(ctx context.Context) (*quarry.Document, quarry.RecordID, quarry.StageState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.needTime > 0 {
		s.needTime--
		return nil, 0, quarry.StageNeedTime
	}
	if s.dieAfter >= 0 && s.pos >= s.dieAfter {
		s.err = errors.New(errors.Internal, "stage died")
		return nil, 0, quarry.StageDead
	}
	if s.pos >= len(s.docs) {
		return nil, 0, quarry.StageEOF
	}
	doc := s.docs[s.pos]
	var rid quarry.RecordID
	if s.pos < len(s.rids) {
		rid = s.rids[s.pos]
	}
	s.pos++
	return doc, rid, quarry.StageAdvanced
}

func (s *stubStage) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stubStage) SaveState() {}

func (s *stubStage) RestoreState() {}

func (s *stubStage) Invalidate(rid quarry.RecordID, kind quarry.InvalidationKind) {}

type fakeStageBuilder struct {
	mu     sync.Mutex
	builds map[*quarry.QuerySolution]int
	stages map[*quarry.QuerySolution]quarry.PlanStage
	err    error
}

func newFakeStageBuilder() *fakeStageBuilder {
	return &fakeStageBuilder{
		builds: map[*quarry.QuerySolution]int{},
		stages: map[*quarry.QuerySolution]quarry.PlanStage{},
	}
}

func (b *fakeStageBuilder) stageFor(sol *quarry.QuerySolution, stage quarry.PlanStage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stages[sol] = stage
}

func (b *fakeStageBuilder) buildCount(sol *quarry.QuerySolution) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.builds[sol]
}

func (b *fakeStageBuilder) Build(col quarry.Collection, cq *quarry.CanonicalQuery, sol *quarry.QuerySolution) (quarry.PlanStage, *quarry.WorkingSet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, nil, b.err
	}
	b.builds[sol]++
	if stage, ok := b.stages[sol]; ok {
		return stage, quarry.NewWorkingSet(), nil
	}
	return newStubStage(), quarry.NewWorkingSet(), nil
}

func mkQuery(t *testing.T, ns, raw string, filter *quarry.FilterNode, parsed quarry.ParsedOptions) *quarry.CanonicalQuery {
	t.Helper()
	cq, err := quarry.NewCanonicalQuery(ns, []byte(raw), filter, parsed)
	assert.NoError(t, err)
	return cq
}

func mkDoc(t *testing.T, value map[string]any) *quarry.Document {
	t.Helper()
	doc, err := quarry.NewDocumentFrom(value)
	assert.NoError(t, err)
	return doc
}

func ixSolution(fields ...string) *quarry.QuerySolution {
	var pattern quarry.KeyPattern
	for _, f := range fields {
		pattern = append(pattern, quarry.KeyField{Field: f, Order: 1})
	}
	return &quarry.QuerySolution{
		Root:  quarry.Fetch(quarry.IxScan(pattern, 1, quarry.AllValuesBounds(pattern))),
		Cache: &quarry.SolutionCacheData{},
	}
}

func explainType(t *testing.T, runner quarry.Runner) string {
	t.Helper()
	explain, err := runner.Explain()
	assert.NoError(t, err)
	return explain.GetString("type")
}

func newDispatcher(t *testing.T, planner quarry.QueryPlanner, stages quarry.StageBuilder, opts ...quarry.Option) *quarry.Dispatcher {
	t.Helper()
	logger, err := quarry.NewLogger("error", nil)
	assert.NoError(t, err)
	dispatcher, err := quarry.New(planner, stages, append([]quarry.Option{quarry.WithLogger(logger)}, opts...)...)
	assert.NoError(t, err)
	return dispatcher
}
