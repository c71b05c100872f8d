package testutil

import (
	"context"
	"sync"

	"github.com/autom8ter/quarry"
	"github.com/autom8ter/quarry/errors"
	"github.com/spf13/cast"
)

// DocsStage is a quarry.PlanStage double that yields a fixed sequence of documents
type DocsStage struct {
	mu      sync.Mutex
	docs    []*quarry.Document
	rids    []quarry.RecordID
	pos     int
	saved   int
	dieAt   int
	deadErr error
}

// NewDocsStage returns a stage yielding the given documents in order
func NewDocsStage(docs []*quarry.Document, rids []quarry.RecordID) *DocsStage {
	return &DocsStage{docs: docs, rids: rids, dieAt: -1}
}

// NewDeadStage returns a stage that dies after advancing n times
func NewDeadStage(docs []*quarry.Document, n int) *DocsStage {
	return &DocsStage{docs: docs, dieAt: n, deadErr: errors.New(errors.Internal, "stage died")}
}

func (s *DocsStage) Next(ctx context.Context) (*quarry.Document, quarry.RecordID, quarry.StageState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dieAt >= 0 && s.pos >= s.dieAt {
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

func (s *DocsStage) Err() error { return s.deadErr }

func (s *DocsStage) SaveState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = s.pos
}

func (s *DocsStage) RestoreState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = s.saved
}

func (s *DocsStage) Invalidate(rid quarry.RecordID, kind quarry.InvalidationKind) {}

// ScanStageBuilder is a quarry.StageBuilder double that snapshots the
// reference collection at build time and serves matching documents through a
// DocsStage. It tracks builds per solution so tests can assert stage trees
// are built at most once.
type ScanStageBuilder struct {
	mu     sync.Mutex
	builds map[*quarry.QuerySolution]int
}

// NewScanStageBuilder returns an empty builder
func NewScanStageBuilder() *ScanStageBuilder {
	return &ScanStageBuilder{builds: map[*quarry.QuerySolution]int{}}
}

// Builds returns how many times a stage tree was built for the solution
func (b *ScanStageBuilder) Builds(sol *quarry.QuerySolution) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.builds[sol]
}

func (b *ScanStageBuilder) Build(col quarry.Collection, cq *quarry.CanonicalQuery, sol *quarry.QuerySolution) (quarry.PlanStage, *quarry.WorkingSet, error) {
	if sol == nil || sol.Root == nil {
		return nil, nil, errors.New(errors.Internal, "cannot build stages for an empty solution")
	}
	b.mu.Lock()
	b.builds[sol]++
	b.mu.Unlock()

	ref, ok := col.(*Collection)
	if !ok {
		return NewDocsStage(nil, nil), quarry.NewWorkingSet(), nil
	}
	all, err := ref.All(context.Background())
	if err != nil {
		return nil, nil, err
	}
	var (
		docs []*quarry.Document
		rids []quarry.RecordID
	)
	for _, doc := range all {
		if !Matches(doc, cq.Filter()) {
			continue
		}
		docs = append(docs, doc)
		rids = append(rids, ref.RecordID(doc.GetString("_id")))
	}
	return NewDocsStage(docs, rids), quarry.NewWorkingSet(), nil
}

// Matches evaluates the filter tree against the document
func Matches(doc *quarry.Document, filter *quarry.FilterNode) bool {
	if filter.IsEmpty() {
		return true
	}
	switch filter.Op {
	case quarry.FilterOpAnd:
		for _, child := range filter.Children {
			if !Matches(doc, child) {
				return false
			}
		}
		return true
	case quarry.FilterOpOr:
		for _, child := range filter.Children {
			if Matches(doc, child) {
				return true
			}
		}
		return false
	case quarry.FilterOpEq:
		return quarry.CompareValues(doc.Get(filter.Field), filter.Value) == 0
	case quarry.FilterOpNeq:
		return quarry.CompareValues(doc.Get(filter.Field), filter.Value) != 0
	case quarry.FilterOpGt:
		return quarry.CompareValues(doc.Get(filter.Field), filter.Value) > 0
	case quarry.FilterOpGte:
		return quarry.CompareValues(doc.Get(filter.Field), filter.Value) >= 0
	case quarry.FilterOpLt:
		return quarry.CompareValues(doc.Get(filter.Field), filter.Value) < 0
	case quarry.FilterOpLte:
		return quarry.CompareValues(doc.Get(filter.Field), filter.Value) <= 0
	case quarry.FilterOpIn:
		for _, v := range cast.ToSlice(filter.Value) {
			if quarry.CompareValues(doc.Get(filter.Field), v) == 0 {
				return true
			}
		}
		return false
	}
	return false
}
