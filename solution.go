package quarry

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NodeKind is the fixed set of query solution node kinds
type NodeKind int

const (
	KindCollScan NodeKind = iota
	KindIxScan
	KindFetch
	KindProjection
	KindSort
	KindSkip
	KindLimit
	KindCount
	KindDistinct
	KindShardFilter
)

func (k NodeKind) String() string {
	switch k {
	case KindCollScan:
		return "COLLSCAN"
	case KindIxScan:
		return "IXSCAN"
	case KindFetch:
		return "FETCH"
	case KindProjection:
		return "PROJECTION"
	case KindSort:
		return "SORT"
	case KindSkip:
		return "SKIP"
	case KindLimit:
		return "LIMIT"
	case KindCount:
		return "COUNT"
	case KindDistinct:
		return "DISTINCT"
	case KindShardFilter:
		return "SHARD_FILTER"
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(k))
}

// SolutionNode is a node of a query solution tree. A node owns its children
// exclusively - a rewrite that replaces a subtree detaches the old subtree
// before installing the replacement.
type SolutionNode struct {
	Kind NodeKind `json:"kind"`
	// Filter is the residual filter applied at this node (nil for none)
	Filter   *FilterNode     `json:"filter,omitempty"`
	Children []*SolutionNode `json:"children,omitempty"`

	// index access (ixscan, count, distinct)
	KeyPattern KeyPattern  `json:"keyPattern,omitempty"`
	Direction  int         `json:"direction,omitempty"`
	Bounds     IndexBounds `json:"bounds,omitempty"`

	// count
	StartKey       IndexKey `json:"startKey,omitempty"`
	EndKey         IndexKey `json:"endKey,omitempty"`
	StartInclusive bool     `json:"startInclusive,omitempty"`
	EndInclusive   bool     `json:"endInclusive,omitempty"`

	// distinct - the position of the distinct field in the index key pattern
	FieldNo int `json:"fieldNo,omitempty"`

	// projection / sort pattern
	Pattern json.RawMessage `json:"pattern,omitempty"`
}

func (n *SolutionNode) String() string {
	if n == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(n.Kind.String())
	if len(n.KeyPattern) > 0 {
		b.WriteString(" ")
		b.WriteString(n.KeyPattern.String())
	}
	if len(n.Children) > 0 {
		var children []string
		for _, c := range n.Children {
			children = append(children, c.String())
		}
		b.WriteString("(")
		b.WriteString(strings.Join(children, ", "))
		b.WriteString(")")
	}
	return b.String()
}

// IxScan returns an index scan node over the given pattern, direction and bounds
func IxScan(pattern KeyPattern, direction int, bounds IndexBounds) *SolutionNode {
	return &SolutionNode{
		Kind:       KindIxScan,
		KeyPattern: pattern,
		Direction:  direction,
		Bounds:     bounds,
	}
}

// Fetch returns a fetch node over the given child
func Fetch(child *SolutionNode) *SolutionNode {
	return &SolutionNode{
		Kind:     KindFetch,
		Children: []*SolutionNode{child},
	}
}

// Projection returns a projection node over the given child
func Projection(pattern json.RawMessage, child *SolutionNode) *SolutionNode {
	return &SolutionNode{
		Kind:     KindProjection,
		Pattern:  pattern,
		Children: []*SolutionNode{child},
	}
}

// SolutionCacheData carries reconstruction info the plan cache can persist.
// The payload is opaque to the dispatcher and interpreted by the planner.
type SolutionCacheData struct {
	IndexFilterApplied bool `json:"indexFilterApplied"`
	Payload            any  `json:"payload,omitempty"`
}

// QuerySolution is a candidate execution strategy produced by the planner. A
// solution owns its root exclusively; a solution not wrapped into a runner must
// be disposed before the dispatcher returns.
type QuerySolution struct {
	Root *SolutionNode `json:"root"`
	// HasSortStage indicates a blocking sort is present somewhere in the tree
	HasSortStage bool `json:"hasSortStage"`
	// Cache carries reconstruction info for the plan cache (nil for uncacheable solutions)
	Cache *SolutionCacheData `json:"cache,omitempty"`

	disposed bool
}

// Dispose detaches the solution's tree. A disposed solution must not enter a runner.
func (s *QuerySolution) Dispose() {
	if s == nil {
		return
	}
	s.Root = nil
	s.disposed = true
}

// Disposed returns true if the solution has been disposed
func (s *QuerySolution) Disposed() bool {
	return s != nil && s.disposed
}

func (s *QuerySolution) String() string {
	if s == nil {
		return "<nil>"
	}
	return s.Root.String()
}

// child returns the node's single child, or nil if it does not have exactly one
func (n *SolutionNode) child() *SolutionNode {
	if n == nil || len(n.Children) != 1 {
		return nil
	}
	return n.Children[0]
}
