package quarry

import (
	"strings"

	"github.com/samber/lo"
)

// PlannerOption is a composable planning option bitset
type PlannerOption uint32

// OptionDefault requests no special planning behavior
const OptionDefault PlannerOption = 0

const (
	// NoTableScan forbids collection-scan solutions
	NoTableScan PlannerOption = 1 << iota
	// IncludeCollScan asks the planner to enumerate a collection scan alongside index solutions
	IncludeCollScan
	// IncludeShardFilter asks for a shard filtering stage over each solution
	IncludeShardFilter
	// IndexIntersection allows solutions that intersect multiple indexes
	IndexIntersection
	// KeepMutations asks solutions to return documents mutated mid-scan
	KeepMutations
	// PrivateIsCount marks a count dispatch - internal, must not be set by user-facing callers
	PrivateIsCount
)

// PlannerParams is the parameter bundle handed to the planner, derived from
// collection metadata at dispatch time
type PlannerParams struct {
	// Options is the planning option bitset
	Options PlannerOption `json:"options"`
	// Indexes is a snapshot of the indexes the planner may consider
	Indexes []IndexEntry `json:"indexes"`
	// ShardKey is set when IncludeShardFilter survived the sharding lookup
	ShardKey KeyPattern `json:"shardKey,omitempty"`
	// IndexFiltersApplied indicates an index filter restricted the index list,
	// which also tells the planner to ignore hints
	IndexFiltersApplied bool `json:"indexFiltersApplied"`
}

// plannerParams assembles the planner input bundle for the query: the
// collection's ready indexes (restricted by any matching index filter), the
// caller's options, the table-scan policy, and the shard key if requested.
func (d *Dispatcher) plannerParams(cq *CanonicalQuery, col Collection, opts PlannerOption) PlannerParams {
	params := PlannerParams{Options: opts}
	params.Indexes = append(params.Indexes, col.Indexes()...)

	if allowed, ok := col.AllowedIndices(cq.Shape()); ok && len(allowed) > 0 {
		params.Indexes = lo.Filter(params.Indexes, func(entry IndexEntry, _ int) bool {
			return lo.ContainsBy(allowed, func(pattern KeyPattern) bool {
				return pattern.Equal(entry.KeyPattern)
			})
		})
		params.IndexFiltersApplied = true
	}

	if d.cfg.NoTableScan && !tableScanExempt(cq) {
		params.Options |= NoTableScan
	}
	if params.Options&NoTableScan == 0 {
		params.Options |= IncludeCollScan
	}

	if params.Options&IncludeShardFilter != 0 {
		var (
			key     KeyPattern
			sharded bool
		)
		if d.sharding != nil {
			key, sharded = d.sharding.Metadata(cq.Namespace())
		}
		if sharded {
			params.ShardKey = key
		} else {
			// without metadata the key pattern is unknowable, so skip the filter
			params.Options &^= IncludeShardFilter
		}
	}
	return params
}

// tableScanExempt returns true for queries the no-table-scan policy ignores:
// empty filters, system namespaces, and the local database
func tableScanExempt(cq *CanonicalQuery) bool {
	ns := cq.Namespace()
	return cq.Filter().IsEmpty() ||
		strings.Contains(ns, ".system.") ||
		strings.HasPrefix(ns, "local.")
}
