package quarry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func oil(field string, intervals ...Interval) OrderedIntervalList {
	return OrderedIntervalList{Field: field, Intervals: intervals}
}

func TestBoundsToStartEndKeys(t *testing.T) {
	t.Run("all points", func(t *testing.T) {
		bounds := IndexBounds{Fields: []OrderedIntervalList{
			oil("a", PointInterval(2)),
			oil("b", PointInterval("x")),
		}}
		start, end, startIncl, endIncl, ok := boundsToStartEndKeys(bounds)
		assert.True(t, ok)
		assert.Equal(t, IndexKey{2, "x"}, start)
		assert.Equal(t, IndexKey{2, "x"}, end)
		assert.True(t, startIncl)
		assert.True(t, endIncl)
	})

	t.Run("point prefix then exclusive range then all values", func(t *testing.T) {
		// count {a: 2, b: {$gt: 3}} over index {a:1,b:1,c:1}
		bounds := IndexBounds{Fields: []OrderedIntervalList{
			oil("a", PointInterval(2)),
			oil("b", RangeInterval(3, MaxKey, false, true)),
			oil("c", AllValues()),
		}}
		start, end, startIncl, endIncl, ok := boundsToStartEndKeys(bounds)
		assert.True(t, ok)
		assert.Equal(t, IndexKey{2, 3, MaxKey}, start)
		assert.False(t, startIncl)
		assert.Equal(t, IndexKey{2, MaxKey, MaxKey}, end)
		assert.True(t, endIncl)
	})

	t.Run("inclusive lower bound pads with minkey", func(t *testing.T) {
		// a >= 2 over index {a:1,b:1}
		bounds := IndexBounds{Fields: []OrderedIntervalList{
			oil("a", RangeInterval(2, MaxKey, true, true)),
			oil("b", AllValues()),
		}}
		start, end, startIncl, endIncl, ok := boundsToStartEndKeys(bounds)
		assert.True(t, ok)
		assert.Equal(t, IndexKey{2, MinKey}, start)
		assert.True(t, startIncl)
		assert.Equal(t, IndexKey{MaxKey, MaxKey}, end)
		assert.True(t, endIncl)
	})

	t.Run("exclusive upper bound pads with minkey", func(t *testing.T) {
		// a < 5 over index {a:1,b:1}
		bounds := IndexBounds{Fields: []OrderedIntervalList{
			oil("a", RangeInterval(MinKey, 5, true, false)),
			oil("b", AllValues()),
		}}
		start, end, startIncl, endIncl, ok := boundsToStartEndKeys(bounds)
		assert.True(t, ok)
		assert.Equal(t, IndexKey{MinKey, MinKey}, start)
		assert.True(t, startIncl)
		assert.Equal(t, IndexKey{5, MinKey}, end)
		assert.False(t, endIncl)
	})

	t.Run("descending suffix swaps the sentinels", func(t *testing.T) {
		bounds := IndexBounds{Fields: []OrderedIntervalList{
			oil("a", RangeInterval(3, MaxKey, false, true)),
			oil("b", AllValuesReverse()),
		}}
		start, end, startIncl, endIncl, ok := boundsToStartEndKeys(bounds)
		assert.True(t, ok)
		assert.Equal(t, IndexKey{3, MinKey}, start)
		assert.False(t, startIncl)
		assert.Equal(t, IndexKey{MaxKey, MinKey}, end)
		assert.True(t, endIncl)
	})

	t.Run("two intervals outside the point prefix fail", func(t *testing.T) {
		// {a: {$in: [1, 2]}}
		bounds := IndexBounds{Fields: []OrderedIntervalList{
			oil("a", PointInterval(1), PointInterval(2)),
		}}
		_, _, _, _, ok := boundsToStartEndKeys(bounds)
		assert.False(t, ok)
	})

	t.Run("point after the non-point field fails", func(t *testing.T) {
		bounds := IndexBounds{Fields: []OrderedIntervalList{
			oil("a", RangeInterval(1, 5, true, true)),
			oil("b", PointInterval(2)),
		}}
		_, _, _, _, ok := boundsToStartEndKeys(bounds)
		assert.False(t, ok)
	})

	t.Run("partial range in the suffix fails", func(t *testing.T) {
		bounds := IndexBounds{Fields: []OrderedIntervalList{
			oil("a", RangeInterval(1, 5, true, true)),
			oil("b", RangeInterval(MinKey, 10, true, true)),
		}}
		_, _, _, _, ok := boundsToStartEndKeys(bounds)
		assert.False(t, ok)
	})

	t.Run("empty bounds succeed with empty keys", func(t *testing.T) {
		start, end, startIncl, endIncl, ok := boundsToStartEndKeys(IndexBounds{})
		assert.True(t, ok)
		assert.Empty(t, start)
		assert.Empty(t, end)
		assert.True(t, startIncl)
		assert.True(t, endIncl)
	})
}

func TestTurnIxscanIntoCount(t *testing.T) {
	pattern := KeyPattern{{Field: "a", Order: 1}, {Field: "b", Order: 1}, {Field: "c", Order: 1}}
	countableBounds := func() IndexBounds {
		return IndexBounds{Fields: []OrderedIntervalList{
			oil("a", PointInterval(2)),
			oil("b", RangeInterval(3, MaxKey, false, true)),
			oil("c", AllValues()),
		}}
	}

	t.Run("rewrites fetch over ixscan", func(t *testing.T) {
		sol := &QuerySolution{Root: Fetch(IxScan(pattern, 1, countableBounds()))}
		assert.True(t, turnIxscanIntoCount(sol))
		assert.Equal(t, KindCount, sol.Root.Kind)
		assert.Empty(t, sol.Root.Children)
		assert.Equal(t, pattern, sol.Root.KeyPattern)
		assert.Equal(t, IndexKey{2, 3, MaxKey}, sol.Root.StartKey)
		assert.False(t, sol.Root.StartInclusive)
		assert.Equal(t, IndexKey{2, MaxKey, MaxKey}, sol.Root.EndKey)
		assert.True(t, sol.Root.EndInclusive)
	})

	t.Run("residual filter on the fetch blocks the rewrite", func(t *testing.T) {
		root := Fetch(IxScan(pattern, 1, countableBounds()))
		root.Filter = &FilterNode{Op: FilterOpEq, Field: "d", Value: 1}
		sol := &QuerySolution{Root: root}
		assert.False(t, turnIxscanIntoCount(sol))
		assert.Equal(t, KindFetch, sol.Root.Kind)
	})

	t.Run("residual filter on the ixscan blocks the rewrite", func(t *testing.T) {
		ix := IxScan(pattern, 1, countableBounds())
		ix.Filter = &FilterNode{Op: FilterOpEq, Field: "d", Value: 1}
		sol := &QuerySolution{Root: Fetch(ix)}
		assert.False(t, turnIxscanIntoCount(sol))
	})

	t.Run("verbatim min max bounds block the rewrite", func(t *testing.T) {
		bounds := countableBounds()
		bounds.SimpleRange = true
		sol := &QuerySolution{Root: Fetch(IxScan(pattern, 1, bounds))}
		assert.False(t, turnIxscanIntoCount(sol))
	})

	t.Run("non fetch root blocks the rewrite", func(t *testing.T) {
		sol := &QuerySolution{Root: IxScan(pattern, 1, countableBounds())}
		assert.False(t, turnIxscanIntoCount(sol))
	})

	t.Run("multi interval bounds block the rewrite", func(t *testing.T) {
		bounds := IndexBounds{Fields: []OrderedIntervalList{
			oil("a", PointInterval(1), PointInterval(2)),
		}}
		sol := &QuerySolution{Root: Fetch(IxScan(KeyPattern{{Field: "a", Order: 1}}, 1, bounds))}
		assert.False(t, turnIxscanIntoCount(sol))
		assert.Equal(t, KindFetch, sol.Root.Kind)
	})

	t.Run("nil solution", func(t *testing.T) {
		assert.False(t, turnIxscanIntoCount(nil))
		assert.False(t, turnIxscanIntoCount(&QuerySolution{}))
	})
}
