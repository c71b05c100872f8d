package quarry

// turnIxscanIntoCount rewrites a fetch(ixscan) solution into a single count
// node when the scan's bounds reduce to one [startKey, endKey] range. The
// replaced subtree is detached. Returns false and leaves the solution intact
// when the shape does not qualify.
func turnIxscanIntoCount(sol *QuerySolution) bool {
	if sol == nil || sol.Root == nil {
		return false
	}
	root := sol.Root
	if root.Kind != KindFetch || root.Filter != nil {
		return false
	}
	ix := root.child()
	if ix == nil || ix.Kind != KindIxScan || ix.Filter != nil || ix.Bounds.SimpleRange {
		return false
	}
	startKey, endKey, startInclusive, endInclusive, ok := boundsToStartEndKeys(ix.Bounds)
	if !ok {
		return false
	}
	count := &SolutionNode{
		Kind:           KindCount,
		KeyPattern:     ix.KeyPattern,
		StartKey:       startKey,
		EndKey:         endKey,
		StartInclusive: startInclusive,
		EndInclusive:   endInclusive,
	}
	root.Children = nil
	sol.Root = count
	return true
}

// boundsToStartEndKeys determines whether a conjunction of ordered intervals
// over a compound index reduces to a single [startKey, endKey] range, and if
// so resolves the keys. The fields are consumed left to right in three
// phases: a point prefix, at most one non-point field, and an all-values
// suffix.
func boundsToStartEndKeys(bounds IndexBounds) (startKey, endKey IndexKey, startInclusive, endInclusive bool, ok bool) {
	startInclusive, endInclusive = true, true

	fields := bounds.Fields
	i := 0

	// point prefix: append each point to both keys
	for ; i < len(fields); i++ {
		oil := fields[i]
		if len(oil.Intervals) != 1 || !oil.Intervals[0].IsPoint() {
			break
		}
		startKey = append(startKey, oil.Intervals[0].Start)
		endKey = append(endKey, oil.Intervals[0].Start)
	}
	if i == len(fields) {
		return startKey, endKey, true, true, true
	}

	// exactly one non-point field: take its endpoints and inclusivity
	oil := fields[i]
	if len(oil.Intervals) != 1 {
		return nil, nil, false, false, false
	}
	interval := oil.Intervals[0]
	startKey = append(startKey, interval.Start)
	endKey = append(endKey, interval.End)
	startInclusive = interval.StartInclusive
	endInclusive = interval.EndInclusive
	i++

	// all-values suffix: extend each side so the range neither admits nor
	// excludes keys sharing the prefix. For an exclusive lower bound the
	// remaining fields pad with MaxKey so every key sharing the prefix is
	// skipped; for an inclusive one they pad with MinKey so every such key is
	// included. The end key mirrors this, and descending fields swap the
	// sentinels.
	for ; i < len(fields); i++ {
		oil := fields[i]
		if len(oil.Intervals) != 1 {
			return nil, nil, false, false, false
		}
		interval := oil.Intervals[0]
		switch {
		case interval.IsAllValues():
			if startInclusive {
				startKey = append(startKey, MinKey)
			} else {
				startKey = append(startKey, MaxKey)
			}
			if endInclusive {
				endKey = append(endKey, MaxKey)
			} else {
				endKey = append(endKey, MinKey)
			}
		case interval.IsAllValuesReverse():
			if startInclusive {
				startKey = append(startKey, MaxKey)
			} else {
				startKey = append(startKey, MinKey)
			}
			if endInclusive {
				endKey = append(endKey, MinKey)
			} else {
				endKey = append(endKey, MaxKey)
			}
		default:
			return nil, nil, false, false, false
		}
	}
	return startKey, endKey, startInclusive, endInclusive, true
}
