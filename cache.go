package quarry

import (
	"github.com/autom8ter/quarry/errors"
	lru "github.com/hashicorp/golang-lru/v2"
)

// lruPlanCache is the default per-collection plan cache, an LRU keyed by
// canonical-query shape
type lruPlanCache struct {
	cache *lru.Cache[string, *CachedSolution]
}

// NewLRUPlanCache returns a plan cache holding up to size entries
func NewLRUPlanCache(size int) (PlanCache, error) {
	cache, err := lru.New[string, *CachedSolution](size)
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "invalid plan cache size: %d", size)
	}
	return &lruPlanCache{cache: cache}, nil
}

func (c *lruPlanCache) Get(cq *CanonicalQuery) *CachedSolution {
	cached, ok := c.cache.Get(cq.Shape())
	if !ok {
		return nil
	}
	return cached
}

func (c *lruPlanCache) Put(cq *CanonicalQuery, cs *CachedSolution) error {
	if cs == nil || cs.Data == nil {
		return errors.New(errors.Validation, "refusing to cache an empty solution")
	}
	c.cache.Add(cq.Shape(), cs)
	return nil
}

// ShouldCache excludes queries whose plans are not reusable: tailable and
// explain cursors, hinted queries, simple id lookups, and empty shapes
func (c *lruPlanCache) ShouldCache(cq *CanonicalQuery) bool {
	parsed := cq.Parsed()
	if parsed.Tailable || parsed.Explain || parsed.SimpleID {
		return false
	}
	if len(parsed.Hint) > 0 {
		return false
	}
	return cq.Shape() != ""
}
