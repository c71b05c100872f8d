package quarry

import (
	"github.com/autom8ter/quarry/errors"
	"github.com/autom8ter/quarry/internal/util"
)

// Config carries the process-wide planning policy. It is read at dispatch time
// rather than through ambient globals.
type Config struct {
	// NoTableScan forbids collection scans for non-exempt queries
	NoTableScan bool `json:"noTableScan"`
	// EnableIndexIntersection controls whether the IndexIntersection option is
	// set before planning (default true)
	EnableIndexIntersection bool `json:"enableIndexIntersection"`
}

// DefaultConfig returns the default planning policy
func DefaultConfig() Config {
	return Config{
		NoTableScan:             false,
		EnableIndexIntersection: true,
	}
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithConfig overrides the default planning policy
func WithConfig(cfg Config) Option {
	return func(d *Dispatcher) {
		d.cfg = cfg
	}
}

// WithLogger overrides the default logger
func WithLogger(logger Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithShardingCatalog provides the sharding metadata source consulted when a
// caller requests a shard filter
func WithShardingCatalog(catalog ShardingCatalog) Option {
	return func(d *Dispatcher) {
		d.sharding = catalog
	}
}

// WithCanonicalizer provides the canonicalizer used by the raw-query entry points
func WithCanonicalizer(canon Canonicalizer) Option {
	return func(d *Dispatcher) {
		d.canon = canon
	}
}

type dispatcherDeps struct {
	Planner QueryPlanner `json:"planner" validate:"required"`
	Stages  StageBuilder `json:"stages" validate:"required"`
}

// New creates a dispatcher over the given planner and stage builder
func New(planner QueryPlanner, stages StageBuilder, opts ...Option) (*Dispatcher, error) {
	if err := util.ValidateStruct(&dispatcherDeps{Planner: planner, Stages: stages}); err != nil {
		return nil, errors.Wrap(err, errors.Validation, "dispatcher requires a planner and a stage builder")
	}
	d := &Dispatcher{
		planner: planner,
		stages:  stages,
		cfg:     DefaultConfig(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		logger, err := NewLogger("info", nil)
		if err != nil {
			return nil, err
		}
		d.logger = logger
	}
	return d, nil
}
