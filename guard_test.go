package quarry_test

import (
	"context"
	"testing"

	"github.com/autom8ter/quarry"
	"github.com/stretchr/testify/assert"
)

func TestRegistrationGuard(t *testing.T) {
	ctx := context.Background()
	filter := &quarry.FilterNode{Op: quarry.FilterOpEq, Field: "a", Value: 1}

	t.Run("registers and deregisters a collection backed runner", func(t *testing.T) {
		col := newFakeCollection("db.c")
		planner := &fakePlanner{solutions: []*quarry.QuerySolution{ixSolution("a")}}
		dispatcher := newDispatcher(t, planner, newFakeStageBuilder())
		cq := mkQuery(t, "db.c", `{"a": 1}`, filter, quarry.ParsedOptions{})

		runner, err := dispatcher.GetRunner(ctx, col, cq, quarry.OptionDefault)
		assert.NoError(t, err)
		assert.Equal(t, 0, col.registry.Len())

		guard := quarry.NewRegistrationGuard(runner)
		assert.Equal(t, 1, col.registry.Len())
		guard.Release()
		assert.Equal(t, 0, col.registry.Len())
	})

	t.Run("skips runners without a collection", func(t *testing.T) {
		dispatcher := newDispatcher(t, &fakePlanner{}, newFakeStageBuilder())
		cq := mkQuery(t, "db.gone", `{}`, nil, quarry.ParsedOptions{})

		runner, err := dispatcher.GetRunner(ctx, nil, cq, quarry.OptionDefault)
		assert.NoError(t, err)
		guard := quarry.NewRegistrationGuard(runner)
		guard.Release()
	})

	t.Run("release is idempotent", func(t *testing.T) {
		col := newFakeCollection("db.c")
		planner := &fakePlanner{solutions: []*quarry.QuerySolution{ixSolution("a")}}
		dispatcher := newDispatcher(t, planner, newFakeStageBuilder())
		cq := mkQuery(t, "db.c", `{"a": 1}`, filter, quarry.ParsedOptions{})

		runner, err := dispatcher.GetRunner(ctx, col, cq, quarry.OptionDefault)
		assert.NoError(t, err)
		guard := quarry.NewRegistrationGuard(runner)
		guard.Release()
		guard.Release()
		assert.Equal(t, 0, col.registry.Len())
	})
}

func TestInMemRegistry(t *testing.T) {
	ctx := context.Background()
	registry := quarry.NewInMemRegistry()

	dispatcher := newDispatcher(t, &fakePlanner{solutions: []*quarry.QuerySolution{ixSolution("a")}}, newFakeStageBuilder())
	col := newFakeCollection("db.c")
	cq := mkQuery(t, "db.c", `{"a": 1}`, &quarry.FilterNode{Op: quarry.FilterOpEq, Field: "a", Value: 1}, quarry.ParsedOptions{})
	runner, err := dispatcher.GetRunner(ctx, col, cq, quarry.OptionDefault)
	assert.NoError(t, err)

	registry.Register(runner)
	assert.Equal(t, 1, registry.Len())

	registry.KillAll()
	_, _, state := runner.Next(ctx)
	assert.Equal(t, quarry.RunnerDead, state)

	registry.Deregister(runner)
	assert.Equal(t, 0, registry.Len())
}
