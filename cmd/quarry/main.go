package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/autom8ter/quarry"
	"github.com/autom8ter/quarry/testutil"
	"github.com/spf13/cobra"
)

var (
	ns       string
	query    string
	options  string
	count    bool
	distinct string
	seed     int
	indexes  []string
)

func main() {
	root := &cobra.Command{
		Use:   "quarry",
		Short: "query dispatch debugging tool",
	}
	explain := &cobra.Command{
		Use:   "explain",
		Short: "dispatch a query against a seeded in-memory collection and print the chosen strategy",
		RunE:  runExplain,
	}
	explain.Flags().StringVar(&ns, "ns", "db.users", "target namespace")
	explain.Flags().StringVar(&query, "query", "{}", "raw query document (json)")
	explain.Flags().StringVar(&options, "options", "{}", "query options document (json)")
	explain.Flags().BoolVar(&count, "count", false, "dispatch as a count")
	explain.Flags().StringVar(&distinct, "distinct", "", "dispatch as a distinct over the given field")
	explain.Flags().IntVar(&seed, "seed", 100, "number of fake documents to seed")
	explain.Flags().StringArrayVar(&indexes, "index", nil, "secondary index field (repeatable)")
	root.AddCommand(explain)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runExplain(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var opts []testutil.CollectionOption
	for i, field := range indexes {
		opts = append(opts, testutil.WithIndex(quarry.IndexEntry{
			Name:       fmt.Sprintf("%s_%d_idx", field, i),
			KeyPattern: quarry.KeyPattern{{Field: field, Order: 1}},
		}))
	}
	col, err := testutil.NewCollection(ns, opts...)
	if err != nil {
		return err
	}
	defer col.Close()
	if err := testutil.Seed(ctx, col, seed); err != nil {
		return err
	}

	logger, err := quarry.NewLogger("debug", map[string]any{"tool": "quarry-explain"})
	if err != nil {
		return err
	}
	dispatcher, err := quarry.New(
		testutil.NaivePlanner{},
		testutil.NewScanStageBuilder(),
		quarry.WithLogger(logger),
		quarry.WithCanonicalizer(testutil.Canonicalizer{}),
	)
	if err != nil {
		return err
	}

	var parsedOptions map[string]any
	if err := json.Unmarshal([]byte(options), &parsedOptions); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	var runner quarry.Runner
	switch {
	case count:
		runner, err = dispatcher.GetRunnerCount(ctx, col, []byte(query), nil)
	case distinct != "":
		runner, err = dispatcher.GetRunnerDistinct(ctx, col, []byte(query), distinct)
	default:
		var cq *quarry.CanonicalQuery
		cq, err = testutil.Canonicalizer{}.CanonicalizeWithMap(ns, []byte(query), parsedOptions)
		if err != nil {
			return err
		}
		runner, err = dispatcher.GetRunner(ctx, col, cq, quarry.OptionDefault)
	}
	if err != nil {
		return err
	}

	guard := quarry.NewRegistrationGuard(runner)
	defer guard.Release()

	explain, err := runner.Explain()
	if err != nil {
		return err
	}
	fmt.Println(explain.String())

	matched := 0
	for {
		_, _, state := runner.Next(ctx)
		if state != quarry.RunnerAdvanced {
			if state == quarry.RunnerDead {
				return runner.Err()
			}
			break
		}
		matched++
	}
	fmt.Printf("documents: %d\n", matched)
	return nil
}
