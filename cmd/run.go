package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/contenderhq/contender/internal/objective"
	"github.com/contenderhq/contender/internal/report"
	"github.com/contenderhq/contender/internal/scenario"
	"github.com/contenderhq/contender/internal/smbo"
)

var (
	flagMaxTrials   int
	flagWorkers     int
	flagSeed        int64
	flagMetricsAddr string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute an optimization run",
		RunE:  runOptimization,
	}
	cmd.Flags().IntVar(&flagMaxTrials, "max-trials", 0, "override trial limit")
	cmd.Flags().IntVar(&flagWorkers, "workers", 0, "override worker count")
	cmd.Flags().Int64Var(&flagSeed, "seed", -1, "override random seed")
	cmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "expose prometheus metrics on this address")
	return cmd
}

func runOptimization(cmd *cobra.Command, args []string) error {
	sc, err := scenario.Load(scenarioFile)
	if err != nil {
		return err
	}
	if flagMaxTrials > 0 {
		sc.MaxTrials = flagMaxTrials
	}
	if flagWorkers > 0 {
		sc.Workers = flagWorkers
	}
	if flagSeed >= 0 {
		sc.Seed = flagSeed
	}

	obj, ok := objective.Lookup(sc.Objective)
	if !ok {
		return fmt.Errorf("unknown objective %q (available: %v)", sc.Objective, objective.Names())
	}

	if flagMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(flagMetricsAddr, mux); err != nil {
				logrus.WithError(err).Warn("metrics server stopped")
			}
		}()
	}

	loop, err := smbo.New(sc, obj)
	if err != nil {
		return err
	}
	fmt.Printf("Run directory: %s\n", loop.RunDir())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	res, err := loop.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\nTrials: %d", res.Trials)
	if res.Stopped {
		fmt.Print(" (stopped early: regret below statistical error)")
	}
	fmt.Println()
	if res.Incumbent != nil {
		fmt.Printf("Incumbent: %s (cost %.6g)\n", res.Incumbent, res.IncumbentCost)
	}

	space, err := obj.Space()
	if err != nil {
		return err
	}
	weights := objective.Weights(sc.Weights).Vector(obj.Objectives)

	fmt.Println("\n--- Results ---")
	return report.Generate(res.RunDir, "table", os.Stdout, space, weights)
}
