package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/contenderhq/contender/internal/objective"
	"github.com/contenderhq/contender/internal/report"
	"github.com/contenderhq/contender/internal/scenario"
)

var flagFormat string

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Summarize a stored run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scenario.Load(scenarioFile)
			if err != nil {
				return err
			}
			obj, ok := objective.Lookup(sc.Objective)
			if !ok {
				return fmt.Errorf("unknown objective %q", sc.Objective)
			}
			space, err := obj.Space()
			if err != nil {
				return err
			}

			runDir := filepath.Join(sc.Results.Dir, "latest")
			if len(args) > 0 {
				runDir = args[0]
			}
			resolved, err := filepath.EvalSymlinks(runDir)
			if err != nil {
				return fmt.Errorf("resolving run dir: %w", err)
			}
			weights := objective.Weights(sc.Weights).Vector(obj.Objectives)
			return report.Generate(resolved, flagFormat, cmd.OutOrStdout(), space, weights)
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	return cmd
}
