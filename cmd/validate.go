package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/contenderhq/contender/internal/objective"
	"github.com/contenderhq/contender/internal/scenario"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a scenario file and print the resolved settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scenario.Load(scenarioFile)
			if err != nil {
				return err
			}
			obj, ok := objective.Lookup(sc.Objective)
			if !ok {
				return fmt.Errorf("unknown objective %q (available: %v)", sc.Objective, objective.Names())
			}
			if _, err := obj.Space(); err != nil {
				return fmt.Errorf("objective %q: %w", sc.Objective, err)
			}
			for name := range sc.Weights {
				found := false
				for _, o := range obj.Objectives {
					if o == name {
						found = true
						break
					}
				}
				if !found {
					return fmt.Errorf("weight for unknown objective %q", name)
				}
			}

			fmt.Printf("%s: OK\n\n", scenarioFile)
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(sc)
		},
	}
}
