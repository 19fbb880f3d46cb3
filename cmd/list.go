package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/contenderhq/contender/internal/objective"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List built-in objectives",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("Objectives:")
			for _, name := range objective.Names() {
				obj, _ := objective.Lookup(name)
				space, err := obj.Space()
				if err != nil {
					return err
				}
				fmt.Printf("  - %s (%d parameters", name, space.Dim())
				for _, p := range space.Params() {
					fmt.Printf(", %s", p.Name)
				}
				fmt.Println(")")
			}
			return nil
		},
	}
}
