package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/liveactivity/internal/definition"
)

// CreateOrderCmd creates the order command.
func CreateOrderCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "order",
		Short: "Print the component start order",
		Long:  `Resolves component dependencies and prints the order components are configured and started in.`,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			def, err := definition.Load(path)
			if err != nil {
				return err
			}
			order, err := def.Order()
			if err != nil {
				return err
			}
			for i, name := range order {
				fmt.Fprintf(c.OutOrStdout(), "%d. %s\n", i+1, name)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "definition", "d", "", "Activity definition file (TOML or YAML)")
	_ = cmd.MarkFlagRequired("definition")
	return cmd
}
