package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/liveactivity/internal/component"
	"github.com/smazurov/liveactivity/internal/definition"
)

// CreateCheckCmd creates the check command.
func CreateCheckCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate an activity definition",
		Long: `Validates the definition, configures every component without starting it and ` +
			`prints the command line each native component would run.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			def, err := definition.Load(path)
			if err != nil {
				return err
			}
			components, err := def.NewCollection(nil)
			if err != nil {
				return err
			}
			if err := components.ConfigureAll(def.Settings()); err != nil {
				return err
			}

			out := c.OutOrStdout()
			fmt.Fprintf(out, "activity %s: %d components\n", def.Name, components.Len())

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, comp := range components.Configured() {
				line := "-"
				if native, ok := comp.(*component.NativeComponent); ok {
					line = native.Command().String()
				}
				fmt.Fprintf(w, "  %s\t%s\n", comp.Name(), line)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&path, "definition", "d", "", "Activity definition file (TOML or YAML)")
	_ = cmd.MarkFlagRequired("definition")
	return cmd
}
