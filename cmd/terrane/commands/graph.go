package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newGraphCommand() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "graph [path...]",
		Short: "Emit the dependency graph in DOT format",
		Long: `Parse the declared resources and emit their dependency graph in
Graphviz DOT format. Edges point from a resource to the resources it
depends on.`,
		Example: `  # Render the graph of the current directory
  terrane graph | dot -Tsvg -o graph.svg

  # Write the graph to a file
  terrane graph ./infra --out graph.dot`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sources := args
			if len(sources) == 0 {
				sources = []string{"."}
			}

			app, err := newAppContext(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			graph, err := app.buildGraph(ctx, sources)
			if err != nil {
				return err
			}

			if outFile != "" {
				if err := os.WriteFile(outFile, []byte(graph.ToDOT()), 0o644); err != nil {
					return fmt.Errorf("failed to write graph file %s: %w", outFile, err)
				}
				return nil
			}
			fmt.Print(graph.ToDOT())
			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write the DOT graph to this path instead of stdout")

	return cmd
}
