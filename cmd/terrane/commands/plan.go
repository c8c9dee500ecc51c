package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newPlanCommand() *cobra.Command {
	var (
		outFile string
		dotFile string
	)

	cmd := &cobra.Command{
		Use:   "plan [path...]",
		Short: "Compute an execution plan",
		Long: `Compute an execution plan by diffing declared resources against
last-known state.

The plan:
  - Parses CUE declarations and evaluates Starlark templates
  - Builds the dependency graph from cross-resource references
  - Diffs each resource against the state store
  - Orders creates, updates, and deletes topologically
  - Evaluates the configured Rego policies against the result`,
		Example: `  # Plan the current directory
  terrane plan

  # Plan a specific directory and save the plan
  terrane plan ./infra --out plan.json

  # Emit the dependency graph alongside the plan
  terrane plan ./infra --dot graph.dot`,
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

			plan, graph, err := app.computePlan(ctx, sources)
			if err != nil {
				return err
			}

			if dotFile != "" {
				if err := os.WriteFile(dotFile, []byte(graph.ToDOT()), 0o644); err != nil {
					return fmt.Errorf("failed to write graph file %s: %w", dotFile, err)
				}
				app.tel.Logger.WithField("path", dotFile).Info("dependency graph written")
			}

			if outFile != "" {
				f, err := os.Create(outFile)
				if err != nil {
					return fmt.Errorf("failed to create plan file %s: %w", outFile, err)
				}
				if err := printJSON(f, plan); err != nil {
					f.Close()
					return fmt.Errorf("failed to write plan file %s: %w", outFile, err)
				}
				if err := f.Close(); err != nil {
					return err
				}
				app.tel.Logger.WithField("path", outFile).Info("plan written")
			}

			gate, err := app.newPolicyGate(ctx)
			if err != nil {
				return err
			}
			denials, err := app.gatePlan(ctx, gate, plan)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(os.Stdout, struct {
					Plan    any      `json:"plan"`
					Denials []string `json:"denials,omitempty"`
				}{plan, denials})
			}

			renderPlan(os.Stdout, plan)
			if len(denials) > 0 {
				fmt.Println()
				renderDenials(os.Stdout, denials)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write the plan as JSON to this path")
	cmd.Flags().StringVar(&dotFile, "dot", "", "write the dependency graph in DOT format to this path")

	return cmd
}
