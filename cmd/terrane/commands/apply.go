package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/terrane-io/terrane/pkg/engine"
	"github.com/terrane-io/terrane/pkg/telemetry"
)

func newApplyCommand() *cobra.Command {
	var (
		autoApprove bool
		parallelism int
	)

	cmd := &cobra.Command{
		Use:   "apply [path...]",
		Short: "Apply declared resources to AWS",
		Long: `Compute an execution plan and apply it to AWS.

Apply:
  - Plans the declared resources against last-known state
  - Gates the plan through the configured Rego policies
  - Asks for confirmation unless --auto-approve is set
  - Executes actions level by level with bounded parallelism
  - Persists applied state and the run record to the state store`,
		Example: `  # Plan and apply the current directory with confirmation
  terrane apply

  # Apply without the confirmation prompt
  terrane apply ./infra --auto-approve

  # Limit concurrent provider calls
  terrane apply ./infra --parallelism 4`,
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

			plan, _, err := app.computePlan(ctx, sources)
			if err != nil {
				return err
			}

			if !plan.HasChanges() {
				if jsonOutput {
					return printJSON(os.Stdout, plan)
				}
				renderPlan(os.Stdout, plan)
				return nil
			}

			gate, err := app.newPolicyGate(ctx)
			if err != nil {
				return err
			}
			denials, err := app.gatePlan(ctx, gate, plan)
			if err != nil {
				return err
			}
			if len(denials) > 0 {
				renderDenials(os.Stderr, denials)
				return fmt.Errorf("plan denied by %d policy violation(s)", len(denials))
			}

			if !jsonOutput {
				renderPlan(os.Stdout, plan)
			}
			if !autoApprove {
				ok, err := confirm(os.Stdin, os.Stdout)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Apply cancelled.")
					return nil
				}
			}

			registry, err := app.newProviderRegistry(ctx)
			if err != nil {
				return err
			}
			registry = app.tel.InstrumentRegistry(registry)

			// Persist every execution event to the run timeline.
			app.tel.Events.Subscribe(telemetry.StoreSubscriber(app.store, app.tel.Logger))

			maxParallel := app.cfg.MaxParallel
			if parallelism > 0 {
				maxParallel = parallelism
			}
			exec := engine.NewExecutor(registry, app.store, app.tel.Events, engine.ExecutorOptions{
				MaxParallel: maxParallel,
			})

			var run *engine.Run
			err = app.tel.RecordRun(ctx, plan.ID, func(ctx context.Context) (string, string, error) {
				r, applyErr := exec.Apply(ctx, plan)
				run = r
				if r == nil {
					return "", "", applyErr
				}
				return r.ID, string(r.Status), applyErr
			})
			if err != nil {
				return err
			}
			app.recordResourceCounts(ctx)

			if jsonOutput {
				if err := printJSON(os.Stdout, run); err != nil {
					return err
				}
			} else {
				renderRun(os.Stdout, run)
			}

			if run.Status != engine.RunStatusSucceeded {
				return fmt.Errorf("run %s finished with status %s", run.ID, run.Status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "skip the interactive confirmation prompt")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "max concurrent provider calls (0 uses the config value)")

	return cmd
}

// confirm prompts for an explicit "yes" before applying.
func confirm(in *os.File, out *os.File) (bool, error) {
	fmt.Fprint(out, "\nApply these changes? Only 'yes' is accepted: ")
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	return strings.TrimSpace(line) == "yes", nil
}
