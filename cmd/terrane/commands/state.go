package commands

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and edit the state store",
		Long: `Inspect and edit the local SQLite state store.

State commands never call AWS. Removing a record only forgets the
resource; the next plan will propose creating it again.`,
	}

	cmd.AddCommand(newStateListCommand())
	cmd.AddCommand(newStateShowCommand())
	cmd.AddCommand(newStateRemoveCommand())
	cmd.AddCommand(newStateRunsCommand())

	return cmd
}

func newStateListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tracked resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newAppContext(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			records, err := app.store.Load(ctx)
			if err != nil {
				return err
			}

			identities := make([]string, 0, len(records))
			for identity := range records {
				identities = append(identities, identity)
			}
			sort.Strings(identities)

			if jsonOutput {
				ordered := make([]any, 0, len(identities))
				for _, identity := range identities {
					ordered = append(ordered, records[identity])
				}
				return printJSON(os.Stdout, ordered)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "IDENTITY\tTYPE\tPROVIDER ID\tAPPLIED AT")
			for _, identity := range identities {
				r := records[identity]
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					r.Identity, r.Type, r.ProviderID, r.AppliedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
}

func newStateShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <identity>",
		Short: "Show the full state record for one resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newAppContext(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			record, err := app.store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if record == nil {
				return fmt.Errorf("no state record for %q", args[0])
			}
			return printJSON(os.Stdout, record)
		},
	}
}

func newStateRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <identity>",
		Short: "Forget a resource without deleting it",
		Long: `Remove a resource's state record. The underlying AWS resource is left
untouched; a subsequent plan will propose creating it again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newAppContext(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			record, err := app.store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if record == nil {
				return fmt.Errorf("no state record for %q", args[0])
			}
			if err := app.store.Remove(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed %s (%s) from state.\n", record.Identity, record.Type)
			return nil
		},
	}
}

func newStateRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newAppContext(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			runs, err := app.store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(os.Stdout, runs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tSTATUS\tSTARTED AT\tCREATED\tUPDATED\tDELETED\tFAILED")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
					run.ID, run.Status, run.StartedAt.Format("2006-01-02 15:04:05"),
					run.Summary.Created, run.Summary.Updated, run.Summary.Deleted, run.Summary.Failed)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")

	return cmd
}
