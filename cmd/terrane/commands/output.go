package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/terrane-io/terrane/pkg/engine"
)

// opSymbol maps plan operations to their one-character markers.
func opSymbol(op engine.ActionType) string {
	switch op {
	case engine.ActionCreate:
		return "+"
	case engine.ActionUpdate:
		return "~"
	case engine.ActionDelete:
		return "-"
	default:
		return " "
	}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderPlan writes a human-readable plan listing.
func renderPlan(w io.Writer, plan *engine.Plan) {
	if !plan.HasChanges() {
		fmt.Fprintf(w, "No changes. %d resource(s) up to date.\n", plan.Summary.Noop)
		return
	}

	for _, action := range plan.Actions {
		if action.Op == engine.ActionNoop {
			continue
		}
		fmt.Fprintf(w, "%s %s (%s)\n", opSymbol(action.Op), action.Identity, action.Type)
		for _, change := range action.Diff {
			switch action.Op {
			case engine.ActionCreate:
				fmt.Fprintf(w, "    %s = %v\n", change.Path, change.After)
			case engine.ActionDelete:
				fmt.Fprintf(w, "    %s = %v -> (destroyed)\n", change.Path, change.Before)
			default:
				fmt.Fprintf(w, "    %s = %v -> %v\n", change.Path, change.Before, change.After)
			}
		}
	}

	fmt.Fprintf(w, "\nPlan: %d to create, %d to update, %d to delete, %d unchanged.\n",
		plan.Summary.Create, plan.Summary.Update, plan.Summary.Delete, plan.Summary.Noop)
}

// renderRun writes the per-resource outcomes and the run summary.
func renderRun(w io.Writer, run *engine.Run) {
	for _, result := range run.Results {
		if result.Err != nil {
			fmt.Fprintf(w, "%s %s: %s (%s)\n", opSymbol(result.Op), result.Identity, result.Status, result.Err.Message)
			continue
		}
		fmt.Fprintf(w, "%s %s: %s\n", opSymbol(result.Op), result.Identity, result.Status)
	}

	fmt.Fprintf(w, "\nRun %s %s: %d created, %d updated, %d deleted, %d failed, %d skipped, %d unchanged.\n",
		run.ID, run.Status,
		run.Summary.Created, run.Summary.Updated, run.Summary.Deleted,
		run.Summary.Failed, run.Summary.Skipped, run.Summary.Unchanged)
}

// renderDenials writes policy denial reasons.
func renderDenials(w io.Writer, denials []string) {
	fmt.Fprintf(w, "Plan denied by policy:\n")
	for _, reason := range denials {
		fmt.Fprintf(w, "  - %s\n", reason)
	}
}
