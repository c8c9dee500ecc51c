package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/terrane-io/terrane/pkg/config"
	"github.com/terrane-io/terrane/pkg/engine"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [path...]",
		Short: "Validate CUE declaration files",
		Long: `Validate CUE declaration files without touching AWS or the state store.

This command checks:
  - CUE syntax validity
  - Declaration schema conformance (identity, type, attributes)
  - Starlark template evaluation
  - Identity uniqueness across the set`,
		Example: `  # Validate declarations in the current directory
  terrane validate

  # Validate a specific directory and file
  terrane validate ./infra ./extra.cue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sources := args
			if len(sources) == 0 {
				sources = []string{"."}
			}

			parser := config.NewCUEParser()
			set, err := parser.Load(cmd.Context(), sources)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(os.Stdout, set)
			}

			if len(set.Errors) > 0 {
				for _, verr := range set.Errors {
					fmt.Fprintf(os.Stderr, "error: %s\n", verr.String())
				}
				return engine.NewPermanentError(
					fmt.Sprintf("%d validation error(s)", len(set.Errors)), nil).
					WithCode(engine.ErrCodeValidation)
			}

			fmt.Printf("OK: %d declaration(s) in %d file(s)\n", len(set.Declarations), len(set.SourceFiles))
			return nil
		},
	}

	return cmd
}
