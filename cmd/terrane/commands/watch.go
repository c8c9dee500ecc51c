package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func newWatchCommand() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch [path...]",
		Short: "Re-plan whenever declaration files change",
		Long: `Watch the declaration sources and recompute the plan on every change.

Watch never applies anything. It is a feedback loop for editing
declarations: save a file, see the resulting plan.`,
		Example: `  # Watch the current directory
  terrane watch

  # Watch a specific directory with a longer settle time
  terrane watch ./infra --debounce 2s`,
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

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			defer watcher.Close()

			for _, source := range sources {
				dir := source
				if info, err := os.Stat(source); err == nil && !info.IsDir() {
					dir = filepath.Dir(source)
				}
				if err := watcher.Add(dir); err != nil {
					return fmt.Errorf("failed to watch %s: %w", dir, err)
				}
			}

			replan := func() {
				plan, _, err := app.computePlan(ctx, sources)
				if err != nil {
					fmt.Fprintf(os.Stderr, "plan failed: %v\n", err)
					return
				}
				fmt.Printf("--- %s ---\n", time.Now().Format("15:04:05"))
				renderPlan(os.Stdout, plan)
			}
			replan()

			var timer *time.Timer
			pending := make(chan struct{}, 1)
			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if !strings.HasSuffix(event.Name, ".cue") {
						continue
					}
					if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
						continue
					}
					// Editors fire bursts of events per save; let them settle.
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(debounce, func() {
						select {
						case pending <- struct{}{}:
						default:
						}
					})
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					app.tel.Logger.WithError(err).Warn("watcher error")
				case <-pending:
					replan()
				}
			}
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "settle time after a change before re-planning")

	return cmd
}
