package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/legamerdc/todostore/store"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the task list whenever it is changed by someone else",
		Long: `Print the task list, then print it again every time another process
changes it. With the scoped backend, which has no change notifications, the
document is checked every --interval instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, rootOpts, interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "check interval for the scoped backend")
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, rootOpts *RootOptions, interval time.Duration) error {
	changed := make(chan struct{}, 1)
	notify := func(string) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	s, err := openSession(ctx, rootOpts)
	if err != nil {
		return err
	}
	defer s.Close()

	// the document resets its cache before notify wakes the loop
	doc := store.NewDocument(s.store, s.todo)
	s.store.OnExternalChange(notify)
	out := cmd.OutOrStdout()
	printLines(out, doc.Lines(ctx))

	var tick <-chan time.Time
	if s.store.Kind() == store.ScopedDocument {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		case <-tick:
			if !doc.Refresh(ctx) {
				continue
			}
		}
		fmt.Fprintln(out, "---")
		printLines(out, doc.Lines(ctx))
	}
}
