package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/legamerdc/todostore/store"
)

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	var showMarker bool
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Print the task list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := false
			s, err := openSession(cmd.Context(), rootOpts, store.WithAuthFailed(func() { failed = true }))
			if err != nil {
				return err
			}
			defer s.Close()

			lines := s.store.Load(cmd.Context(), s.todo)
			if err := denied(&failed); err != nil {
				return err
			}
			printLines(cmd.OutOrStdout(), lines)
			if showMarker {
				fmt.Fprintf(cmd.ErrOrStderr(), "marker: %s\n", s.store.LastSeen())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showMarker, "marker", false, "print the document marker to stderr")
	return cmd
}

// NewSaveCommand creates the save command.
func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Replace the task list with lines read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := readLines(cmd.InOrStdin())
			if err != nil {
				return err
			}
			failed := false
			s, err := openSession(cmd.Context(), rootOpts, store.WithAuthFailed(func() { failed = true }))
			if err != nil {
				return err
			}
			defer s.Close()

			_, ok := s.store.Save(cmd.Context(), s.todo, lines, s.cfg.EOL)
			if err := denied(&failed); err != nil {
				return err
			}
			if !ok {
				return errSaveFailed
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "marker: %s\n", s.store.LastSeen())
			return nil
		},
	}
}

// NewAppendCommand creates the append command.
func NewAppendCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "append",
		Short: "Append lines read from stdin to the done file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := readLines(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				return nil
			}
			failed := false
			s, err := openSession(cmd.Context(), rootOpts, store.WithAuthFailed(func() { failed = true }))
			if err != nil {
				return err
			}
			defer s.Close()

			s.store.Append(cmd.Context(), s.done, lines, s.cfg.EOL)
			return denied(&failed)
		},
	}
}

// NewNeedSyncCommand creates the needsync command.
func NewNeedSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "needsync",
		Short: "Report whether the task list changed since --since",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			fmt.Fprintln(cmd.OutOrStdout(), s.store.NeedSync(cmd.Context(), s.todo))
			return nil
		},
	}
}

// NewListCommand creates the ls command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var txtOnly bool
	cmd := &cobra.Command{
		Use:   "ls [dir]",
		Short: "List a directory for choosing a todo file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := false
			s, err := openSession(cmd.Context(), rootOpts, store.WithAuthFailed(func() { failed = true }))
			if err != nil {
				return err
			}
			defer s.Close()

			dir := s.cfg.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			entries := s.store.List(cmd.Context(), dir, txtOnly)
			if err := denied(&failed); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				if e.IsDir {
					fmt.Fprintf(out, "%s/\n", e.Path)
				} else {
					fmt.Fprintln(out, e.Path)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&txtOnly, "txt", false, "only list .txt files")
	return cmd
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, strings.TrimSuffix(sc.Text(), "\r"))
	}
	return lines, sc.Err()
}

func printLines(w io.Writer, lines []string) {
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}
