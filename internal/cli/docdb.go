package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/legamerdc/todostore/internal/config"
	"github.com/legamerdc/todostore/internal/docdb"
	"github.com/legamerdc/todostore/store"
)

// NewDocDBCommand creates the docdb command group that manages the scoped
// backend's root and its grant.
func NewDocDBCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docdb",
		Short: "Manage the scoped document database",
	}

	run := func(action func(cmd *cobra.Command, db *docdb.DB, root store.Handle) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Scoped.Database), 0o755); err != nil {
				return err
			}
			db, err := docdb.Open(cfg.Scoped.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			root, err := db.MkRoot(cmd.Context(), cfg.Scoped.Root)
			if err != nil {
				return err
			}
			return action(cmd, db, root)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "root",
			Short: "Print the handle of the configured root",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, db *docdb.DB, root store.Handle) error {
				fmt.Fprintln(cmd.OutOrStdout(), root)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "grant",
			Short: "Grant access to the configured root",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, db *docdb.DB, root store.Handle) error {
				return db.Grant(cmd.Context(), root)
			}),
		},
		&cobra.Command{
			Use:   "revoke",
			Short: "Revoke access to the configured root",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, db *docdb.DB, root store.Handle) error {
				return db.Revoke(cmd.Context(), root)
			}),
		},
	)
	return cmd
}
