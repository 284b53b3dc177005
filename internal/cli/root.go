package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/legamerdc/todostore/internal/access"
	"github.com/legamerdc/todostore/internal/config"
	"github.com/legamerdc/todostore/internal/docdb"
	"github.com/legamerdc/todostore/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	File       string
	Since      string
}

// NewRootCommand creates the root command of the todostore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "todostore",
		Short: "Keep a todo.txt in sync with its storage",
		Long: `todostore reads and writes a todo.txt task list stored either as a plain
file or as a document in a permission-scoped document database, and reports
when someone else changes it.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if opts.Verbose {
				level = slog.LevelDebug
			}
			handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
			slog.SetDefault(slog.New(handler))
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", config.DefaultPath(), "config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVarP(&opts.File, "file", "f", "", "todo file path (direct backend), overrides todo_file")
	cmd.PersistentFlags().StringVar(&opts.Since, "since", "", "marker of a previous load or save")

	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewSaveCommand(opts))
	cmd.AddCommand(NewAppendCommand(opts))
	cmd.AddCommand(NewNeedSyncCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewDocDBCommand(opts))

	return cmd
}

// session is a Store opened from the configuration.
type session struct {
	cfg   *config.Config
	store *store.Store
	todo  store.Location
	done  store.Location
	db    *docdb.DB
}

func (s *session) Close() {
	_ = s.store.Close()
	if s.db != nil {
		_ = s.db.Close()
	}
}

var (
	errNotGranted = errors.New("storage access not granted")
	errSaveFailed = errors.New("save failed, see log")
)

func openSession(ctx context.Context, opts *RootOptions, extra ...store.Option) (*session, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	log := slog.Default()
	storeOpts := []store.Option{
		store.WithLogger(log),
		store.WithGracePeriod(cfg.GracePeriod),
		store.WithAuthFailed(func() {
			log.Error("store: access denied", slog.Any("err", errNotGranted))
		}),
	}
	if opts.Since != "" {
		storeOpts = append(storeOpts, store.WithLastSeen(store.Marker(opts.Since)))
	}
	storeOpts = append(storeOpts, extra...)

	switch cfg.Backend {
	case config.BackendScoped:
		if err := os.MkdirAll(filepath.Dir(cfg.Scoped.Database), 0o755); err != nil {
			return nil, err
		}
		db, err := docdb.Open(cfg.Scoped.Database)
		if err != nil {
			return nil, err
		}
		root, err := db.MkRoot(ctx, cfg.Scoped.Root)
		if err != nil {
			db.Close()
			return nil, err
		}
		backend := store.NewScopedBackend(db, root)
		return &session{
			cfg:   cfg,
			store: store.New(backend, access.GrantGate(db, root), storeOpts...),
			todo:  backend.Default(cfg.TodoFile),
			done:  backend.Default(cfg.DoneFile),
			db:    db,
		}, nil
	default:
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, err
		}
		var notifier store.Notifier = store.NewFSNotifier(log)
		if cfg.Watch.Mode == config.WatchPoll {
			notifier = store.NewPollNotifier(cfg.Watch.PollInterval)
		}
		storeOpts = append([]store.Option{store.WithNotifier(notifier)}, storeOpts...)
		backend := store.NewDirectBackend(cfg.Dir)
		todo := backend.Default(cfg.TodoFile)
		if opts.File != "" {
			todo = store.PathLocation(opts.File)
		}
		return &session{
			cfg:   cfg,
			store: store.New(backend, access.DirGate(cfg.Dir), storeOpts...),
			todo:  todo,
			done:  store.PathLocation(filepath.Join(filepath.Dir(todo.Path), cfg.DoneFile)),
		}, nil
	}
}

// denied turns the auth-failed signal of the last operation into an error
// for the command's exit status.
func denied(authFailed *bool) error {
	if *authFailed {
		return fmt.Errorf("%w: run 'todostore docdb grant' or check directory permissions", errNotGranted)
	}
	return nil
}
