// dogshell is a terminal client for the dog catalog.
//
// Usage:
//
//	dogshell shell     Start an interactive session
//	dogshell breeds    Print every breed and exit
//
// The shell keeps its catalog session in the configured session store, so a
// later run resumes without a new login while the session is still valid.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/simp-lee/logger"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/simp-lee/dogmatch/internal/config"
	"github.com/simp-lee/dogmatch/internal/session"
	"github.com/simp-lee/dogmatch/internal/workspace"
)

const (
	shellWorkspaceID = "shell"
	defaultFilePath  = "data/session.json"
)

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "dogshell: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "dogshell",
		Short:        "Browse shelter dogs from the terminal",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to configuration file")
	cmd.AddCommand(newShellCmd(), newBreedsCmd())
	return cmd
}

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive search session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer env.close()

			sh := newShell(env.ws, cmd.OutOrStdout())
			return sh.run(cmd.Context())
		},
	}
}

func newBreedsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "breeds",
		Short: "List every breed in the catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer env.close()

			if !env.ws.Authenticated(cmd.Context()) {
				return errors.New("not logged in: run 'dogshell shell' and use 'login' first")
			}
			breeds, err := env.ws.Search.Breeds(cmd.Context())
			if err != nil {
				return err
			}
			for _, b := range breeds {
				fmt.Fprintln(cmd.OutOrStdout(), b)
			}
			return nil
		},
	}
}

// env is everything a command needs, opened from the configuration.
type env struct {
	ws  *workspace.Workspace
	db  *gorm.DB
	log *logger.Logger
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// Logs go to stderr so they never mix with command output.
	log, err := config.SetupLogger(&cfg.Log, logger.WithConsoleWriter(os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	e := &env{log: log}
	store, err := e.store(cfg)
	if err != nil {
		e.close()
		return nil, err
	}

	e.ws, err = workspace.Open(ctx, shellWorkspaceID, store, workspace.Options{
		CatalogBaseURL: cfg.Catalog.BaseURL,
		CatalogTimeout: cfg.CatalogTimeout(),
		PageSize:       cfg.Catalog.PageSize,
		ChunkSize:      cfg.Catalog.ChunkSize,
		Logger:         log.Logger,
		Context:        ctx,
	})
	if err != nil {
		e.close()
		return nil, err
	}
	return e, nil
}

// store picks the session store. The in-memory store would forget the
// session on exit, so the shell falls back to a file.
func (e *env) store(cfg *config.Config) (session.Store, error) {
	if cfg.Session.Store == config.StoreDatabase {
		db, err := config.SetupDatabase(&cfg.Database, e.log.Logger)
		if err != nil {
			return nil, fmt.Errorf("setup database: %w", err)
		}
		e.db = db
		if err := session.Migrate(db); err != nil {
			return nil, err
		}
		return session.NewDBStore(db, session.ScopeFor(shellWorkspaceID)), nil
	}

	path := cfg.Session.FilePath
	if path == "" {
		path = defaultFilePath
	}
	return session.NewFileStore(path), nil
}

func (e *env) close() {
	if e.ws != nil {
		e.ws.Close()
	}
	if e.db != nil {
		if err := config.CloseDatabase(e.db); err != nil {
			e.log.Error("close database", slog.Any("error", err))
		}
	}
	if e.log != nil {
		_ = e.log.Close()
	}
}
