package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"loanadmin.org/internal/config"
	"loanadmin.org/internal/migrate"
	"loanadmin.org/internal/obs"
	"loanadmin.org/internal/store/pg"
	"loanadmin.org/internal/store/sqlite"
)

type rootOptions struct {
	store      string
	dsn        string
	sqlitePath string
	storeDir   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Schema migrations and fixture seeding for loanadmin",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := cmd.PersistentFlags()
	f.StringVar(&opts.store, "store", "", "backend: memory, file, sqlite, postgres or redis (default from LOANADMIN_STORE)")
	f.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (default from LOANADMIN_PG_DSN)")
	f.StringVar(&opts.sqlitePath, "sqlite-path", "", "SQLite database path (default from LOANADMIN_SQLITE_PATH)")
	f.StringVar(&opts.storeDir, "store-dir", "", "file store directory (default from LOANADMIN_STORE_DIR)")

	cmd.AddCommand(
		newUpCmd(opts),
		newDownCmd(opts),
		newStatusCmd(opts),
		newSeedCmd(opts),
	)
	return cmd
}

// config loads the environment with the flags taking precedence. Flags are
// exported before loading so .env files cannot override them.
func (o *rootOptions) config() (config.Config, error) {
	overrides := map[string]string{
		"LOANADMIN_STORE":       o.store,
		"LOANADMIN_PG_DSN":      o.dsn,
		"LOANADMIN_SQLITE_PATH": o.sqlitePath,
		"LOANADMIN_STORE_DIR":   o.storeDir,
	}
	for name, v := range overrides {
		if v == "" {
			continue
		}
		if err := os.Setenv(name, v); err != nil {
			return config.Config{}, err
		}
	}
	return config.Load()
}

// manager opens the SQL backend named by the config. The returned closer
// releases both the goose provider and the database.
func (o *rootOptions) manager() (*migrate.Manager, io.Closer, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, nil, err
	}
	var (
		db      *sql.DB
		closer  io.Closer
		dialect string
	)
	switch cfg.Store {
	case config.StoreSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		db, closer, dialect = s.DB(), s, migrate.DialectSQLite
	case config.StorePostgres:
		s, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		db, closer, dialect = s.DB(), s, migrate.DialectPostgres
	default:
		return nil, nil, fmt.Errorf("store %q has no schema to migrate", cfg.Store)
	}
	m, err := migrate.NewManager(db, dialect)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	obs.Logger().WithField("store", cfg.Store).Debug("migration target opened")
	return m, closerFunc(func() error {
		_ = m.Close()
		return closer.Close()
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func withManager(o *rootOptions, fn func(ctx context.Context, m *migrate.Manager) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		m, closer, err := o.manager()
		if err != nil {
			return err
		}
		defer closer.Close()
		return fn(cmd.Context(), m)
	}
}
