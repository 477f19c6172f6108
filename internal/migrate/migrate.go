// Package migrate applies the embedded schema migrations with goose.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/pressly/goose/v3"

	"loanadmin.org/internal/obs"
)

//go:embed sql
var migrations embed.FS

// Supported dialects.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Manager runs migrations for one database handle.
type Manager struct {
	provider *goose.Provider
}

// NewManager prepares a goose provider over the migrations for dialect.
func NewManager(db *sql.DB, dialect string) (*Manager, error) {
	if db == nil {
		return nil, errors.New("migrate: database handle is required")
	}
	var gooseDialect goose.Dialect
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case DialectPostgres:
		gooseDialect = goose.DialectPostgres
		dialect = DialectPostgres
	case DialectSQLite:
		gooseDialect = goose.DialectSQLite3
		dialect = DialectSQLite
	default:
		return nil, fmt.Errorf("migrate: unsupported dialect %q", dialect)
	}
	fsys, err := fs.Sub(migrations, "sql/"+dialect)
	if err != nil {
		return nil, err
	}
	p, err := goose.NewProvider(gooseDialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Manager{provider: p}, nil
}

// Up applies every pending migration.
func (m *Manager) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	for _, r := range results {
		obs.Logger().WithFields(map[string]any{
			"version":  r.Source.Version,
			"duration": r.Duration.String(),
		}).Info("migration applied")
	}
	return err
}

// Down rolls back the most recent migration.
func (m *Manager) Down(ctx context.Context) error {
	r, err := m.provider.Down(ctx)
	if err != nil {
		return err
	}
	if r != nil {
		obs.Logger().WithField("version", r.Source.Version).Info("migration rolled back")
	}
	return nil
}

// Status lists every known migration as "<version> <state>".
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(statuses))
	for _, st := range statuses {
		line := fmt.Sprintf("%05d %s", st.Source.Version, st.State)
		if !st.AppliedAt.IsZero() {
			line += " " + st.AppliedAt.UTC().Format("2006-01-02T15:04:05Z")
		}
		out = append(out, line)
	}
	return out, nil
}

// Close releases the provider.
func (m *Manager) Close() error { return m.provider.Close() }

// Up is a convenience wrapper that brings db fully up to date.
func Up(ctx context.Context, db *sql.DB, dialect string) error {
	m, err := NewManager(db, dialect)
	if err != nil {
		return err
	}
	return m.Up(ctx)
}
