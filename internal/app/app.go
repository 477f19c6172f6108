// Package app opens the configured store and wires the services over it.
package app

import (
	"context"
	"fmt"

	"loanadmin.org/internal/audit"
	"loanadmin.org/internal/config"
	"loanadmin.org/internal/migrate"
	"loanadmin.org/internal/obs"
	"loanadmin.org/internal/org"
	"loanadmin.org/internal/policy"
	"loanadmin.org/internal/rbac"
	"loanadmin.org/internal/seed"
	"loanadmin.org/internal/store"
	"loanadmin.org/internal/store/file"
	"loanadmin.org/internal/store/pg"
	"loanadmin.org/internal/store/redis"
	"loanadmin.org/internal/store/sqlite"
	"loanadmin.org/internal/workflow"
)

// Store is a KV backend that can report its connectivity.
type Store interface {
	store.KV
	store.Pinger
}

func noClose() error { return nil }

// OpenStore opens the backend named by cfg.Store. SQL backends are migrated
// before they are returned. The close func is never nil.
func OpenStore(ctx context.Context, cfg config.Config) (Store, func() error, error) {
	switch cfg.Store {
	case config.StoreMemory, "":
		return store.NewMemory(), noClose, nil
	case config.StoreFile:
		s, err := file.Open(cfg.StoreDir)
		if err != nil {
			return nil, nil, err
		}
		return s, noClose, nil
	case config.StoreSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := migrate.Up(ctx, s.DB(), migrate.DialectSQLite); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StorePostgres:
		s, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := migrate.Up(ctx, s.DB(), migrate.DialectPostgres); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StoreRedis:
		s, err := redis.Open(cfg.RedisAddr, cfg.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// Services is every domain service sharing one store and one audit trail.
type Services struct {
	KV       Store
	Trail    *audit.Trail
	History  *audit.History
	Roles    *rbac.Service
	Policy   *policy.Service
	Org      *org.Service
	Workflow *workflow.Service
}

func NewServices(kv Store, cfg config.Config) *Services {
	trail := audit.NewTrail(kv, cfg.AuditLimit)
	hook := trail.Hook()

	roles := rbac.NewService(kv, hook)
	pol := policy.NewService(kv, hook)
	opts := []org.Option{
		org.WithHook(hook),
		org.WithRoles(roles),
		org.WithPasswordPolicy(pol),
	}
	if !cfg.StrictReferences {
		opts = append(opts, org.WithLenientNames())
	}
	orgs := org.NewService(kv, opts...)
	wf := workflow.NewService(kv, hook).WithRoles(roles)
	roles.WithUsage(orgs, wf)
	return &Services{
		KV:       kv,
		Trail:    trail,
		History:  audit.NewHistory(kv, cfg.AuditLimit),
		Roles:    roles,
		Policy:   pol,
		Org:      orgs,
		Workflow: wf,
	}
}

func (s *Services) Seeder() seed.Seeder {
	return seed.Seeder{Org: s.Org, Roles: s.Roles, Workflow: s.Workflow, Policy: s.Policy}
}

// SeedFile loads the fixture at path and applies it.
func (s *Services) SeedFile(ctx context.Context, path string) (seed.Report, error) {
	fx, err := seed.Load(path)
	if err != nil {
		return seed.Report{}, err
	}
	rep, err := s.Seeder().Apply(ctx, fx)
	if err != nil {
		return rep, fmt.Errorf("seed %s: %w", path, err)
	}
	obs.Logger().WithField("file", path).Debug("seed file applied")
	return rep, nil
}
