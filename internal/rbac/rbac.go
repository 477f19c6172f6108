// Package rbac manages roles and the permission map attached to each role.
package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"loanadmin.org/internal/apperr"
	"loanadmin.org/internal/repo"
	"loanadmin.org/internal/store"
)

// Storage keys.
const (
	RolesKey       = "roles"
	PermissionsKey = "rolePermissions"
)

// Role is a named bundle of permissions.
type Role struct {
	repo.Meta
	RoleName string `json:"role_name"`
}

// RolePermission holds the permission map of one role.
type RolePermission struct {
	repo.Meta
	RoleID      string          `json:"role_id"`
	Permissions map[string]bool `json:"permissions"`
}

// RoleUsage counts the records of other services that reference a role, keyed
// by what they are. org.Service and workflow.Service satisfy it.
type RoleUsage interface {
	RoleReferences(ctx context.Context, roleID string) (map[string]int, error)
}

// Service manages roles and permissions.
type Service struct {
	roles *repo.Collection[Role, *Role]
	perms *repo.Collection[RolePermission, *RolePermission]
	usage []RoleUsage
}

// NewService binds the role collections to kv. hooks observe every write.
func NewService(kv store.KV, hooks ...repo.Hook) *Service {
	s := &Service{
		roles: repo.NewCollection[Role](kv, RolesKey),
		perms: repo.NewCollection[RolePermission](kv, PermissionsKey),
	}
	for _, h := range hooks {
		s.roles.WithHook(h)
		s.perms.WithHook(h)
	}
	return s
}

// WithUsage makes DeleteRole refuse roles that u still reports as referenced.
func (s *Service) WithUsage(u ...RoleUsage) *Service {
	s.usage = append(s.usage, u...)
	return s
}

func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.roles.List(ctx)
}

func (s *Service) GetRole(ctx context.Context, id string) (Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", apperr.ErrInvalidInput)
	}
	return s.roles.Get(ctx, id)
}

// RoleName resolves a role id to its name.
func (s *Service) RoleName(ctx context.Context, id string) (string, bool, error) {
	role, err := s.roles.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return role.RoleName, true, nil
}

func (s *Service) AddRole(ctx context.Context, name string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", apperr.ErrInvalidInput)
	}
	return s.roles.Create(ctx, Role{RoleName: name})
}

func (s *Service) RenameRole(ctx context.Context, id, name string) (Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", apperr.ErrInvalidInput)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", apperr.ErrInvalidInput)
	}
	return s.roles.Update(ctx, id, map[string]any{"role_name": name})
}

func (s *Service) checkUnused(ctx context.Context, id string) error {
	var refs []string
	for _, u := range s.usage {
		counts, err := u.RoleReferences(ctx, id)
		if err != nil {
			return err
		}
		for what, n := range counts {
			if n > 0 {
				refs = append(refs, fmt.Sprintf("%d %s", n, what))
			}
		}
	}
	if len(refs) > 0 {
		sort.Strings(refs)
		return fmt.Errorf("%w: role %s is referenced by %s", apperr.ErrHasDependents, id, strings.Join(refs, ", "))
	}
	return nil
}

// DeleteRole removes the role and then its permission record. Roles still held
// by users or workflow records are refused.
func (s *Service) DeleteRole(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: role_id is required", apperr.ErrInvalidInput)
	}
	if _, err := s.roles.Get(ctx, id); err != nil {
		return err
	}
	if err := s.checkUnused(ctx, id); err != nil {
		return err
	}
	if err := s.roles.Delete(ctx, id); err != nil {
		return err
	}
	_, err := s.perms.Mutate(ctx, func(items []RolePermission) ([]RolePermission, error) {
		kept := items[:0]
		for _, rp := range items {
			if rp.RoleID != id {
				kept = append(kept, rp)
			}
		}
		return kept, nil
	})
	return err
}

// SavePermissions replaces the permission map of a role.
func (s *Service) SavePermissions(ctx context.Context, roleID string, perms map[string]bool) (map[string]bool, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role_id is required", apperr.ErrInvalidInput)
	}
	var unknown []string
	clean := make(map[string]bool, len(perms))
	for k, v := range perms {
		k = strings.TrimSpace(k)
		if !Known(k) {
			unknown = append(unknown, k)
			continue
		}
		clean[k] = v
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: unknown permission keys: %s", apperr.ErrInvalidInput, strings.Join(unknown, ", "))
	}
	if _, err := s.roles.Get(ctx, roleID); err != nil {
		return nil, err
	}
	_, err := s.perms.Mutate(ctx, func(items []RolePermission) ([]RolePermission, error) {
		for i := range items {
			if items[i].RoleID == roleID {
				items[i].Permissions = clean
				return items, nil
			}
		}
		return append(items, RolePermission{RoleID: roleID, Permissions: clean}), nil
	})
	if err != nil {
		return nil, err
	}
	return copyPerms(clean), nil
}

// Permissions returns the permission map of a role, or an empty map when none is stored.
func (s *Service) Permissions(ctx context.Context, roleID string) (map[string]bool, error) {
	rp, ok, err := s.perms.Find(ctx, func(rp RolePermission) bool { return rp.RoleID == roleID })
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]bool{}, nil
	}
	return copyPerms(rp.Permissions), nil
}

// Allowed reports whether the role grants key.
func (s *Service) Allowed(ctx context.Context, roleID, key string) (bool, error) {
	perms, err := s.Permissions(ctx, roleID)
	if err != nil {
		return false, err
	}
	return perms[key], nil
}

func copyPerms(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
