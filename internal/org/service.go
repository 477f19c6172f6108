// Package org manages the organization hierarchy, its users and the records
// that place staff and modules inside it.
package org

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"loanadmin.org/internal/apperr"
	"loanadmin.org/internal/repo"
	"loanadmin.org/internal/resolve"
	"loanadmin.org/internal/store"
)

// RoleLookup resolves role ids. rbac.Service satisfies it.
type RoleLookup interface {
	RoleName(ctx context.Context, id string) (string, bool, error)
}

// PasswordPolicy judges new passwords. policy.Service satisfies it.
type PasswordPolicy interface {
	CheckPassword(ctx context.Context, password string) error
}

const defaultMinPasswordLength = 6

// Option configures a Service.
type Option func(*Service)

// WithHook registers h on every collection of the service.
func WithHook(h repo.Hook) Option {
	return func(s *Service) { s.hooks = append(s.hooks, h) }
}

// WithRoles makes user writes check that the role exists.
func WithRoles(r RoleLookup) Option {
	return func(s *Service) { s.roles = r }
}

// WithPasswordPolicy checks new passwords against p instead of the built-in minimum length.
func WithPasswordPolicy(p PasswordPolicy) Option {
	return func(s *Service) { s.passwords = p }
}

// WithLenientNames lets assignment writes store ids that do not resolve, with an
// empty name, and skips the hierarchy membership checks.
func WithLenientNames() Option {
	return func(s *Service) { s.lenient = true }
}

// WithClock replaces the timestamp source of every collection.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the organization hierarchy service.
type Service struct {
	orgs        *repo.Collection[Organization, *Organization]
	branches    *repo.Collection[Branch, *Branch]
	departments *repo.Collection[Department, *Department]
	users       *repo.Collection[User, *User]
	assignments *repo.Collection[StaffAssignment, *StaffAssignment]
	access      *repo.Collection[ModuleAccess, *ModuleAccess]

	// tree serializes writes that check a parent or a child in another collection.
	tree sync.Mutex

	hooks     []repo.Hook
	roles     RoleLookup
	passwords PasswordPolicy
	lenient   bool
	now       func() time.Time
}

func NewService(kv store.KV, opts ...Option) *Service {
	s := &Service{
		orgs:        repo.NewCollection[Organization](kv, OrganizationsKey),
		branches:    repo.NewCollection[Branch](kv, BranchesKey),
		departments: repo.NewCollection[Department](kv, DepartmentsKey),
		users:       repo.NewCollection[User](kv, UsersKey),
		assignments: repo.NewCollection[StaffAssignment](kv, AssignmentsKey),
		access:      repo.NewCollection[ModuleAccess](kv, ModuleAccessKey),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, h := range s.hooks {
		s.orgs.WithHook(h)
		s.branches.WithHook(h)
		s.departments.WithHook(h)
		s.users.WithHook(h)
		s.assignments.WithHook(h)
		s.access.WithHook(h)
	}
	s.orgs.WithClock(s.now)
	s.branches.WithClock(s.now)
	s.departments.WithClock(s.now)
	s.users.WithClock(s.now)
	s.assignments.WithClock(s.now)
	s.access.WithClock(s.now)
	return s
}

func trimPtr(p *string) {
	if p != nil {
		*p = strings.TrimSpace(*p)
	}
}

func (s *Service) lockTree() func() {
	s.tree.Lock()
	return s.tree.Unlock
}

// dangling converts a missing parent into ErrDanglingReference.
func dangling(err error, what, id string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: %s %s does not exist", apperr.ErrDanglingReference, what, id)
	}
	return err
}

// Organizations

func (s *Service) ListOrganizations(ctx context.Context) ([]Organization, error) {
	return s.orgs.List(ctx)
}

func (s *Service) GetOrganization(ctx context.Context, id string) (Organization, error) {
	return s.orgs.Get(ctx, id)
}

// SearchOrganizations ranks organizations by fuzzy name match.
func (s *Service) SearchOrganizations(ctx context.Context, query string) ([]Organization, error) {
	items, err := s.orgs.List(ctx)
	if err != nil {
		return nil, err
	}
	return resolve.Search(items, query, func(o Organization) string { return o.Name }), nil
}

func (s *Service) AddOrganization(ctx context.Context, o Organization) (Organization, error) {
	o.Name = strings.TrimSpace(o.Name)
	o.Email = strings.TrimSpace(o.Email)
	o.LoanPrefix = strings.ToUpper(strings.TrimSpace(o.LoanPrefix))
	if err := apperr.Validate(o); err != nil {
		return Organization{}, err
	}
	return s.orgs.Create(ctx, o)
}

func (s *Service) UpdateOrganization(ctx context.Context, id string, upd OrganizationUpdate) (Organization, error) {
	trimPtr(upd.Name)
	trimPtr(upd.Email)
	if upd.Name != nil && *upd.Name == "" {
		return Organization{}, fmt.Errorf("%w: name is required", apperr.ErrInvalidInput)
	}
	if upd.Email != nil && *upd.Email != "" {
		if err := apperr.Validate(struct {
			Email string `json:"email" validate:"email"`
		}{*upd.Email}); err != nil {
			return Organization{}, err
		}
	}
	if upd.LoanPrefix != nil {
		p := strings.ToUpper(strings.TrimSpace(*upd.LoanPrefix))
		upd.LoanPrefix = &p
	}
	return s.orgs.Update(ctx, id, upd)
}

// DeleteOrganization refuses while branches or departments still reference the organization.
func (s *Service) DeleteOrganization(ctx context.Context, id string) error {
	defer s.lockTree()()
	if _, err := s.orgs.Get(ctx, id); err != nil {
		return err
	}
	branches, err := s.BranchesByOrganization(ctx, id)
	if err != nil {
		return err
	}
	if n := len(branches); n > 0 {
		return fmt.Errorf("%w: organization %s has %d branches", apperr.ErrHasDependents, id, n)
	}
	depts, err := s.DepartmentsByOrganization(ctx, id)
	if err != nil {
		return err
	}
	if n := len(depts); n > 0 {
		return fmt.Errorf("%w: organization %s has %d departments", apperr.ErrHasDependents, id, n)
	}
	return s.orgs.Delete(ctx, id)
}

// Branches

func (s *Service) ListBranches(ctx context.Context) ([]Branch, error) {
	return s.branches.List(ctx)
}

func (s *Service) GetBranch(ctx context.Context, id string) (Branch, error) {
	return s.branches.Get(ctx, id)
}

// BranchesByOrganization returns the branches whose organization_id equals orgID.
func (s *Service) BranchesByOrganization(ctx context.Context, orgID string) ([]Branch, error) {
	items, err := s.branches.List(ctx)
	if err != nil {
		return nil, err
	}
	return resolve.ChildrenOf(items, func(b Branch) string { return b.OrganizationID }, orgID), nil
}

func (s *Service) AddBranch(ctx context.Context, b Branch) (Branch, error) {
	defer s.lockTree()()
	b.OrganizationID = strings.TrimSpace(b.OrganizationID)
	b.Name = strings.TrimSpace(b.Name)
	if err := apperr.Validate(b); err != nil {
		return Branch{}, err
	}
	o, err := s.orgs.Get(ctx, b.OrganizationID)
	if err != nil {
		return Branch{}, dangling(err, "organization", b.OrganizationID)
	}
	b.OrganizationName = o.Name
	return s.branches.Create(ctx, b)
}

// UpdateBranch re-snapshots the organization name when the branch moves. A
// branch that still has departments, module grants or placed users cannot
// change organization, since those records carry the organization id too.
func (s *Service) UpdateBranch(ctx context.Context, id string, upd BranchUpdate) (Branch, error) {
	trimPtr(upd.Name)
	trimPtr(upd.OrganizationID)
	if upd.Name != nil && *upd.Name == "" {
		return Branch{}, fmt.Errorf("%w: name is required", apperr.ErrInvalidInput)
	}
	defer s.lockTree()()
	cur, err := s.branches.Get(ctx, id)
	if err != nil {
		return Branch{}, err
	}
	patch := struct {
		BranchUpdate
		OrganizationName *string `json:"organization_name,omitempty"`
	}{BranchUpdate: upd}
	if upd.OrganizationID != nil {
		if *upd.OrganizationID == "" {
			return Branch{}, fmt.Errorf("%w: organization_id is required", apperr.ErrInvalidInput)
		}
		o, err := s.orgs.Get(ctx, *upd.OrganizationID)
		if err != nil {
			return Branch{}, dangling(err, "organization", *upd.OrganizationID)
		}
		if o.ID != cur.OrganizationID {
			if err := s.checkBranchMovable(ctx, id); err != nil {
				return Branch{}, err
			}
		}
		patch.OrganizationName = &o.Name
	}
	return s.branches.Update(ctx, id, patch)
}

func (s *Service) checkBranchMovable(ctx context.Context, id string) error {
	depts, err := s.DepartmentsByBranch(ctx, id)
	if err != nil {
		return err
	}
	if n := len(depts); n > 0 {
		return fmt.Errorf("%w: branch %s has %d departments and cannot change organization", apperr.ErrHasDependents, id, n)
	}
	grants, err := s.access.Filter(ctx, func(m ModuleAccess) bool { return m.BranchID == id })
	if err != nil {
		return err
	}
	if n := len(grants); n > 0 {
		return fmt.Errorf("%w: branch %s has %d module grants and cannot change organization", apperr.ErrHasDependents, id, n)
	}
	placed, err := s.users.Filter(ctx, func(u User) bool { return u.BranchID == id })
	if err != nil {
		return err
	}
	if n := len(placed); n > 0 {
		return fmt.Errorf("%w: branch %s has %d placed users and cannot change organization", apperr.ErrHasDependents, id, n)
	}
	return nil
}

// DeleteBranch refuses while departments or module grants reference the branch.
func (s *Service) DeleteBranch(ctx context.Context, id string) error {
	defer s.lockTree()()
	if _, err := s.branches.Get(ctx, id); err != nil {
		return err
	}
	depts, err := s.DepartmentsByBranch(ctx, id)
	if err != nil {
		return err
	}
	if n := len(depts); n > 0 {
		return fmt.Errorf("%w: branch %s has %d departments", apperr.ErrHasDependents, id, n)
	}
	grants, err := s.access.Filter(ctx, func(m ModuleAccess) bool { return m.BranchID == id })
	if err != nil {
		return err
	}
	if n := len(grants); n > 0 {
		return fmt.Errorf("%w: branch %s has %d module grants", apperr.ErrHasDependents, id, n)
	}
	return s.branches.Delete(ctx, id)
}

// Departments

func (s *Service) ListDepartments(ctx context.Context) ([]Department, error) {
	return s.departments.List(ctx)
}

func (s *Service) GetDepartment(ctx context.Context, id string) (Department, error) {
	return s.departments.Get(ctx, id)
}

func (s *Service) DepartmentsByBranch(ctx context.Context, branchID string) ([]Department, error) {
	items, err := s.departments.List(ctx)
	if err != nil {
		return nil, err
	}
	return resolve.ChildrenOf(items, func(d Department) string { return d.BranchID }, branchID), nil
}

func (s *Service) DepartmentsByOrganization(ctx context.Context, orgID string) ([]Department, error) {
	items, err := s.departments.List(ctx)
	if err != nil {
		return nil, err
	}
	return resolve.ChildrenOf(items, func(d Department) string { return d.OrganizationID }, orgID), nil
}

// AddDepartment requires an existing branch. A blank org_id is taken from the
// branch; a different one is rejected.
func (s *Service) AddDepartment(ctx context.Context, d Department) (Department, error) {
	defer s.lockTree()()
	d.OrganizationID = strings.TrimSpace(d.OrganizationID)
	d.BranchID = strings.TrimSpace(d.BranchID)
	d.Name = strings.TrimSpace(d.Name)
	if err := apperr.Validate(d); err != nil {
		return Department{}, err
	}
	b, err := s.branches.Get(ctx, d.BranchID)
	if err != nil {
		return Department{}, dangling(err, "branch", d.BranchID)
	}
	switch d.OrganizationID {
	case "":
		d.OrganizationID = b.OrganizationID
	case b.OrganizationID:
	default:
		return Department{}, fmt.Errorf("%w: branch %s does not belong to organization %s", apperr.ErrInvalidInput, d.BranchID, d.OrganizationID)
	}
	return s.departments.Create(ctx, d)
}

// UpdateDepartment keeps org_id in line with the branch when the department moves.
func (s *Service) UpdateDepartment(ctx context.Context, id string, upd DepartmentUpdate) (Department, error) {
	defer s.lockTree()()
	trimPtr(upd.Name)
	trimPtr(upd.BranchID)
	if upd.Name != nil && *upd.Name == "" {
		return Department{}, fmt.Errorf("%w: name is required", apperr.ErrInvalidInput)
	}
	if upd.Staff != nil && *upd.Staff < 0 {
		return Department{}, fmt.Errorf("%w: staff must be at least 0", apperr.ErrInvalidInput)
	}
	patch := struct {
		DepartmentUpdate
		OrganizationID *string `json:"org_id,omitempty"`
	}{DepartmentUpdate: upd}
	if upd.BranchID != nil {
		if *upd.BranchID == "" {
			return Department{}, fmt.Errorf("%w: branch_id is required", apperr.ErrInvalidInput)
		}
		b, err := s.branches.Get(ctx, *upd.BranchID)
		if err != nil {
			return Department{}, dangling(err, "branch", *upd.BranchID)
		}
		patch.OrganizationID = &b.OrganizationID
	}
	return s.departments.Update(ctx, id, patch)
}

// DeleteDepartment refuses while staff assignments or placed users reference the department.
func (s *Service) DeleteDepartment(ctx context.Context, id string) error {
	defer s.lockTree()()
	if _, err := s.departments.Get(ctx, id); err != nil {
		return err
	}
	assigned, err := s.assignments.Filter(ctx, func(a StaffAssignment) bool { return a.DepartmentID == id })
	if err != nil {
		return err
	}
	if n := len(assigned); n > 0 {
		return fmt.Errorf("%w: department %s has %d staff assignments", apperr.ErrHasDependents, id, n)
	}
	placed, err := s.users.Filter(ctx, func(u User) bool { return u.DepartmentID == id })
	if err != nil {
		return err
	}
	if n := len(placed); n > 0 {
		return fmt.Errorf("%w: department %s has %d placed users", apperr.ErrHasDependents, id, n)
	}
	return s.departments.Delete(ctx, id)
}

// Summary computes the dashboard counters.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	orgs, err := s.orgs.List(ctx)
	if err != nil {
		return Summary{}, err
	}
	branches, err := s.branches.List(ctx)
	if err != nil {
		return Summary{}, err
	}
	depts, err := s.departments.List(ctx)
	if err != nil {
		return Summary{}, err
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return Summary{}, err
	}
	assigned, err := s.assignments.List(ctx)
	if err != nil {
		return Summary{}, err
	}
	grants, err := s.access.List(ctx)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		Organizations:    len(orgs),
		Branches:         len(branches),
		Departments:      len(depts),
		Users:            len(users),
		StaffAssignments: len(assigned),
		ModuleGrants:     len(grants),
		UsersByBranch:    make([]BranchCount, 0, len(branches)),
	}
	perBranch := make(map[string]int, len(branches))
	for _, u := range users {
		if u.Status == StatusActive {
			sum.ActiveUsers++
		}
		if u.BranchID != "" {
			perBranch[u.BranchID]++
		}
	}
	for _, b := range branches {
		sum.UsersByBranch = append(sum.UsersByBranch, BranchCount{BranchID: b.ID, Branch: b.Name, Users: perBranch[b.ID]})
	}
	return sum, nil
}
