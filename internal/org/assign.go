package org

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"loanadmin.org/internal/apperr"
	"loanadmin.org/internal/repo"
	"loanadmin.org/internal/resolve"
)

// depth of a chain: how many levels must be present.
type depth int

const (
	levelBranch depth = iota + 2
	levelDepartment
	levelStaff
)

// resolved is a chain with its names looked up.
type resolved struct {
	Chain
	organization, branch, department, staff string
}

func (r resolved) placement() Placement {
	return Placement{
		OrganizationID: r.OrganizationID,
		Organization:   r.organization,
		BranchID:       r.BranchID,
		Branch:         r.branch,
		DepartmentID:   r.DepartmentID,
		Department:     r.department,
	}
}

// resolveChain looks up every id of c down to d. In strict mode an id that
// does not resolve is a dangling reference and every level must belong to its
// parent; in lenient mode the name is left empty.
func (s *Service) resolveChain(ctx context.Context, c Chain, d depth) (resolved, error) {
	r := resolved{Chain: Chain{
		OrganizationID: strings.TrimSpace(c.OrganizationID),
		BranchID:       strings.TrimSpace(c.BranchID),
		DepartmentID:   strings.TrimSpace(c.DepartmentID),
		StaffID:        strings.TrimSpace(c.StaffID),
	}}
	fields := []struct{ name, id string }{
		{"organization", r.OrganizationID},
		{"branch", r.BranchID},
		{"department", r.DepartmentID},
		{"staff", r.StaffID},
	}
	for _, f := range fields[:d] {
		if f.id == "" {
			return resolved{}, fmt.Errorf("%w: %s is required", apperr.ErrInvalidInput, f.name)
		}
	}

	orgs, err := s.orgs.List(ctx)
	if err != nil {
		return resolved{}, err
	}
	branches, err := s.branches.List(ctx)
	if err != nil {
		return resolved{}, err
	}
	o, oOK := resolve.NewIndex(orgs, func(o Organization) string { return o.ID }, func(o Organization) string { return o.Name }).Get(r.OrganizationID)
	b, bOK := resolve.NewIndex(branches, func(b Branch) string { return b.ID }, func(b Branch) string { return b.Name }).Get(r.BranchID)
	r.organization, r.branch = o.Name, b.Name

	var (
		dept   Department
		deptOK bool
		staff  User
		userOK bool
	)
	if d >= levelDepartment {
		depts, err := s.departments.List(ctx)
		if err != nil {
			return resolved{}, err
		}
		dept, deptOK = resolve.NewIndex(depts, func(d Department) string { return d.ID }, func(d Department) string { return d.Name }).Get(r.DepartmentID)
		r.department = dept.Name
	}
	if d >= levelStaff {
		staff, userOK, err = s.users.Find(ctx, func(u User) bool { return u.ID == r.StaffID })
		if err != nil {
			return resolved{}, err
		}
		r.staff = staff.FullName
	}

	if s.lenient {
		return r, nil
	}
	switch {
	case !oOK:
		return resolved{}, fmt.Errorf("%w: organization %s does not exist", apperr.ErrDanglingReference, r.OrganizationID)
	case !bOK:
		return resolved{}, fmt.Errorf("%w: branch %s does not exist", apperr.ErrDanglingReference, r.BranchID)
	case b.OrganizationID != o.ID:
		return resolved{}, fmt.Errorf("%w: branch %s does not belong to organization %s", apperr.ErrInvalidInput, b.ID, o.ID)
	}
	if d >= levelDepartment {
		switch {
		case !deptOK:
			return resolved{}, fmt.Errorf("%w: department %s does not exist", apperr.ErrDanglingReference, r.DepartmentID)
		case dept.BranchID != b.ID:
			return resolved{}, fmt.Errorf("%w: department %s does not belong to branch %s", apperr.ErrInvalidInput, dept.ID, b.ID)
		}
	}
	if d >= levelStaff && !userOK {
		return resolved{}, fmt.Errorf("%w: staff %s does not exist", apperr.ErrDanglingReference, r.StaffID)
	}
	return r, nil
}

// Staff assignments

func (s *Service) ListAssignments(ctx context.Context) ([]StaffAssignment, error) {
	return s.assignments.List(ctx)
}

// AssignStaff resolves the chain and appends one assignment in a single write.
func (s *Service) AssignStaff(ctx context.Context, c Chain) (StaffAssignment, error) {
	defer s.lockTree()()
	r, err := s.resolveChain(ctx, c, levelStaff)
	if err != nil {
		return StaffAssignment{}, err
	}
	return s.assignments.Create(ctx, StaffAssignment{
		OrganizationID: r.OrganizationID,
		Organization:   r.organization,
		BranchID:       r.BranchID,
		Branch:         r.branch,
		DepartmentID:   r.DepartmentID,
		Department:     r.department,
		StaffID:        r.StaffID,
		Staff:          r.staff,
	})
}

func (s *Service) RemoveAssignment(ctx context.Context, id string) error {
	return s.assignments.Delete(ctx, id)
}

// Module access

func (s *Service) ListModuleAccess(ctx context.Context) ([]ModuleAccess, error) {
	return s.access.List(ctx)
}

func cleanModules(modules []string) ([]string, error) {
	known := make(map[string]bool)
	for _, m := range Modules() {
		known[m] = true
	}
	seen := make(map[string]bool, len(modules))
	out := make([]string, 0, len(modules))
	for _, m := range modules {
		m = strings.TrimSpace(m)
		if !known[m] {
			return nil, fmt.Errorf("%w: unknown module %q", apperr.ErrInvalidInput, m)
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: at least one module is required", apperr.ErrInvalidInput)
	}
	return out, nil
}

// GrantModuleAccess gives a branch a set of console modules.
func (s *Service) GrantModuleAccess(ctx context.Context, orgID, branchID string, modules []string) (ModuleAccess, error) {
	defer s.lockTree()()
	r, err := s.resolveChain(ctx, Chain{OrganizationID: orgID, BranchID: branchID}, levelBranch)
	if err != nil {
		return ModuleAccess{}, err
	}
	mods, err := cleanModules(modules)
	if err != nil {
		return ModuleAccess{}, err
	}
	return s.access.Create(ctx, ModuleAccess{
		OrganizationID: r.OrganizationID,
		Organization:   r.organization,
		BranchID:       r.BranchID,
		Branch:         r.branch,
		Modules:        mods,
	})
}

// UpdateModuleAccess replaces the module list of a grant, nothing else.
func (s *Service) UpdateModuleAccess(ctx context.Context, id string, modules []string) (ModuleAccess, error) {
	mods, err := cleanModules(modules)
	if err != nil {
		return ModuleAccess{}, err
	}
	return s.access.Update(ctx, id, map[string]any{"modules": mods})
}

func (s *Service) RevokeModuleAccess(ctx context.Context, id string) error {
	return s.access.Delete(ctx, id)
}

// Placement

// PlaceUser writes the placement ids and names onto the user record.
func (s *Service) PlaceUser(ctx context.Context, userID string, c Chain) (User, error) {
	defer s.lockTree()()
	r, err := s.resolveChain(ctx, c, levelDepartment)
	if err != nil {
		return User{}, err
	}
	p := r.placement()
	u, err := s.users.Update(ctx, userID, map[string]any{
		"organization_id": p.OrganizationID,
		"organization":    p.Organization,
		"branch_id":       p.BranchID,
		"branch":          p.Branch,
		"department_id":   p.DepartmentID,
		"department":      p.Department,
	})
	if err != nil {
		return User{}, err
	}
	return u.Redacted(), nil
}

// RefreshSnapshot re-resolves the names stored on one assignment, module grant,
// user placement or branch. Names are otherwise frozen at write time.
func (s *Service) RefreshSnapshot(ctx context.Context, id string) (any, error) {
	if a, err := s.assignments.Get(ctx, id); err == nil {
		r, err := s.resolveChain(ctx, Chain{OrganizationID: a.OrganizationID, BranchID: a.BranchID, DepartmentID: a.DepartmentID, StaffID: a.StaffID}, levelStaff)
		if err != nil {
			return nil, err
		}
		return s.assignments.Update(ctx, id, map[string]any{
			"organization": r.organization,
			"branch":       r.branch,
			"department":   r.department,
			"staff":        r.staff,
		})
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	if m, err := s.access.Get(ctx, id); err == nil {
		r, err := s.resolveChain(ctx, Chain{OrganizationID: m.OrganizationID, BranchID: m.BranchID}, levelBranch)
		if err != nil {
			return nil, err
		}
		return s.access.Update(ctx, id, map[string]any{"organization": r.organization, "branch": r.branch})
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	if u, err := s.users.Get(ctx, id); err == nil {
		if u.OrganizationID == "" {
			return u.Redacted(), nil
		}
		return s.PlaceUser(ctx, id, Chain{OrganizationID: u.OrganizationID, BranchID: u.BranchID, DepartmentID: u.DepartmentID})
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	if b, err := s.branches.Get(ctx, id); err == nil {
		o, err := s.orgs.Get(ctx, b.OrganizationID)
		if err != nil {
			return nil, dangling(err, "organization", b.OrganizationID)
		}
		return s.branches.Update(ctx, id, map[string]any{"organization_name": o.Name})
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	return nil, fmt.Errorf("%w: no snapshot record %s", apperr.ErrNotFound, id)
}
