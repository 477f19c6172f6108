package org

import (
	"context"

	"loanadmin.org/internal/cascade"
)

// Placement selector level indexes.
const (
	SelectOrganization = iota
	SelectBranch
	SelectDepartment
	SelectStaff
)

// NewPlacementSelector mounts an Organization → Branch → Department chain, with
// a trailing Staff level listing active users when withStaff is set.
func (s *Service) NewPlacementSelector(ctx context.Context, withStaff bool) (*cascade.Selector, error) {
	levels := []cascade.Level{
		{Name: "organization", Required: true, Source: s.organizationOptions},
		{Name: "branch", Required: true, Source: s.branchOptions},
		{Name: "department", Required: true, Source: s.departmentOptions},
	}
	if withStaff {
		levels = append(levels, cascade.Level{Name: "staff", Required: true, Source: s.staffOptions})
	}
	return cascade.New(ctx, levels...)
}

// SelectionChain converts a complete selector state into a Chain.
func SelectionChain(sel *cascade.Selector) Chain {
	c := Chain{
		OrganizationID: sel.Selected(SelectOrganization),
		BranchID:       sel.Selected(SelectBranch),
		DepartmentID:   sel.Selected(SelectDepartment),
	}
	if sel.Depth() > SelectStaff {
		c.StaffID = sel.Selected(SelectStaff)
	}
	return c
}

func (s *Service) organizationOptions(ctx context.Context, _ string) ([]cascade.Option, error) {
	orgs, err := s.orgs.List(ctx)
	if err != nil {
		return nil, err
	}
	opts := make([]cascade.Option, 0, len(orgs))
	for _, o := range orgs {
		opts = append(opts, cascade.Option{ID: o.ID, Label: o.Name})
	}
	return opts, nil
}

func (s *Service) branchOptions(ctx context.Context, orgID string) ([]cascade.Option, error) {
	branches, err := s.BranchesByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	opts := make([]cascade.Option, 0, len(branches))
	for _, b := range branches {
		opts = append(opts, cascade.Option{ID: b.ID, Label: b.Name})
	}
	return opts, nil
}

func (s *Service) departmentOptions(ctx context.Context, branchID string) ([]cascade.Option, error) {
	depts, err := s.DepartmentsByBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}
	opts := make([]cascade.Option, 0, len(depts))
	for _, d := range depts {
		opts = append(opts, cascade.Option{ID: d.ID, Label: d.Name})
	}
	return opts, nil
}

// staffOptions lists every active user; staff are not filtered by department.
func (s *Service) staffOptions(ctx context.Context, _ string) ([]cascade.Option, error) {
	users, err := s.users.Filter(ctx, func(u User) bool { return u.Status == StatusActive })
	if err != nil {
		return nil, err
	}
	opts := make([]cascade.Option, 0, len(users))
	for _, u := range users {
		opts = append(opts, cascade.Option{ID: u.ID, Label: u.FullName})
	}
	return opts, nil
}
