package org

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"loanadmin.org/internal/apperr"
	"loanadmin.org/internal/cascade"
	"loanadmin.org/internal/repo"
)

func TestAssignStaffDenormalisesNames(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := addUser(t, f, "asha")

	a, err := f.svc.AssignStaff(ctx, Chain{OrganizationID: f.org.ID, BranchID: f.branch.ID, DepartmentID: f.dept.ID, StaffID: u.ID})
	if err != nil {
		t.Fatalf("AssignStaff: %v", err)
	}
	want := StaffAssignment{
		OrganizationID: f.org.ID,
		Organization:   "Acme Finance",
		BranchID:       f.branch.ID,
		Branch:         "Downtown",
		DepartmentID:   f.dept.ID,
		Department:     "Credit",
		StaffID:        u.ID,
		Staff:          "User asha",
	}
	if diff := cmp.Diff(want, a, cmpopts.IgnoreFields(StaffAssignment{}, "Meta")); diff != "" {
		t.Fatalf("assignment (-want +got):\n%s", diff)
	}
	list, _ := f.svc.ListAssignments(ctx)
	if len(list) != 1 || list[0].ID != a.ID {
		t.Fatalf("expected one stored assignment, got %+v", list)
	}
}

func TestAssignStaffStrict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := addUser(t, f, "asha")
	other, _ := f.svc.AddOrganization(ctx, Organization{Name: "Other"})
	otherBranch, _ := f.svc.AddBranch(ctx, Branch{OrganizationID: other.ID, Name: "Far"})

	cases := []struct {
		name  string
		chain Chain
		want  error
	}{
		{"missing staff", Chain{OrganizationID: f.org.ID, BranchID: f.branch.ID, DepartmentID: f.dept.ID}, apperr.ErrInvalidInput},
		{"missing organization", Chain{BranchID: f.branch.ID, DepartmentID: f.dept.ID, StaffID: u.ID}, apperr.ErrInvalidInput},
		{"unknown department", Chain{OrganizationID: f.org.ID, BranchID: f.branch.ID, DepartmentID: "x", StaffID: u.ID}, apperr.ErrDanglingReference},
		{"unknown staff", Chain{OrganizationID: f.org.ID, BranchID: f.branch.ID, DepartmentID: f.dept.ID, StaffID: "x"}, apperr.ErrDanglingReference},
		{"branch of another organization", Chain{OrganizationID: f.org.ID, BranchID: otherBranch.ID, DepartmentID: f.dept.ID, StaffID: u.ID}, apperr.ErrInvalidInput},
		{"department of another branch", Chain{OrganizationID: other.ID, BranchID: otherBranch.ID, DepartmentID: f.dept.ID, StaffID: u.ID}, apperr.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.AssignStaff(ctx, tc.chain); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	list, _ := f.svc.ListAssignments(ctx)
	if len(list) != 0 {
		t.Fatalf("rejected assignments were stored: %+v", list)
	}
}

func TestAssignStaffLenient(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithLenientNames())

	a, err := f.svc.AssignStaff(ctx, Chain{OrganizationID: f.org.ID, BranchID: f.branch.ID, DepartmentID: "gone", StaffID: "ghost"})
	if err != nil {
		t.Fatalf("AssignStaff: %v", err)
	}
	if a.Organization != "Acme Finance" || a.Department != "" || a.Staff != "" {
		t.Fatalf("unexpected lenient assignment %+v", a)
	}
	if _, err := f.svc.AssignStaff(ctx, Chain{OrganizationID: f.org.ID}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("required fields still apply in lenient mode, got %v", err)
	}
}

func TestModuleAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.GrantModuleAccess(ctx, f.org.ID, f.branch.ID, nil); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected empty module list to be rejected, got %v", err)
	}
	if _, err := f.svc.GrantModuleAccess(ctx, f.org.ID, f.branch.ID, []string{"Payroll"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected unknown module to be rejected, got %v", err)
	}
	if _, err := f.svc.GrantModuleAccess(ctx, f.org.ID, "", []string{ModuleLoans}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected missing branch to be rejected, got %v", err)
	}

	grant, err := f.svc.GrantModuleAccess(ctx, f.org.ID, f.branch.ID, []string{ModuleLoans, ModuleReporting, ModuleLoans})
	if err != nil {
		t.Fatalf("GrantModuleAccess: %v", err)
	}
	if diff := cmp.Diff([]string{ModuleLoans, ModuleReporting}, grant.Modules); diff != "" {
		t.Fatalf("modules (-want +got):\n%s", diff)
	}
	if grant.Organization != "Acme Finance" || grant.Branch != "Downtown" {
		t.Fatalf("unexpected names %+v", grant)
	}

	upd, err := f.svc.UpdateModuleAccess(ctx, grant.ID, []string{ModuleNotifications})
	if err != nil {
		t.Fatalf("UpdateModuleAccess: %v", err)
	}
	if diff := cmp.Diff([]string{ModuleNotifications}, upd.Modules); diff != "" {
		t.Fatalf("modules after update (-want +got):\n%s", diff)
	}
	if upd.BranchID != grant.BranchID || upd.Branch != grant.Branch {
		t.Fatalf("update touched more than modules: %+v", upd)
	}
	if err := f.svc.RevokeModuleAccess(ctx, grant.ID); err != nil {
		t.Fatalf("RevokeModuleAccess: %v", err)
	}
	if err := f.svc.RevokeModuleAccess(ctx, grant.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSnapshotsAreHistorical(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := addUser(t, f, "asha")
	a, _ := f.svc.AssignStaff(ctx, Chain{OrganizationID: f.org.ID, BranchID: f.branch.ID, DepartmentID: f.dept.ID, StaffID: u.ID})
	placed, err := f.svc.PlaceUser(ctx, u.ID, Chain{OrganizationID: f.org.ID, BranchID: f.branch.ID, DepartmentID: f.dept.ID})
	if err != nil {
		t.Fatalf("PlaceUser: %v", err)
	}
	if placed.Department != "Credit" {
		t.Fatalf("unexpected placement %+v", placed.Placement)
	}

	renamed := "Credit & Risk"
	if _, err := f.svc.UpdateDepartment(ctx, f.dept.ID, DepartmentUpdate{Name: &renamed}); err != nil {
		t.Fatalf("UpdateDepartment: %v", err)
	}
	stale, _ := f.svc.assignments.Get(ctx, a.ID)
	if stale.Department != "Credit" {
		t.Fatalf("rename leaked into snapshot: %q", stale.Department)
	}

	got, err := f.svc.RefreshSnapshot(ctx, a.ID)
	if err != nil {
		t.Fatalf("RefreshSnapshot: %v", err)
	}
	if got.(StaffAssignment).Department != renamed {
		t.Fatalf("expected refreshed name, got %+v", got)
	}
	gotUser, err := f.svc.RefreshSnapshot(ctx, u.ID)
	if err != nil {
		t.Fatalf("RefreshSnapshot user: %v", err)
	}
	if gotUser.(User).Department != renamed {
		t.Fatalf("expected refreshed placement, got %+v", gotUser)
	}
	if _, err := f.svc.RefreshSnapshot(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPlacementSelector(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := addUser(t, f, "asha")

	sel, err := f.svc.NewPlacementSelector(ctx, true)
	if err != nil {
		t.Fatalf("NewPlacementSelector: %v", err)
	}
	if got := sel.Options(SelectOrganization); len(got) != 1 || got[0].Label != "Acme Finance" {
		t.Fatalf("unexpected organization options %+v", got)
	}
	if got := sel.Options(SelectBranch); len(got) != 0 {
		t.Fatalf("branch options loaded before selection: %+v", got)
	}

	var incomplete *cascade.IncompleteError
	if err := sel.Validate(); !errors.As(err, &incomplete) || incomplete.Name != "organization" {
		t.Fatalf("expected organization to be required, got %v", err)
	}
	if err := sel.SelectPath(ctx, f.org.ID, f.branch.ID, f.dept.ID, u.ID); err != nil {
		t.Fatalf("SelectPath: %v", err)
	}
	if err := sel.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	chain := SelectionChain(sel)
	if _, err := f.svc.AssignStaff(ctx, chain); err != nil {
		t.Fatalf("AssignStaff from selector: %v", err)
	}

	// changing the organization clears everything below it
	if err := sel.Select(ctx, SelectOrganization, ""); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel.Selected(SelectBranch) != "" || len(sel.Options(SelectDepartment)) != 0 {
		t.Fatalf("lower levels not cleared: %+v", sel.State())
	}
}
