package seed

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"loanadmin.org/internal/apperr"
	"loanadmin.org/internal/org"
	"loanadmin.org/internal/policy"
	"loanadmin.org/internal/rbac"
	"loanadmin.org/internal/store"
	"loanadmin.org/internal/workflow"
)

const fixtureYAML = `
roles:
  - name: Administrator
    permissions: ["*"]
  - name: Loan Officer
    permissions: [loan_create, view_docs]
organizations:
  - name: Acme Finance
    email: ops@acme.test
    loan_prefix: acm
    branches:
      - name: Pune
        departments:
          - name: Credit
            staff: 3
          - name: Collections
      - name: Nashik
users:
  - full_name: Asha Rao
    username: asha
    email: asha@acme.test
    phone: "9800000000"
    password: s3cret-pass
    role: Administrator
    organization: Acme Finance
    branch: Pune
    department: Credit
workflow_steps:
  - name: Document Verification
    duration: 24
  - name: Credit Appraisal
    type: system
    duration: 48
loan_products:
  - Personal Loan
  - Business Loan
`

func newSeeder() Seeder {
	kv := store.NewMemory()
	roles := rbac.NewService(kv)
	return Seeder{
		Org:      org.NewService(kv, org.WithRoles(roles)),
		Roles:    roles,
		Workflow: workflow.NewService(kv).WithRoles(roles),
		Policy:   policy.NewService(kv),
	}
}

func TestApplyCreatesHierarchy(t *testing.T) {
	ctx := context.Background()
	fx, err := Decode(strings.NewReader(fixtureYAML))
	require.NoError(t, err)

	s := newSeeder()
	rep, err := s.Apply(ctx, fx)
	require.NoError(t, err)
	require.Equal(t, Report{Roles: 2, Organizations: 1, Branches: 2, Departments: 2, Users: 1, Steps: 2, LoanProducts: 2}, rep)

	orgs, err := s.Org.ListOrganizations(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	require.Equal(t, "ACM", orgs[0].LoanPrefix)

	users, err := s.Org.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "Pune", users[0].Branch)
	require.Equal(t, "Credit", users[0].Department)

	ok, err := s.Roles.Allowed(ctx, users[0].RoleID, rbac.PermManageRoles)
	require.NoError(t, err)
	require.True(t, ok)

	steps, err := s.Workflow.ListSteps(ctx)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, workflow.StepSystem, steps[1].Type)

	products, err := s.Policy.ListLoanProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)

	_, err = s.Org.Authenticate(ctx, "asha", "s3cret-pass")
	require.NoError(t, err)
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fx, err := Decode(strings.NewReader(fixtureYAML))
	require.NoError(t, err)

	s := newSeeder()
	_, err = s.Apply(ctx, fx)
	require.NoError(t, err)
	rep, err := s.Apply(ctx, fx)
	require.NoError(t, err)
	require.Equal(t, Report{}, rep)

	branches, err := s.Org.ListBranches(ctx)
	require.NoError(t, err)
	require.Len(t, branches, 2)
}

func TestApplyRejectsUnknownReferences(t *testing.T) {
	ctx := context.Background()
	s := newSeeder()

	_, err := s.Apply(ctx, Fixture{Users: []User{{Username: "x", Role: "Ghost"}}})
	require.True(t, errors.Is(err, apperr.ErrDanglingReference), "got %v", err)

	fx := Fixture{
		Roles: []Role{{Name: "Clerk"}},
		Users: []User{{
			FullName: "B", Username: "b", Email: "b@acme.test", Phone: "1", Password: "s3cret-pass",
			Role: "Clerk", Organization: "Nowhere",
		}},
	}
	_, err = s.Apply(ctx, fx)
	require.True(t, errors.Is(err, apperr.ErrDanglingReference), "got %v", err)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader("organisations:\n  - name: typo\n"))
	require.True(t, errors.Is(err, apperr.ErrInvalidInput), "got %v", err)

	fx, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, fx.Organizations)
}
