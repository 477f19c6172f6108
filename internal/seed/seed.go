// Package seed loads YAML fixtures into the services. Records are matched by
// name, so applying the same fixture twice creates nothing the second time.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"loanadmin.org/internal/apperr"
	"loanadmin.org/internal/obs"
	"loanadmin.org/internal/org"
	"loanadmin.org/internal/policy"
	"loanadmin.org/internal/rbac"
	"loanadmin.org/internal/workflow"
)

type Fixture struct {
	Roles         []Role         `yaml:"roles"`
	Organizations []Organization `yaml:"organizations"`
	Users         []User         `yaml:"users"`
	Steps         []Step         `yaml:"workflow_steps"`
	LoanProducts  []string       `yaml:"loan_products"`
}

// Role lists granted permission keys; the single key "*" grants the whole catalog.
type Role struct {
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type Organization struct {
	Name           string   `yaml:"name"`
	Address        string   `yaml:"address"`
	ContactPerson  string   `yaml:"contact_person"`
	Phone          string   `yaml:"phone"`
	Email          string   `yaml:"email"`
	GSTNumber      string   `yaml:"gst_number"`
	PANNumber      string   `yaml:"pan_number"`
	BusinessType   string   `yaml:"business_type"`
	RegistrationNo string   `yaml:"registration_no"`
	LoanPrefix     string   `yaml:"loan_prefix"`
	Branches       []Branch `yaml:"branches"`
}

type Branch struct {
	Name          string       `yaml:"name"`
	Address       string       `yaml:"address"`
	ContactPerson string       `yaml:"contact_person"`
	Phone         string       `yaml:"phone"`
	Departments   []Department `yaml:"departments"`
}

type Department struct {
	Name  string `yaml:"name"`
	Staff int    `yaml:"staff"`
}

// User references its role and placement by name.
type User struct {
	FullName     string `yaml:"full_name"`
	Username     string `yaml:"username"`
	Email        string `yaml:"email"`
	Phone        string `yaml:"phone"`
	Password     string `yaml:"password"`
	Role         string `yaml:"role"`
	Status       string `yaml:"status"`
	Organization string `yaml:"organization"`
	Branch       string `yaml:"branch"`
	Department   string `yaml:"department"`
}

type Step struct {
	Name          string `yaml:"name"`
	Type          string `yaml:"type"`
	DurationHours int    `yaml:"duration"`
	Description   string `yaml:"description"`
}

// Report counts the records created by Apply.
type Report struct {
	Roles         int `json:"roles"`
	Organizations int `json:"organizations"`
	Branches      int `json:"branches"`
	Departments   int `json:"departments"`
	Users         int `json:"users"`
	Steps         int `json:"steps"`
	LoanProducts  int `json:"loan_products"`
}

// Decode parses a single-document fixture and rejects unknown fields.
func Decode(r io.Reader) (Fixture, error) {
	var fx Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil {
		if errors.Is(err, io.EOF) {
			return fx, nil
		}
		return fx, fmt.Errorf("%w: seed: %v", apperr.ErrInvalidInput, err)
	}
	var extra any
	if err := dec.Decode(&extra); err == nil {
		return fx, fmt.Errorf("%w: seed: multiple YAML documents are not supported", apperr.ErrInvalidInput)
	}
	return fx, nil
}

func Load(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, err
	}
	return Decode(bytes.NewReader(data))
}

// Seeder writes fixtures through the services so every invariant they enforce holds.
type Seeder struct {
	Org      *org.Service
	Roles    *rbac.Service
	Workflow *workflow.Service
	Policy   *policy.Service
}

func (s Seeder) Apply(ctx context.Context, fx Fixture) (Report, error) {
	var rep Report
	roleIDs, err := s.applyRoles(ctx, fx.Roles, &rep)
	if err != nil {
		return rep, err
	}
	if err := s.applyOrganizations(ctx, fx.Organizations, &rep); err != nil {
		return rep, err
	}
	if err := s.applyUsers(ctx, fx.Users, roleIDs, &rep); err != nil {
		return rep, err
	}
	if err := s.applySteps(ctx, fx.Steps, &rep); err != nil {
		return rep, err
	}
	if err := s.applyLoanProducts(ctx, fx.LoanProducts, &rep); err != nil {
		return rep, err
	}
	obs.Logger().WithField("report", rep).Info("seed applied")
	return rep, nil
}

func (s Seeder) applyRoles(ctx context.Context, roles []Role, rep *Report) (map[string]string, error) {
	existing, err := s.Roles.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]string, len(existing))
	for _, r := range existing {
		ids[strings.ToLower(r.RoleName)] = r.ID
	}
	for _, r := range roles {
		key := strings.ToLower(strings.TrimSpace(r.Name))
		id, ok := ids[key]
		if !ok {
			created, err := s.Roles.AddRole(ctx, r.Name)
			if err != nil {
				return nil, fmt.Errorf("role %q: %w", r.Name, err)
			}
			id = created.ID
			ids[key] = id
			rep.Roles++
		}
		if len(r.Permissions) == 0 {
			continue
		}
		if _, err := s.Roles.SavePermissions(ctx, id, permissionMap(r.Permissions)); err != nil {
			return nil, fmt.Errorf("role %q: %w", r.Name, err)
		}
	}
	return ids, nil
}

func permissionMap(keys []string) map[string]bool {
	if len(keys) == 1 && keys[0] == "*" {
		return rbac.AllGranted()
	}
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[strings.TrimSpace(k)] = true
	}
	return out
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func (s Seeder) applyOrganizations(ctx context.Context, orgs []Organization, rep *Report) error {
	existing, err := s.Org.ListOrganizations(ctx)
	if err != nil {
		return err
	}
	for _, fo := range orgs {
		var orgID string
		for _, o := range existing {
			if sameName(o.Name, fo.Name) {
				orgID = o.ID
				break
			}
		}
		if orgID == "" {
			created, err := s.Org.AddOrganization(ctx, org.Organization{
				Name: fo.Name, Address: fo.Address, ContactPerson: fo.ContactPerson,
				Phone: fo.Phone, Email: fo.Email, GSTNumber: fo.GSTNumber, PANNumber: fo.PANNumber,
				BusinessType: fo.BusinessType, RegistrationNo: fo.RegistrationNo,
				LoanPrefix: fo.LoanPrefix, IsActive: true,
			})
			if err != nil {
				return fmt.Errorf("organization %q: %w", fo.Name, err)
			}
			orgID = created.ID
			existing = append(existing, created)
			rep.Organizations++
		}
		if err := s.applyBranches(ctx, orgID, fo.Branches, rep); err != nil {
			return fmt.Errorf("organization %q: %w", fo.Name, err)
		}
	}
	return nil
}

func (s Seeder) applyBranches(ctx context.Context, orgID string, branches []Branch, rep *Report) error {
	existing, err := s.Org.BranchesByOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	for _, fb := range branches {
		var branchID string
		for _, b := range existing {
			if sameName(b.Name, fb.Name) {
				branchID = b.ID
				break
			}
		}
		if branchID == "" {
			created, err := s.Org.AddBranch(ctx, org.Branch{
				OrganizationID: orgID, Name: fb.Name, Address: fb.Address,
				ContactPerson: fb.ContactPerson, Phone: fb.Phone,
			})
			if err != nil {
				return fmt.Errorf("branch %q: %w", fb.Name, err)
			}
			branchID = created.ID
			existing = append(existing, created)
			rep.Branches++
		}

		depts, err := s.Org.DepartmentsByBranch(ctx, branchID)
		if err != nil {
			return err
		}
	next:
		for _, fd := range fb.Departments {
			for _, d := range depts {
				if sameName(d.Name, fd.Name) {
					continue next
				}
			}
			created, err := s.Org.AddDepartment(ctx, org.Department{
				OrganizationID: orgID, BranchID: branchID, Name: fd.Name, Staff: fd.Staff,
			})
			if err != nil {
				return fmt.Errorf("branch %q: department %q: %w", fb.Name, fd.Name, err)
			}
			depts = append(depts, created)
			rep.Departments++
		}
	}
	return nil
}

// placement resolves the named organization, branch and department of u to ids.
func (s Seeder) placement(ctx context.Context, u User) (orgID, branchID, deptID string, err error) {
	if strings.TrimSpace(u.Organization) == "" {
		return "", "", "", nil
	}
	orgs, err := s.Org.ListOrganizations(ctx)
	if err != nil {
		return "", "", "", err
	}
	for _, o := range orgs {
		if sameName(o.Name, u.Organization) {
			orgID = o.ID
		}
	}
	if orgID == "" {
		return "", "", "", fmt.Errorf("%w: organization %q", apperr.ErrDanglingReference, u.Organization)
	}
	branches, err := s.Org.BranchesByOrganization(ctx, orgID)
	if err != nil {
		return "", "", "", err
	}
	for _, b := range branches {
		if sameName(b.Name, u.Branch) {
			branchID = b.ID
		}
	}
	if branchID == "" {
		return "", "", "", fmt.Errorf("%w: branch %q", apperr.ErrDanglingReference, u.Branch)
	}
	depts, err := s.Org.DepartmentsByBranch(ctx, branchID)
	if err != nil {
		return "", "", "", err
	}
	for _, d := range depts {
		if sameName(d.Name, u.Department) {
			deptID = d.ID
		}
	}
	if deptID == "" {
		return "", "", "", fmt.Errorf("%w: department %q", apperr.ErrDanglingReference, u.Department)
	}
	return orgID, branchID, deptID, nil
}

func (s Seeder) applyUsers(ctx context.Context, users []User, roleIDs map[string]string, rep *Report) error {
	existing, err := s.Org.ListUsers(ctx)
	if err != nil {
		return err
	}
next:
	for _, fu := range users {
		for _, u := range existing {
			if sameName(u.Username, fu.Username) {
				continue next
			}
		}
		roleID, ok := roleIDs[strings.ToLower(strings.TrimSpace(fu.Role))]
		if !ok {
			return fmt.Errorf("user %q: %w: role %q", fu.Username, apperr.ErrDanglingReference, fu.Role)
		}
		orgID, branchID, deptID, err := s.placement(ctx, fu)
		if err != nil {
			return fmt.Errorf("user %q: %w", fu.Username, err)
		}
		created, err := s.Org.AddUser(ctx, org.NewUser{
			FullName: fu.FullName, Username: fu.Username, Email: fu.Email, Phone: fu.Phone,
			Password: fu.Password, RoleID: roleID, Status: org.Status(fu.Status),
			OrganizationID: orgID, BranchID: branchID, DepartmentID: deptID,
		})
		if err != nil {
			return fmt.Errorf("user %q: %w", fu.Username, err)
		}
		existing = append(existing, created)
		rep.Users++
	}
	return nil
}

func (s Seeder) applySteps(ctx context.Context, steps []Step, rep *Report) error {
	if len(steps) == 0 || s.Workflow == nil {
		return nil
	}
	existing, err := s.Workflow.ListSteps(ctx)
	if err != nil {
		return err
	}
next:
	for _, fs := range steps {
		for _, st := range existing {
			if sameName(st.Name, fs.Name) {
				continue next
			}
		}
		created, err := s.Workflow.AddStep(ctx, workflow.Step{
			Name: fs.Name, Type: workflow.StepType(fs.Type),
			DurationHours: fs.DurationHours, Description: fs.Description,
		})
		if err != nil {
			return fmt.Errorf("workflow step %q: %w", fs.Name, err)
		}
		existing = append(existing, created)
		rep.Steps++
	}
	return nil
}

func (s Seeder) applyLoanProducts(ctx context.Context, names []string, rep *Report) error {
	if len(names) == 0 || s.Policy == nil {
		return nil
	}
	existing, err := s.Policy.ListLoanProducts(ctx)
	if err != nil {
		return err
	}
next:
	for _, name := range names {
		for _, p := range existing {
			if sameName(p.Name, name) {
				continue next
			}
		}
		created, err := s.Policy.AddLoanProduct(ctx, name)
		if err != nil {
			return fmt.Errorf("loan product %q: %w", name, err)
		}
		existing = append(existing, created)
		rep.LoanProducts++
	}
	return nil
}
