package org

import (
	"time"

	"loanadmin.org/internal/repo"
)

// Storage keys.
const (
	OrganizationsKey = "organizations"
	BranchesKey      = "branches"
	DepartmentsKey   = "departments"
	UsersKey         = "users"
	AssignmentsKey   = "staffAssignments"
	ModuleAccessKey  = "moduleAccess"
)

type Organization struct {
	repo.Meta
	Name           string `json:"name" validate:"required"`
	Address        string `json:"address"`
	ContactPerson  string `json:"contact_person"`
	Phone          string `json:"phone"`
	Email          string `json:"email" validate:"omitempty,email"`
	GSTNumber      string `json:"gst_number"`
	PANNumber      string `json:"pan_number"`
	BusinessType   string `json:"business_type"`
	RegistrationNo string `json:"registration_no"`
	LoanPrefix     string `json:"loan_prefix"`
	Logo           string `json:"logo"`
	IsActive       bool   `json:"is_active"`
}

// OrganizationUpdate carries the fields to change; nil fields are left untouched.
type OrganizationUpdate struct {
	Name           *string `json:"name,omitempty"`
	Address        *string `json:"address,omitempty"`
	ContactPerson  *string `json:"contact_person,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	Email          *string `json:"email,omitempty"`
	GSTNumber      *string `json:"gst_number,omitempty"`
	PANNumber      *string `json:"pan_number,omitempty"`
	BusinessType   *string `json:"business_type,omitempty"`
	RegistrationNo *string `json:"registration_no,omitempty"`
	LoanPrefix     *string `json:"loan_prefix,omitempty"`
	Logo           *string `json:"logo,omitempty"`
	IsActive       *bool   `json:"is_active,omitempty"`
}

// Branch belongs to one organization. OrganizationName is a snapshot taken on write.
type Branch struct {
	repo.Meta
	OrganizationID   string `json:"organization_id" validate:"required"`
	OrganizationName string `json:"organization_name"`
	Name             string `json:"name" validate:"required"`
	Address          string `json:"address"`
	ContactPerson    string `json:"contact_person"`
	Phone            string `json:"phone"`
}

type BranchUpdate struct {
	OrganizationID *string `json:"organization_id,omitempty"`
	Name           *string `json:"name,omitempty"`
	Address        *string `json:"address,omitempty"`
	ContactPerson  *string `json:"contact_person,omitempty"`
	Phone          *string `json:"phone,omitempty"`
}

// Department belongs to one branch of one organization. Staff is a headcount.
type Department struct {
	repo.Meta
	OrganizationID string `json:"org_id"`
	BranchID       string `json:"branch_id" validate:"required"`
	Name           string `json:"name" validate:"required"`
	Staff          int    `json:"staff" validate:"gte=0"`
}

type DepartmentUpdate struct {
	BranchID *string `json:"branch_id,omitempty"`
	Name     *string `json:"name,omitempty"`
	Staff    *int    `json:"staff,omitempty"`
}

// Status is the account state of a user.
type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

// Toggled returns the opposite status.
func (s Status) Toggled() Status {
	if s == StatusActive {
		return StatusInactive
	}
	return StatusActive
}

// Placement is where a user sits in the hierarchy, ids plus names captured on write.
type Placement struct {
	OrganizationID string `json:"organization_id,omitempty"`
	Organization   string `json:"organization,omitempty"`
	BranchID       string `json:"branch_id,omitempty"`
	Branch         string `json:"branch,omitempty"`
	DepartmentID   string `json:"department_id,omitempty"`
	Department     string `json:"department,omitempty"`
}

type User struct {
	repo.Meta
	FullName     string     `json:"full_name"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone"`
	PasswordHash string     `json:"password_hash,omitempty"`
	RoleID       string     `json:"role_id"`
	Status       Status     `json:"status"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	Placement
}

// Redacted returns u without its password hash.
func (u User) Redacted() User {
	u.PasswordHash = ""
	return u
}

// NewUser is the input of AddUser.
type NewUser struct {
	FullName       string `json:"full_name" validate:"required"`
	Username       string `json:"username" validate:"required"`
	Email          string `json:"email" validate:"required,email"`
	Phone          string `json:"phone" validate:"required"`
	Password       string `json:"password" validate:"required"`
	RoleID         string `json:"role_id" validate:"required"`
	Status         Status `json:"status" validate:"omitempty,oneof=Active Inactive"`
	OrganizationID string `json:"organization_id"`
	BranchID       string `json:"branch_id"`
	DepartmentID   string `json:"department_id"`
}

type UserUpdate struct {
	FullName *string `json:"full_name,omitempty"`
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	RoleID   *string `json:"role_id,omitempty"`
	Status   *Status `json:"status,omitempty"`
}

// Chain names one path through the hierarchy. StaffID is only used by staff assignments.
type Chain struct {
	OrganizationID string `json:"organization_id"`
	BranchID       string `json:"branch_id"`
	DepartmentID   string `json:"department_id"`
	StaffID        string `json:"staff_id,omitempty"`
}

// StaffAssignment records a staff member placed in a department, with names frozen at write time.
type StaffAssignment struct {
	repo.Meta
	OrganizationID string `json:"organization_id"`
	Organization   string `json:"organization"`
	BranchID       string `json:"branch_id"`
	Branch         string `json:"branch"`
	DepartmentID   string `json:"department_id"`
	Department     string `json:"department"`
	StaffID        string `json:"staff_id"`
	Staff          string `json:"staff"`
}

// ModuleAccess grants console modules to one branch.
type ModuleAccess struct {
	repo.Meta
	OrganizationID string   `json:"organization_id"`
	Organization   string   `json:"organization"`
	BranchID       string   `json:"branch_id"`
	Branch         string   `json:"branch"`
	Modules        []string `json:"modules"`
}

// Console modules that can be granted to a branch.
const (
	ModuleLoans         = "Loan Management"
	ModuleBranches      = "Branch Management"
	ModuleStaff         = "Staff Management"
	ModuleAccessControl = "Module Access Control"
	ModuleReporting     = "Analytics & Reporting"
	ModuleNotifications = "Notifications"
)

// Modules lists the grantable modules in display order.
func Modules() []string {
	return []string{ModuleLoans, ModuleBranches, ModuleStaff, ModuleAccessControl, ModuleReporting, ModuleNotifications}
}

// Summary holds the dashboard counters.
type Summary struct {
	Organizations    int           `json:"organizations"`
	Branches         int           `json:"branches"`
	Departments      int           `json:"departments"`
	Users            int           `json:"users"`
	ActiveUsers      int           `json:"active_users"`
	StaffAssignments int           `json:"staff_assignments"`
	ModuleGrants     int           `json:"module_grants"`
	UsersByBranch    []BranchCount `json:"users_by_branch"`
}

type BranchCount struct {
	BranchID string `json:"branch_id"`
	Branch   string `json:"branch"`
	Users    int    `json:"users"`
}
