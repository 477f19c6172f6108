package org

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"loanadmin.org/internal/apperr"
	"loanadmin.org/internal/auth"
	"loanadmin.org/internal/obs"
	"loanadmin.org/internal/resolve"
)

var errLoginFailed = fmt.Errorf("%w: invalid username or password", apperr.ErrUnauthorized)

func redactAll(users []User) []User {
	for i := range users {
		users[i] = users[i].Redacted()
	}
	return users
}

// ListUsers returns every user without password hashes.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	return redactAll(users), nil
}

func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	u, err := s.users.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	return u.Redacted(), nil
}

// SearchUsers ranks users by fuzzy match on full name.
func (s *Service) SearchUsers(ctx context.Context, query string) ([]User, error) {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	return resolve.Search(users, query, func(u User) string { return u.FullName }), nil
}

// UsersByDepartment returns the users placed in a department.
func (s *Service) UsersByDepartment(ctx context.Context, departmentID string) ([]User, error) {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	return resolve.ChildrenOf(users, func(u User) string { return u.DepartmentID }, departmentID), nil
}

func (s *Service) checkPassword(ctx context.Context, password string) error {
	if s.passwords != nil {
		return s.passwords.CheckPassword(ctx, password)
	}
	if len([]rune(password)) < defaultMinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", apperr.ErrInvalidInput, defaultMinPasswordLength)
	}
	return nil
}

func (s *Service) checkRole(ctx context.Context, roleID string) error {
	if s.roles == nil {
		return nil
	}
	_, ok, err := s.roles.RoleName(ctx, roleID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: role %s does not exist", apperr.ErrDanglingReference, roleID)
	}
	return nil
}

func sameLogin(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

// AddUser validates the profile, hashes the password and appends the user.
// Usernames are unique regardless of case.
func (s *Service) AddUser(ctx context.Context, in NewUser) (User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.RoleID = strings.TrimSpace(in.RoleID)
	if in.Status == "" {
		in.Status = StatusActive
	}
	if err := apperr.Validate(in); err != nil {
		return User{}, err
	}
	if err := s.checkPassword(ctx, in.Password); err != nil {
		return User{}, err
	}
	if err := s.checkRole(ctx, in.RoleID); err != nil {
		return User{}, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}

	defer s.lockTree()()
	var place Placement
	if in.OrganizationID != "" || in.BranchID != "" || in.DepartmentID != "" {
		r, err := s.resolveChain(ctx, Chain{OrganizationID: in.OrganizationID, BranchID: in.BranchID, DepartmentID: in.DepartmentID}, levelDepartment)
		if err != nil {
			return User{}, err
		}
		place = r.placement()
	}

	user := User{
		FullName:     in.FullName,
		Username:     in.Username,
		Email:        in.Email,
		Phone:        in.Phone,
		PasswordHash: hash,
		RoleID:       in.RoleID,
		Status:       in.Status,
		Placement:    place,
	}

	users, err := s.users.Mutate(ctx, func(users []User) ([]User, error) {
		for _, u := range users {
			if sameLogin(u.Username, user.Username) {
				return nil, fmt.Errorf("%w: username %q is taken", apperr.ErrConflict, user.Username)
			}
		}
		return append(users, user), nil
	})
	if err != nil {
		return User{}, err
	}
	return users[len(users)-1].Redacted(), nil
}

// UpdateUser applies the non-nil fields of upd.
func (s *Service) UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error) {
	trimPtr(upd.FullName)
	trimPtr(upd.Username)
	trimPtr(upd.Email)
	trimPtr(upd.Phone)
	trimPtr(upd.RoleID)
	for field, p := range map[string]*string{"full_name": upd.FullName, "username": upd.Username, "email": upd.Email, "phone": upd.Phone, "role_id": upd.RoleID} {
		if p != nil && *p == "" {
			return User{}, fmt.Errorf("%w: %s is required", apperr.ErrInvalidInput, field)
		}
	}
	if upd.Email != nil {
		if err := apperr.Validate(struct {
			Email string `json:"email" validate:"email"`
		}{*upd.Email}); err != nil {
			return User{}, err
		}
	}
	if upd.Status != nil && *upd.Status != StatusActive && *upd.Status != StatusInactive {
		return User{}, fmt.Errorf("%w: status must be one of [Active Inactive]", apperr.ErrInvalidInput)
	}
	if upd.RoleID != nil {
		if err := s.checkRole(ctx, *upd.RoleID); err != nil {
			return User{}, err
		}
	}

	users, err := s.users.Mutate(ctx, func(users []User) ([]User, error) {
		idx := -1
		for i, u := range users {
			if u.ID == id {
				idx = i
			} else if upd.Username != nil && sameLogin(u.Username, *upd.Username) {
				return nil, fmt.Errorf("%w: username %q is taken", apperr.ErrConflict, *upd.Username)
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s %s", apperr.ErrNotFound, UsersKey, id)
		}
		u := &users[idx]
		if upd.FullName != nil {
			u.FullName = *upd.FullName
		}
		if upd.Username != nil {
			u.Username = *upd.Username
		}
		if upd.Email != nil {
			u.Email = *upd.Email
		}
		if upd.Phone != nil {
			u.Phone = *upd.Phone
		}
		if upd.RoleID != nil {
			u.RoleID = *upd.RoleID
		}
		if upd.Status != nil {
			u.Status = *upd.Status
		}
		return users, nil
	})
	if err != nil {
		return User{}, err
	}
	return findUser(users, id).Redacted(), nil
}

func findUser(users []User, id string) User {
	for _, u := range users {
		if u.ID == id {
			return u
		}
	}
	return User{}
}

// ToggleStatus flips Active and Inactive.
func (s *Service) ToggleStatus(ctx context.Context, id string) (User, error) {
	users, err := s.users.Mutate(ctx, func(users []User) ([]User, error) {
		for i := range users {
			if users[i].ID == id {
				users[i].Status = users[i].Status.Toggled()
				return users, nil
			}
		}
		return nil, fmt.Errorf("%w: %s %s", apperr.ErrNotFound, UsersKey, id)
	})
	if err != nil {
		return User{}, err
	}
	u := findUser(users, id)
	obs.Logger().WithField("user_id", id).WithField("status", u.Status).Debug("user status toggled")
	return u.Redacted(), nil
}

func (s *Service) SetStatus(ctx context.Context, id string, status Status) (User, error) {
	return s.UpdateUser(ctx, id, UserUpdate{Status: &status})
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	defer s.lockTree()()
	assigned, err := s.assignments.Filter(ctx, func(a StaffAssignment) bool { return a.StaffID == id })
	if err != nil {
		return err
	}
	if n := len(assigned); n > 0 {
		return fmt.Errorf("%w: user %s has %d staff assignments", apperr.ErrHasDependents, id, n)
	}
	return s.users.Delete(ctx, id)
}

// RoleReferences counts the users holding roleID.
func (s *Service) RoleReferences(ctx context.Context, roleID string) (map[string]int, error) {
	users, err := s.users.Filter(ctx, func(u User) bool { return u.RoleID == roleID })
	if err != nil {
		return nil, err
	}
	return map[string]int{"users": len(users)}, nil
}

// ResetPassword replaces the password after checking the confirmation.
func (s *Service) ResetPassword(ctx context.Context, id, password, confirm string) error {
	if password == "" {
		return fmt.Errorf("%w: new password is required", apperr.ErrInvalidInput)
	}
	if password != confirm {
		return fmt.Errorf("%w: passwords do not match", apperr.ErrInvalidInput)
	}
	if err := s.checkPassword(ctx, password); err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = s.users.Update(ctx, id, map[string]any{"password_hash": hash})
	return err
}

// findLogin matches a username first. An email only matches when exactly one
// user has it, since emails are not unique.
func (s *Service) findLogin(ctx context.Context, login string) (User, bool, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return User{}, false, err
	}
	var byEmail []User
	for _, u := range users {
		if sameLogin(u.Username, login) {
			return u, true, nil
		}
		if sameLogin(u.Email, login) {
			byEmail = append(byEmail, u)
		}
	}
	if len(byEmail) != 1 {
		if len(byEmail) > 1 {
			obs.Logger().WithField("users", len(byEmail)).Warn("login by shared email refused")
		}
		return User{}, false, nil
	}
	return byEmail[0], true, nil
}

// Authenticate checks login (username or email, case-insensitive) and
// password. Inactive users are refused; legacy hashes are upgraded.
func (s *Service) Authenticate(ctx context.Context, login, password string) (User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return User{}, errLoginFailed
	}
	u, ok, err := s.findLogin(ctx, login)
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{}, errLoginFailed
	}
	if err := auth.VerifyPassword(u.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrBadCredentials) {
			obs.Logger().WithError(err).WithField("user_id", u.ID).Warn("password verification failed")
		}
		return User{}, errLoginFailed
	}
	if u.Status != StatusActive {
		return User{}, fmt.Errorf("%w: account is inactive", apperr.ErrForbidden)
	}

	now := s.now()
	patch := map[string]any{"last_login_at": now}
	if auth.NeedsRehash(u.PasswordHash) {
		if hash, err := auth.HashPassword(password); err == nil {
			patch["password_hash"] = hash
		}
	}
	updated, err := s.users.Update(ctx, u.ID, patch)
	if err != nil {
		return User{}, err
	}
	return updated.Redacted(), nil
}
