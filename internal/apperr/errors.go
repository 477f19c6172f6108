// Package apperr declares the error classes shared by the domain packages.
// Callers wrap them with context: fmt.Errorf("%w: branch name is required", apperr.ErrInvalidInput).
package apperr

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("resource conflict")
	ErrHasDependents     = errors.New("resource has dependents")
	ErrDanglingReference = errors.New("dangling reference")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
)
