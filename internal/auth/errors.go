package auth

import "errors"

var (
	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrBadCredentials is returned when a password does not match its hash.
	ErrBadCredentials = errors.New("auth: bad credentials")
	errMissingSecret  = errors.New("auth: token secret is not configured")
)
