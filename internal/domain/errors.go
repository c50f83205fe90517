package domain

import "errors"

// Validation-class errors surfaced to clients. Anything else coming out of
// the storage layer is an opaque server failure.
var (
	ErrInvalidEmail       = errors.New("invalid email")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrWeakPassword       = errors.New("weak password")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account inactive")

	ErrTokenNotFound    = errors.New("verification token not found")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenAlreadyUsed = errors.New("verification token already used")

	ErrTokenInvalid = errors.New("refresh token invalid")
	ErrTokenReused  = errors.New("refresh token reused")

	ErrEmailAlreadyVerified = errors.New("email already verified")
	ErrUserNotFound         = errors.New("user not found")
)
