package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: resource conflict")
	ErrInvalidInput = errors.New("auth: invalid input")

	// ErrUnauthenticated covers every token verification failure and a
	// principal that no longer exists. The finer classification (malformed,
	// expired, bad signature) stays internal.
	ErrUnauthenticated = errors.New("auth: unauthenticated")

	// ErrInvalidCredentials is deliberately identical for a wrong password
	// and an unknown email.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	ErrAccountLocked   = errors.New("auth: account locked")
	ErrAccountInactive = errors.New("auth: account inactive")
	ErrForbidden       = errors.New("auth: forbidden")

	// ErrInvalidResetToken covers both a non-matching and an expired reset
	// token; the caller never learns which.
	ErrInvalidResetToken = errors.New("auth: invalid or expired reset token")
)
