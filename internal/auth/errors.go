package auth

import "errors"

var (
	// ErrInvalidCredentials covers every login failure: unknown email and
	// wrong password map to the same error so responses never reveal which
	// one it was.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidAccessToken  = errors.New("invalid access token")
	ErrUserNotFound        = errors.New("user not found")
)

// ValidationError carries a human-readable reason for rejecting input. It is
// always mapped to a 400 response.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }
