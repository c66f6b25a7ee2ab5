package auth

import "errors"

var (
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenInvalid       = errors.New("auth: invalid token")
	ErrTokenMalformed     = errors.New("auth: malformed token")
	ErrUnauthenticated    = errors.New("auth: unauthenticated")
	ErrUnauthorized       = errors.New("auth: insufficient privileges")
	ErrAccountNotFound    = errors.New("auth: account not found")
	ErrDuplicateAccount   = errors.New("auth: account already exists")
	ErrRoleNotFound       = errors.New("auth: role not found")
	ErrRoleNotHeld        = errors.New("auth: role not held")
	ErrLastRole           = errors.New("auth: account must keep at least one role")
	ErrAlreadyLinked      = errors.New("auth: show already linked")
	ErrNotLinked          = errors.New("auth: show not linked")
)
