package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a duplicate record or grant.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrMissingCredentials indicates an absent or malformed bearer header.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrInvalidCredentials indicates login failure or a rejected token.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrForbidden indicates a valid principal without the required permission.
	ErrForbidden = errors.New("forbidden")
	// ErrSystemRole is returned when a system role would be renamed or deleted.
	ErrSystemRole = errors.New("system role is protected")
	// ErrTransient marks storage timeouts and other retryable failures.
	ErrTransient = errors.New("transient failure")
)

// IsAuthentication reports whether err belongs to the authentication stage.
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrMissingCredentials) || errors.Is(err, ErrInvalidCredentials)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
