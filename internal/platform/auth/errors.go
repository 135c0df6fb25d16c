package auth

import "errors"

// Authentication and authorization failures. Callers at the HTTP boundary
// collapse these into a small set of generic messages; the specific sentinel
// is only ever logged.
var (
	ErrMissingCredential  = errors.New("missing credential")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUnknownRole        = errors.New("unknown role")
	ErrUserNotFound       = errors.New("user not found")
	ErrInactiveUser       = errors.New("inactive user")
	ErrRoleChanged        = errors.New("role no longer matches stored user")
	ErrScopeMismatch      = errors.New("tenant scope does not match role")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Messages written to clients.
const (
	MsgAccessTokenRequired = "Access token required"
	MsgInvalidToken        = "Invalid or expired token"
	MsgForbidden           = "Insufficient permissions"
	MsgInvalidCredentials  = "Invalid credentials"
)

// IsSessionError reports whether err is one of the failures that must be
// reported to clients as an invalid session rather than an internal error.
func IsSessionError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrUnknownRole),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrInactiveUser),
		errors.Is(err, ErrRoleChanged),
		errors.Is(err, ErrScopeMismatch):
		return true
	}
	return false
}

// failureReason returns a low-cardinality label for metrics and logs.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrUnknownRole):
		return "unknown_role"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrInactiveUser):
		return "inactive_user"
	case errors.Is(err, ErrRoleChanged):
		return "role_changed"
	case errors.Is(err, ErrScopeMismatch):
		return "scope_mismatch"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	default:
		return "internal"
	}
}
