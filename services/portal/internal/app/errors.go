package app

import "errors"

// Error kinds. Every error returned by App matches exactly one of these via
// errors.Is, or none for unexpected failures.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrRoleRequired       = errors.New("role required")
	ErrFileTooLarge       = errors.New("file too large")
	ErrUnavailable        = errors.New("service unavailable")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

var (
	ErrEmailTaken         = &Error{Kind: ErrConflict, Message: "email already registered"}
	ErrAlreadyApplied     = &Error{Kind: ErrConflict, Message: "you have already applied to this job"}
	ErrJobHasApplications = &Error{Kind: ErrConflict, Message: "job has applications and cannot be deleted"}

	ErrJobNotFound         = &Error{Kind: ErrNotFound, Message: "job not found"}
	ErrApplicationNotFound = &Error{Kind: ErrNotFound, Message: "application not found"}
	ErrFileNotFound        = &Error{Kind: ErrNotFound, Message: "file not found"}

	ErrInvalidGoogleCredential = &Error{Kind: ErrUnauthorized, Message: "invalid google credential"}
	ErrGoogleDisabled          = &Error{Kind: ErrUnavailable, Message: "google sign-in is not configured"}
	ErrUploadsDisabled         = &Error{Kind: ErrUnavailable, Message: "file uploads are not configured"}
)

// Error is a client-facing message attached to an error kind.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

// ValidationError reports a rejected input field. It matches ErrInvalidInput.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// RoleRequiredError is returned by FederatedSignIn for a first-time user who
// did not pick a role. It carries the verified profile so the client can ask.
type RoleRequiredError struct {
	Email string
	Name  string
}

func (e *RoleRequiredError) Error() string { return "role selection required" }

func (e *RoleRequiredError) Is(target error) bool { return target == ErrRoleRequired }
