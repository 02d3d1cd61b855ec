package store

import (
	"context"
	"errors"

	"jobportal/pkg/domain"
)

var (
	// ErrDuplicate is returned when an insert or update violates a unique key.
	ErrDuplicate = errors.New("duplicate record")
	// ErrNotFound is returned by mutations that target a missing row.
	ErrNotFound = errors.New("record not found")
	// ErrReferenced is returned when a delete is blocked by dependent rows.
	ErrReferenced = errors.New("record is still referenced")
)

// JobFilter narrows job listings. Empty fields do not filter.
// Search matches title OR description; all fields match case-insensitive substrings.
type JobFilter struct {
	Search      string
	Location    string
	Skills      string
	RecruiterID int64
}

// Store defines persistence operations for users, jobs, and applications.
// Jobs are returned with recruiter summary and application count populated;
// applications with job (plus its recruiter) and applicant summaries populated.
type Store interface {
	// users
	CreateUser(ctx context.Context, u *domain.User) error
	GetUserByID(ctx context.Context, id int64) (domain.User, bool, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	GetUserByGoogleID(ctx context.Context, googleID string) (domain.User, bool, error)
	UpdateUser(ctx context.Context, u domain.User) error

	// jobs
	CreateJob(ctx context.Context, j *domain.Job) error
	GetJob(ctx context.Context, id int64) (domain.Job, bool, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error)
	UpdateJob(ctx context.Context, j domain.Job) error
	DeleteJob(ctx context.Context, id int64) error

	// applications
	CreateApplication(ctx context.Context, a *domain.Application) error
	GetApplication(ctx context.Context, id int64) (domain.Application, bool, error)
	HasApplied(ctx context.Context, jobID, userID int64) (bool, error)
	AppliedJobIDs(ctx context.Context, userID int64) (map[int64]struct{}, error)
	ListApplicationsByUser(ctx context.Context, userID int64) ([]domain.Application, error)
	ListApplicationsByJob(ctx context.Context, jobID int64, status domain.ApplicationStatus) ([]domain.Application, error)
	SetApplicationStatus(ctx context.Context, id int64, status domain.ApplicationStatus) error
}

// SessionStore issues and resolves bearer tokens.
type SessionStore interface {
	NewSession(user domain.User) (string, error)
	ResolveSession(token string) (Session, error)
	DeleteSession(token string) error
}

// Session is the identity carried by a verified bearer token.
type Session struct {
	UserID int64
	Role   domain.UserRole
}

// JWK represents a JSON Web Key entry used by JWKS endpoints.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// JWKSProvider is an optional capability exposed by session stores that can
// publish JSON Web Keys.
type JWKSProvider interface {
	JWKS() []JWK
}
