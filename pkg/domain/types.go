package domain

import (
	"strings"
	"time"
)

type UserRole string

const (
	RoleJobSeeker UserRole = "JOB_SEEKER"
	RoleRecruiter UserRole = "RECRUITER"
)

// ParseUserRole accepts a role name in any letter case.
func ParseUserRole(raw string) (UserRole, bool) {
	switch UserRole(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleJobSeeker:
		return RoleJobSeeker, true
	case RoleRecruiter:
		return RoleRecruiter, true
	default:
		return "", false
	}
}

type ApplicationStatus string

const (
	StatusPending     ApplicationStatus = "PENDING"
	StatusShortlisted ApplicationStatus = "SHORTLISTED"
	StatusRejected    ApplicationStatus = "REJECTED"
)

// ParseApplicationStatus accepts a status name in any letter case.
func ParseApplicationStatus(raw string) (ApplicationStatus, bool) {
	switch ApplicationStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending, true
	case StatusShortlisted:
		return StatusShortlisted, true
	case StatusRejected:
		return StatusRejected, true
	default:
		return "", false
	}
}

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	GoogleID     string    `json:"-"`
	Role         UserRole  `json:"role"`
	ResumeURL    string    `json:"resumeUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Summary is the public projection nested inside jobs and applications.
func (u User) Summary() *UserSummary {
	return &UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, ResumeURL: u.ResumeURL}
}

type UserSummary struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	ResumeURL string `json:"resumeUrl,omitempty"`
}

type Job struct {
	ID               int64        `json:"id"`
	Title            string       `json:"title"`
	Description      string       `json:"description"`
	Skills           string       `json:"skillsRequired"`
	Location         string       `json:"location"`
	RecruiterID      int64        `json:"recruiterId"`
	Recruiter        *UserSummary `json:"recruiter,omitempty"`
	ApplicationCount int64        `json:"applicationCount"`
	HasApplied       *bool        `json:"hasApplied,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// JobSummary is the trimmed job nested inside applications.
type JobSummary struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Skills      string       `json:"skillsRequired,omitempty"`
	Location    string       `json:"location"`
	RecruiterID int64        `json:"recruiterId"`
	Recruiter   *UserSummary `json:"recruiter,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

type Application struct {
	ID        int64             `json:"id"`
	JobID     int64             `json:"jobId"`
	UserID    int64             `json:"userId"`
	Status    ApplicationStatus `json:"status"`
	Job       *JobSummary       `json:"job,omitempty"`
	Applicant *UserSummary      `json:"user,omitempty"`
	CreatedAt time.Time         `json:"appliedAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

type ApplicationStats struct {
	Total       int `json:"total"`
	Pending     int `json:"pending"`
	Shortlisted int `json:"shortlisted"`
	Rejected    int `json:"rejected"`
}

// CountStatuses aggregates the given applications by status.
func CountStatuses(apps []Application) ApplicationStats {
	stats := ApplicationStats{Total: len(apps)}
	for _, a := range apps {
		switch a.Status {
		case StatusPending:
			stats.Pending++
		case StatusShortlisted:
			stats.Shortlisted++
		case StatusRejected:
			stats.Rejected++
		}
	}
	return stats
}
