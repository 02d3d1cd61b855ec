package app

import "jobportal/pkg/domain"

// Action names an operation guarded by CanAct.
type Action string

const (
	ActionCreateJob               Action = "job.create"
	ActionUpdateJob               Action = "job.update"
	ActionDeleteJob               Action = "job.delete"
	ActionViewRecruiterJobs       Action = "job.list_own"
	ActionApply                   Action = "application.create"
	ActionListOwnApplications     Action = "application.list_own"
	ActionListApplicants          Action = "application.list_for_job"
	ActionUpdateApplicationStatus Action = "application.update_status"
)

// Caller is the authenticated identity performing an action.
type Caller struct {
	ID   int64
	Role domain.UserRole
}

// Resource identifies the owner of the record an action touches. For
// application status changes the owner is the recruiter of the job.
type Resource struct {
	OwnerID int64
}

type rule struct {
	role      domain.UserRole
	ownerOnly bool
}

var rules = map[Action]rule{
	ActionCreateJob:               {role: domain.RoleRecruiter},
	ActionUpdateJob:               {role: domain.RoleRecruiter, ownerOnly: true},
	ActionDeleteJob:               {role: domain.RoleRecruiter, ownerOnly: true},
	ActionViewRecruiterJobs:       {role: domain.RoleRecruiter},
	ActionApply:                   {role: domain.RoleJobSeeker},
	ActionListOwnApplications:     {role: domain.RoleJobSeeker},
	ActionListApplicants:          {role: domain.RoleRecruiter, ownerOnly: true},
	ActionUpdateApplicationStatus: {role: domain.RoleRecruiter, ownerOnly: true},
}

// CallerOf projects a user onto the fields policy needs.
func CallerOf(u domain.User) Caller {
	return Caller{ID: u.ID, Role: u.Role}
}

// RoleFor returns the role an action requires.
func RoleFor(action Action) (domain.UserRole, bool) {
	r, ok := rules[action]
	return r.role, ok
}

// Permits reports whether role may attempt action at all, before any record
// is loaded.
func Permits(role domain.UserRole, action Action) bool {
	r, ok := rules[action]
	return ok && r.role == role
}

// CanAct is the single authorization predicate. Ownership actions require
// caller.ID == resource.OwnerID; owners are always recruiters, so a
// non-owner is refused whatever its role.
func CanAct(caller Caller, action Action, resource Resource) bool {
	r, ok := rules[action]
	if !ok || caller.ID <= 0 {
		return false
	}
	if r.ownerOnly {
		return resource.OwnerID > 0 && caller.ID == resource.OwnerID
	}
	return caller.Role == r.role
}
