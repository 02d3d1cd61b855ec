package app

import (
	"testing"

	"jobportal/pkg/domain"
)

func TestCanAct(t *testing.T) {
	recruiter := Caller{ID: 1, Role: domain.RoleRecruiter}
	otherRecruiter := Caller{ID: 2, Role: domain.RoleRecruiter}
	seeker := Caller{ID: 3, Role: domain.RoleJobSeeker}
	owned := Resource{OwnerID: 1}

	tests := []struct {
		name     string
		caller   Caller
		action   Action
		resource Resource
		want     bool
	}{
		{"recruiter creates job", recruiter, ActionCreateJob, Resource{}, true},
		{"seeker cannot create job", seeker, ActionCreateJob, Resource{}, false},
		{"owner updates job", recruiter, ActionUpdateJob, owned, true},
		{"other recruiter cannot update", otherRecruiter, ActionUpdateJob, owned, false},
		{"seeker cannot update", seeker, ActionUpdateJob, owned, false},
		{"owner deletes job", recruiter, ActionDeleteJob, owned, true},
		{"other recruiter cannot delete", otherRecruiter, ActionDeleteJob, owned, false},
		{"owner lists applicants", recruiter, ActionListApplicants, owned, true},
		{"non-owner cannot list applicants", otherRecruiter, ActionListApplicants, owned, false},
		{"owner changes status", recruiter, ActionUpdateApplicationStatus, owned, true},
		{"non-owner cannot change status", otherRecruiter, ActionUpdateApplicationStatus, owned, false},
		{"ownership needs a loaded owner", recruiter, ActionUpdateJob, Resource{}, false},
		{"seeker applies", seeker, ActionApply, Resource{}, true},
		{"recruiter cannot apply", recruiter, ActionApply, Resource{}, false},
		{"seeker lists own applications", seeker, ActionListOwnApplications, Resource{}, true},
		{"recruiter has no own applications", recruiter, ActionListOwnApplications, Resource{}, false},
		{"recruiter views own jobs", recruiter, ActionViewRecruiterJobs, Resource{}, true},
		{"seeker cannot view recruiter jobs", seeker, ActionViewRecruiterJobs, Resource{}, false},
		{"anonymous caller", Caller{}, ActionApply, Resource{}, false},
		{"unknown action", recruiter, Action("job.archive"), owned, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanAct(tc.caller, tc.action, tc.resource); got != tc.want {
				t.Fatalf("CanAct = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPermitsAndRoleFor(t *testing.T) {
	if !Permits(domain.RoleRecruiter, ActionUpdateApplicationStatus) || Permits(domain.RoleJobSeeker, ActionUpdateApplicationStatus) {
		t.Fatalf("status updates are recruiter-only")
	}
	if role, ok := RoleFor(ActionApply); !ok || role != domain.RoleJobSeeker {
		t.Fatalf("RoleFor(apply) = %q %v", role, ok)
	}
	if _, ok := RoleFor(Action("nope")); ok {
		t.Fatalf("unknown action must not resolve")
	}
}
