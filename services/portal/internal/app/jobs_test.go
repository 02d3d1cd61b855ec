package app

import (
	"context"
	"errors"
	"testing"

	"jobportal/pkg/domain"
)

func strPtr(s string) *string { return &s }

func TestCreateJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rita := env.register(t, "Rita", "rita@example.com", domain.RoleRecruiter)
	sam := env.register(t, "Sam", "sam@example.com", domain.RoleJobSeeker)

	job := env.postJob(t, rita, "Backend Engineer")
	if job.RecruiterID != rita.ID || job.Recruiter == nil || job.Recruiter.Email != rita.Email {
		t.Fatalf("expected owner summary, got %+v", job)
	}
	if job.HasApplied != nil {
		t.Fatalf("create must not set hasApplied")
	}

	if _, err := env.app.CreateJob(ctx, sam, JobInput{Title: "t", Description: "d", Skills: "s", Location: "l"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("seeker create: expected ErrForbidden, got %v", err)
	}
	if _, err := env.app.CreateJob(ctx, rita, JobInput{Title: "t", Description: " ", Skills: "s", Location: "l"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank description: expected ErrInvalidInput, got %v", err)
	}
}

func TestListJobsFiltersAndHasApplied(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acme := env.register(t, "Acme Hiring", "acme@example.com", domain.RoleRecruiter)
	globex := env.register(t, "Globex", "globex@example.com", domain.RoleRecruiter)
	sam := env.register(t, "Sam", "sam@example.com", domain.RoleJobSeeker)

	backend, err := env.app.CreateJob(ctx, acme, JobInput{Title: "Backend Engineer", Description: "Build APIs in Go", Skills: "Go, PostgreSQL", Location: "Berlin"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.app.CreateJob(ctx, globex, JobInput{Title: "Designer", Description: "Figma work", Skills: "figma", Location: "Remote"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	frontend, err := env.app.CreateJob(ctx, acme, JobInput{Title: "Frontend Engineer", Description: "React", Skills: "typescript", Location: "Berlin"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.app.Apply(ctx, sam, backend.ID); err != nil {
		t.Fatalf("apply: %v", err)
	}

	tests := []struct {
		name  string
		query JobQuery
		want  []int64
	}{
		{"search title or description", JobQuery{Search: "engineer"}, []int64{frontend.ID, backend.ID}},
		{"search description only", JobQuery{Search: "apis in go"}, []int64{backend.ID}},
		{"company post-filter", JobQuery{Company: "acme"}, []int64{frontend.ID, backend.ID}},
		{"and across filters", JobQuery{Location: "berlin", Skills: "postgres"}, []int64{backend.ID}},
		{"no match", JobQuery{Company: "initech"}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			jobs, err := env.app.ListJobs(ctx, nil, tc.query)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(jobs) != len(tc.want) {
				t.Fatalf("got %d jobs, want %d", len(jobs), len(tc.want))
			}
			for i, j := range jobs {
				if j.ID != tc.want[i] {
					t.Fatalf("position %d: got job %d, want %d", i, j.ID, tc.want[i])
				}
				if j.HasApplied != nil {
					t.Fatalf("anonymous listing must omit hasApplied")
				}
			}
		})
	}

	jobs, err := env.app.ListJobs(ctx, &sam, JobQuery{Company: "acme"})
	if err != nil {
		t.Fatalf("list as seeker: %v", err)
	}
	for _, j := range jobs {
		if j.HasApplied == nil || *j.HasApplied != (j.ID == backend.ID) {
			t.Fatalf("job %d hasApplied = %v", j.ID, j.HasApplied)
		}
		if j.ID == backend.ID && j.ApplicationCount != 1 {
			t.Fatalf("expected application count 1, got %d", j.ApplicationCount)
		}
	}
}

func TestGetJobHasAppliedScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rita := env.register(t, "Rita", "rita@example.com", domain.RoleRecruiter)
	sam := env.register(t, "Sam", "sam@example.com", domain.RoleJobSeeker)
	job := env.postJob(t, rita, "Backend Engineer")

	anon, err := env.app.GetJob(ctx, nil, job.ID)
	if err != nil || anon.HasApplied != nil {
		t.Fatalf("anonymous detail: hasApplied=%v err=%v", anon.HasApplied, err)
	}
	before, err := env.app.GetJob(ctx, &sam, job.ID)
	if err != nil || before.HasApplied == nil || *before.HasApplied {
		t.Fatalf("before applying: hasApplied=%v err=%v", before.HasApplied, err)
	}
	if _, err := env.app.Apply(ctx, sam, job.ID); err != nil {
		t.Fatalf("apply: %v", err)
	}
	after, err := env.app.GetJob(ctx, &sam, job.ID)
	if err != nil || after.HasApplied == nil || !*after.HasApplied {
		t.Fatalf("after applying: hasApplied=%v err=%v", after.HasApplied, err)
	}
	if _, err := env.app.GetJob(ctx, nil, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing job: expected ErrNotFound, got %v", err)
	}
}

func TestUpdateJobOwnershipAndPatchSemantics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rita := env.register(t, "Rita", "rita@example.com", domain.RoleRecruiter)
	bob := env.register(t, "Bob", "bob@example.com", domain.RoleRecruiter)
	sam := env.register(t, "Sam", "sam@example.com", domain.RoleJobSeeker)
	job := env.postJob(t, rita, "Backend Engineer")

	for name, caller := range map[string]domain.User{"other recruiter": bob, "job seeker": sam} {
		if _, err := env.app.UpdateJob(ctx, caller, job.ID, JobPatch{Title: strPtr("Hijacked")}); !errors.Is(err, ErrForbidden) {
			t.Fatalf("%s: expected ErrForbidden, got %v", name, err)
		}
	}
	if _, err := env.app.UpdateJob(ctx, rita, 9999, JobPatch{Title: strPtr("x")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing job: expected ErrNotFound, got %v", err)
	}
	if _, err := env.app.UpdateJob(ctx, rita, job.ID, JobPatch{Location: strPtr("   ")}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank location: expected ErrInvalidInput, got %v", err)
	}

	updated, err := env.app.UpdateJob(ctx, rita, job.ID, JobPatch{Title: strPtr(" Staff Engineer "), Location: strPtr("Remote")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Staff Engineer" || updated.Location != "Remote" {
		t.Fatalf("patched fields not applied: %+v", updated)
	}
	if updated.Description != job.Description || updated.Skills != job.Skills {
		t.Fatalf("absent fields must be unchanged: %+v", updated)
	}
	if updated.Recruiter == nil || updated.Recruiter.ID != rita.ID {
		t.Fatalf("expected owner summary on updated job")
	}
}

func TestDeleteJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rita := env.register(t, "Rita", "rita@example.com", domain.RoleRecruiter)
	bob := env.register(t, "Bob", "bob@example.com", domain.RoleRecruiter)
	sam := env.register(t, "Sam", "sam@example.com", domain.RoleJobSeeker)
	empty := env.postJob(t, rita, "Empty")
	popular := env.postJob(t, rita, "Popular")
	if _, err := env.app.Apply(ctx, sam, popular.ID); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if err := env.app.DeleteJob(ctx, bob, empty.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-owner delete: expected ErrForbidden, got %v", err)
	}
	if err := env.app.DeleteJob(ctx, rita, popular.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("delete with applications: expected ErrConflict, got %v", err)
	}
	if err := env.app.DeleteJob(ctx, rita, empty.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := env.app.DeleteJob(ctx, rita, empty.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
	if _, err := env.app.GetJob(ctx, nil, popular.ID); err != nil {
		t.Fatalf("job with applications must survive: %v", err)
	}
}

func TestRecruiterJobs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rita := env.register(t, "Rita", "rita@example.com", domain.RoleRecruiter)
	bob := env.register(t, "Bob", "bob@example.com", domain.RoleRecruiter)
	sam := env.register(t, "Sam", "sam@example.com", domain.RoleJobSeeker)
	first := env.postJob(t, rita, "First")
	env.postJob(t, bob, "Bob's")
	second := env.postJob(t, rita, "Second")

	jobs, err := env.app.RecruiterJobs(ctx, rita)
	if err != nil {
		t.Fatalf("recruiter jobs: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != second.ID || jobs[1].ID != first.ID {
		t.Fatalf("expected own jobs newest first, got %+v", jobs)
	}
	if _, err := env.app.RecruiterJobs(ctx, sam); !errors.Is(err, ErrForbidden) {
		t.Fatalf("seeker: expected ErrForbidden, got %v", err)
	}
}
