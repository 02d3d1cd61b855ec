package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"jobportal/pkg/domain"
	"jobportal/pkg/store"
)

// JobInput carries every field of a new job.
type JobInput struct {
	Title       string
	Description string
	Skills      string
	Location    string
}

// JobPatch is a partial update: nil leaves a field unchanged, a non-nil value
// overwrites it and must not be blank.
type JobPatch struct {
	Title       *string
	Description *string
	Skills      *string
	Location    *string
}

// JobQuery filters job listings. Company matches the recruiter's name.
type JobQuery struct {
	Search   string
	Location string
	Skills   string
	Company  string
}

// CreateJob posts a job owned by the caller.
func (a *App) CreateJob(ctx context.Context, caller domain.User, in JobInput) (domain.Job, error) {
	if !CanAct(CallerOf(caller), ActionCreateJob, Resource{}) {
		return domain.Job{}, ErrForbidden
	}
	job := domain.Job{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Skills:      strings.TrimSpace(in.Skills),
		Location:    strings.TrimSpace(in.Location),
		RecruiterID: caller.ID,
	}
	if job.Title == "" || job.Description == "" || job.Skills == "" || job.Location == "" {
		return domain.Job{}, invalid("", "title, description, skillsRequired and location are required")
	}
	if err := a.store.CreateJob(ctx, &job); err != nil {
		return domain.Job{}, fmt.Errorf("create job: %w", err)
	}
	return a.loadJob(ctx, job.ID)
}

// ListJobs returns matching jobs newest first. viewer may be nil; when set,
// each job carries hasApplied for that viewer.
func (a *App) ListJobs(ctx context.Context, viewer *domain.User, q JobQuery) ([]domain.Job, error) {
	jobs, err := a.store.ListJobs(ctx, store.JobFilter{
		Search:   strings.TrimSpace(q.Search),
		Location: strings.TrimSpace(q.Location),
		Skills:   strings.TrimSpace(q.Skills),
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	if company := strings.ToLower(strings.TrimSpace(q.Company)); company != "" {
		filtered := jobs[:0]
		for _, j := range jobs {
			if j.Recruiter != nil && strings.Contains(strings.ToLower(j.Recruiter.Name), company) {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}
	if viewer == nil {
		return jobs, nil
	}
	applied, err := a.store.AppliedJobIDs(ctx, viewer.ID)
	if err != nil {
		return nil, fmt.Errorf("load applied jobs: %w", err)
	}
	for i := range jobs {
		_, ok := applied[jobs[i].ID]
		jobs[i].HasApplied = &ok
	}
	return jobs, nil
}

// GetJob returns one job; hasApplied is set when viewer is non-nil.
func (a *App) GetJob(ctx context.Context, viewer *domain.User, id int64) (domain.Job, error) {
	job, err := a.loadJob(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	if viewer != nil {
		applied, err := a.store.HasApplied(ctx, id, viewer.ID)
		if err != nil {
			return domain.Job{}, fmt.Errorf("check application: %w", err)
		}
		job.HasApplied = &applied
	}
	return job, nil
}

// UpdateJob applies patch to a job owned by caller.
func (a *App) UpdateJob(ctx context.Context, caller domain.User, id int64, patch JobPatch) (domain.Job, error) {
	if !Permits(caller.Role, ActionUpdateJob) {
		return domain.Job{}, ErrForbidden
	}
	job, err := a.loadJob(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	if !CanAct(CallerOf(caller), ActionUpdateJob, Resource{OwnerID: job.RecruiterID}) {
		return domain.Job{}, ErrForbidden
	}
	fields := []struct {
		name  string
		value *string
		dst   *string
	}{
		{"title", patch.Title, &job.Title},
		{"description", patch.Description, &job.Description},
		{"skillsRequired", patch.Skills, &job.Skills},
		{"location", patch.Location, &job.Location},
	}
	for _, f := range fields {
		if f.value == nil {
			continue
		}
		v := strings.TrimSpace(*f.value)
		if v == "" {
			return domain.Job{}, invalid(f.name, f.name+" must not be empty")
		}
		*f.dst = v
	}
	if err := a.store.UpdateJob(ctx, job); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Job{}, ErrJobNotFound
		}
		return domain.Job{}, fmt.Errorf("update job: %w", err)
	}
	return a.loadJob(ctx, id)
}

// DeleteJob removes a job owned by caller. Jobs with applications are kept.
func (a *App) DeleteJob(ctx context.Context, caller domain.User, id int64) error {
	if !Permits(caller.Role, ActionDeleteJob) {
		return ErrForbidden
	}
	job, err := a.loadJob(ctx, id)
	if err != nil {
		return err
	}
	if !CanAct(CallerOf(caller), ActionDeleteJob, Resource{OwnerID: job.RecruiterID}) {
		return ErrForbidden
	}
	switch err := a.store.DeleteJob(ctx, id); {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrReferenced):
		return ErrJobHasApplications
	case errors.Is(err, store.ErrNotFound):
		return ErrJobNotFound
	default:
		return fmt.Errorf("delete job: %w", err)
	}
}

// RecruiterJobs lists the caller's own postings with application counts.
func (a *App) RecruiterJobs(ctx context.Context, caller domain.User) ([]domain.Job, error) {
	if !CanAct(CallerOf(caller), ActionViewRecruiterJobs, Resource{}) {
		return nil, ErrForbidden
	}
	jobs, err := a.store.ListJobs(ctx, store.JobFilter{RecruiterID: caller.ID})
	if err != nil {
		return nil, fmt.Errorf("list recruiter jobs: %w", err)
	}
	return jobs, nil
}

func (a *App) loadJob(ctx context.Context, id int64) (domain.Job, error) {
	job, ok, err := a.store.GetJob(ctx, id)
	if err != nil {
		return domain.Job{}, fmt.Errorf("load job: %w", err)
	}
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}
	return job, nil
}
