package app

import (
	"context"
	"errors"
	"fmt"

	"jobportal/pkg/domain"
	"jobportal/pkg/store"
)

// ApplicationList is a job seeker's applications plus per-status counts.
type ApplicationList struct {
	Applications []domain.Application    `json:"applications"`
	Stats        domain.ApplicationStats `json:"stats"`
}

// Apply submits caller's application to a job. The store's unique
// (job, user) index settles concurrent duplicates.
func (a *App) Apply(ctx context.Context, caller domain.User, jobID int64) (domain.Application, error) {
	if !CanAct(CallerOf(caller), ActionApply, Resource{}) {
		return domain.Application{}, ErrForbidden
	}
	if _, err := a.loadJob(ctx, jobID); err != nil {
		return domain.Application{}, err
	}
	applied, err := a.store.HasApplied(ctx, jobID, caller.ID)
	if err != nil {
		return domain.Application{}, fmt.Errorf("check application: %w", err)
	}
	if applied {
		return domain.Application{}, ErrAlreadyApplied
	}

	app := domain.Application{JobID: jobID, UserID: caller.ID, Status: domain.StatusPending}
	switch err := a.store.CreateApplication(ctx, &app); {
	case err == nil:
	case errors.Is(err, store.ErrDuplicate):
		return domain.Application{}, ErrAlreadyApplied
	case errors.Is(err, store.ErrReferenced):
		// The job was deleted between the lookup and the insert.
		return domain.Application{}, ErrJobNotFound
	default:
		return domain.Application{}, fmt.Errorf("create application: %w", err)
	}
	a.metrics.ApplicationCreated()
	return a.loadApplication(ctx, app.ID)
}

// MyApplications lists caller's applications newest first with stats.
func (a *App) MyApplications(ctx context.Context, caller domain.User) (ApplicationList, error) {
	if !CanAct(CallerOf(caller), ActionListOwnApplications, Resource{}) {
		return ApplicationList{}, ErrForbidden
	}
	apps, err := a.store.ListApplicationsByUser(ctx, caller.ID)
	if err != nil {
		return ApplicationList{}, fmt.Errorf("list applications: %w", err)
	}
	return ApplicationList{Applications: apps, Stats: domain.CountStatuses(apps)}, nil
}

// JobApplicants lists applications to a job owned by caller. An empty status
// lists all of them.
func (a *App) JobApplicants(ctx context.Context, caller domain.User, jobID int64, status string) ([]domain.Application, error) {
	if !Permits(caller.Role, ActionListApplicants) {
		return nil, ErrForbidden
	}
	job, err := a.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !CanAct(CallerOf(caller), ActionListApplicants, Resource{OwnerID: job.RecruiterID}) {
		return nil, ErrForbidden
	}
	var filter domain.ApplicationStatus
	if status != "" {
		parsed, ok := domain.ParseApplicationStatus(status)
		if !ok {
			return nil, ErrInvalidStatus
		}
		filter = parsed
	}
	apps, err := a.store.ListApplicationsByJob(ctx, jobID, filter)
	if err != nil {
		return nil, fmt.Errorf("list applicants: %w", err)
	}
	for i := range apps {
		if apps[i].Job != nil {
			apps[i].Job = &domain.JobSummary{
				ID:          apps[i].Job.ID,
				Title:       apps[i].Job.Title,
				Location:    apps[i].Job.Location,
				RecruiterID: apps[i].Job.RecruiterID,
				CreatedAt:   apps[i].Job.CreatedAt,
			}
		}
	}
	return apps, nil
}

// UpdateApplicationStatus moves an application to status. Any transition
// between the three states is allowed; only the job's owner may make it.
func (a *App) UpdateApplicationStatus(ctx context.Context, caller domain.User, id int64, status string) (domain.Application, error) {
	if !Permits(caller.Role, ActionUpdateApplicationStatus) {
		return domain.Application{}, ErrForbidden
	}
	next, ok := domain.ParseApplicationStatus(status)
	if !ok {
		return domain.Application{}, ErrInvalidStatus
	}
	current, err := a.loadApplication(ctx, id)
	if err != nil {
		return domain.Application{}, err
	}
	owner, err := a.applicationOwner(ctx, current)
	if err != nil {
		return domain.Application{}, err
	}
	if !CanAct(CallerOf(caller), ActionUpdateApplicationStatus, Resource{OwnerID: owner}) {
		return domain.Application{}, ErrForbidden
	}
	if current.Status == next {
		return current, nil
	}
	if err := a.store.SetApplicationStatus(ctx, id, next); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Application{}, ErrApplicationNotFound
		}
		return domain.Application{}, fmt.Errorf("set status: %w", err)
	}
	a.metrics.StatusChanged(string(next))
	return a.loadApplication(ctx, id)
}

func (a *App) applicationOwner(ctx context.Context, app domain.Application) (int64, error) {
	if app.Job != nil {
		return app.Job.RecruiterID, nil
	}
	job, err := a.loadJob(ctx, app.JobID)
	if err != nil {
		return 0, err
	}
	return job.RecruiterID, nil
}

func (a *App) loadApplication(ctx context.Context, id int64) (domain.Application, error) {
	app, ok, err := a.store.GetApplication(ctx, id)
	if err != nil {
		return domain.Application{}, fmt.Errorf("load application: %w", err)
	}
	if !ok {
		return domain.Application{}, ErrApplicationNotFound
	}
	return app, nil
}
