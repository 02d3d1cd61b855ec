package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"jobportal/pkg/domain"
)

type pairKey struct {
	jobID  int64
	userID int64
}

// MemoryStore keeps all records in-process. It is used by tests and local runs
// without Postgres; uniqueness rules match the database schema.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	users  map[int64]domain.User
	email  map[string]int64 // email -> user ID
	google map[string]int64 // google subject -> user ID
	jobs   map[int64]domain.Job
	apps   map[int64]domain.Application
	pairs  map[pairKey]int64
	now    func() time.Time
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[int64]domain.User),
		email:  make(map[string]int64),
		google: make(map[string]int64),
		jobs:   make(map[int64]domain.Job),
		apps:   make(map[int64]domain.Application),
		pairs:  make(map[pairKey]int64),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

// CreateUser inserts a user and assigns its ID.
func (m *MemoryStore) CreateUser(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.email[u.Email]; taken {
		return ErrDuplicate
	}
	if u.GoogleID != "" {
		if _, taken := m.google[u.GoogleID]; taken {
			return ErrDuplicate
		}
	}
	now := m.now()
	u.ID = m.id()
	u.CreatedAt = now
	u.UpdatedAt = now
	m.users[u.ID] = *u
	m.email[u.Email] = u.ID
	if u.GoogleID != "" {
		m.google[u.GoogleID] = u.ID
	}
	return nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(_ context.Context, id int64) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUserByEmail looks up a user by exact email.
func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	return m.users[id], true, nil
}

// GetUserByGoogleID looks up a user by linked Google subject.
func (m *MemoryStore) GetUserByGoogleID(_ context.Context, googleID string) (domain.User, bool, error) {
	if googleID == "" {
		return domain.User{}, false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.google[googleID]
	if !ok {
		return domain.User{}, false, nil
	}
	return m.users[id], true, nil
}

// UpdateUser persists the mutable profile fields. Role is never written.
func (m *MemoryStore) UpdateUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	if owner, taken := m.email[u.Email]; taken && owner != u.ID {
		return ErrDuplicate
	}
	if u.GoogleID != "" {
		if owner, taken := m.google[u.GoogleID]; taken && owner != u.ID {
			return ErrDuplicate
		}
	}
	delete(m.email, current.Email)
	if current.GoogleID != "" {
		delete(m.google, current.GoogleID)
	}
	current.Name = u.Name
	current.Email = u.Email
	current.PasswordHash = u.PasswordHash
	current.GoogleID = u.GoogleID
	current.ResumeURL = u.ResumeURL
	current.UpdatedAt = m.now()
	m.users[u.ID] = current
	m.email[current.Email] = current.ID
	if current.GoogleID != "" {
		m.google[current.GoogleID] = current.ID
	}
	return nil
}

// CreateJob inserts a job and assigns its ID.
func (m *MemoryStore) CreateJob(_ context.Context, j *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[j.RecruiterID]; !ok {
		return ErrReferenced
	}
	now := m.now()
	j.ID = m.id()
	j.CreatedAt = now
	j.UpdatedAt = now
	stored := *j
	stored.Recruiter = nil
	stored.ApplicationCount = 0
	stored.HasApplied = nil
	m.jobs[j.ID] = stored
	return nil
}

// GetJob returns a job with recruiter and application count.
func (m *MemoryStore) GetJob(_ context.Context, id int64) (domain.Job, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.Job{}, false, nil
	}
	return m.hydrateJob(j), true, nil
}

// ListJobs returns jobs matching filter, newest first.
func (m *MemoryStore) ListJobs(_ context.Context, filter JobFilter) ([]domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if !matchesFilter(j, filter) {
			continue
		}
		res = append(res, m.hydrateJob(j))
	}
	sort.Slice(res, func(i, k int) bool {
		return newerFirst(res[i].CreatedAt, res[i].ID, res[k].CreatedAt, res[k].ID)
	})
	return res, nil
}

// UpdateJob persists the editable job fields.
func (m *MemoryStore) UpdateJob(_ context.Context, j domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.jobs[j.ID]
	if !ok {
		return ErrNotFound
	}
	current.Title = j.Title
	current.Description = j.Description
	current.Skills = j.Skills
	current.Location = j.Location
	current.UpdatedAt = m.now()
	m.jobs[j.ID] = current
	return nil
}

// DeleteJob removes a job that has no applications.
func (m *MemoryStore) DeleteJob(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return ErrNotFound
	}
	for key := range m.pairs {
		if key.jobID == id {
			return ErrReferenced
		}
	}
	delete(m.jobs, id)
	return nil
}

// CreateApplication inserts the application unless (job, user) already exists.
func (m *MemoryStore) CreateApplication(_ context.Context, a *domain.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[a.JobID]; !ok {
		return ErrReferenced
	}
	if _, ok := m.users[a.UserID]; !ok {
		return ErrReferenced
	}
	key := pairKey{jobID: a.JobID, userID: a.UserID}
	if _, exists := m.pairs[key]; exists {
		return ErrDuplicate
	}
	now := m.now()
	a.ID = m.id()
	a.CreatedAt = now
	a.UpdatedAt = now
	stored := *a
	stored.Job = nil
	stored.Applicant = nil
	m.apps[a.ID] = stored
	m.pairs[key] = a.ID
	return nil
}

// GetApplication returns one application with nested job and applicant.
func (m *MemoryStore) GetApplication(_ context.Context, id int64) (domain.Application, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.apps[id]
	if !ok {
		return domain.Application{}, false, nil
	}
	return m.hydrateApplication(a), true, nil
}

// HasApplied reports whether userID already applied to jobID.
func (m *MemoryStore) HasApplied(_ context.Context, jobID, userID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.pairs[pairKey{jobID: jobID, userID: userID}]
	return ok, nil
}

// AppliedJobIDs returns the set of job IDs the user applied to.
func (m *MemoryStore) AppliedJobIDs(_ context.Context, userID int64) (map[int64]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]struct{})
	for key := range m.pairs {
		if key.userID == userID {
			out[key.jobID] = struct{}{}
		}
	}
	return out, nil
}

// ListApplicationsByUser returns the user's applications, newest first.
func (m *MemoryStore) ListApplicationsByUser(_ context.Context, userID int64) ([]domain.Application, error) {
	return m.listApplications(func(a domain.Application) bool { return a.UserID == userID }), nil
}

// ListApplicationsByJob returns a job's applications, newest first.
func (m *MemoryStore) ListApplicationsByJob(_ context.Context, jobID int64, status domain.ApplicationStatus) ([]domain.Application, error) {
	return m.listApplications(func(a domain.Application) bool {
		return a.JobID == jobID && (status == "" || a.Status == status)
	}), nil
}

// SetApplicationStatus overwrites the status.
func (m *MemoryStore) SetApplicationStatus(_ context.Context, id int64, status domain.ApplicationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = m.now()
	m.apps[id] = a
	return nil
}

func (m *MemoryStore) listApplications(keep func(domain.Application) bool) []domain.Application {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Application, 0)
	for _, a := range m.apps {
		if keep(a) {
			res = append(res, m.hydrateApplication(a))
		}
	}
	sort.Slice(res, func(i, k int) bool {
		return newerFirst(res[i].CreatedAt, res[i].ID, res[k].CreatedAt, res[k].ID)
	})
	return res
}

// hydrateJob requires m.mu held.
func (m *MemoryStore) hydrateJob(j domain.Job) domain.Job {
	if u, ok := m.users[j.RecruiterID]; ok {
		j.Recruiter = recruiterSummary(u)
	}
	var count int64
	for key := range m.pairs {
		if key.jobID == j.ID {
			count++
		}
	}
	j.ApplicationCount = count
	return j
}

// hydrateApplication requires m.mu held.
func (m *MemoryStore) hydrateApplication(a domain.Application) domain.Application {
	if j, ok := m.jobs[a.JobID]; ok {
		a.Job = jobSummary(m.hydrateJob(j))
	}
	if u, ok := m.users[a.UserID]; ok {
		a.Applicant = u.Summary()
	}
	return a
}

func matchesFilter(j domain.Job, f JobFilter) bool {
	if f.RecruiterID != 0 && j.RecruiterID != f.RecruiterID {
		return false
	}
	if v := strings.TrimSpace(f.Search); v != "" && !containsFold(j.Title, v) && !containsFold(j.Description, v) {
		return false
	}
	if v := strings.TrimSpace(f.Location); v != "" && !containsFold(j.Location, v) {
		return false
	}
	if v := strings.TrimSpace(f.Skills); v != "" && !containsFold(j.Skills, v) {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func newerFirst(at time.Time, id int64, bt time.Time, bid int64) bool {
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return id > bid
}
