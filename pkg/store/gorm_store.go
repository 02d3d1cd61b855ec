package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"jobportal/pkg/domain"
)

const migrateLockID int64 = 51730917

const applicationCountColumn = "(SELECT COUNT(*) FROM application_models a WHERE a.job_id = job_models.id) AS application_count"

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &JobModel{}, &ApplicationModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateUser inserts a user and assigns its ID.
func (s *GormStore) CreateUser(ctx context.Context, u *domain.User) error {
	model := userToModel(*u)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return translateError(err)
	}
	*u = userFromModel(model)
	return nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id int64) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByEmail looks up a user by exact email.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByGoogleID looks up a user by linked Google subject.
func (s *GormStore) GetUserByGoogleID(ctx context.Context, googleID string) (domain.User, bool, error) {
	if strings.TrimSpace(googleID) == "" {
		return domain.User{}, false, nil
	}
	var model UserModel
	if err := s.db.WithContext(ctx).Where("google_id = ?", googleID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// UpdateUser persists the mutable profile fields. Role is never written.
func (s *GormStore) UpdateUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	res := s.db.WithContext(ctx).Model(&UserModel{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{
			"name":          model.Name,
			"email":         model.Email,
			"password_hash": model.PasswordHash,
			"google_id":     model.GoogleID,
			"resume_url":    model.ResumeURL,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateJob inserts a job and assigns its ID.
func (s *GormStore) CreateJob(ctx context.Context, j *domain.Job) error {
	model := jobToModel(*j)
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&model).Error; err != nil {
		return translateError(err)
	}
	j.ID = model.ID
	j.CreatedAt = model.CreatedAt
	j.UpdatedAt = model.UpdatedAt
	return nil
}

// GetJob returns a job with recruiter and application count.
func (s *GormStore) GetJob(ctx context.Context, id int64) (domain.Job, bool, error) {
	var model JobModel
	if err := s.jobQuery(ctx).Where("job_models.id = ?", id).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Job{}, false, nil
		}
		return domain.Job{}, false, err
	}
	return jobFromModel(model), true, nil
}

// ListJobs returns jobs matching filter, newest first.
func (s *GormStore) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	tx := s.jobQuery(ctx)
	if v := strings.TrimSpace(filter.Search); v != "" {
		like := containsPattern(v)
		tx = tx.Where("(job_models.title ILIKE ? OR job_models.description ILIKE ?)", like, like)
	}
	if v := strings.TrimSpace(filter.Location); v != "" {
		tx = tx.Where("job_models.location ILIKE ?", containsPattern(v))
	}
	if v := strings.TrimSpace(filter.Skills); v != "" {
		tx = tx.Where("job_models.skills ILIKE ?", containsPattern(v))
	}
	if filter.RecruiterID != 0 {
		tx = tx.Where("job_models.recruiter_id = ?", filter.RecruiterID)
	}
	var models []JobModel
	if err := tx.Order("job_models.created_at DESC").Order("job_models.id DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Job, 0, len(models))
	for _, m := range models {
		res = append(res, jobFromModel(m))
	}
	return res, nil
}

// UpdateJob persists the editable job fields.
func (s *GormStore) UpdateJob(ctx context.Context, j domain.Job) error {
	res := s.db.WithContext(ctx).Model(&JobModel{}).
		Where("id = ?", j.ID).
		Updates(map[string]any{
			"title":       j.Title,
			"description": j.Description,
			"skills":      j.Skills,
			"location":    j.Location,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteJob removes a job that has no applications.
func (s *GormStore) DeleteJob(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ApplicationModel{}).Where("job_id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrReferenced
		}
		res := tx.Delete(&JobModel{}, "id = ?", id)
		if res.Error != nil {
			return translateError(res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// CreateApplication inserts the application unless (job_id, user_id) already exists.
// The conflict check and the insert are a single statement.
func (s *GormStore) CreateApplication(ctx context.Context, a *domain.Application) error {
	model := applicationToModel(*a)
	res := s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&model)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	a.ID = model.ID
	a.CreatedAt = model.CreatedAt
	a.UpdatedAt = model.UpdatedAt
	return nil
}

// GetApplication returns one application with nested job and applicant.
func (s *GormStore) GetApplication(ctx context.Context, id int64) (domain.Application, bool, error) {
	var model ApplicationModel
	if err := s.applicationQuery(ctx).Where("id = ?", id).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Application{}, false, nil
		}
		return domain.Application{}, false, err
	}
	return applicationFromModel(model), true, nil
}

// HasApplied reports whether userID already applied to jobID.
func (s *GormStore) HasApplied(ctx context.Context, jobID, userID int64) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&ApplicationModel{}).
		Where("job_id = ? AND user_id = ?", jobID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// AppliedJobIDs returns the set of job IDs the user applied to.
func (s *GormStore) AppliedJobIDs(ctx context.Context, userID int64) (map[int64]struct{}, error) {
	var ids []int64
	if err := s.db.WithContext(ctx).Model(&ApplicationModel{}).
		Where("user_id = ?", userID).
		Pluck("job_id", &ids).Error; err != nil {
		return nil, err
	}
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// ListApplicationsByUser returns the user's applications, newest first.
func (s *GormStore) ListApplicationsByUser(ctx context.Context, userID int64) ([]domain.Application, error) {
	return s.listApplications(s.applicationQuery(ctx).Where("user_id = ?", userID))
}

// ListApplicationsByJob returns a job's applications, newest first.
// An empty status returns every status.
func (s *GormStore) ListApplicationsByJob(ctx context.Context, jobID int64, status domain.ApplicationStatus) ([]domain.Application, error) {
	tx := s.applicationQuery(ctx).Where("job_id = ?", jobID)
	if status != "" {
		tx = tx.Where("status = ?", string(status))
	}
	return s.listApplications(tx)
}

// SetApplicationStatus overwrites the status.
func (s *GormStore) SetApplicationStatus(ctx context.Context, id int64, status domain.ApplicationStatus) error {
	res := s.db.WithContext(ctx).Model(&ApplicationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) jobQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&JobModel{}).
		Select("job_models.*, " + applicationCountColumn).
		Preload("Recruiter")
}

func (s *GormStore) applicationQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&ApplicationModel{}).
		Preload("Job.Recruiter").
		Preload("User")
}

func (s *GormStore) listApplications(tx *gorm.DB) ([]domain.Application, error) {
	var models []ApplicationModel
	if err := tx.Order("created_at DESC").Order("id DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Application, 0, len(models))
	for _, m := range models {
		res = append(res, applicationFromModel(m))
	}
	return res, nil
}

func translateError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%w: %v", ErrReferenced, err)
	default:
		return err
	}
}

func containsPattern(v string) string {
	escaper := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + escaper.Replace(v) + "%"
}

func userToModel(u domain.User) UserModel {
	var googleID *string
	if id := strings.TrimSpace(u.GoogleID); id != "" {
		googleID = &id
	}
	return UserModel{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		GoogleID:     googleID,
		Role:         string(u.Role),
		ResumeURL:    u.ResumeURL,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	u := domain.User{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		ResumeURL:    m.ResumeURL,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.GoogleID != nil {
		u.GoogleID = *m.GoogleID
	}
	return u
}

func jobToModel(j domain.Job) JobModel {
	return JobModel{
		ID:          j.ID,
		Title:       j.Title,
		Description: j.Description,
		Skills:      j.Skills,
		Location:    j.Location,
		RecruiterID: j.RecruiterID,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

func jobFromModel(m JobModel) domain.Job {
	j := domain.Job{
		ID:               m.ID,
		Title:            m.Title,
		Description:      m.Description,
		Skills:           m.Skills,
		Location:         m.Location,
		RecruiterID:      m.RecruiterID,
		ApplicationCount: m.ApplicationCount,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	if m.Recruiter.ID != 0 {
		j.Recruiter = recruiterSummary(userFromModel(m.Recruiter))
	}
	return j
}

func applicationToModel(a domain.Application) ApplicationModel {
	return ApplicationModel{
		ID:        a.ID,
		JobID:     a.JobID,
		UserID:    a.UserID,
		Status:    string(a.Status),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func applicationFromModel(m ApplicationModel) domain.Application {
	a := domain.Application{
		ID:        m.ID,
		JobID:     m.JobID,
		UserID:    m.UserID,
		Status:    domain.ApplicationStatus(m.Status),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.Job.ID != 0 {
		a.Job = jobSummary(jobFromModel(m.Job))
	}
	if m.User.ID != 0 {
		a.Applicant = userFromModel(m.User).Summary()
	}
	return a
}

// recruiterSummary omits the résumé field, which only applies to applicants.
func recruiterSummary(u domain.User) *domain.UserSummary {
	return &domain.UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}

func jobSummary(j domain.Job) *domain.JobSummary {
	return &domain.JobSummary{
		ID:          j.ID,
		Title:       j.Title,
		Description: j.Description,
		Skills:      j.Skills,
		Location:    j.Location,
		RecruiterID: j.RecruiterID,
		Recruiter:   j.Recruiter,
		CreatedAt:   j.CreatedAt,
	}
}
