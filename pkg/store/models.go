package store

import "time"

// GORM models used for persistence.
type UserModel struct {
	ID           int64   `gorm:"primaryKey;autoIncrement"`
	Name         string  `gorm:"not null"`
	Email        string  `gorm:"uniqueIndex;not null"`
	PasswordHash string  `gorm:"not null;default:''"`
	GoogleID     *string `gorm:"uniqueIndex"`
	Role         string  `gorm:"not null"`
	ResumeURL    string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type JobModel struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	Title       string    `gorm:"not null"`
	Description string    `gorm:"type:text;not null"`
	Skills      string    `gorm:"type:text;not null"`
	Location    string    `gorm:"not null"`
	RecruiterID int64     `gorm:"not null;index"`
	Recruiter   UserModel `gorm:"foreignKey:RecruiterID;constraint:OnDelete:RESTRICT"`
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`

	// ApplicationCount is filled by a subquery on reads.
	ApplicationCount int64 `gorm:"->;-:migration"`
}

type ApplicationModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	JobID     int64     `gorm:"not null;uniqueIndex:idx_application_job_user,priority:1"`
	UserID    int64     `gorm:"not null;uniqueIndex:idx_application_job_user,priority:2;index"`
	Job       JobModel  `gorm:"foreignKey:JobID;constraint:OnDelete:RESTRICT"`
	User      UserModel `gorm:"foreignKey:UserID;constraint:OnDelete:RESTRICT"`
	Status    string    `gorm:"not null;default:PENDING;index"`
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`
}
