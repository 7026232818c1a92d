package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StatusAssigned  = "ASSIGNED"
	StatusSubmitted = "SUBMITTED"
	StatusApproved  = "APPROVED"
	StatusRejected  = "REJECTED"
)

// Assignment binds one task to one worker. At most one non-archived
// assignment may reference a task; see database.Migrate.
type Assignment struct {
	ID                 uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID             uuid.UUID  `gorm:"type:varchar(36);not null;index" json:"user_id"`
	TaskID             uuid.UUID  `gorm:"type:varchar(36);not null;index" json:"task_id"`
	Status             string     `gorm:"size:32;not null;default:'ASSIGNED';index" json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	SubmittedAt        *time.Time `json:"submitted_at,omitempty"`
	ProcessedAt        *time.Time `json:"processed_at,omitempty"`
	ProcessedByAdminID *int64     `gorm:"index" json:"processed_by_admin_id,omitempty"`
	ReportMessageID    *int64     `json:"report_message_id,omitempty"`
	IsArchived         bool       `gorm:"not null;default:false;index" json:"is_archived"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Task *Task `gorm:"foreignKey:TaskID" json:"task,omitempty"`
}

func (Assignment) TableName() string {
	return "task_assignments"
}

func (a *Assignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusAssigned
	}
	return nil
}
