package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Report is the proof of completion attached to an assignment.
type Report struct {
	ID           uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"id"`
	AssignmentID uuid.UUID `gorm:"type:varchar(36);uniqueIndex;not null" json:"assignment_id"`
	AccountName  string    `gorm:"size:128;not null" json:"account_name"`
	PhotoFileID  string    `gorm:"size:256;not null" json:"photo_file_id"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Report) TableName() string {
	return "task_reports"
}

func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
