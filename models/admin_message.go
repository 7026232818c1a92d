package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AdminMessage remembers a review prompt sent to an admin chat so it can be
// edited once somebody handles the report.
type AdminMessage struct {
	ID           uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"id"`
	AssignmentID uuid.UUID `gorm:"type:varchar(36);not null;index" json:"assignment_id"`
	AdminTgID    int64     `gorm:"not null;index" json:"admin_tg_id"`
	MessageID    int64     `gorm:"not null" json:"message_id"`

	Assignment *Assignment `gorm:"foreignKey:AssignmentID;constraint:OnDelete:CASCADE" json:"-"`
}

func (AdminMessage) TableName() string {
	return "task_assignment_admin_messages"
}

func (m *AdminMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
