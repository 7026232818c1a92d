package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ApprovalPending  = "PENDING"
	ApprovalApproved = "APPROVED"
	ApprovalRejected = "REJECTED"
)

// User is a worker registered through the bot.
type User struct {
	ID                uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	TgID              int64      `gorm:"uniqueIndex;not null" json:"tg_id"`
	Username          *string    `gorm:"size:64;index" json:"username,omitempty"`
	FullName          *string    `gorm:"size:256" json:"full_name,omitempty"`
	Phone             *string    `gorm:"size:32" json:"phone,omitempty"`
	Gender            *string    `gorm:"size:16" json:"gender,omitempty"`
	CityID            *uuid.UUID `gorm:"type:varchar(36)" json:"city_id,omitempty"`
	IsBlocked         bool       `gorm:"not null;default:false;index" json:"is_blocked"`
	BlockedAt         *time.Time `json:"blocked_at,omitempty"`
	ApprovalStatus    string     `gorm:"size:16;not null;default:'PENDING';index" json:"approval_status"`
	ApprovalAt        *time.Time `json:"approval_at,omitempty"`
	ApprovedByAdminID *int64     `gorm:"index" json:"approved_by_admin_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`

	City *City `gorm:"foreignKey:CityID" json:"city,omitempty"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.ApprovalStatus == "" {
		u.ApprovalStatus = ApprovalPending
	}
	return nil
}

// IsApproved reports whether an admin has let the worker take tasks.
func (u *User) IsApproved() bool {
	return u.ApprovalStatus == ApprovalApproved
}
