package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type City struct {
	ID   uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name string    `gorm:"size:128;uniqueIndex;not null" json:"name"`
}

func (City) TableName() string {
	return "cities"
}

func (c *City) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
